package main

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chordboard/internal/app/access"
	"chordboard/internal/app/activity"
	"chordboard/internal/app/setlists"
	"chordboard/internal/app/sharing"
	"chordboard/internal/cache"
	"chordboard/internal/httpapi"
	"chordboard/internal/metrics"
	"chordboard/internal/store"
)

func newHTTPHandler(cfg Config, db *sql.DB, logger zerolog.Logger) http.Handler {
	sink := metrics.NewPrometheus("chordboard")

	dataStore := store.New(db)
	setlistCache := cache.New(newCacheStore(cfg, logger), logger, sink, cache.Options{
		EntityTTL: cfg.EntityTTL,
		ListTTL:   cfg.ListTTL,
	})

	resolver := access.NewResolver(dataStore, logger)
	recorder := activity.NewRecorder(dataStore, logger)

	setlistSvc := setlists.New(dataStore, resolver, recorder, setlistCache, logger)
	sharingSvc := sharing.New(dataStore, resolver, recorder, setlistCache)

	api := httpapi.New(setlistSvc, sharingSvc, logger, httpapi.Config{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		Sink:           sink,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(sink.Registry(), promhttp.HandlerOpts{}))
	mux.Handle("/", api.Routes())
	return mux
}

// newCacheStore builds the redis adapter. Without REDIS_URL the adapter runs
// disabled and every read goes straight to the database.
func newCacheStore(cfg Config, logger zerolog.Logger) cache.Store {
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("invalid REDIS_URL, running without cache")
		} else {
			rdb = redis.NewClient(opts)
		}
	}
	return cache.NewRedisStore(rdb, logger)
}
