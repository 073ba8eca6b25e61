// Package cache provides the read-through cache facade for setlist reads and
// the key-value store adapter underneath it. The facade is the only component
// other layers talk to for caching; a cache failure is logged and the call
// falls through to the primary data path.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chordboard/internal/metrics"
)

const (
	setlistPrefix = "setlist:"
	listPrefix    = setlistPrefix + "list_"

	// DefaultEntityTTL is short because setlists mutate frequently.
	DefaultEntityTTL = 2 * time.Minute
	// DefaultListTTL applies to unfiltered list reads.
	DefaultListTTL = 10 * time.Minute
)

// EntityKey builds the cache key for a single setlist.
func EntityKey(setlistID int64) string {
	return fmt.Sprintf("%s%d", setlistPrefix, setlistID)
}

// ListKey builds a deterministic key for a customer's filtered setlist
// listing. The owner segment leads so OwnerListPrefix covers every one of the
// customer's list keys; the remaining filter pairs are sorted so the same
// filters in a different order hit the same entry.
func ListKey(ownerID int64, filters map[string]string) string {
	key := OwnerListPrefix(ownerID)
	if len(filters) == 0 {
		return key
	}

	pairs := make([]string, 0, len(filters))
	for k, v := range filters {
		pairs = append(pairs, k+":"+v)
	}
	sort.Strings(pairs)
	return key + "_" + strings.Join(pairs, "_")
}

// OwnerListPrefix is the prefix shared by every list key for one customer,
// used for targeted invalidation of that customer's listings.
func OwnerListPrefix(ownerID int64) string {
	return fmt.Sprintf("%sowner:%d", listPrefix, ownerID)
}

// Cache is the read-through facade over a Store.
type Cache struct {
	store     Store
	logger    zerolog.Logger
	sink      metrics.Sink
	entityTTL time.Duration
	listTTL   time.Duration
}

// Options tune the facade's time-to-lives; zero values pick the defaults.
type Options struct {
	EntityTTL time.Duration
	ListTTL   time.Duration
}

// New builds a facade over store. sink may be nil.
func New(store Store, logger zerolog.Logger, sink metrics.Sink, opts Options) *Cache {
	if sink == nil {
		sink = metrics.Nop{}
	}
	if opts.EntityTTL <= 0 {
		opts.EntityTTL = DefaultEntityTTL
	}
	if opts.ListTTL <= 0 {
		opts.ListTTL = DefaultListTTL
	}
	return &Cache{
		store:     store,
		logger:    logger,
		sink:      sink,
		entityTTL: opts.EntityTTL,
		listTTL:   opts.ListTTL,
	}
}

// EntityTTL is the time-to-live for single-setlist reads.
func (c *Cache) EntityTTL() time.Duration { return c.entityTTL }

// ListTTL picks the time-to-live for a list read. Listings filtered by a
// "since" cursor are change-detection polls and use the short entity TTL.
func (c *Cache) ListTTL(hasSince bool) time.Duration {
	if hasSince {
		return c.entityTTL
	}
	return c.listTTL
}

// GetOrSet reads key through the cache. On a miss, a store error, or an
// unavailable store, factory runs against the source of truth and the result
// is cached best-effort.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, factory func(context.Context) (T, error)) (T, error) {
	kind := keyKind(key)

	if c.store.Available() {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil {
			c.sink.IncCounter(metrics.CacheError, kind)
			c.logger.Warn().Err(err).Str("key", key).Msg("cache get failed, falling back to store")
		} else if ok {
			var cached T
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				c.sink.IncCounter(metrics.CacheHit, kind)
				return cached, nil
			}
			// A corrupt entry is treated as a miss and overwritten below.
			c.logger.Warn().Str("key", key).Msg("cache entry undecodable, recomputing")
		}
	}

	c.sink.IncCounter(metrics.CacheMiss, kind)

	value, err := factory(ctx)
	if err != nil {
		return value, err
	}

	if c.store.Available() {
		if raw, err := json.Marshal(value); err == nil {
			if err := c.store.Set(ctx, key, string(raw), ttl); err != nil {
				c.sink.IncCounter(metrics.CacheError, kind)
				c.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
			}
		}
	}

	return value, nil
}

// InvalidateSetlist performs targeted invalidation: the setlist's entity key
// plus the acting customer's list keys. Used after single-song mutations for
// a low blast radius.
func (c *Cache) InvalidateSetlist(ctx context.Context, setlistID, actorID int64) {
	if !c.store.Available() {
		return
	}
	if err := c.store.Delete(ctx, EntityKey(setlistID)); err != nil {
		c.sink.IncCounter(metrics.CacheError, "entity")
		c.logger.Warn().Err(err).Int64("setlist_id", setlistID).Msg("cache invalidate failed")
	}
	if err := c.store.DeletePrefix(ctx, OwnerListPrefix(actorID)); err != nil {
		c.sink.IncCounter(metrics.CacheError, "list")
		c.logger.Warn().Err(err).Int64("customer_id", actorID).Msg("cache list invalidate failed")
	}
}

// InvalidateAll performs prefix-wide invalidation of every setlist key. Used
// after bulk mutations and deletions to guarantee consistency.
func (c *Cache) InvalidateAll(ctx context.Context) {
	if !c.store.Available() {
		return
	}
	if err := c.store.DeletePrefix(ctx, setlistPrefix); err != nil {
		c.sink.IncCounter(metrics.CacheError, "prefix")
		c.logger.Warn().Err(err).Msg("cache prefix invalidate failed")
	}
}

func keyKind(key string) string {
	if strings.HasPrefix(key, listPrefix) {
		return "list"
	}
	return "entity"
}
