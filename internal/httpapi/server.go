// Package httpapi exposes the setlist engine over HTTP. Handlers decode the
// request, delegate to the services and map the error taxonomy onto status
// codes; no business rules live here.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"chordboard/internal/app/setlists"
	"chordboard/internal/apperr"
	"chordboard/internal/metrics"
	"chordboard/internal/models"
)

// SetlistService captures the engine operations the HTTP handlers need.
type SetlistService interface {
	Create(ctx context.Context, ownerID int64, name, description string, tags []string) (*models.Setlist, error)
	List(ctx context.Context, ownerID int64, since *time.Time, limit int) ([]*models.Setlist, error)
	Get(ctx context.Context, setlistID, callerID int64) (*models.Setlist, error)
	Update(ctx context.Context, setlistID, callerID int64, update models.SetlistUpdate) (*models.Setlist, error)
	Delete(ctx context.Context, setlistID, callerID int64) (*models.Setlist, error)
	AddSong(ctx context.Context, setlistID, callerID, songID int64) (*models.Setlist, error)
	AddSongs(ctx context.Context, setlistID, callerID int64, songIDs []int64) (*models.Setlist, error)
	RemoveSong(ctx context.Context, setlistID, callerID, songID int64) (*models.Setlist, error)
	RemoveSongs(ctx context.Context, setlistID, callerID int64, songIDs []int64) (*models.Setlist, error)
	Reorder(ctx context.Context, setlistID, callerID int64, orderedSongIDs []int64) (*setlists.ReorderResult, error)
	UpdateSettings(ctx context.Context, setlistID, callerID int64, settings models.SetlistSettings) (*models.Setlist, error)
	MakePublic(ctx context.Context, setlistID, callerID int64) (*models.Setlist, error)
	MakePrivate(ctx context.Context, setlistID, callerID int64) (*models.Setlist, error)
	Like(ctx context.Context, setlistID, callerID int64) (int, error)
	Unlike(ctx context.Context, setlistID, callerID int64) (int, error)
	IncrementView(ctx context.Context, setlistID, callerID int64) (int, error)
	Activity(ctx context.Context, setlistID, callerID int64, limit int) ([]models.Activity, error)
}

// SharingService captures the collaboration operations the handlers need.
type SharingService interface {
	Share(ctx context.Context, setlistID, callerID int64, email string, permission models.Permission) (*models.Collaborator, error)
	AcceptInvitation(ctx context.Context, code string, callerID int64) (*models.Setlist, error)
	JoinByShareCode(ctx context.Context, code string, callerID int64) (*models.Setlist, error)
	UpdateCollaborator(ctx context.Context, setlistID, callerID, targetID int64, permission models.Permission) (*models.Collaborator, error)
	RemoveCollaborator(ctx context.Context, setlistID, callerID, targetID int64) error
	Collaborators(ctx context.Context, setlistID, callerID int64) ([]models.Collaborator, error)
}

var _ SetlistService = (*setlists.Service)(nil)

// Server wires HTTP handlers to the underlying services.
type Server struct {
	setlists       SetlistService
	sharing        SharingService
	logger         zerolog.Logger
	sink           metrics.Sink
	jwtSecret      []byte
	allowedOrigins []string
}

// Config carries the boundary concerns the server needs.
type Config struct {
	JWTSecret      string
	AllowedOrigins []string
	Sink           metrics.Sink
}

// New configures a Server with the given services.
func New(setlistSvc SetlistService, sharingSvc SharingService, logger zerolog.Logger, cfg Config) *Server {
	sink := cfg.Sink
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Server{
		setlists:       setlistSvc,
		sharing:        sharingSvc,
		logger:         logger,
		sink:           sink,
		jwtSecret:      []byte(cfg.JWTSecret),
		allowedOrigins: cfg.AllowedOrigins,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withRequestLog)
	r.Use(s.withCORS)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.withAuth)

		r.Route("/setlists", func(r chi.Router) {
			r.Post("/", s.handleCreateSetlist)
			r.Get("/", s.handleListSetlists)

			r.Route("/{setlistID}", func(r chi.Router) {
				r.Get("/", s.handleGetSetlist)
				r.Put("/", s.handleUpdateSetlist)
				r.Delete("/", s.handleDeleteSetlist)

				r.Post("/songs", s.handleAddSongs)
				r.Delete("/songs", s.handleRemoveSongs)
				r.Delete("/songs/{songID}", s.handleRemoveSong)
				r.Put("/order", s.handleReorder)

				r.Post("/share", s.handleShare)
				r.Get("/collaborators", s.handleListCollaborators)
				r.Put("/collaborators/{customerID}", s.handleUpdateCollaborator)
				r.Delete("/collaborators/{customerID}", s.handleRemoveCollaborator)

				r.Put("/settings", s.handleUpdateSettings)
				r.Post("/publish", s.handleMakePublic)
				r.Post("/unpublish", s.handleMakePrivate)

				r.Post("/like", s.handleLike)
				r.Delete("/like", s.handleUnlike)
				r.Post("/views", s.handleIncrementView)
				r.Get("/activity", s.handleActivity)
			})
		})

		r.Post("/invitations/{code}/accept", s.handleAcceptInvitation)
		r.Post("/join/{code}", s.handleJoin)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps the error taxonomy onto status codes. Anything outside the
// taxonomy is a 500 with a generic body; the detail stays in the log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, apperr.ErrForbidden):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, apperr.ErrBadRequest):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, apperr.ErrConflict):
		status, message = http.StatusConflict, err.Error()
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	writeJSON(w, status, map[string]string{"error": message})
}
