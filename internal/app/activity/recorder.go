// Package activity appends the immutable audit trail for setlists. The trail
// is display-only; it never participates in conflict resolution.
package activity

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"chordboard/internal/models"
)

// Store captures the persistence needs of the recorder.
type Store interface {
	AppendActivity(ctx context.Context, setlistID, customerID int64, action models.ActivityAction, details json.RawMessage) (*models.Activity, error)
	ListActivities(ctx context.Context, setlistID int64, limit int) ([]models.Activity, error)
}

// Recorder appends audit records.
type Recorder struct {
	store  Store
	logger zerolog.Logger
}

// NewRecorder constructs a Recorder backed by the provided Store.
func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record appends one audit entry. The primary mutation has already
// committed when Record runs, so append failures are logged and swallowed
// rather than failing the operation.
func (r *Recorder) Record(ctx context.Context, setlistID, actorID int64, action models.ActivityAction, details any) {
	var raw json.RawMessage
	if details != nil {
		encoded, err := json.Marshal(details)
		if err != nil {
			r.logger.Error().Err(err).
				Int64("setlist_id", setlistID).
				Str("action", string(action)).
				Msg("encode activity details")
			return
		}
		raw = encoded
	}

	if _, err := r.store.AppendActivity(ctx, setlistID, actorID, action, raw); err != nil {
		r.logger.Error().Err(err).
			Int64("setlist_id", setlistID).
			Int64("customer_id", actorID).
			Str("action", string(action)).
			Msg("append activity")
	}
}

// List returns the newest audit entries for a setlist.
func (r *Recorder) List(ctx context.Context, setlistID int64, limit int) ([]models.Activity, error) {
	return r.store.ListActivities(ctx, setlistID, limit)
}
