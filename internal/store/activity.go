package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chordboard/internal/apperr"
	"chordboard/internal/models"
)

// AppendActivity writes one audit record. The version column snapshots the
// setlist's version at write time; rows are never updated or deleted.
func (s *Store) AppendActivity(ctx context.Context, setlistID, customerID int64, action models.ActivityAction, details json.RawMessage) (*models.Activity, error) {
	var a models.Activity
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO activities (setlist_id, customer_id, action, details, version, created_at)
		SELECT $1, $2, $3, $4, version, $5 FROM setlists WHERE id = $1
		RETURNING id, setlist_id, customer_id, action, details, version, created_at`,
		setlistID, customerID, action, nullIfEmptyJSON(details), time.Now().UTC(),
	).Scan(&a.ID, &a.SetlistID, &a.CustomerID, &a.Action, &a.Details, &a.Version, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("setlist %d", setlistID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	return &a, nil
}

// ListActivities returns a setlist's audit trail, newest first.
func (s *Store) ListActivities(ctx context.Context, setlistID int64, limit int) ([]models.Activity, error) {
	query := `
		SELECT id, setlist_id, customer_id, action, details, version, created_at
		FROM activities
		WHERE setlist_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{setlistID}
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $2"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	activities := make([]models.Activity, 0)
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.SetlistID, &a.CustomerID, &a.Action, &a.Details, &a.Version, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return activities, nil
}

func nullIfEmptyJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
