package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chordboard/internal/apperr"
	"chordboard/internal/models"
)

const collaboratorColumns = `id, setlist_id, customer_id, permission, status, invited_by,
	invited_at, accepted_at, last_active_at`

func scanCollaborator(row interface{ Scan(...any) error }) (*models.Collaborator, error) {
	var (
		c          models.Collaborator
		acceptedAt sql.NullTime
		activeAt   sql.NullTime
	)
	err := row.Scan(&c.ID, &c.SetlistID, &c.CustomerID, &c.Permission, &c.Status, &c.InvitedBy,
		&c.InvitedAt, &acceptedAt, &activeAt)
	if err != nil {
		return nil, err
	}
	if acceptedAt.Valid {
		c.AcceptedAt = &acceptedAt.Time
	}
	if activeAt.Valid {
		c.LastActiveAt = &activeAt.Time
	}
	return &c, nil
}

// CreateCollaborator inserts a collaboration record. A second record for the
// same (setlist, customer) pair fails with ErrConflict.
func (s *Store) CreateCollaborator(ctx context.Context, c models.Collaborator) (*models.Collaborator, error) {
	now := time.Now().UTC()
	var acceptedAt, activeAt any
	if c.Status == models.CollaboratorAccepted {
		acceptedAt = now
		activeAt = now
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO collaborators (setlist_id, customer_id, permission, status, invited_by, invited_at, accepted_at, last_active_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+collaboratorColumns,
		c.SetlistID, c.CustomerID, c.Permission, c.Status, c.InvitedBy, now, acceptedAt, activeAt)

	created, err := scanCollaborator(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflict("customer %d already collaborates on setlist %d", c.CustomerID, c.SetlistID)
		}
		if isForeignKeyViolation(err) {
			return nil, apperr.NotFound("setlist %d", c.SetlistID)
		}
		return nil, fmt.Errorf("insert collaborator: %w", err)
	}
	return created, nil
}

// GetCollaborator returns the collaboration record for the pair, any status.
func (s *Store) GetCollaborator(ctx context.Context, setlistID, customerID int64) (*models.Collaborator, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+collaboratorColumns+`
		FROM collaborators
		WHERE setlist_id = $1 AND customer_id = $2`, setlistID, customerID)

	c, err := scanCollaborator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("collaborator %d on setlist %d", customerID, setlistID)
	}
	if err != nil {
		return nil, fmt.Errorf("get collaborator: %w", err)
	}
	return c, nil
}

// GetAcceptedCollaborator returns the pair's record only when it is ACCEPTED.
func (s *Store) GetAcceptedCollaborator(ctx context.Context, setlistID, customerID int64) (*models.Collaborator, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+collaboratorColumns+`
		FROM collaborators
		WHERE setlist_id = $1 AND customer_id = $2 AND status = $3`,
		setlistID, customerID, models.CollaboratorAccepted)

	c, err := scanCollaborator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("collaborator %d on setlist %d", customerID, setlistID)
	}
	if err != nil {
		return nil, fmt.Errorf("get accepted collaborator: %w", err)
	}
	return c, nil
}

// GetSetlistByShareCode resolves a live share code to its setlist.
func (s *Store) GetSetlistByShareCode(ctx context.Context, code string) (*models.Setlist, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+setlistColumns+`
		FROM setlists
		WHERE share_code = $1`, code)

	sl, err := scanSetlist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("share code %s", code)
	}
	if err != nil {
		return nil, fmt.Errorf("get setlist by share code: %w", err)
	}
	return sl, nil
}

// AcceptCollaborator transitions a PENDING record to ACCEPTED, stamping
// accepted_at and last_active_at. The transition never runs backward.
func (s *Store) AcceptCollaborator(ctx context.Context, setlistID, customerID int64) (*models.Collaborator, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		UPDATE collaborators
		SET status = $1, accepted_at = $2, last_active_at = $2
		WHERE setlist_id = $3 AND customer_id = $4 AND status = $5
		RETURNING `+collaboratorColumns,
		models.CollaboratorAccepted, now, setlistID, customerID, models.CollaboratorPending)

	c, err := scanCollaborator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no pending invitation for customer %d on setlist %d", customerID, setlistID)
	}
	if err != nil {
		return nil, fmt.Errorf("accept collaborator: %w", err)
	}
	return c, nil
}

// UpdateCollaboratorPermission rewrites the pair's permission level.
func (s *Store) UpdateCollaboratorPermission(ctx context.Context, setlistID, customerID int64, permission models.Permission) (*models.Collaborator, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE collaborators
		SET permission = $1
		WHERE setlist_id = $2 AND customer_id = $3
		RETURNING `+collaboratorColumns,
		permission, setlistID, customerID)

	c, err := scanCollaborator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("collaborator %d on setlist %d", customerID, setlistID)
	}
	if err != nil {
		return nil, fmt.Errorf("update collaborator: %w", err)
	}
	return c, nil
}

// DeleteCollaborator removes the pair's record.
func (s *Store) DeleteCollaborator(ctx context.Context, setlistID, customerID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM collaborators
		WHERE setlist_id = $1 AND customer_id = $2`, setlistID, customerID)
	if err != nil {
		return fmt.Errorf("delete collaborator: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("collaborator %d on setlist %d", customerID, setlistID)
	}
	return nil
}

// ListCollaborators returns every collaboration record for a setlist in
// invitation order.
func (s *Store) ListCollaborators(ctx context.Context, setlistID int64) ([]models.Collaborator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+collaboratorColumns+`
		FROM collaborators
		WHERE setlist_id = $1
		ORDER BY invited_at ASC, id ASC`, setlistID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	collaborators := make([]models.Collaborator, 0)
	for rows.Next() {
		c, err := scanCollaborator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		collaborators = append(collaborators, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}
	return collaborators, nil
}

// TouchCollaborator updates the pair's last_active_at stamp.
func (s *Store) TouchCollaborator(ctx context.Context, setlistID, customerID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE collaborators
		SET last_active_at = $1
		WHERE setlist_id = $2 AND customer_id = $3`,
		time.Now().UTC(), setlistID, customerID)
	if err != nil {
		return fmt.Errorf("touch collaborator: %w", err)
	}
	return nil
}
