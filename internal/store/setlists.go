package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"chordboard/internal/apperr"
	"chordboard/internal/models"
)

const setlistColumns = `id, name, description, owner_id, is_public, is_shared, share_code,
	allow_editing, allow_comments, version, like_count, view_count, tags, shared_at, created_at, updated_at`

func scanSetlist(row interface{ Scan(...any) error }) (*models.Setlist, error) {
	var (
		sl          models.Setlist
		description sql.NullString
		shareCode   sql.NullString
		sharedAt    sql.NullTime
	)
	err := row.Scan(&sl.ID, &sl.Name, &description, &sl.OwnerID, &sl.IsPublic, &sl.IsShared, &shareCode,
		&sl.AllowEditing, &sl.AllowComments, &sl.Version, &sl.LikeCount, &sl.ViewCount,
		pq.Array(&sl.Tags), &sharedAt, &sl.CreatedAt, &sl.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sl.Description = description.String
	if shareCode.Valid {
		sl.ShareCode = &shareCode.String
	}
	if sharedAt.Valid {
		sl.SharedAt = &sharedAt.Time
	}
	return &sl, nil
}

// CreateSetlist persists a new, empty setlist.
func (s *Store) CreateSetlist(ctx context.Context, ownerID int64, name, description string, tags []string) (*models.Setlist, error) {
	now := time.Now().UTC()
	if tags == nil {
		tags = []string{}
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO setlists (name, description, owner_id, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING `+setlistColumns,
		name, nullIfEmpty(description), ownerID, pq.Array(tags), now)

	sl, err := scanSetlist(row)
	if err != nil {
		return nil, fmt.Errorf("insert setlist: %w", err)
	}
	sl.Songs = []models.SetlistSong{}
	return sl, nil
}

// GetSetlist returns a setlist with its ordered songs.
func (s *Store) GetSetlist(ctx context.Context, id int64) (*models.Setlist, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+setlistColumns+`
		FROM setlists
		WHERE id = $1`, id)

	sl, err := scanSetlist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("setlist %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get setlist: %w", err)
	}

	songs, err := s.ListSetlistSongs(ctx, id)
	if err != nil {
		return nil, err
	}
	sl.Songs = songs
	sl.SongCount = len(songs)
	return sl, nil
}

// ListSetlists returns a customer's setlists ordered by last update, newest
// first. The filter's Since cursor keeps only setlists touched after it.
func (s *Store) ListSetlists(ctx context.Context, filter models.SetlistFilter) ([]*models.Setlist, error) {
	query := `
		SELECT ` + setlistColumns + `
		FROM setlists
		WHERE owner_id = $1`
	args := []any{filter.OwnerID}

	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND updated_at > $%d", len(args))
	}
	query += " ORDER BY updated_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list setlists: %w", err)
	}
	defer rows.Close()

	setlists := make([]*models.Setlist, 0)
	for rows.Next() {
		sl, err := scanSetlist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan setlist: %w", err)
		}
		setlists = append(setlists, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate setlists: %w", err)
	}

	for _, sl := range setlists {
		songs, err := s.ListSetlistSongs(ctx, sl.ID)
		if err != nil {
			return nil, err
		}
		sl.Songs = songs
		sl.SongCount = len(songs)
	}
	return setlists, nil
}

// UpdateSetlist applies the non-nil metadata fields and touches updated_at.
func (s *Store) UpdateSetlist(ctx context.Context, id int64, update models.SetlistUpdate) (*models.Setlist, error) {
	set := "updated_at = $1"
	args := []any{time.Now().UTC()}

	if update.Name != nil {
		args = append(args, *update.Name)
		set += fmt.Sprintf(", name = $%d", len(args))
	}
	if update.Description != nil {
		args = append(args, nullIfEmpty(*update.Description))
		set += fmt.Sprintf(", description = $%d", len(args))
	}
	if update.Tags != nil {
		args = append(args, pq.Array(update.Tags))
		set += fmt.Sprintf(", tags = $%d", len(args))
	}

	args = append(args, id)
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("UPDATE setlists SET %s WHERE id = $%d RETURNING %s", set, len(args), setlistColumns),
		args...)

	sl, err := scanSetlist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("setlist %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("update setlist: %w", err)
	}

	songs, err := s.ListSetlistSongs(ctx, id)
	if err != nil {
		return nil, err
	}
	sl.Songs = songs
	sl.SongCount = len(songs)
	return sl, nil
}

// DeleteSetlist removes a setlist and returns the deleted snapshot. Songs,
// collaborators, activity and likes cascade at the schema level.
func (s *Store) DeleteSetlist(ctx context.Context, id int64) (*models.Setlist, error) {
	snapshot, err := s.GetSetlist(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM setlists WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete setlist: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, apperr.NotFound("setlist %d", id)
	}
	return snapshot, nil
}

// UpdateSettings writes the settings toggles and bumps the version counter.
func (s *Store) UpdateSettings(ctx context.Context, id int64, settings models.SetlistSettings) (*models.Setlist, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE setlists
		SET is_public = $1, allow_editing = $2, allow_comments = $3,
		    version = version + 1, updated_at = $4
		WHERE id = $5
		RETURNING `+setlistColumns,
		settings.IsPublic, settings.AllowEditing, settings.AllowComments, time.Now().UTC(), id)

	sl, err := scanSetlist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("setlist %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return sl, nil
}

// SetPublic flips the community visibility flag, stamping shared_at when the
// setlist goes public and clearing it when it goes private.
func (s *Store) SetPublic(ctx context.Context, id int64, public bool) (*models.Setlist, error) {
	now := time.Now().UTC()
	var sharedAt any
	if public {
		sharedAt = now
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE setlists
		SET is_public = $1, shared_at = $2, updated_at = $3
		WHERE id = $4
		RETURNING `+setlistColumns,
		public, sharedAt, now, id)

	sl, err := scanSetlist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("setlist %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("set public: %w", err)
	}
	return sl, nil
}

// SetShareCode assigns the setlist's share code and marks it shared. The code
// column carries a unique constraint; a collision surfaces as ErrConflict so
// the caller can retry with a fresh code.
func (s *Store) SetShareCode(ctx context.Context, id int64, code string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE setlists
		SET share_code = $1, is_shared = TRUE, updated_at = $2
		WHERE id = $3 AND share_code IS NULL`,
		code, time.Now().UTC(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("share code %s already in use", code)
		}
		return fmt.Errorf("set share code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.Conflict("setlist %d already has a share code", id)
	}
	return nil
}

// MarkShared re-enables sharing on a setlist whose code already exists.
func (s *Store) MarkShared(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE setlists
		SET is_shared = TRUE, updated_at = $1
		WHERE id = $2`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark shared: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("setlist %d", id)
	}
	return nil
}
