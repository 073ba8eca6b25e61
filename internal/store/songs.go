package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"chordboard/internal/apperr"
	"chordboard/internal/models"
)

// positionOffset shifts existing positions out of the way during renumbering
// so the (setlist_id, position) unique constraint never sees a transient
// collision between old and new values.
const positionOffset = 10000

// ListSetlistSongs returns a setlist's songs in position order.
func (s *Store) ListSetlistSongs(ctx context.Context, setlistID int64) ([]models.SetlistSong, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ss.setlist_id, ss.song_id, ss.position, ss.added_by, so.title, so.artist, ss.created_at
		FROM setlist_songs ss
		JOIN songs so ON so.id = ss.song_id
		WHERE ss.setlist_id = $1
		ORDER BY ss.position ASC`, setlistID)
	if err != nil {
		return nil, fmt.Errorf("list setlist songs: %w", err)
	}
	defer rows.Close()

	songs := make([]models.SetlistSong, 0)
	for rows.Next() {
		var song models.SetlistSong
		if err := rows.Scan(&song.SetlistID, &song.SongID, &song.Position, &song.AddedBy,
			&song.Title, &song.Artist, &song.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan setlist song: %w", err)
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate setlist songs: %w", err)
	}
	return songs, nil
}

// AddSong appends a song to the end of a setlist.
func (s *Store) AddSong(ctx context.Context, setlistID, songID, actorID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM songs WHERE id = $1)`, songID).Scan(&exists); err != nil {
			return fmt.Errorf("check song: %w", err)
		}
		if !exists {
			return apperr.NotFound("song %d", songID)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO setlist_songs (setlist_id, song_id, position, added_by, created_at)
			VALUES (
				$1, $2,
				COALESCE((SELECT MAX(position) + 1 FROM setlist_songs WHERE setlist_id = $1), 0),
				$3, $4
			)`,
			setlistID, songID, actorID, time.Now().UTC())
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.Conflict("song %d already in setlist %d", songID, setlistID)
			}
			if isForeignKeyViolation(err) {
				return apperr.NotFound("setlist %d", setlistID)
			}
			return fmt.Errorf("insert setlist song: %w", err)
		}

		return touchSetlist(ctx, tx, setlistID)
	})
}

// AddSongs appends several songs at once. Unknown ids fail the whole call
// with ErrNotFound naming every missing id; ids already in the setlist are
// skipped, and the call fails with ErrBadRequest only when every requested id
// is already present. Positions are assigned contiguously from the current
// max. Returns the ids actually added.
func (s *Store) AddSongs(ctx context.Context, setlistID int64, songIDs []int64, actorID int64) ([]int64, error) {
	if len(songIDs) == 0 {
		return nil, apperr.BadRequest("no songs supplied")
	}

	var added []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM songs WHERE id = ANY($1)`, pq.Array(songIDs))
		if err != nil {
			return fmt.Errorf("lookup songs: %w", err)
		}
		known := make(map[int64]bool, len(songIDs))
		if err := collectIDs(rows, func(id int64) { known[id] = true }); err != nil {
			return err
		}

		var missing []int64
		for _, id := range songIDs {
			if !known[id] {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return apperr.NotFound("songs %v", missing)
		}

		rows, err = tx.QueryContext(ctx,
			`SELECT song_id FROM setlist_songs WHERE setlist_id = $1`, setlistID)
		if err != nil {
			return fmt.Errorf("lookup memberships: %w", err)
		}
		present := make(map[int64]bool)
		if err := collectIDs(rows, func(id int64) { present[id] = true }); err != nil {
			return err
		}

		var toAdd []int64
		seen := make(map[int64]bool, len(songIDs))
		for _, id := range songIDs {
			if present[id] || seen[id] {
				continue
			}
			seen[id] = true
			toAdd = append(toAdd, id)
		}
		if len(toAdd) == 0 {
			return apperr.BadRequest("all requested songs are already in setlist %d", setlistID)
		}

		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM setlist_songs WHERE setlist_id = $1`,
			setlistID).Scan(&next); err != nil {
			return fmt.Errorf("next position: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO setlist_songs (setlist_id, song_id, position, added_by, created_at)
			VALUES ($1, $2, $3, $4, $5)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for i, id := range toAdd {
			if _, err := stmt.ExecContext(ctx, setlistID, id, next+i, actorID, now); err != nil {
				if isForeignKeyViolation(err) {
					return apperr.NotFound("setlist %d", setlistID)
				}
				return fmt.Errorf("insert setlist song: %w", err)
			}
		}

		added = toAdd
		return touchSetlist(ctx, tx, setlistID)
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveSong removes one song and renumbers the remainder.
func (s *Store) RemoveSong(ctx context.Context, setlistID, songID int64) error {
	return s.RemoveSongs(ctx, setlistID, []int64{songID})
}

// RemoveSongs removes the given memberships and renumbers the remaining
// positions to be contiguous from 0, preserving relative order. Ids that are
// not members fail the whole call with ErrBadRequest.
func (s *Store) RemoveSongs(ctx context.Context, setlistID int64, songIDs []int64) error {
	if len(songIDs) == 0 {
		return apperr.BadRequest("no songs supplied")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT song_id FROM setlist_songs
			WHERE setlist_id = $1
			FOR UPDATE`, setlistID)
		if err != nil {
			return fmt.Errorf("lock memberships: %w", err)
		}
		present := make(map[int64]bool)
		if err := collectIDs(rows, func(id int64) { present[id] = true }); err != nil {
			return err
		}

		var notMembers []int64
		for _, id := range songIDs {
			if !present[id] {
				notMembers = append(notMembers, id)
			}
		}
		if len(notMembers) > 0 {
			return apperr.BadRequest("songs %v are not in setlist %d", notMembers, setlistID)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM setlist_songs
			WHERE setlist_id = $1 AND song_id = ANY($2)`,
			setlistID, pq.Array(songIDs)); err != nil {
			return fmt.Errorf("delete setlist songs: %w", err)
		}

		if err := renumberTx(ctx, tx, setlistID); err != nil {
			return err
		}
		return touchSetlist(ctx, tx, setlistID)
	})
}

// Reorder rewrites every membership's position from the supplied full order
// and bumps the setlist version. The supplied ids must match the current
// membership set exactly. Returns the previous order and the new version.
func (s *Store) Reorder(ctx context.Context, setlistID int64, orderedSongIDs []int64) (previous []int64, version int64, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT song_id FROM setlist_songs
			WHERE setlist_id = $1
			ORDER BY position ASC
			FOR UPDATE`, setlistID)
		if err != nil {
			return fmt.Errorf("lock memberships: %w", err)
		}
		current := make([]int64, 0)
		currentSet := make(map[int64]bool)
		if err := collectIDs(rows, func(id int64) {
			current = append(current, id)
			currentSet[id] = true
		}); err != nil {
			return err
		}

		supplied := make(map[int64]bool, len(orderedSongIDs))
		for _, id := range orderedSongIDs {
			if supplied[id] {
				return apperr.BadRequest("song %d supplied twice", id)
			}
			supplied[id] = true
			if !currentSet[id] {
				return apperr.BadRequest("song %d is not in setlist %d", id, setlistID)
			}
		}
		for _, id := range current {
			if !supplied[id] {
				return apperr.BadRequest("song %d missing from supplied order", id)
			}
		}

		// Phase one: move every position out of the live range so phase two
		// cannot collide with an old value under the unique constraint.
		if _, err := tx.ExecContext(ctx, `
			UPDATE setlist_songs
			SET position = position + $2
			WHERE setlist_id = $1`,
			setlistID, positionOffset); err != nil {
			return fmt.Errorf("shift positions: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			UPDATE setlist_songs
			SET position = $3
			WHERE setlist_id = $1 AND song_id = $2`)
		if err != nil {
			return fmt.Errorf("prepare reorder: %w", err)
		}
		defer stmt.Close()

		for idx, id := range orderedSongIDs {
			if _, err := stmt.ExecContext(ctx, setlistID, id, idx); err != nil {
				return fmt.Errorf("write position: %w", err)
			}
		}

		if err := tx.QueryRowContext(ctx, `
			UPDATE setlists
			SET version = version + 1, updated_at = $2
			WHERE id = $1
			RETURNING version`,
			setlistID, time.Now().UTC()).Scan(&version); err != nil {
			return fmt.Errorf("bump version: %w", err)
		}

		previous = current
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return previous, version, nil
}

// renumberTx rewrites the remaining positions to a contiguous 0-based run,
// preserving relative order, via the same two-phase shift as Reorder.
func renumberTx(ctx context.Context, tx *sql.Tx, setlistID int64) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE setlist_songs
		SET position = position + $2
		WHERE setlist_id = $1`,
		setlistID, positionOffset); err != nil {
		return fmt.Errorf("shift positions: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE setlist_songs ss
		SET position = ranked.rn - 1
		FROM (
			SELECT song_id, ROW_NUMBER() OVER (ORDER BY position ASC) AS rn
			FROM setlist_songs
			WHERE setlist_id = $1
		) ranked
		WHERE ss.setlist_id = $1 AND ss.song_id = ranked.song_id`,
		setlistID); err != nil {
		return fmt.Errorf("renumber positions: %w", err)
	}
	return nil
}

func touchSetlist(ctx context.Context, tx *sql.Tx, setlistID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE setlists SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), setlistID)
	if err != nil {
		return fmt.Errorf("touch setlist: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("setlist %d", setlistID)
	}
	return nil
}

func collectIDs(rows *sql.Rows, fn func(int64)) error {
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan id: %w", err)
		}
		fn(id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate ids: %w", err)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
