package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chordboard/internal/apperr"
)

// Like records a customer's like and bumps the denormalized counter in the
// same transaction so the row and the count never diverge. A duplicate like
// fails with ErrConflict and leaves the counter untouched.
func (s *Store) Like(ctx context.Context, setlistID, customerID int64) (likeCount int, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO likes (setlist_id, customer_id, created_at)
			VALUES ($1, $2, $3)`,
			setlistID, customerID, time.Now().UTC()); err != nil {
			if isUniqueViolation(err) {
				return apperr.Conflict("customer %d already liked setlist %d", customerID, setlistID)
			}
			if isForeignKeyViolation(err) {
				return apperr.NotFound("setlist %d", setlistID)
			}
			return fmt.Errorf("insert like: %w", err)
		}

		return tx.QueryRowContext(ctx, `
			UPDATE setlists
			SET like_count = like_count + 1
			WHERE id = $1
			RETURNING like_count`, setlistID).Scan(&likeCount)
	})
	if err != nil {
		return 0, err
	}
	return likeCount, nil
}

// Unlike removes a customer's like and decrements the counter in the same
// transaction. Unliking without a prior like fails with ErrConflict.
func (s *Store) Unlike(ctx context.Context, setlistID, customerID int64) (likeCount int, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM likes
			WHERE setlist_id = $1 AND customer_id = $2`, setlistID, customerID)
		if err != nil {
			return fmt.Errorf("delete like: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return apperr.Conflict("customer %d has not liked setlist %d", customerID, setlistID)
		}

		return tx.QueryRowContext(ctx, `
			UPDATE setlists
			SET like_count = GREATEST(like_count - 1, 0)
			WHERE id = $1
			RETURNING like_count`, setlistID).Scan(&likeCount)
	})
	if err != nil {
		return 0, err
	}
	return likeCount, nil
}

// IncrementViewCount bumps the view counter. Repeated views all count; the
// caller is responsible for skipping owner views.
func (s *Store) IncrementViewCount(ctx context.Context, setlistID int64) (viewCount int, err error) {
	err = s.db.QueryRowContext(ctx, `
		UPDATE setlists
		SET view_count = view_count + 1
		WHERE id = $1
		RETURNING view_count`, setlistID).Scan(&viewCount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("setlist %d", setlistID)
	}
	if err != nil {
		return 0, fmt.Errorf("increment view count: %w", err)
	}
	return viewCount, nil
}
