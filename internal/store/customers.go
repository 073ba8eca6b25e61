package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"chordboard/internal/apperr"
	"chordboard/internal/models"
)

// GetCustomer returns an account by id.
func (s *Store) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var c models.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, created_at
		FROM customers
		WHERE id = $1`, id).Scan(&c.ID, &c.Email, &c.DisplayName, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("customer %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

// GetCustomerByEmail returns an account by email, case-insensitively.
func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var c models.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, created_at
		FROM customers
		WHERE LOWER(email) = LOWER($1)`, strings.TrimSpace(email)).
		Scan(&c.ID, &c.Email, &c.DisplayName, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no account for %s", email)
	}
	if err != nil {
		return nil, fmt.Errorf("get customer by email: %w", err)
	}
	return &c, nil
}
