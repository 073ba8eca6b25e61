package models

import "time"

// Song is a catalog entry a setlist can reference. Catalog management lives
// elsewhere; the setlist engine only reads these rows.
type Song struct {
	ID            int64  `json:"id" db:"id"`
	Title         string `json:"title" db:"title"`
	Artist        string `json:"artist" db:"artist"`
	LengthSeconds int    `json:"length_seconds" db:"length_seconds"`
}

// Customer identifies an account. Authentication happens at the request
// boundary; the engine only consumes resolved customer ids.
type Customer struct {
	ID          int64     `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Like marks that a customer liked a setlist. (setlist_id, customer_id) is
// unique; its existence toggles Setlist.LikeCount.
type Like struct {
	ID         int64     `json:"id" db:"id"`
	SetlistID  int64     `json:"setlist_id" db:"setlist_id"`
	CustomerID int64     `json:"customer_id" db:"customer_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
