package models

import "time"

// Permission is the access level granted to a collaborator.
// The levels form a total order: VIEW < EDIT < ADMIN.
type Permission string

const (
	PermissionView  Permission = "VIEW"
	PermissionEdit  Permission = "EDIT"
	PermissionAdmin Permission = "ADMIN"
)

var permissionLevels = map[Permission]int{
	PermissionView:  1,
	PermissionEdit:  2,
	PermissionAdmin: 3,
}

// Level returns the numeric rank of the permission, 0 for unknown values.
func (p Permission) Level() int {
	return permissionLevels[p]
}

// Valid reports whether p is one of the known permissions.
func (p Permission) Valid() bool {
	return p.Level() > 0
}

// AtLeast reports whether p grants required or more.
func (p Permission) AtLeast(required Permission) bool {
	return p.Level() >= required.Level()
}

// CollaboratorStatus tracks the invitation lifecycle. A record never
// transitions backward from ACCEPTED.
type CollaboratorStatus string

const (
	CollaboratorPending  CollaboratorStatus = "PENDING"
	CollaboratorAccepted CollaboratorStatus = "ACCEPTED"
)

// Collaborator grants a non-owner customer access to a setlist.
// (setlist_id, customer_id) is unique.
type Collaborator struct {
	ID           int64              `json:"id" db:"id"`
	SetlistID    int64              `json:"setlist_id" db:"setlist_id"`
	CustomerID   int64              `json:"customer_id" db:"customer_id"`
	Permission   Permission         `json:"permission" db:"permission"`
	Status       CollaboratorStatus `json:"status" db:"status"`
	InvitedBy    int64              `json:"invited_by" db:"invited_by"`
	InvitedAt    time.Time          `json:"invited_at" db:"invited_at"`
	AcceptedAt   *time.Time         `json:"accepted_at,omitempty" db:"accepted_at"`
	LastActiveAt *time.Time         `json:"last_active_at,omitempty" db:"last_active_at"`
}
