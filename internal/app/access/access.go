// Package access resolves a caller's effective permission on a setlist. It
// is the single authorization chokepoint: every component touching setlist
// state resolves here first.
package access

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"chordboard/internal/apperr"
	"chordboard/internal/models"
)

// Store captures the lookups permission resolution needs.
type Store interface {
	GetSetlist(ctx context.Context, id int64) (*models.Setlist, error)
	GetAcceptedCollaborator(ctx context.Context, setlistID, customerID int64) (*models.Collaborator, error)
	TouchCollaborator(ctx context.Context, setlistID, customerID int64) error
}

// Grant is the outcome of a successful resolution.
type Grant struct {
	Setlist    *models.Setlist
	Permission models.Permission
	IsOwner    bool
	// Collaborator is the caller's accepted record; nil for the owner.
	Collaborator *models.Collaborator
}

// Resolver computes effective permissions.
type Resolver struct {
	store  Store
	logger zerolog.Logger
}

// NewResolver constructs a Resolver backed by the provided Store.
func NewResolver(store Store, logger zerolog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve loads the setlist and the caller's accepted collaboration, if any,
// and enforces the VIEW < EDIT < ADMIN hierarchy. The owner always holds
// ADMIN and is never represented as a collaborator row. Fails with
// ErrNotFound when the setlist does not exist and ErrForbidden when the
// caller is neither owner nor accepted collaborator, or holds a level below
// required.
func (r *Resolver) Resolve(ctx context.Context, setlistID, callerID int64, required models.Permission) (*Grant, error) {
	setlist, err := r.store.GetSetlist(ctx, setlistID)
	if err != nil {
		return nil, err
	}

	grant := &Grant{Setlist: setlist}

	if setlist.OwnerID == callerID {
		grant.Permission = models.PermissionAdmin
		grant.IsOwner = true
	} else {
		collaborator, err := r.store.GetAcceptedCollaborator(ctx, setlistID, callerID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, apperr.Forbidden("customer %d has no access to setlist %d", callerID, setlistID)
			}
			return nil, err
		}
		grant.Permission = collaborator.Permission
		grant.Collaborator = collaborator
	}

	if !grant.Permission.AtLeast(required) {
		return nil, apperr.Forbidden("customer %d needs %s on setlist %d, has %s",
			callerID, required, setlistID, grant.Permission)
	}

	// A granted collaborator counts as active. The stamp is best-effort;
	// the resolved operation must not fail on it.
	if grant.Collaborator != nil {
		if err := r.store.TouchCollaborator(ctx, setlistID, callerID); err != nil {
			r.logger.Warn().Err(err).
				Int64("setlist_id", setlistID).
				Int64("customer_id", callerID).
				Msg("stamp collaborator activity")
		}
	}
	return grant, nil
}
