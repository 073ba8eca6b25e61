// Package sharing owns the collaboration lifecycle: share-by-email
// invitations, invitation acceptance, self-service join by share code, and
// collaborator administration.
package sharing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"chordboard/internal/app/access"
	"chordboard/internal/apperr"
	"chordboard/internal/cache"
	"chordboard/internal/models"
)

// shareCodeAttempts bounds the retry loop on code collisions. With 10,000
// possible codes a live deployment should raise the code length long before
// this matters.
const shareCodeAttempts = 10

// Store captures the persistence needs of sharing workflows.
type Store interface {
	GetSetlist(ctx context.Context, id int64) (*models.Setlist, error)
	GetSetlistByShareCode(ctx context.Context, code string) (*models.Setlist, error)
	SetShareCode(ctx context.Context, id int64, code string) error
	MarkShared(ctx context.Context, id int64) error
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	GetCollaborator(ctx context.Context, setlistID, customerID int64) (*models.Collaborator, error)
	CreateCollaborator(ctx context.Context, c models.Collaborator) (*models.Collaborator, error)
	AcceptCollaborator(ctx context.Context, setlistID, customerID int64) (*models.Collaborator, error)
	UpdateCollaboratorPermission(ctx context.Context, setlistID, customerID int64, permission models.Permission) (*models.Collaborator, error)
	DeleteCollaborator(ctx context.Context, setlistID, customerID int64) error
	ListCollaborators(ctx context.Context, setlistID int64) ([]models.Collaborator, error)
}

// Resolver is the authorization chokepoint consulted before every mutation.
type Resolver interface {
	Resolve(ctx context.Context, setlistID, callerID int64, required models.Permission) (*access.Grant, error)
}

// Recorder appends audit entries for sharing events.
type Recorder interface {
	Record(ctx context.Context, setlistID, actorID int64, action models.ActivityAction, details any)
}

// Service coordinates sharing operations.
type Service struct {
	store    Store
	resolver Resolver
	recorder Recorder
	cache    *cache.Cache
}

// New constructs a sharing Service.
func New(store Store, resolver Resolver, recorder Recorder, c *cache.Cache) *Service {
	return &Service{store: store, resolver: resolver, recorder: recorder, cache: c}
}

// Share invites the account behind email as a PENDING collaborator. Requires
// ADMIN. The setlist's share code is generated lazily the first time sharing
// is enabled and stays assigned for the setlist's lifetime.
func (s *Service) Share(ctx context.Context, setlistID, callerID int64, email string, permission models.Permission) (*models.Collaborator, error) {
	if !permission.Valid() {
		return nil, apperr.BadRequest("unknown permission %q", permission)
	}

	grant, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionAdmin)
	if err != nil {
		return nil, err
	}

	target, err := s.store.GetCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if target.ID == grant.Setlist.OwnerID {
		return nil, apperr.BadRequest("cannot share a setlist with its owner")
	}

	if err := s.ensureShareCode(ctx, grant.Setlist); err != nil {
		return nil, err
	}

	collaborator, err := s.store.CreateCollaborator(ctx, models.Collaborator{
		SetlistID:  setlistID,
		CustomerID: target.ID,
		Permission: permission,
		Status:     models.CollaboratorPending,
		InvitedBy:  callerID,
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, setlistID, callerID, models.ActivityShared, map[string]any{
		"customer_id": target.ID,
		"permission":  permission,
	})
	s.cache.InvalidateSetlist(ctx, setlistID, callerID)
	return collaborator, nil
}

// AcceptInvitation transitions the caller's PENDING record for the code's
// setlist to ACCEPTED and returns the setlist with its collaborative data.
func (s *Service) AcceptInvitation(ctx context.Context, code string, callerID int64) (*models.Setlist, error) {
	setlist, err := s.store.GetSetlistByShareCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.AcceptCollaborator(ctx, setlist.ID, callerID); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, setlist.ID, callerID, models.ActivityInviteAccepted, nil)
	s.cache.InvalidateSetlist(ctx, setlist.ID, callerID)
	return s.store.GetSetlist(ctx, setlist.ID)
}

// JoinByShareCode lets a customer join a shared setlist without an explicit
// invitation. A pending invite is accepted; an unknown caller becomes an
// ACCEPTED collaborator with VIEW, attributed to the owner. Joining twice
// fails with ErrConflict.
func (s *Service) JoinByShareCode(ctx context.Context, code string, callerID int64) (*models.Setlist, error) {
	setlist, err := s.store.GetSetlistByShareCode(ctx, code)
	if err != nil {
		return nil, err
	}
	// A code outlives sharing being toggled off, but a dormant code is not
	// joinable until the setlist is shared or public again.
	if !setlist.IsShared && !setlist.IsPublic {
		return nil, apperr.NotFound("share code %s", code)
	}
	if setlist.OwnerID == callerID {
		return nil, apperr.Conflict("already a member of setlist %d", setlist.ID)
	}

	existing, err := s.store.GetCollaborator(ctx, setlist.ID, callerID)
	switch {
	case err == nil && existing.Status == models.CollaboratorAccepted:
		return nil, apperr.Conflict("already a member of setlist %d", setlist.ID)
	case err == nil:
		if _, err := s.store.AcceptCollaborator(ctx, setlist.ID, callerID); err != nil {
			return nil, err
		}
	case errors.Is(err, apperr.ErrNotFound):
		// A token can outlive its account; surface the missing account
		// instead of a constraint error from the insert.
		if _, err := s.store.GetCustomer(ctx, callerID); err != nil {
			return nil, err
		}
		if _, err := s.store.CreateCollaborator(ctx, models.Collaborator{
			SetlistID:  setlist.ID,
			CustomerID: callerID,
			Permission: models.PermissionView,
			Status:     models.CollaboratorAccepted,
			InvitedBy:  setlist.OwnerID,
		}); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	s.recorder.Record(ctx, setlist.ID, callerID, models.ActivityJoined, nil)
	s.cache.InvalidateSetlist(ctx, setlist.ID, callerID)
	return s.store.GetSetlist(ctx, setlist.ID)
}

// UpdateCollaborator rewrites a collaborator's permission. Requires ADMIN.
func (s *Service) UpdateCollaborator(ctx context.Context, setlistID, callerID, targetID int64, permission models.Permission) (*models.Collaborator, error) {
	if !permission.Valid() {
		return nil, apperr.BadRequest("unknown permission %q", permission)
	}
	if _, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionAdmin); err != nil {
		return nil, err
	}

	collaborator, err := s.store.UpdateCollaboratorPermission(ctx, setlistID, targetID, permission)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, setlistID, callerID, models.ActivityCollaboratorChange, map[string]any{
		"customer_id": targetID,
		"permission":  permission,
	})
	s.cache.InvalidateSetlist(ctx, setlistID, callerID)
	return collaborator, nil
}

// RemoveCollaborator deletes a collaboration record. Requires ADMIN.
func (s *Service) RemoveCollaborator(ctx context.Context, setlistID, callerID, targetID int64) error {
	if _, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionAdmin); err != nil {
		return err
	}

	if err := s.store.DeleteCollaborator(ctx, setlistID, targetID); err != nil {
		return err
	}

	s.recorder.Record(ctx, setlistID, callerID, models.ActivityCollaboratorRemove, map[string]any{
		"customer_id": targetID,
	})
	s.cache.InvalidateSetlist(ctx, setlistID, callerID)
	return nil
}

// Collaborators lists a setlist's collaboration records. Requires VIEW.
func (s *Service) Collaborators(ctx context.Context, setlistID, callerID int64) ([]models.Collaborator, error) {
	if _, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionView); err != nil {
		return nil, err
	}
	return s.store.ListCollaborators(ctx, setlistID)
}

// ensureShareCode assigns a code on first share and re-marks sharing enabled
// on later shares. Collisions on the 4-digit space retry with a fresh code;
// losing a race to a concurrent first share falls back to MarkShared.
func (s *Service) ensureShareCode(ctx context.Context, setlist *models.Setlist) error {
	if setlist.ShareCode != nil {
		if setlist.IsShared {
			return nil
		}
		return s.store.MarkShared(ctx, setlist.ID)
	}

	for attempt := 0; attempt < shareCodeAttempts; attempt++ {
		code, err := newShareCode()
		if err != nil {
			return err
		}

		err = s.store.SetShareCode(ctx, setlist.ID, code)
		if err == nil {
			setlist.ShareCode = &code
			setlist.IsShared = true
			return nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return err
		}

		reloaded, reloadErr := s.store.GetSetlist(ctx, setlist.ID)
		if reloadErr != nil {
			return reloadErr
		}
		if reloaded.ShareCode != nil {
			*setlist = *reloaded
			return s.store.MarkShared(ctx, setlist.ID)
		}
		// Code collision with another setlist; draw again.
	}
	return fmt.Errorf("share code space exhausted after %d attempts", shareCodeAttempts)
}

// newShareCode draws a 4-digit numeric code, zero-padded.
func newShareCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("generate share code: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
