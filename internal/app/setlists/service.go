// Package setlists is the engine coordinating setlist workflows: CRUD, song
// membership, reordering, settings, community publish/like/view, and the
// cache coherence around all of them. Every mutating path resolves access
// first, mutates through the store, records activity, then invalidates the
// cache; every read path resolves access and reads through the cache.
package setlists

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chordboard/internal/app/access"
	"chordboard/internal/apperr"
	"chordboard/internal/cache"
	"chordboard/internal/models"
)

const maxNameLength = 200

// Store captures the persistence needs of the engine.
type Store interface {
	CreateSetlist(ctx context.Context, ownerID int64, name, description string, tags []string) (*models.Setlist, error)
	GetSetlist(ctx context.Context, id int64) (*models.Setlist, error)
	ListSetlists(ctx context.Context, filter models.SetlistFilter) ([]*models.Setlist, error)
	UpdateSetlist(ctx context.Context, id int64, update models.SetlistUpdate) (*models.Setlist, error)
	DeleteSetlist(ctx context.Context, id int64) (*models.Setlist, error)
	UpdateSettings(ctx context.Context, id int64, settings models.SetlistSettings) (*models.Setlist, error)
	SetPublic(ctx context.Context, id int64, public bool) (*models.Setlist, error)

	AddSong(ctx context.Context, setlistID, songID, actorID int64) error
	AddSongs(ctx context.Context, setlistID int64, songIDs []int64, actorID int64) ([]int64, error)
	RemoveSong(ctx context.Context, setlistID, songID int64) error
	RemoveSongs(ctx context.Context, setlistID int64, songIDs []int64) error
	Reorder(ctx context.Context, setlistID int64, orderedSongIDs []int64) (previous []int64, version int64, err error)

	Like(ctx context.Context, setlistID, customerID int64) (int, error)
	Unlike(ctx context.Context, setlistID, customerID int64) (int, error)
	IncrementViewCount(ctx context.Context, setlistID int64) (int, error)
}

// Resolver is the authorization chokepoint consulted before every operation.
type Resolver interface {
	Resolve(ctx context.Context, setlistID, callerID int64, required models.Permission) (*access.Grant, error)
}

// Recorder appends audit entries for setlist events.
type Recorder interface {
	Record(ctx context.Context, setlistID, actorID int64, action models.ActivityAction, details any)
	List(ctx context.Context, setlistID int64, limit int) ([]models.Activity, error)
}

// ReorderResult reports the outcome of a reorder.
type ReorderResult struct {
	Version        int64   `json:"version"`
	OrderedSongIDs []int64 `json:"ordered_song_ids"`
}

// Service is the setlist engine.
type Service struct {
	store    Store
	resolver Resolver
	recorder Recorder
	cache    *cache.Cache
	logger   zerolog.Logger
}

// New constructs the engine.
func New(store Store, resolver Resolver, recorder Recorder, c *cache.Cache, logger zerolog.Logger) *Service {
	return &Service{store: store, resolver: resolver, recorder: recorder, cache: c, logger: logger}
}

// Create persists a new, empty setlist owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID int64, name, description string, tags []string) (*models.Setlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.BadRequest("name is required")
	}
	if len(name) > maxNameLength {
		return nil, apperr.BadRequest("name exceeds %d characters", maxNameLength)
	}

	setlist, err := s.store.CreateSetlist(ctx, ownerID, name, strings.TrimSpace(description), tags)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, setlist.ID, ownerID, models.ActivityCreated, nil)
	s.cache.InvalidateSetlist(ctx, setlist.ID, ownerID)
	return setlist, nil
}

// List returns the caller's setlists ordered by last update, newest first,
// read through the cache. A Since cursor turns the call into a change
// detection poll with the shorter entity TTL.
func (s *Service) List(ctx context.Context, ownerID int64, since *time.Time, limit int) ([]*models.Setlist, error) {
	filters := map[string]string{}
	if since != nil {
		filters["since"] = strconv.FormatInt(since.UnixMilli(), 10)
	}
	if limit > 0 {
		filters["limit"] = strconv.Itoa(limit)
	}

	key := cache.ListKey(ownerID, filters)
	return cache.GetOrSet(ctx, s.cache, key, s.cache.ListTTL(since != nil), func(ctx context.Context) ([]*models.Setlist, error) {
		return s.store.ListSetlists(ctx, models.SetlistFilter{OwnerID: ownerID, Since: since, Limit: limit})
	})
}

// Get returns one setlist with its ordered songs. Requires VIEW.
func (s *Service) Get(ctx context.Context, setlistID, callerID int64) (*models.Setlist, error) {
	if _, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionView); err != nil {
		return nil, err
	}

	return cache.GetOrSet(ctx, s.cache, cache.EntityKey(setlistID), s.cache.EntityTTL(), func(ctx context.Context) (*models.Setlist, error) {
		return s.store.GetSetlist(ctx, setlistID)
	})
}

// Update applies metadata changes. Requires EDIT.
func (s *Service) Update(ctx context.Context, setlistID, callerID int64, update models.SetlistUpdate) (*models.Setlist, error) {
	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		if trimmed == "" {
			return nil, apperr.BadRequest("name is required")
		}
		if len(trimmed) > maxNameLength {
			return nil, apperr.BadRequest("name exceeds %d characters", maxNameLength)
		}
		update.Name = &trimmed
	}

	if _, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionEdit); err != nil {
		return nil, err
	}

	setlist, err := s.store.UpdateSetlist(ctx, setlistID, update)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, setlistID, callerID, models.ActivityUpdated, nil)
	s.cache.InvalidateSetlist(ctx, setlistID, callerID)
	return setlist, nil
}

// Delete removes a setlist with all of its memberships, collaborators,
// activity and likes, and returns the deleted snapshot. Owner only.
func (s *Service) Delete(ctx context.Context, setlistID, callerID int64) (*models.Setlist, error) {
	grant, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionAdmin)
	if err != nil {
		return nil, err
	}
	if !grant.IsOwner {
		return nil, apperr.Forbidden("only the owner may delete setlist %d", setlistID)
	}

	snapshot, err := s.store.DeleteSetlist(ctx, setlistID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("setlist_id", setlistID).Int64("customer_id", callerID).Msg("setlist deleted")
	s.cache.InvalidateAll(ctx)
	return snapshot, nil
}

// AddSong appends one song. Requires EDIT.
func (s *Service) AddSong(ctx context.Context, setlistID, callerID, songID int64) (*models.Setlist, error) {
	if _, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionEdit); err != nil {
		return nil, err
	}

	if err := s.store.AddSong(ctx, setlistID, songID, callerID); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, setlistID, callerID, models.ActivitySongAdded, map[string]any{"song_id": songID})
	s.cache.InvalidateSetlist(ctx, setlistID, callerID)
	return s.store.GetSetlist(ctx, setlistID)
}

// AddSongs appends several songs at once with partial-success semantics for
// already-present ids. Requires EDIT.
func (s *Service) AddSongs(ctx context.Context, setlistID, callerID int64, songIDs []int64) (*models.Setlist, error) {
	if _, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionEdit); err != nil {
		return nil, err
	}

	added, err := s.store.AddSongs(ctx, setlistID, songIDs, callerID)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, setlistID, callerID, models.ActivitySongsAdded, map[string]any{"song_ids": added})
	s.cache.InvalidateAll(ctx)
	return s.store.GetSetlist(ctx, setlistID)
}

// RemoveSong removes one song and renumbers the remainder. Requires EDIT.
func (s *Service) RemoveSong(ctx context.Context, setlistID, callerID, songID int64) (*models.Setlist, error) {
	if _, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionEdit); err != nil {
		return nil, err
	}

	if err := s.store.RemoveSong(ctx, setlistID, songID); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, setlistID, callerID, models.ActivitySongRemoved, map[string]any{"song_id": songID})
	s.cache.InvalidateSetlist(ctx, setlistID, callerID)
	return s.store.GetSetlist(ctx, setlistID)
}

// RemoveSongs removes several songs at once. Requires EDIT.
func (s *Service) RemoveSongs(ctx context.Context, setlistID, callerID int64, songIDs []int64) (*models.Setlist, error) {
	if _, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionEdit); err != nil {
		return nil, err
	}

	if err := s.store.RemoveSongs(ctx, setlistID, songIDs); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, setlistID, callerID, models.ActivitySongsRemoved, map[string]any{"song_ids": songIDs})
	s.cache.InvalidateAll(ctx)
	return s.store.GetSetlist(ctx, setlistID)
}

// Reorder rewrites the full song order. The supplied ids must match the
// current membership exactly; the setlist version is bumped once and the
// previous order is captured for audit. Requires EDIT.
func (s *Service) Reorder(ctx context.Context, setlistID, callerID int64, orderedSongIDs []int64) (*ReorderResult, error) {
	if len(orderedSongIDs) == 0 {
		return nil, apperr.BadRequest("ordered song ids are required")
	}

	if _, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionEdit); err != nil {
		return nil, err
	}

	previous, version, err := s.store.Reorder(ctx, setlistID, orderedSongIDs)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, setlistID, callerID, models.ActivityReordered, map[string]any{
		"previous_order": previous,
		"new_order":      orderedSongIDs,
	})
	s.cache.InvalidateSetlist(ctx, setlistID, callerID)
	return &ReorderResult{Version: version, OrderedSongIDs: orderedSongIDs}, nil
}

// UpdateSettings writes the settings toggles and bumps the version. Owner
// only.
func (s *Service) UpdateSettings(ctx context.Context, setlistID, callerID int64, settings models.SetlistSettings) (*models.Setlist, error) {
	grant, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionAdmin)
	if err != nil {
		return nil, err
	}
	if !grant.IsOwner {
		return nil, apperr.Forbidden("only the owner may change settings on setlist %d", setlistID)
	}

	setlist, err := s.store.UpdateSettings(ctx, setlistID, settings)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, setlistID, callerID, models.ActivitySettingsChanged, settings)
	s.cache.InvalidateSetlist(ctx, setlistID, callerID)
	return setlist, nil
}

// MakePublic publishes the setlist to the community, stamping shared_at.
// Publishing an already-public setlist fails with ErrConflict. Owner only.
func (s *Service) MakePublic(ctx context.Context, setlistID, callerID int64) (*models.Setlist, error) {
	return s.setPublic(ctx, setlistID, callerID, true)
}

// MakePrivate withdraws the setlist from the community, clearing shared_at.
// Withdrawing an already-private setlist fails with ErrConflict. Owner only.
func (s *Service) MakePrivate(ctx context.Context, setlistID, callerID int64) (*models.Setlist, error) {
	return s.setPublic(ctx, setlistID, callerID, false)
}

func (s *Service) setPublic(ctx context.Context, setlistID, callerID int64, public bool) (*models.Setlist, error) {
	grant, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionAdmin)
	if err != nil {
		return nil, err
	}
	if !grant.IsOwner {
		return nil, apperr.Forbidden("only the owner may publish setlist %d", setlistID)
	}
	if grant.Setlist.IsPublic == public {
		if public {
			return nil, apperr.Conflict("setlist %d is already public", setlistID)
		}
		return nil, apperr.Conflict("setlist %d is already private", setlistID)
	}

	setlist, err := s.store.SetPublic(ctx, setlistID, public)
	if err != nil {
		return nil, err
	}

	action := models.ActivityMadePublic
	if !public {
		action = models.ActivityMadePrivate
	}
	s.recorder.Record(ctx, setlistID, callerID, action, nil)
	s.cache.InvalidateSetlist(ctx, setlistID, callerID)
	return setlist, nil
}

// Like records the caller's like. A second like by the same customer fails
// with ErrConflict and leaves the count untouched.
func (s *Service) Like(ctx context.Context, setlistID, callerID int64) (int, error) {
	if err := s.checkCommunityAccess(ctx, setlistID, callerID); err != nil {
		return 0, err
	}

	count, err := s.store.Like(ctx, setlistID, callerID)
	if err != nil {
		return 0, err
	}
	s.cache.InvalidateSetlist(ctx, setlistID, callerID)
	return count, nil
}

// Unlike withdraws the caller's like; unliking without a prior like fails
// with ErrConflict.
func (s *Service) Unlike(ctx context.Context, setlistID, callerID int64) (int, error) {
	if err := s.checkCommunityAccess(ctx, setlistID, callerID); err != nil {
		return 0, err
	}

	count, err := s.store.Unlike(ctx, setlistID, callerID)
	if err != nil {
		return 0, err
	}
	s.cache.InvalidateSetlist(ctx, setlistID, callerID)
	return count, nil
}

// IncrementView counts one view. Owner views never count; repeated views by
// the same customer all do.
func (s *Service) IncrementView(ctx context.Context, setlistID, callerID int64) (int, error) {
	setlist, err := s.store.GetSetlist(ctx, setlistID)
	if err != nil {
		return 0, err
	}
	if setlist.OwnerID == callerID {
		return setlist.ViewCount, nil
	}
	if err := s.checkCommunityAccess(ctx, setlistID, callerID); err != nil {
		return 0, err
	}

	count, err := s.store.IncrementViewCount(ctx, setlistID)
	if err != nil {
		return 0, err
	}
	s.cache.InvalidateSetlist(ctx, setlistID, callerID)
	return count, nil
}

// Activity returns the audit trail, newest first. Requires VIEW.
func (s *Service) Activity(ctx context.Context, setlistID, callerID int64, limit int) ([]models.Activity, error) {
	if _, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionView); err != nil {
		return nil, err
	}
	return s.recorder.List(ctx, setlistID, limit)
}

// checkCommunityAccess admits anyone to a public setlist and falls back to
// the resolver for private ones.
func (s *Service) checkCommunityAccess(ctx context.Context, setlistID, callerID int64) error {
	setlist, err := s.store.GetSetlist(ctx, setlistID)
	if err != nil {
		return err
	}
	if setlist.IsPublic {
		return nil
	}
	if _, err := s.resolver.Resolve(ctx, setlistID, callerID, models.PermissionView); err != nil {
		if errors.Is(err, apperr.ErrForbidden) {
			return fmt.Errorf("%w: setlist %d is not public", apperr.ErrForbidden, setlistID)
		}
		return err
	}
	return nil
}
