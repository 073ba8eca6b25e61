package setlists

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chordboard/internal/app/access"
	"chordboard/internal/apperr"
	"chordboard/internal/cache"
	"chordboard/internal/models"
)

// fakeStore is an in-memory Store with the same error taxonomy as the
// Postgres implementation.
type fakeStore struct {
	nextID   int64
	setlists map[int64]*models.Setlist
	songs    map[int64][]models.SetlistSong
	catalog  map[int64]bool
	likes    map[[2]int64]bool
}

func newFakeStore(knownSongs ...int64) *fakeStore {
	f := &fakeStore{
		setlists: make(map[int64]*models.Setlist),
		songs:    make(map[int64][]models.SetlistSong),
		catalog:  make(map[int64]bool),
		likes:    make(map[[2]int64]bool),
	}
	for _, id := range knownSongs {
		f.catalog[id] = true
	}
	return f
}

func (f *fakeStore) CreateSetlist(ctx context.Context, ownerID int64, name, description string, tags []string) (*models.Setlist, error) {
	f.nextID++
	sl := &models.Setlist{
		ID: f.nextID, Name: name, Description: description, OwnerID: ownerID,
		AllowEditing: true, AllowComments: true,
		Tags: tags, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		Songs: []models.SetlistSong{},
	}
	f.setlists[sl.ID] = sl
	return sl, nil
}

func (f *fakeStore) GetSetlist(ctx context.Context, id int64) (*models.Setlist, error) {
	sl, ok := f.setlists[id]
	if !ok {
		return nil, apperr.NotFound("setlist %d", id)
	}
	copied := *sl
	copied.Songs = append([]models.SetlistSong(nil), f.songs[id]...)
	copied.SongCount = len(copied.Songs)
	return &copied, nil
}

func (f *fakeStore) ListSetlists(ctx context.Context, filter models.SetlistFilter) ([]*models.Setlist, error) {
	out := make([]*models.Setlist, 0)
	for id, sl := range f.setlists {
		if sl.OwnerID != filter.OwnerID {
			continue
		}
		copied, _ := f.GetSetlist(ctx, id)
		out = append(out, copied)
	}
	return out, nil
}

func (f *fakeStore) UpdateSetlist(ctx context.Context, id int64, update models.SetlistUpdate) (*models.Setlist, error) {
	sl, ok := f.setlists[id]
	if !ok {
		return nil, apperr.NotFound("setlist %d", id)
	}
	if update.Name != nil {
		sl.Name = *update.Name
	}
	if update.Description != nil {
		sl.Description = *update.Description
	}
	if update.Tags != nil {
		sl.Tags = update.Tags
	}
	return f.GetSetlist(ctx, id)
}

func (f *fakeStore) DeleteSetlist(ctx context.Context, id int64) (*models.Setlist, error) {
	snapshot, err := f.GetSetlist(ctx, id)
	if err != nil {
		return nil, err
	}
	delete(f.setlists, id)
	delete(f.songs, id)
	return snapshot, nil
}

func (f *fakeStore) UpdateSettings(ctx context.Context, id int64, settings models.SetlistSettings) (*models.Setlist, error) {
	sl, ok := f.setlists[id]
	if !ok {
		return nil, apperr.NotFound("setlist %d", id)
	}
	sl.IsPublic = settings.IsPublic
	sl.AllowEditing = settings.AllowEditing
	sl.AllowComments = settings.AllowComments
	sl.Version++
	return f.GetSetlist(ctx, id)
}

func (f *fakeStore) SetPublic(ctx context.Context, id int64, public bool) (*models.Setlist, error) {
	sl, ok := f.setlists[id]
	if !ok {
		return nil, apperr.NotFound("setlist %d", id)
	}
	sl.IsPublic = public
	if public {
		now := time.Now()
		sl.SharedAt = &now
	} else {
		sl.SharedAt = nil
	}
	return f.GetSetlist(ctx, id)
}

func (f *fakeStore) AddSong(ctx context.Context, setlistID, songID, actorID int64) error {
	if !f.catalog[songID] {
		return apperr.NotFound("song %d", songID)
	}
	if _, ok := f.setlists[setlistID]; !ok {
		return apperr.NotFound("setlist %d", setlistID)
	}
	for _, s := range f.songs[setlistID] {
		if s.SongID == songID {
			return apperr.Conflict("song %d already in setlist %d", songID, setlistID)
		}
	}
	f.songs[setlistID] = append(f.songs[setlistID], models.SetlistSong{
		SetlistID: setlistID, SongID: songID, Position: len(f.songs[setlistID]), AddedBy: actorID,
	})
	return nil
}

func (f *fakeStore) AddSongs(ctx context.Context, setlistID int64, songIDs []int64, actorID int64) ([]int64, error) {
	var missing []int64
	for _, id := range songIDs {
		if !f.catalog[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.NotFound("songs %v", missing)
	}

	var added []int64
	for _, id := range songIDs {
		if err := f.AddSong(ctx, setlistID, id, actorID); err == nil {
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return nil, apperr.BadRequest("all requested songs are already in setlist %d", setlistID)
	}
	return added, nil
}

func (f *fakeStore) RemoveSong(ctx context.Context, setlistID, songID int64) error {
	return f.RemoveSongs(ctx, setlistID, []int64{songID})
}

func (f *fakeStore) RemoveSongs(ctx context.Context, setlistID int64, songIDs []int64) error {
	present := make(map[int64]bool)
	for _, s := range f.songs[setlistID] {
		present[s.SongID] = true
	}
	for _, id := range songIDs {
		if !present[id] {
			return apperr.BadRequest("songs [%d] are not in setlist %d", id, setlistID)
		}
	}

	remove := make(map[int64]bool, len(songIDs))
	for _, id := range songIDs {
		remove[id] = true
	}
	remaining := f.songs[setlistID][:0]
	for _, s := range f.songs[setlistID] {
		if !remove[s.SongID] {
			s.Position = len(remaining)
			remaining = append(remaining, s)
		}
	}
	f.songs[setlistID] = remaining
	return nil
}

func (f *fakeStore) Reorder(ctx context.Context, setlistID int64, orderedSongIDs []int64) ([]int64, int64, error) {
	current := f.songs[setlistID]
	if len(orderedSongIDs) != len(current) {
		return nil, 0, apperr.BadRequest("order does not match membership of setlist %d", setlistID)
	}
	byID := make(map[int64]models.SetlistSong, len(current))
	previous := make([]int64, 0, len(current))
	for _, s := range current {
		byID[s.SongID] = s
		previous = append(previous, s.SongID)
	}

	reordered := make([]models.SetlistSong, 0, len(orderedSongIDs))
	for idx, id := range orderedSongIDs {
		s, ok := byID[id]
		if !ok {
			return nil, 0, apperr.BadRequest("song %d is not in setlist %d", id, setlistID)
		}
		s.Position = idx
		reordered = append(reordered, s)
	}
	f.songs[setlistID] = reordered
	f.setlists[setlistID].Version++
	return previous, f.setlists[setlistID].Version, nil
}

func (f *fakeStore) Like(ctx context.Context, setlistID, customerID int64) (int, error) {
	sl, ok := f.setlists[setlistID]
	if !ok {
		return 0, apperr.NotFound("setlist %d", setlistID)
	}
	key := [2]int64{setlistID, customerID}
	if f.likes[key] {
		return 0, apperr.Conflict("customer %d already liked setlist %d", customerID, setlistID)
	}
	f.likes[key] = true
	sl.LikeCount++
	return sl.LikeCount, nil
}

func (f *fakeStore) Unlike(ctx context.Context, setlistID, customerID int64) (int, error) {
	sl, ok := f.setlists[setlistID]
	if !ok {
		return 0, apperr.NotFound("setlist %d", setlistID)
	}
	key := [2]int64{setlistID, customerID}
	if !f.likes[key] {
		return 0, apperr.Conflict("customer %d has not liked setlist %d", customerID, setlistID)
	}
	delete(f.likes, key)
	sl.LikeCount--
	return sl.LikeCount, nil
}

func (f *fakeStore) IncrementViewCount(ctx context.Context, setlistID int64) (int, error) {
	sl, ok := f.setlists[setlistID]
	if !ok {
		return 0, apperr.NotFound("setlist %d", setlistID)
	}
	sl.ViewCount++
	return sl.ViewCount, nil
}

// fakeResolver grants the owner ADMIN and looks everyone else up in perms.
type fakeResolver struct {
	store *fakeStore
	perms map[int64]models.Permission
}

func (r *fakeResolver) Resolve(ctx context.Context, setlistID, callerID int64, required models.Permission) (*access.Grant, error) {
	setlist, err := r.store.GetSetlist(ctx, setlistID)
	if err != nil {
		return nil, err
	}
	grant := &access.Grant{Setlist: setlist}
	if setlist.OwnerID == callerID {
		grant.Permission = models.PermissionAdmin
		grant.IsOwner = true
	} else {
		p, ok := r.perms[callerID]
		if !ok {
			return nil, apperr.Forbidden("customer %d has no access to setlist %d", callerID, setlistID)
		}
		grant.Permission = p
	}
	if !grant.Permission.AtLeast(required) {
		return nil, apperr.Forbidden("customer %d needs %s on setlist %d", callerID, required, setlistID)
	}
	return grant, nil
}

type recordedAction struct {
	SetlistID int64
	ActorID   int64
	Action    models.ActivityAction
}

type fakeRecorder struct {
	records []recordedAction
}

func (r *fakeRecorder) Record(ctx context.Context, setlistID, actorID int64, action models.ActivityAction, details any) {
	r.records = append(r.records, recordedAction{SetlistID: setlistID, ActorID: actorID, Action: action})
}

func (r *fakeRecorder) List(ctx context.Context, setlistID int64, limit int) ([]models.Activity, error) {
	out := make([]models.Activity, 0, len(r.records))
	for _, rec := range r.records {
		if rec.SetlistID == setlistID {
			out = append(out, models.Activity{SetlistID: rec.SetlistID, CustomerID: rec.ActorID, Action: rec.Action})
		}
	}
	return out, nil
}

func (r *fakeRecorder) last() models.ActivityAction {
	if len(r.records) == 0 {
		return ""
	}
	return r.records[len(r.records)-1].Action
}

// disabledCacheStore always reports unavailable so every read hits the fake
// store directly.
type disabledCacheStore struct{}

func (disabledCacheStore) Available() bool { return false }
func (disabledCacheStore) Get(context.Context, string) (string, bool, error) {
	return "", false, nil
}
func (disabledCacheStore) Set(context.Context, string, string, time.Duration) error { return nil }
func (disabledCacheStore) Delete(context.Context, ...string) error                  { return nil }
func (disabledCacheStore) DeletePrefix(context.Context, string) error               { return nil }
func (disabledCacheStore) Increment(context.Context, string) (int64, error)         { return 0, nil }

func newTestService(store *fakeStore, perms map[int64]models.Permission) (*Service, *fakeRecorder) {
	recorder := &fakeRecorder{}
	c := cache.New(disabledCacheStore{}, zerolog.Nop(), nil, cache.Options{})
	svc := New(store, &fakeResolver{store: store, perms: perms}, recorder, c, zerolog.Nop())
	return svc, recorder
}

func TestCreateValidatesName(t *testing.T) {
	svc, _ := newTestService(newFakeStore(), nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, 7, "   ", "", nil); !errors.Is(err, apperr.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for blank name, got %v", err)
	}
	if _, err := svc.Create(ctx, 7, strings.Repeat("x", maxNameLength+1), "", nil); !errors.Is(err, apperr.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for oversized name, got %v", err)
	}

	sl, err := svc.Create(ctx, 7, "  Sunday Morning  ", " worship set ", []string{"worship"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sl.Name != "Sunday Morning" || sl.Description != "worship set" {
		t.Fatalf("expected trimmed fields, got %q / %q", sl.Name, sl.Description)
	}
}

func TestCollaborativeEditingFlow(t *testing.T) {
	store := newFakeStore(101, 102, 103)
	svc, recorder := newTestService(store, map[int64]models.Permission{
		8: models.PermissionEdit,
		9: models.PermissionView,
	})
	ctx := context.Background()

	sl, err := svc.Create(ctx, 7, "Sunday Morning", "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, songID := range []int64{101, 102, 103} {
		if sl, err = svc.AddSong(ctx, sl.ID, 7, songID); err != nil {
			t.Fatalf("AddSong(%d): %v", songID, err)
		}
	}
	for i, s := range sl.Songs {
		if s.Position != i {
			t.Fatalf("expected position %d, got %d", i, s.Position)
		}
	}

	result, err := svc.Reorder(ctx, sl.ID, 7, []int64{103, 101, 102})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if result.Version != 1 {
		t.Fatalf("expected version 1 after reorder, got %d", result.Version)
	}
	if recorder.last() != models.ActivityReordered {
		t.Fatalf("expected reordered activity, got %s", recorder.last())
	}

	// An EDIT collaborator can remove a song; the remainder renumbers.
	sl, err = svc.RemoveSong(ctx, sl.ID, 8, 101)
	if err != nil {
		t.Fatalf("RemoveSong by collaborator: %v", err)
	}
	if sl.SongCount != 2 || sl.Songs[0].SongID != 103 || sl.Songs[1].SongID != 102 {
		t.Fatalf("unexpected songs after removal: %#v", sl.Songs)
	}
	if sl.Songs[0].Position != 0 || sl.Songs[1].Position != 1 {
		t.Fatalf("positions not contiguous after removal: %#v", sl.Songs)
	}

	// A VIEW collaborator cannot mutate.
	if _, err := svc.RemoveSong(ctx, sl.ID, 9, 102); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for viewer, got %v", err)
	}

	if _, err := svc.MakePublic(ctx, sl.ID, 7); err != nil {
		t.Fatalf("MakePublic: %v", err)
	}
	if _, err := svc.MakePublic(ctx, sl.ID, 7); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict on double publish, got %v", err)
	}
}

func TestReorderRequiresIDs(t *testing.T) {
	svc, _ := newTestService(newFakeStore(), nil)
	if _, err := svc.Reorder(context.Background(), 1, 7, nil); !errors.Is(err, apperr.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestDeleteOwnerOnly(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, map[int64]models.Permission{
		8: models.PermissionAdmin,
	})
	ctx := context.Background()

	sl, err := svc.Create(ctx, 7, "Sunday Morning", "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Even an ADMIN collaborator is not the owner.
	if _, err := svc.Delete(ctx, sl.ID, 8); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for admin collaborator, got %v", err)
	}

	snapshot, err := svc.Delete(ctx, sl.ID, 7)
	if err != nil {
		t.Fatalf("Delete by owner: %v", err)
	}
	if snapshot.ID != sl.ID {
		t.Fatalf("unexpected snapshot: %#v", snapshot)
	}
	if _, err := svc.Get(ctx, sl.ID, 7); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestUpdateSettingsBumpsVersion(t *testing.T) {
	store := newFakeStore()
	svc, recorder := newTestService(store, map[int64]models.Permission{
		8: models.PermissionAdmin,
	})
	ctx := context.Background()

	sl, err := svc.Create(ctx, 7, "Sunday Morning", "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.UpdateSettings(ctx, sl.ID, 8, models.SetlistSettings{}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}

	updated, err := svc.UpdateSettings(ctx, sl.ID, 7, models.SetlistSettings{
		IsPublic: true, AllowEditing: false, AllowComments: true,
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if updated.Version != 1 || !updated.IsPublic || updated.AllowEditing {
		t.Fatalf("unexpected setlist after settings update: %#v", updated)
	}
	if recorder.last() != models.ActivitySettingsChanged {
		t.Fatalf("expected settings_changed activity, got %s", recorder.last())
	}
}

func TestLikeOnPublicSetlistByStranger(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, nil)
	ctx := context.Background()

	sl, err := svc.Create(ctx, 7, "Sunday Morning", "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Private setlist: a stranger is rejected.
	if _, err := svc.Like(ctx, sl.ID, 42); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden on private setlist, got %v", err)
	}

	if _, err := svc.MakePublic(ctx, sl.ID, 7); err != nil {
		t.Fatalf("MakePublic: %v", err)
	}

	count, err := svc.Like(ctx, sl.ID, 42)
	if err != nil {
		t.Fatalf("Like on public setlist: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected like count 1, got %d", count)
	}
	if _, err := svc.Like(ctx, sl.ID, 42); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict on double like, got %v", err)
	}

	count, err = svc.Unlike(ctx, sl.ID, 42)
	if err != nil {
		t.Fatalf("Unlike: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected like count 0, got %d", count)
	}
	if _, err := svc.Unlike(ctx, sl.ID, 42); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict on unliking without a like, got %v", err)
	}
}

func TestIncrementViewSkipsOwner(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, nil)
	ctx := context.Background()

	sl, err := svc.Create(ctx, 7, "Sunday Morning", "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.MakePublic(ctx, sl.ID, 7); err != nil {
		t.Fatalf("MakePublic: %v", err)
	}

	count, err := svc.IncrementView(ctx, sl.ID, 7)
	if err != nil {
		t.Fatalf("IncrementView by owner: %v", err)
	}
	if count != 0 {
		t.Fatalf("owner view must not count, got %d", count)
	}

	count, err = svc.IncrementView(ctx, sl.ID, 42)
	if err != nil {
		t.Fatalf("IncrementView by visitor: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected view count 1, got %d", count)
	}
}

func TestActivityRequiresView(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, nil)
	ctx := context.Background()

	sl, err := svc.Create(ctx, 7, "Sunday Morning", "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Activity(ctx, sl.ID, 42, 10); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	activities, err := svc.Activity(ctx, sl.ID, 7, 10)
	if err != nil {
		t.Fatalf("Activity: %v", err)
	}
	if len(activities) == 0 || activities[0].Action != models.ActivityCreated {
		t.Fatalf("unexpected activities: %#v", activities)
	}
}
