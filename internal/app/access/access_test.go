package access

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"chordboard/internal/apperr"
	"chordboard/internal/models"
)

type fakeStore struct {
	setlist      *models.Setlist
	collaborator *models.Collaborator
	touched      [][2]int64
}

func (f *fakeStore) GetSetlist(ctx context.Context, id int64) (*models.Setlist, error) {
	if f.setlist == nil || f.setlist.ID != id {
		return nil, apperr.NotFound("setlist %d", id)
	}
	return f.setlist, nil
}

func (f *fakeStore) GetAcceptedCollaborator(ctx context.Context, setlistID, customerID int64) (*models.Collaborator, error) {
	if f.collaborator == nil || f.collaborator.CustomerID != customerID {
		return nil, apperr.NotFound("collaborator %d on setlist %d", customerID, setlistID)
	}
	return f.collaborator, nil
}

func (f *fakeStore) TouchCollaborator(ctx context.Context, setlistID, customerID int64) error {
	f.touched = append(f.touched, [2]int64{setlistID, customerID})
	return nil
}

func TestResolve(t *testing.T) {
	setlist := &models.Setlist{ID: 1, OwnerID: 7}

	tests := []struct {
		name        string
		store       *fakeStore
		callerID    int64
		required    models.Permission
		wantErr     error
		wantOwner   bool
		wantGranted models.Permission
	}{
		{
			name:        "owner holds admin",
			store:       &fakeStore{setlist: setlist},
			callerID:    7,
			required:    models.PermissionAdmin,
			wantOwner:   true,
			wantGranted: models.PermissionAdmin,
		},
		{
			name: "accepted collaborator at required level",
			store: &fakeStore{setlist: setlist, collaborator: &models.Collaborator{
				SetlistID: 1, CustomerID: 8, Permission: models.PermissionEdit, Status: models.CollaboratorAccepted,
			}},
			callerID:    8,
			required:    models.PermissionEdit,
			wantGranted: models.PermissionEdit,
		},
		{
			name: "collaborator below required level",
			store: &fakeStore{setlist: setlist, collaborator: &models.Collaborator{
				SetlistID: 1, CustomerID: 8, Permission: models.PermissionView, Status: models.CollaboratorAccepted,
			}},
			callerID: 8,
			required: models.PermissionEdit,
			wantErr:  apperr.ErrForbidden,
		},
		{
			name:     "stranger is forbidden not hidden",
			store:    &fakeStore{setlist: setlist},
			callerID: 9,
			required: models.PermissionView,
			wantErr:  apperr.ErrForbidden,
		},
		{
			name:     "missing setlist",
			store:    &fakeStore{},
			callerID: 7,
			required: models.PermissionView,
			wantErr:  apperr.ErrNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(tc.store, zerolog.Nop())
			grant, err := r.Resolve(context.Background(), 1, tc.callerID, tc.required)

			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if grant.IsOwner != tc.wantOwner {
				t.Fatalf("IsOwner = %v, want %v", grant.IsOwner, tc.wantOwner)
			}
			if grant.Permission != tc.wantGranted {
				t.Fatalf("Permission = %s, want %s", grant.Permission, tc.wantGranted)
			}
			if tc.wantOwner && grant.Collaborator != nil {
				t.Fatalf("owner must not carry a collaborator record")
			}
		})
	}
}

func TestResolveStampsCollaboratorActivity(t *testing.T) {
	setlist := &models.Setlist{ID: 1, OwnerID: 7}
	store := &fakeStore{setlist: setlist, collaborator: &models.Collaborator{
		SetlistID: 1, CustomerID: 8, Permission: models.PermissionEdit, Status: models.CollaboratorAccepted,
	}}
	r := NewResolver(store, zerolog.Nop())
	ctx := context.Background()

	if _, err := r.Resolve(ctx, 1, 8, models.PermissionEdit); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(store.touched) != 1 || store.touched[0] != [2]int64{1, 8} {
		t.Fatalf("expected the collaborator stamped active, got %v", store.touched)
	}

	// An insufficient level is not a granted action.
	if _, err := r.Resolve(ctx, 1, 8, models.PermissionAdmin); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if len(store.touched) != 1 {
		t.Fatalf("forbidden resolution must not stamp, got %v", store.touched)
	}

	// The owner has no collaborator record to stamp.
	if _, err := r.Resolve(ctx, 1, 7, models.PermissionAdmin); err != nil {
		t.Fatalf("Resolve owner: %v", err)
	}
	if len(store.touched) != 1 {
		t.Fatalf("owner resolution must not stamp, got %v", store.touched)
	}
}
