package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"chordboard/internal/apperr"
	"chordboard/internal/models"
)

func TestAppendActivitySnapshotsVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db)

	details := json.RawMessage(`{"song_id":10}`)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO activities (setlist_id, customer_id, action, details, version, created_at)`)).
		WithArgs(int64(1), int64(7), models.ActivitySongAdded, []byte(details), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "setlist_id", "customer_id", "action", "details", "version", "created_at",
		}).AddRow(int64(20), int64(1), int64(7), string(models.ActivitySongAdded), []byte(details), int64(3), now))

	got, err := s.AppendActivity(context.Background(), 1, 7, models.ActivitySongAdded, details)
	if err != nil {
		t.Fatalf("AppendActivity: %v", err)
	}
	if got.Version != 3 || got.Action != models.ActivitySongAdded {
		t.Fatalf("unexpected activity: %#v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppendActivityMissingSetlist(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO activities`)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "setlist_id", "customer_id", "action", "details", "version", "created_at",
		}))

	_, err = s.AppendActivity(context.Background(), 99, 7, models.ActivityCreated, nil)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListActivitiesNewestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC, id DESC LIMIT $2`)).
		WithArgs(int64(1), 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "setlist_id", "customer_id", "action", "details", "version", "created_at",
		}).
			AddRow(int64(21), int64(1), int64(7), "reordered", nil, int64(2), now).
			AddRow(int64(20), int64(1), int64(7), "song_added", nil, int64(1), now.Add(-time.Minute)))

	got, err := s.ListActivities(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(got) != 2 || got[0].ID != 21 {
		t.Fatalf("unexpected activities: %#v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
