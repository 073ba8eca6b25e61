package models

import (
	"encoding/json"
	"time"
)

// ActivityAction enumerates the audited setlist actions.
type ActivityAction string

const (
	ActivityCreated            ActivityAction = "created"
	ActivityUpdated            ActivityAction = "updated"
	ActivitySongAdded          ActivityAction = "song_added"
	ActivitySongsAdded         ActivityAction = "songs_added"
	ActivitySongRemoved        ActivityAction = "song_removed"
	ActivitySongsRemoved       ActivityAction = "songs_removed"
	ActivityReordered          ActivityAction = "reordered"
	ActivityShared             ActivityAction = "shared"
	ActivityInviteAccepted     ActivityAction = "invite_accepted"
	ActivityJoined             ActivityAction = "joined"
	ActivityCollaboratorChange ActivityAction = "collaborator_changed"
	ActivityCollaboratorRemove ActivityAction = "collaborator_removed"
	ActivitySettingsChanged    ActivityAction = "settings_changed"
	ActivityMadePublic         ActivityAction = "made_public"
	ActivityMadePrivate        ActivityAction = "made_private"
)

// Activity is an append-only audit record for a setlist. Records are never
// updated or deleted; Version snapshots Setlist.Version at write time.
type Activity struct {
	ID         int64           `json:"id" db:"id"`
	SetlistID  int64           `json:"setlist_id" db:"setlist_id"`
	CustomerID int64           `json:"customer_id" db:"customer_id"`
	Action     ActivityAction  `json:"action" db:"action"`
	Details    json.RawMessage `json:"details,omitempty" db:"details"`
	Version    int64           `json:"version" db:"version"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
