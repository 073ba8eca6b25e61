package models

import "time"

// SetlistSong represents a song's membership in a setlist.
// (setlist_id, song_id) is unique; Position is zero-based and gap-free at rest.
type SetlistSong struct {
	SetlistID int64     `json:"setlist_id" db:"setlist_id"`
	SongID    int64     `json:"song_id" db:"song_id"`
	Position  int       `json:"position" db:"position"`
	AddedBy   int64     `json:"added_by" db:"added_by"`
	Title     string    `json:"title" db:"title"`
	Artist    string    `json:"artist" db:"artist"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Setlist captures a customer-owned, ordered collection of songs.
type Setlist struct {
	ID            int64         `json:"id" db:"id"`
	Name          string        `json:"name" db:"name"`
	Description   string        `json:"description,omitempty" db:"description"`
	OwnerID       int64         `json:"owner_id" db:"owner_id"`
	IsPublic      bool          `json:"is_public" db:"is_public"`
	IsShared      bool          `json:"is_shared" db:"is_shared"`
	ShareCode     *string       `json:"share_code,omitempty" db:"share_code"`
	AllowEditing  bool          `json:"allow_editing" db:"allow_editing"`
	AllowComments bool          `json:"allow_comments" db:"allow_comments"`
	Version       int64         `json:"version" db:"version"`
	LikeCount     int           `json:"like_count" db:"like_count"`
	ViewCount     int           `json:"view_count" db:"view_count"`
	Tags          []string      `json:"tags" db:"tags"`
	SharedAt      *time.Time    `json:"shared_at,omitempty" db:"shared_at"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
	SongCount     int           `json:"song_count"`
	Songs         []SetlistSong `json:"songs,omitempty"`
}

// SetlistUpdate carries the mutable metadata fields; nil means "leave as is".
type SetlistUpdate struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// SetlistSettings holds the toggles an owner can change in one call.
type SetlistSettings struct {
	IsPublic      bool `json:"is_public"`
	AllowEditing  bool `json:"allow_editing"`
	AllowComments bool `json:"allow_comments"`
}

// SetlistFilter narrows setlist listings.
type SetlistFilter struct {
	OwnerID int64
	Since   *time.Time
	Limit   int
}
