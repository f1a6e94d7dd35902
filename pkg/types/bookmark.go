package types

import "time"

type Bookmark struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ChangeKind is the kind of row change carried by a ChangeEvent
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"

	// ChangeExternal reports rows changed by another process sharing the
	// database. The record is empty apart from OwnerID, which may also be
	// empty when the owner is unknown.
	ChangeExternal ChangeKind = "external"
)

// ChangeEvent is pushed by the change feed whenever a bookmark row changes.
// Record holds the new row, or the old row for deletes.
type ChangeEvent struct {
	Kind   ChangeKind `json:"kind"`
	Record Bookmark   `json:"record"`
	At     time.Time  `json:"at"`
}

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient user-visible message
type Notice struct {
	Message string     `json:"message"`
	Kind    NoticeKind `json:"kind"`
	At      time.Time  `json:"at"`
}
