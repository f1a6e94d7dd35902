// Package remote defines the contract of the remote bookmark store as seen
// by a client session, and an in-process implementation of it.
package remote

import (
	"bookmark-manager/pkg/types"
	"context"
	"errors"
)

var (
	// ErrUnauthorized is returned when the session is missing or expired
	ErrUnauthorized = errors.New("not signed in")

	// ErrNotFound is returned when the row does not exist or is not visible to the session
	ErrNotFound = errors.New("bookmark not found")
)

// Client performs authenticated operations against a remote per-user
// bookmark collection.
type Client interface {
	// Query returns all bookmarks of owner ordered by creation time, newest first
	Query(ctx context.Context, owner string) ([]types.Bookmark, error)

	// Insert creates a bookmark; the store assigns ID and CreatedAt
	Insert(ctx context.Context, title, url, owner string) (*types.Bookmark, error)

	Update(ctx context.Context, id, title, url string) error
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) error

	// Subscribe opens a change notification stream for owner's rows.
	// The returned Subscription must be closed by the caller.
	Subscribe(ctx context.Context, owner string) (Subscription, error)

	// CurrentUser returns the signed-in user, or nil when signed out
	CurrentUser(ctx context.Context) (*types.User, error)

	SignOut(ctx context.Context) error
}

// Subscription delivers change events until closed
type Subscription interface {
	Events() <-chan types.ChangeEvent
	Close() error
}
