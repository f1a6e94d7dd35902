package storage

import (
	"bookmark-manager/pkg/types"
	"context"
)

// Storage defines the interface for bookmark persistence.
// Every method is scoped to an owner; rows belonging to other owners are
// invisible and behave as if they did not exist.
type Storage interface {
	// List returns the owner's bookmarks, newest first
	List(ctx context.Context, ownerID string, filter ListFilter) ([]types.Bookmark, error)

	// Insert stores a new bookmark and returns it with id and timestamp assigned
	Insert(ctx context.Context, ownerID, title, url string) (*types.Bookmark, error)

	// Get retrieves a single bookmark by ID
	Get(ctx context.Context, ownerID, id string) (*types.Bookmark, error)

	// Update replaces title and url, returning the updated row
	Update(ctx context.Context, ownerID, id, title, url string) (*types.Bookmark, error)

	// Delete removes a bookmark, returning the deleted row
	Delete(ctx context.Context, ownerID, id string) (*types.Bookmark, error)

	// DeleteMany removes every listed bookmark in one statement and returns
	// the rows that were actually deleted
	DeleteMany(ctx context.Context, ownerID string, ids []string) ([]types.Bookmark, error)

	Close() error
}

// UserStore resolves user identities
type UserStore interface {
	// FindOrCreateUser returns the user with the given email, creating it on first use
	FindOrCreateUser(ctx context.Context, email string) (*types.User, error)

	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, id string) (*types.User, error)
}

// ListFilter defines pagination for listing bookmarks
type ListFilter struct {
	Limit  int
	Offset int
}

// Config holds storage configuration
type Config struct {
	DBPath string // Path to SQLite database
}
