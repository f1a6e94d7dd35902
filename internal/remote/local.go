package remote

import (
	"bookmark-manager/internal/feed"
	"bookmark-manager/internal/storage"
	"bookmark-manager/pkg/types"
	"context"
	"errors"
	"fmt"
	"sync"
)

// Local is a Client backed directly by a storage implementation and a change
// feed in the same process. Every operation is scoped to the session's user.
type Local struct {
	store storage.Storage
	hub   *feed.Hub

	mu   sync.RWMutex
	user *types.User
}

// NewLocal creates an in-process client signed in as user
func NewLocal(store storage.Storage, hub *feed.Hub, user types.User) *Local {
	return &Local{store: store, hub: hub, user: &user}
}

func (l *Local) owner() (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.user == nil {
		return "", ErrUnauthorized
	}
	return l.user.ID, nil
}

// checkOwner rejects requests for collections other than the session's own
func (l *Local) checkOwner(owner string) error {
	current, err := l.owner()
	if err != nil {
		return err
	}
	if owner != current {
		return fmt.Errorf("%w: cannot access collection of %s", ErrUnauthorized, owner)
	}
	return nil
}

func mapStorageErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// Query implements Client
func (l *Local) Query(ctx context.Context, owner string) ([]types.Bookmark, error) {
	if err := l.checkOwner(owner); err != nil {
		return nil, err
	}
	return l.store.List(ctx, owner, storage.ListFilter{})
}

// Insert implements Client
func (l *Local) Insert(ctx context.Context, title, url, owner string) (*types.Bookmark, error) {
	if err := l.checkOwner(owner); err != nil {
		return nil, err
	}
	return l.store.Insert(ctx, owner, title, url)
}

// Update implements Client
func (l *Local) Update(ctx context.Context, id, title, url string) error {
	owner, err := l.owner()
	if err != nil {
		return err
	}
	_, err = l.store.Update(ctx, owner, id, title, url)
	return mapStorageErr(err)
}

// Delete implements Client
func (l *Local) Delete(ctx context.Context, id string) error {
	owner, err := l.owner()
	if err != nil {
		return err
	}
	_, err = l.store.Delete(ctx, owner, id)
	return mapStorageErr(err)
}

// DeleteMany implements Client
func (l *Local) DeleteMany(ctx context.Context, ids []string) error {
	owner, err := l.owner()
	if err != nil {
		return err
	}
	_, err = l.store.DeleteMany(ctx, owner, ids)
	return err
}

// Subscribe implements Client
func (l *Local) Subscribe(ctx context.Context, owner string) (Subscription, error) {
	if err := l.checkOwner(owner); err != nil {
		return nil, err
	}
	sub, err := l.hub.Subscribe(ctx, owner)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// CurrentUser implements Client
func (l *Local) CurrentUser(ctx context.Context) (*types.User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.user == nil {
		return nil, nil
	}
	user := *l.user
	return &user, nil
}

// SignOut implements Client
func (l *Local) SignOut(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.user = nil
	return nil
}
