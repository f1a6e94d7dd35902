package sqlite

import (
	"bookmark-manager/internal/storage"
	"bookmark-manager/pkg/types"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := New(storage.Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err, "failed to create storage")
	t.Cleanup(func() { store.Close() })

	return store
}

// fakeClock hands out strictly increasing timestamps
func fakeClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

type recordingHandler struct {
	mu     sync.Mutex
	events []types.ChangeEvent
}

func (h *recordingHandler) HandleChange(event types.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHandler) kinds() []types.ChangeKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	kinds := make([]types.ChangeKind, len(h.events))
	for i, e := range h.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func TestStore_BasicOperations(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	// Insert
	b, err := store.Insert(ctx, "owner-1", "  GitHub ", " https://github.com ")
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "GitHub", b.Title)
	assert.Equal(t, "https://github.com", b.URL)
	assert.Equal(t, "owner-1", b.OwnerID)
	assert.False(t, b.CreatedAt.IsZero())

	// Get
	got, err := store.Get(ctx, "owner-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	// Update
	updated, err := store.Update(ctx, "owner-1", b.ID, "GitHub Home", "https://github.com/home")
	require.NoError(t, err)
	assert.Equal(t, "GitHub Home", updated.Title)
	assert.Equal(t, "https://github.com/home", updated.URL)
	assert.True(t, updated.CreatedAt.Equal(b.CreatedAt), "update must not move created_at")

	// Delete
	deleted, err := store.Delete(ctx, "owner-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, deleted.ID)

	_, err = store.Get(ctx, "owner-1", b.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := setupTestDB(t)
	store.now = fakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, u := range []string{"https://a.com", "https://b.com", "https://c.com"} {
		_, err := store.Insert(ctx, "owner-1", u, u)
		require.NoError(t, err)
	}
	_, err := store.Insert(ctx, "owner-2", "other", "https://other.com")
	require.NoError(t, err)

	list, err := store.List(ctx, "owner-1", storage.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "https://c.com", list[0].URL)
	assert.Equal(t, "https://b.com", list[1].URL)
	assert.Equal(t, "https://a.com", list[2].URL)

	page, err := store.List(ctx, "owner-1", storage.ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "https://b.com", page[0].URL)
}

func TestStore_OwnerScoping(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	b, err := store.Insert(ctx, "owner-1", "Mine", "https://mine.com")
	require.NoError(t, err)

	_, err = store.Get(ctx, "owner-2", b.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Update(ctx, "owner-2", b.ID, "Stolen", "https://stolen.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Delete(ctx, "owner-2", b.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	deleted, err := store.DeleteMany(ctx, "owner-2", []string{b.ID})
	require.NoError(t, err)
	assert.Empty(t, deleted)

	got, err := store.Get(ctx, "owner-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mine", got.Title)
}

func TestStore_DeleteMany(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a, err := store.Insert(ctx, "owner-1", "A", "https://a.com")
	require.NoError(t, err)
	b, err := store.Insert(ctx, "owner-1", "B", "https://b.com")
	require.NoError(t, err)
	c, err := store.Insert(ctx, "owner-1", "C", "https://c.com")
	require.NoError(t, err)

	deleted, err := store.DeleteMany(ctx, "owner-1", []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, deleted, 2)

	list, err := store.List(ctx, "owner-1", storage.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)

	tooMany := make([]string, storage.MaxBatchDelete+1)
	_, err = store.DeleteMany(ctx, "owner-1", tooMany)
	assert.ErrorIs(t, err, storage.ErrBatchTooLarge)
}

func TestStore_Validation(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, "owner-1", "", "https://a.com")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.Insert(ctx, "owner-1", "A", "   ")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	b, err := store.Insert(ctx, "owner-1", "A", "https://a.com")
	require.NoError(t, err)
	_, err = store.Update(ctx, "owner-1", b.ID, "A", "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestStore_ChangeHandlers(t *testing.T) {
	store := setupTestDB(t)
	handler := &recordingHandler{}
	store.RegisterHandler(handler)
	ctx := context.Background()

	a, err := store.Insert(ctx, "owner-1", "A", "https://a.com")
	require.NoError(t, err)
	_, err = store.Update(ctx, "owner-1", a.ID, "A2", "https://a.com")
	require.NoError(t, err)
	b, err := store.Insert(ctx, "owner-1", "B", "https://b.com")
	require.NoError(t, err)
	_, err = store.Delete(ctx, "owner-1", a.ID)
	require.NoError(t, err)
	_, err = store.DeleteMany(ctx, "owner-1", []string{b.ID})
	require.NoError(t, err)

	// failed writes publish nothing
	_, err = store.Delete(ctx, "owner-1", "missing")
	require.Error(t, err)

	assert.Equal(t, []types.ChangeKind{
		types.ChangeInsert,
		types.ChangeUpdate,
		types.ChangeInsert,
		types.ChangeDelete,
		types.ChangeDelete,
	}, handler.kinds())
	assert.Equal(t, "A2", handler.events[3].Record.Title, "delete events carry the old row")
}

func TestStore_Users(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	u1, err := store.FindOrCreateUser(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u1.Email)

	u2, err := store.FindOrCreateUser(ctx, "alice@example.com ")
	require.NoError(t, err)
	assert.Equal(t, u1.ID, u2.ID)

	got, err := store.GetUser(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, u1.Email, got.Email)

	_, err = store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.FindOrCreateUser(ctx, "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
