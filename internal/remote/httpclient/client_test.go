package httpclient

import (
	"bookmark-manager/internal/auth"
	"bookmark-manager/internal/feed"
	"bookmark-manager/internal/remote"
	"bookmark-manager/internal/server"
	"bookmark-manager/internal/service"
	"bookmark-manager/internal/storage"
	"bookmark-manager/internal/storage/sqlite"
	"bookmark-manager/pkg/types"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func setupBackend(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := sqlite.New(storage.Config{DBPath: filepath.Join(t.TempDir(), "backend.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := feed.NewHub(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	store.RegisterHandler(hub)

	issuer, err := auth.NewIssuer(auth.Config{Secret: "client-test"})
	require.NoError(t, err)

	srv := server.New(store, hub, issuer, server.Config{AllowDevLogin: true, Logger: quietLogger()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func signedIn(t *testing.T, baseURL, email string) (*Client, types.User) {
	t.Helper()
	client := New(Config{BaseURL: baseURL, Logger: quietLogger()})
	user, err := client.Login(context.Background(), email)
	require.NoError(t, err)
	require.NotEmpty(t, client.Token())
	return client, *user
}

func TestClient_CRUD(t *testing.T) {
	ts := setupBackend(t)
	client, user := signedIn(t, ts.URL, "alice@example.com")
	ctx := context.Background()

	me, err := client.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, me)
	assert.Equal(t, user, *me)

	created, err := client.Insert(ctx, "GitHub", "https://github.com", user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, created.OwnerID)

	require.NoError(t, client.Update(ctx, created.ID, "GitHub!", "https://github.com"))

	second, err := client.Insert(ctx, "Go", "https://go.dev", user.ID)
	require.NoError(t, err)

	list, err := client.Query(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "GitHub!", list[1].Title)

	require.NoError(t, client.Delete(ctx, created.ID))
	assert.ErrorIs(t, client.Delete(ctx, created.ID), remote.ErrNotFound)
	assert.ErrorIs(t, client.Update(ctx, created.ID, "x", "https://x.example"), remote.ErrNotFound)

	require.NoError(t, client.DeleteMany(ctx, []string{second.ID}))
	list, err = client.Query(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClient_Unauthorized(t *testing.T) {
	ts := setupBackend(t)
	client := New(Config{BaseURL: ts.URL, Token: "stale", Logger: quietLogger()})
	ctx := context.Background()

	_, err := client.Query(ctx, "anyone")
	assert.ErrorIs(t, err, remote.ErrUnauthorized)

	_, err = client.Subscribe(ctx, "anyone")
	assert.ErrorIs(t, err, remote.ErrUnauthorized)

	// an expired session reads as signed out
	user, err := client.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Empty(t, client.Token())
}

func TestClient_SignOut(t *testing.T) {
	ts := setupBackend(t)

	var (
		mu     sync.Mutex
		tokens []string
	)
	client := New(Config{
		BaseURL: ts.URL,
		Logger:  quietLogger(),
		OnTokenChange: func(token string) {
			mu.Lock()
			tokens = append(tokens, token)
			mu.Unlock()
		},
	})
	ctx := context.Background()

	_, err := client.Login(ctx, "alice@example.com")
	require.NoError(t, err)
	issued := client.Token()

	require.NoError(t, client.SignOut(ctx))
	user, err := client.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	// the old token no longer works
	stale := New(Config{BaseURL: ts.URL, Token: issued, Logger: quietLogger()})
	_, err = stale.Query(ctx, "")
	assert.ErrorIs(t, err, remote.ErrUnauthorized)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{issued, ""}, tokens)
}

func TestClient_PicksUpRefreshedToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(auth.HeaderSessionToken, "fresh")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL, Token: "old", Logger: quietLogger()})
	_, err := client.Query(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "fresh", client.Token())
}

func TestClient_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database is locked", http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL, Token: "t", Logger: quietLogger()})
	err := client.Delete(context.Background(), "id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NotErrorIs(t, err, remote.ErrNotFound)
}

func TestClient_Subscribe(t *testing.T) {
	ts := setupBackend(t)
	client, user := signedIn(t, ts.URL, "alice@example.com")
	ctx := context.Background()

	sub, err := client.Subscribe(ctx, user.ID)
	require.NoError(t, err)

	// the server registers the stream before upgrading, so this insert is seen
	created, err := client.Insert(ctx, "GitHub", "https://github.com", user.ID)
	require.NoError(t, err)

	select {
	case event := <-sub.Events():
		assert.Equal(t, types.ChangeInsert, event.Kind)
		assert.Equal(t, created.ID, event.Record.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event")
	}

	require.NoError(t, sub.Close())
	require.Eventually(t, func() bool {
		select {
		case _, open := <-sub.Events():
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

// Two engine sessions on different clients converge through the server.
func TestEngineSessionsConverge(t *testing.T) {
	ts := setupBackend(t)
	ctx := context.Background()

	firstClient, user := signedIn(t, ts.URL, "alice@example.com")
	secondClient, _ := signedIn(t, ts.URL, "alice@example.com")

	first := service.New(firstClient, user, service.Config{Logger: quietLogger()})
	second := service.New(secondClient, user, service.Config{Logger: quietLogger()})
	require.NoError(t, first.Start(ctx))
	defer first.Stop()
	require.NoError(t, second.Start(ctx))
	defer second.Stop()

	created, err := first.Add(ctx, "GitHub", "https://github.com")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got := second.Bookmarks()
		return len(got) == 1 && got[0].ID == created.ID
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, second.Edit(ctx, created.ID, "GitHub Home", "https://github.com"))
	require.Eventually(t, func() bool {
		got := first.Bookmarks()
		return len(got) == 1 && got[0].Title == "GitHub Home"
	}, 3*time.Second, 20*time.Millisecond)

	first.ToggleSelection(created.ID)
	require.NoError(t, first.BulkDelete(ctx))
	require.Eventually(t, func() bool {
		return second.Len() == 0
	}, 3*time.Second, 20*time.Millisecond)
}
