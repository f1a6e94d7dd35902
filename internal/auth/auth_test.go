package auth

import (
	"bookmark-manager/pkg/types"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = types.User{ID: "alice", Email: "alice@example.com"}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestIssuer(t *testing.T, c *clock) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(Config{
		Secret:        "test-secret",
		TTL:           time.Hour,
		RefreshWindow: 10 * time.Minute,
		Now:           c.now,
	})
	require.NoError(t, err)
	return issuer
}

func TestIssueAndParse(t *testing.T) {
	c := &clock{t: time.Now()}
	issuer := newTestIssuer(t, c)

	token, err := issuer.Issue(alice)
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, alice, claims.User())
	assert.False(t, issuer.NeedsRefresh(claims))

	c.t = c.t.Add(55 * time.Minute)
	claims, err = issuer.Parse(token)
	require.NoError(t, err)
	assert.True(t, issuer.NeedsRefresh(claims))

	c.t = c.t.Add(10 * time.Minute)
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Rejects(t *testing.T) {
	c := &clock{t: time.Now()}
	issuer := newTestIssuer(t, c)

	_, err := issuer.Parse("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = issuer.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewIssuer(Config{Secret: "other-secret", Now: c.now})
	require.NoError(t, err)
	foreign, err := other.Issue(alice)
	require.NoError(t, err)
	_, err = issuer.Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevoke(t *testing.T) {
	c := &clock{t: time.Now()}
	issuer := newTestIssuer(t, c)

	token, err := issuer.Issue(alice)
	require.NoError(t, err)
	claims, err := issuer.Parse(token)
	require.NoError(t, err)

	issuer.Revoke(claims)
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	fresh, err := issuer.Issue(alice)
	require.NoError(t, err)
	_, err = issuer.Parse(fresh)
	assert.NoError(t, err)
}

func TestNewIssuer_RequiresSecret(t *testing.T) {
	_, err := NewIssuer(Config{})
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestMiddleware(t *testing.T) {
	c := &clock{t: time.Now()}
	issuer := newTestIssuer(t, c)
	logger := log.New(io.Discard, "", 0)

	var seen types.User
	handler := Middleware(issuer, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFrom(r.Context())
		_, ok := ClaimsFrom(r.Context())
		assert.True(t, ok)
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := issuer.Issue(alice)
	require.NoError(t, err)

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Basic "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, alice, seen)
		assert.Empty(t, rec.Header().Get(HeaderSessionToken))
	})

	t.Run("query token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("refresh near expiry", func(t *testing.T) {
		c.t = c.t.Add(55 * time.Minute)
		defer func() { c.t = c.t.Add(-55 * time.Minute) }()

		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)

		refreshed := rec.Header().Get(HeaderSessionToken)
		require.NotEmpty(t, refreshed)
		claims, err := issuer.Parse(refreshed)
		require.NoError(t, err)
		assert.Equal(t, alice, claims.User())
		assert.False(t, issuer.NeedsRefresh(claims))
	})
}
