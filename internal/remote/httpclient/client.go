// Package httpclient implements remote.Client against the bookmark HTTP API.
package httpclient

import (
	"bookmark-manager/internal/auth"
	"bookmark-manager/internal/remote"
	"bookmark-manager/pkg/types"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

type Config struct {
	// BaseURL of the server, e.g. http://localhost:8787
	BaseURL string

	// Token resumes an existing session
	Token string

	// OnTokenChange is called whenever the session token is issued,
	// refreshed or cleared
	OnTokenChange func(token string)

	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client is a remote.Client speaking REST for operations and a websocket
// for change notifications
type Client struct {
	baseURL       string
	http          *http.Client
	logger        *log.Logger
	onTokenChange func(token string)

	mu    sync.RWMutex
	token string
}

var _ remote.Client = (*Client)(nil)

func New(config Config) *Client {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[client] ", log.LstdFlags)
	}
	return &Client{
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		http:          config.HTTPClient,
		logger:        config.Logger,
		onTokenChange: config.OnTokenChange,
		token:         config.Token,
	}
}

// Token returns the current session token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	changed := c.token != token
	c.token = token
	c.mu.Unlock()

	if changed && c.onTokenChange != nil {
		c.onTokenChange(token)
	}
}

// Login signs in with the server's development login and keeps the session
func (c *Client) Login(ctx context.Context, email string) (*types.User, error) {
	var out struct {
		Token string     `json:"token"`
		User  types.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email}, &out); err != nil {
		return nil, err
	}
	c.setToken(out.Token)
	return &out.User, nil
}

// Query implements remote.Client. The server scopes the listing to the
// session's owner.
func (c *Client) Query(ctx context.Context, owner string) ([]types.Bookmark, error) {
	var bookmarks []types.Bookmark
	if err := c.do(ctx, http.MethodGet, "/api/bookmarks", nil, &bookmarks); err != nil {
		return nil, err
	}
	return bookmarks, nil
}

// Insert implements remote.Client
func (c *Client) Insert(ctx context.Context, title, rawURL, owner string) (*types.Bookmark, error) {
	var created types.Bookmark
	body := map[string]string{"title": title, "url": rawURL}
	if err := c.do(ctx, http.MethodPost, "/api/bookmarks", body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Update implements remote.Client
func (c *Client) Update(ctx context.Context, id, title, rawURL string) error {
	body := map[string]string{"title": title, "url": rawURL}
	return c.do(ctx, http.MethodPut, "/api/bookmarks/"+url.PathEscape(id), body, nil)
}

// Delete implements remote.Client
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/bookmarks/"+url.PathEscape(id), nil, nil)
}

// DeleteMany implements remote.Client
func (c *Client) DeleteMany(ctx context.Context, ids []string) error {
	return c.do(ctx, http.MethodPost, "/api/bookmarks/delete", map[string][]string{"ids": ids}, nil)
}

// CurrentUser implements remote.Client. An expired session reads as signed out.
func (c *Client) CurrentUser(ctx context.Context) (*types.User, error) {
	if c.Token() == "" {
		return nil, nil
	}

	var user types.User
	err := c.do(ctx, http.MethodGet, "/api/me", nil, &user)
	if errors.Is(err, remote.ErrUnauthorized) {
		c.setToken("")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SignOut implements remote.Client. The local session is dropped even if
// the server cannot be reached.
func (c *Client) SignOut(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}

	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.setToken("")
	if err != nil && !errors.Is(err, remote.ErrUnauthorized) {
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if refreshed := resp.Header.Get(auth.HeaderSessionToken); refreshed != "" {
		c.setToken(refreshed)
	}

	if resp.StatusCode >= 400 {
		return statusError(method, path, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(data))

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s %s: %w", method, path, remote.ErrUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, remote.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, message)
}
