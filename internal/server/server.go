package server

import (
	"bookmark-manager/internal/auth"
	"bookmark-manager/internal/feed"
	"bookmark-manager/internal/storage"
	"bookmark-manager/pkg/types"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Store is the persistence the server needs: owner-scoped bookmarks and users
type Store interface {
	storage.Storage
	storage.UserStore
}

type Server struct {
	store  Store
	hub    *feed.Hub
	issuer *auth.Issuer
	logger *log.Logger
	srv    *http.Server
	config Config
}

type Config struct {
	Port int

	// AllowDevLogin enables POST /auth/login, which signs in any email
	AllowDevLogin bool

	// RequestTimeout bounds every non-streaming request (default: 10s)
	RequestTimeout time.Duration

	// PIDPath, when set, records the process id while the server runs
	PIDPath string

	Logger *log.Logger
}

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

type bookmarkRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type deleteManyRequest struct {
	IDs []string `json:"ids"`
}

type deleteManyResponse struct {
	Deleted []string `json:"deleted"`
}

func New(store Store, hub *feed.Hub, issuer *auth.Issuer, config Config) *Server {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}
	return &Server{
		store:  store,
		hub:    hub,
		issuer: issuer,
		logger: config.Logger,
		config: config,
	}
}

// Handler returns the router serving the HTTP API
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	requireSession := auth.Middleware(s.issuer, s.logger)

	// Routes
	r.Get("/status", s.handleStatus)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))

		r.Post("/auth/login", s.handleLogin)
		r.With(requireSession).Post("/auth/logout", s.handleLogout)

		r.Route("/api", func(r chi.Router) {
			r.Use(requireSession)
			r.Get("/me", s.handleMe)
			r.Get("/bookmarks", s.handleListBookmarks)
			r.Post("/bookmarks", s.handleCreateBookmark)
			r.Post("/bookmarks/delete", s.handleDeleteBookmarks)
			r.Put("/bookmarks/{id}", s.handleUpdateBookmark)
			r.Delete("/bookmarks/{id}", s.handleDeleteBookmark)
		})
	})

	// The websocket outlives the request, so it stays outside the timeout group
	r.With(requireSession).Get("/ws", s.serveWs)

	return r
}

func (s *Server) Start() error {
	handler := s.Handler()

	var pid *pidFile
	if s.config.PIDPath != "" {
		pid = newPIDFile(s.config.PIDPath)
		if running, err := pid.read(); err == nil && running != 0 && running != os.Getpid() && isRunning(running) {
			return fmt.Errorf("server already running with pid %d", running)
		}
	}

	// Try different addresses if one fails
	addresses := []string{
		fmt.Sprintf("localhost:%d", s.config.Port),
		fmt.Sprintf("127.0.0.1:%d", s.config.Port),
	}

	var lastErr error
	for _, addr := range addresses {
		srv := &http.Server{
			Addr:    addr,
			Handler: handler,
		}

		s.logger.Printf("Attempting to start HTTP server on %s", addr)

		// Create a channel to signal server start
		serverErr := make(chan error, 1)

		go func() {
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				serverErr <- fmt.Errorf("http server error on %s: %w", addr, err)
			}
		}()

		// Wait a moment to see if the server starts successfully
		select {
		case err := <-serverErr:
			lastErr = err
			s.logger.Printf("Failed to start server on %s: %v", addr, err)
			continue
		case <-time.After(100 * time.Millisecond):
			s.srv = srv
			s.logger.Printf("Server started successfully on %s", addr)
			if pid != nil {
				if err := pid.write(); err != nil {
					s.logger.Printf("Error writing PID file: %v", err)
				}
			}
			return nil
		}
	}

	return fmt.Errorf("failed to start server on any address: %v", lastErr)
}

func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	if s.config.PIDPath != "" {
		if err := newPIDFile(s.config.PIDPath).remove(); err != nil {
			s.logger.Printf("Error removing PID file: %v", err)
		}
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	addr := ""
	if s.srv != nil {
		addr = s.srv.Addr
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"time":          time.Now().Format(time.RFC3339),
		"addr":          addr,
		"subscriptions": s.hub.Count(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.config.AllowDevLogin {
		http.Error(w, "login disabled", http.StatusForbidden)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	user, err := s.store.FindOrCreateUser(r.Context(), email)
	if err != nil {
		s.logger.Printf("Error signing in %s: %v", email, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	token, err := s.issuer.Issue(*user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.Printf("Signed in %s", user.Email)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: *user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if claims, ok := auth.ClaimsFrom(r.Context()); ok {
		s.issuer.Revoke(claims)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.UserFrom(r.Context())
	user, err := s.store.GetUser(r.Context(), session.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	// Get limit and offset from query params; no limit returns everything
	filter := storage.ListFilter{}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			filter.Offset = parsed
		}
	}

	bookmarks, err := s.store.List(r.Context(), user.ID, filter)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if bookmarks == nil {
		bookmarks = []types.Bookmark{}
	}
	writeJSON(w, http.StatusOK, bookmarks)
}

func (s *Server) handleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	var req bookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	bookmark, err := s.store.Insert(r.Context(), user.ID, req.Title, req.URL)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookmark)
}

func (s *Server) handleUpdateBookmark(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	id := chi.URLParam(r, "id")

	var req bookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	bookmark, err := s.store.Update(r.Context(), user.ID, id, req.Title, req.URL)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookmark)
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	if _, err := s.store.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteBookmarks(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	var req deleteManyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	deleted, err := s.store.DeleteMany(r.Context(), user.ID, req.IDs)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	resp := deleteManyResponse{Deleted: make([]string, 0, len(deleted))}
	for _, b := range deleted {
		resp.Deleted = append(resp.Deleted, b.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "bookmark not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrInvalidInput), errors.Is(err, storage.ErrBatchTooLarge):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Printf("Storage error: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
