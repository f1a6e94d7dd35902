package service

import (
	"bookmark-manager/internal/export"
	"bookmark-manager/internal/remote"
	"bookmark-manager/internal/storage"
	"bookmark-manager/pkg/types"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// TitleResolver looks up a display title for a URL
type TitleResolver interface {
	Title(ctx context.Context, url string) (string, error)
}

// Config holds optional collaborators and tuning for a BookmarkService
type Config struct {
	// Titles resolves missing titles on add; nil always falls back to the domain
	Titles TitleResolver

	// Notifier receives success and error notices; nil discards them
	Notifier Notifier

	// RefreshInterval re-asserts remote truth periodically; 0 disables it
	RefreshInterval time.Duration

	// Logger for service activity (default: stderr logger)
	Logger *log.Logger

	// Now overrides the clock used for notices
	Now func() time.Time
}

type opKind int

const (
	opAdd opKind = iota + 1
	opEdit
	opDelete
)

// mark records a locally confirmed mutation so that a refresh issued before
// the confirmation cannot undo it when its result arrives afterwards
type mark struct {
	seq uint64
	op  opKind
	rec types.Bookmark
}

// BookmarkService owns the local view of one user's bookmark collection and
// reconciles it with the remote store.
type BookmarkService struct {
	client   remote.Client
	user     types.User
	titles   TitleResolver
	notifier Notifier
	logger   *log.Logger
	interval time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	cache    []types.Bookmark
	selected map[string]bool
	prefs    Preferences
	seq      uint64          // operation sequence
	applied  uint64          // issue sequence of the newest applied refresh
	marks    map[string]mark // per-id in-flight markers
	inflight atomic.Int32

	handlers   []ViewChangeHandler
	handlersMu sync.RWMutex

	refreshReq chan struct{}
	sub        remote.Subscription
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lifecycle  sync.Mutex
}

// New creates a BookmarkService for user's collection.
// The user is the session identity; every remote call is made on their behalf.
func New(client remote.Client, user types.User, config Config) *BookmarkService {
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[service] ", log.LstdFlags)
	}
	if config.Notifier == nil {
		config.Notifier = discardNotifier{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &BookmarkService{
		client:     client,
		user:       user,
		titles:     config.Titles,
		notifier:   config.Notifier,
		logger:     config.Logger,
		interval:   config.RefreshInterval,
		now:        config.Now,
		selected:   make(map[string]bool),
		prefs:      DefaultPreferences(),
		marks:      make(map[string]mark),
		refreshReq: make(chan struct{}, 1),
	}
}

// User returns the session identity the service was created for
func (s *BookmarkService) User() types.User {
	return s.user
}

// RegisterHandler adds a new view change handler
func (s *BookmarkService) RegisterHandler(handler ViewChangeHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Start subscribes to change notifications, loads the collection and begins
// background reconciliation. It returns once the initial load has completed.
func (s *BookmarkService) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.cancel != nil {
		return errors.New("service already started")
	}

	// Subscribe before the initial load so no change can fall in between
	sub, err := s.client.Subscribe(ctx, s.user.ID)
	if err != nil {
		return &BookmarkError{Op: "Start", Message: "failed to subscribe to changes", Err: err}
	}

	if err := s.refresh(ctx); err != nil {
		sub.Close()
		return &BookmarkError{Op: "Start", Message: "failed to load bookmarks", Err: err}
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.sub = sub

	s.wg.Add(2)
	go s.watchChanges(sub)
	go s.processRefreshRequests()

	if s.interval > 0 {
		s.wg.Add(1)
		go s.periodicRefresh()
	}

	s.logger.Printf("Started for user %s (%d bookmarks)", s.user.ID, s.Len())
	return nil
}

// Stop releases the subscription and waits for background work to finish
func (s *BookmarkService) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	err := s.sub.Close()
	s.wg.Wait()

	s.cancel = nil
	s.sub = nil
	s.logger.Printf("Stopped for user %s", s.user.ID)
	if err != nil {
		return &BookmarkError{Op: "Stop", Message: "failed to release subscription", Err: err}
	}
	return nil
}

// watchChanges turns every change notification into a refresh request
func (s *BookmarkService) watchChanges(sub remote.Subscription) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				s.logger.Printf("Change subscription closed")
				return
			}
			s.logger.Printf("Change notification: %s %s", event.Kind, event.Record.ID)
			s.requestRefresh()
		}
	}
}

// requestRefresh queues a refresh. At most one request waits behind the
// running refresh, and it always starts after the request was made.
func (s *BookmarkService) requestRefresh() {
	select {
	case s.refreshReq <- struct{}{}:
	default:
	}
}

func (s *BookmarkService) processRefreshRequests() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.refreshReq:
			if err := s.refresh(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Printf("Error refreshing after change: %v", err)
			}
		}
	}
}

func (s *BookmarkService) periodicRefresh() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.requestRefresh()
		}
	}
}

// Refresh replaces the local collection with the remote one
func (s *BookmarkService) Refresh(ctx context.Context) error {
	if err := s.refresh(ctx); err != nil {
		return s.fail(&BookmarkError{Op: "Refresh", Message: "failed to load bookmarks", Err: err})
	}
	return nil
}

func (s *BookmarkService) refresh(ctx context.Context) error {
	s.mu.Lock()
	s.seq++
	issued := s.seq
	s.mu.Unlock()

	s.inflight.Add(1)
	records, err := s.client.Query(ctx, s.user.ID)
	s.inflight.Add(-1)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if issued < s.applied {
		// a refresh issued later has already been applied
		s.mu.Unlock()
		return nil
	}
	s.applied = issued
	s.cache = s.reconcile(records, issued)
	for id := range s.selected {
		if s.indexOf(id) < 0 {
			delete(s.selected, id)
		}
	}
	s.mu.Unlock()

	s.emit()
	return nil
}

// reconcile merges a query result with mutations confirmed after the query
// was issued. Markers the result already reflects are discarded.
// Must be called with s.mu held.
func (s *BookmarkService) reconcile(records []types.Bookmark, issued uint64) []types.Bookmark {
	fresh := make([]types.Bookmark, 0, len(records))
	present := make(map[string]bool, len(records))

	for _, r := range records {
		if m, ok := s.marks[r.ID]; ok && m.seq > issued {
			switch m.op {
			case opDelete:
				continue
			case opEdit:
				r.Title, r.URL = m.rec.Title, m.rec.URL
			}
		}
		present[r.ID] = true
		fresh = append(fresh, r)
	}

	// Adds confirmed after the query was issued, kept in cache order
	var added []types.Bookmark
	for _, b := range s.cache {
		if m, ok := s.marks[b.ID]; ok && m.seq > issued && m.op == opAdd && !present[b.ID] {
			added = append(added, b)
		}
	}

	for id, m := range s.marks {
		if m.seq <= issued {
			delete(s.marks, id)
		}
	}

	if len(added) == 0 {
		return fresh
	}
	return append(added, fresh...)
}

// Add creates a bookmark. An empty title is resolved from the page, falling
// back to the URL's domain.
func (s *BookmarkService) Add(ctx context.Context, title, rawURL string) (*types.Bookmark, error) {
	url := strings.TrimSpace(rawURL)
	title = strings.TrimSpace(title)

	if url == "" {
		return nil, s.fail(&ValidationError{Op: "Add", Err: ErrURLRequired})
	}
	if s.hasURL(url) {
		return nil, s.fail(&ValidationError{Op: "Add", Err: ErrDuplicateURL})
	}

	if title == "" {
		title = s.resolveTitle(ctx, url)
	}

	s.inflight.Add(1)
	created, err := s.client.Insert(ctx, title, url, s.user.ID)
	s.inflight.Add(-1)
	if err != nil {
		return nil, s.fail(&BookmarkError{Op: "Add", Message: "failed to add bookmark", Err: err})
	}

	s.mu.Lock()
	s.seq++
	s.marks[created.ID] = mark{seq: s.seq, op: opAdd, rec: *created}
	// a notification-triggered refresh may already have brought it in
	if s.indexOf(created.ID) < 0 {
		s.cache = append([]types.Bookmark{*created}, s.cache...)
	}
	s.mu.Unlock()

	s.succeed("Bookmark added")
	s.emit()
	return created, nil
}

func (s *BookmarkService) resolveTitle(ctx context.Context, url string) string {
	if s.titles != nil {
		title, err := s.titles.Title(ctx, url)
		title = strings.TrimSpace(title)
		if err == nil && title != "" {
			return clipTitle(title, storage.MaxTitleLength)
		}
		if err != nil {
			s.logger.Printf("Title lookup for %s failed, using domain: %v", url, err)
		}
	}
	return DomainOf(url)
}

// clipTitle shortens a resolved title to at most max bytes without
// splitting a rune
func clipTitle(title string, max int) string {
	if len(title) <= max {
		return title
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(title[cut]) {
		cut--
	}
	return strings.TrimSpace(title[:cut])
}

// Edit replaces the title and url of a bookmark, keeping its position
func (s *BookmarkService) Edit(ctx context.Context, id, title, rawURL string) error {
	title = strings.TrimSpace(title)
	url := strings.TrimSpace(rawURL)

	if title == "" {
		return s.fail(&ValidationError{Op: "Edit", Err: ErrTitleRequired})
	}
	if url == "" {
		return s.fail(&ValidationError{Op: "Edit", Err: ErrURLRequired})
	}

	s.inflight.Add(1)
	err := s.client.Update(ctx, id, title, url)
	s.inflight.Add(-1)
	if err != nil {
		return s.fail(&BookmarkError{Op: "Edit", ID: id, Message: "failed to update bookmark", Err: err})
	}

	s.mu.Lock()
	s.seq++
	s.marks[id] = mark{seq: s.seq, op: opEdit, rec: types.Bookmark{ID: id, Title: title, URL: url}}
	if i := s.indexOf(id); i >= 0 {
		s.cache[i].Title = title
		s.cache[i].URL = url
	}
	s.mu.Unlock()

	s.succeed("Bookmark updated")
	s.emit()
	return nil
}

// Delete removes a bookmark
func (s *BookmarkService) Delete(ctx context.Context, id string) error {
	s.inflight.Add(1)
	err := s.client.Delete(ctx, id)
	s.inflight.Add(-1)
	if err != nil {
		return s.fail(&BookmarkError{Op: "Delete", ID: id, Message: "failed to delete bookmark", Err: err})
	}

	s.mu.Lock()
	s.seq++
	s.marks[id] = mark{seq: s.seq, op: opDelete}
	s.removeLocked(id)
	delete(s.selected, id)
	s.mu.Unlock()

	s.succeed("Bookmark deleted")
	s.emit()
	return nil
}

// BulkDelete removes every selected bookmark in a single remote request.
// It is a no-op when nothing is selected.
func (s *BookmarkService) BulkDelete(ctx context.Context) error {
	ids := s.Selected()
	if len(ids) == 0 {
		return nil
	}

	s.inflight.Add(1)
	err := s.client.DeleteMany(ctx, ids)
	s.inflight.Add(-1)
	if err != nil {
		return s.fail(&BookmarkError{Op: "BulkDelete", Message: "failed to delete selected bookmarks", Err: err})
	}

	s.mu.Lock()
	s.seq++
	for _, id := range ids {
		s.marks[id] = mark{seq: s.seq, op: opDelete}
		s.removeLocked(id)
	}
	s.selected = make(map[string]bool)
	s.mu.Unlock()

	s.succeed("Selected bookmarks deleted")
	s.emit()
	return nil
}

// Must be called with s.mu held
func (s *BookmarkService) removeLocked(id string) {
	if i := s.indexOf(id); i >= 0 {
		s.cache = append(s.cache[:i:i], s.cache[i+1:]...)
	}
}

// Must be called with s.mu held
func (s *BookmarkService) indexOf(id string) int {
	for i := range s.cache {
		if s.cache[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *BookmarkService) hasURL(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.cache {
		if strings.TrimSpace(b.URL) == url {
			return true
		}
	}
	return false
}

// Bookmarks returns a copy of the local collection in remote order
func (s *BookmarkService) Bookmarks() []types.Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Bookmark(nil), s.cache...)
}

// Len returns the number of cached bookmarks
func (s *BookmarkService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// View returns the derived view for the current preferences
func (s *BookmarkService) View() []types.Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ComputeView(s.cache, s.prefs)
}

// Preferences returns the current view preferences
func (s *BookmarkService) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Busy reports whether a remote operation is in flight
func (s *BookmarkService) Busy() bool {
	return s.inflight.Load() > 0
}

func (s *BookmarkService) SetSearch(query string) {
	s.mu.Lock()
	s.prefs.Search = query
	s.mu.Unlock()
	s.emit()
}

func (s *BookmarkService) SetSort(key SortKey) error {
	key, err := ParseSortKey(string(key))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.prefs.Sort = key
	s.mu.Unlock()
	s.emit()
	return nil
}

func (s *BookmarkService) SetViewMode(mode ViewMode) error {
	mode, err := ParseViewMode(string(mode))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.prefs.Mode = mode
	s.mu.Unlock()
	s.emit()
	return nil
}

// ToggleTheme switches between light and dark and returns the new theme
func (s *BookmarkService) ToggleTheme() Theme {
	s.mu.Lock()
	if s.prefs.Theme == ThemeDark {
		s.prefs.Theme = ThemeLight
	} else {
		s.prefs.Theme = ThemeDark
	}
	theme := s.prefs.Theme
	s.mu.Unlock()
	s.emit()
	return theme
}

// ToggleSelection adds id to the selection, or removes it if already selected.
// Unknown ids are ignored.
func (s *BookmarkService) ToggleSelection(id string) {
	s.mu.Lock()
	if s.selected[id] {
		delete(s.selected, id)
	} else if s.indexOf(id) >= 0 {
		s.selected[id] = true
	}
	s.mu.Unlock()
	s.emit()
}

// SelectAll selects every bookmark in the current derived view
func (s *BookmarkService) SelectAll() {
	s.mu.Lock()
	for _, b := range ComputeView(s.cache, s.prefs) {
		s.selected[b.ID] = true
	}
	s.mu.Unlock()
	s.emit()
}

func (s *BookmarkService) ClearSelection() {
	s.mu.Lock()
	s.selected = make(map[string]bool)
	s.mu.Unlock()
	s.emit()
}

func (s *BookmarkService) IsSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected[id]
}

// Selected returns the selected ids in sorted order
func (s *BookmarkService) Selected() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Export writes the full local collection as a single document
func (s *BookmarkService) Export(w io.Writer, format export.Format) error {
	if err := export.Write(w, format, s.Bookmarks()); err != nil {
		return s.fail(&BookmarkError{Op: "Export", Message: "failed to export bookmarks", Err: err})
	}
	return nil
}

// SignOut ends the session. The service should be stopped first.
func (s *BookmarkService) SignOut(ctx context.Context) error {
	if err := s.client.SignOut(ctx); err != nil {
		return s.fail(&BookmarkError{Op: "SignOut", Message: "failed to sign out", Err: err})
	}
	return nil
}

func (s *BookmarkService) emit() {
	s.handlersMu.RLock()
	handlers := s.handlers // Copy to avoid holding lock during callbacks
	s.handlersMu.RUnlock()

	if len(handlers) == 0 {
		return
	}
	view := s.View()
	for _, handler := range handlers {
		handler.HandleViewChange(view)
	}
}

// fail reports err as an error notice and returns it
func (s *BookmarkService) fail(err error) error {
	s.logger.Printf("%v", err)

	message := err.Error()
	var verr *ValidationError
	if errors.As(err, &verr) {
		message = capitalize(verr.Err.Error())
	}
	var berr *BookmarkError
	if errors.As(err, &berr) {
		message = capitalize(berr.Message)
	}

	s.notifier.Notify(types.Notice{Message: message, Kind: types.NoticeError, At: s.now()})
	return err
}

func (s *BookmarkService) succeed(message string) {
	s.notifier.Notify(types.Notice{Message: message, Kind: types.NoticeSuccess, At: s.now()})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
