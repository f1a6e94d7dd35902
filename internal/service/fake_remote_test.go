package service

import (
	"bookmark-manager/internal/remote"
	"bookmark-manager/pkg/types"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var errRemote = errors.New("remote rejected request")

// fakeRemote is an in-memory remote.Client with call counters, injectable
// failures and a gate to hold queries in flight.
type fakeRemote struct {
	mu      sync.Mutex
	rows    map[string]types.Bookmark
	nextID  int
	clock   time.Time
	user    *types.User
	subs    []*fakeSub
	calls   map[string]int
	failOps map[string]bool

	// queryGate, when set, blocks Query after it has taken its snapshot
	queryGate chan struct{}
	// querySnap is signalled once a gated Query has taken its snapshot
	querySnap chan struct{}
}

type fakeSub struct {
	mu     sync.Mutex
	events chan types.ChangeEvent
	closed bool
}

func (s *fakeSub) Events() <-chan types.ChangeEvent { return s.events }

func (s *fakeSub) send(event types.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.events <- event
	}
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

func newFakeRemote(user types.User) *fakeRemote {
	return &fakeRemote{
		rows:    make(map[string]types.Bookmark),
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		user:    &user,
		calls:   make(map[string]int),
		failOps: make(map[string]bool),
	}
}

func (f *fakeRemote) record(op string) error {
	f.calls[op]++
	if f.failOps[op] {
		return errRemote
	}
	return nil
}

func (f *fakeRemote) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) fail(op string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOps[op] = fail
}

// seed inserts a row directly, as another session would
func (f *fakeRemote) seed(title, url string) types.Bookmark {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(title, url, f.user.ID)
}

func (f *fakeRemote) insertLocked(title, url, owner string) types.Bookmark {
	f.nextID++
	f.clock = f.clock.Add(time.Minute)
	b := types.Bookmark{
		ID:        fmt.Sprintf("bm-%d", f.nextID),
		Title:     title,
		URL:       url,
		OwnerID:   owner,
		CreatedAt: f.clock,
	}
	f.rows[b.ID] = b
	return b
}

// push delivers an event to every open subscription
func (f *fakeRemote) push(event types.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		s.send(event)
	}
}

func (f *fakeRemote) Query(ctx context.Context, owner string) ([]types.Bookmark, error) {
	f.mu.Lock()
	if err := f.record("query"); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	out := make([]types.Bookmark, 0, len(f.rows))
	for _, b := range f.rows {
		if b.OwnerID == owner {
			out = append(out, b)
		}
	}
	gate, snap := f.queryGate, f.querySnap
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if gate != nil {
		if snap != nil {
			snap <- struct{}{}
		}
		<-gate
	}
	return out, nil
}

func (f *fakeRemote) Insert(ctx context.Context, title, url, owner string) (*types.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("insert"); err != nil {
		return nil, err
	}
	b := f.insertLocked(title, url, owner)
	return &b, nil
}

func (f *fakeRemote) Update(ctx context.Context, id, title, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update"); err != nil {
		return err
	}
	b, ok := f.rows[id]
	if !ok {
		return remote.ErrNotFound
	}
	b.Title, b.URL = title, url
	f.rows[id] = b
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete"); err != nil {
		return err
	}
	if _, ok := f.rows[id]; !ok {
		return remote.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeRemote) DeleteMany(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete_many"); err != nil {
		return err
	}
	for _, id := range ids {
		delete(f.rows, id)
	}
	return nil
}

func (f *fakeRemote) Subscribe(ctx context.Context, owner string) (remote.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("subscribe"); err != nil {
		return nil, err
	}
	sub := &fakeSub{events: make(chan types.ChangeEvent, 16)}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeRemote) CurrentUser(ctx context.Context) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return nil, nil
	}
	u := *f.user
	return &u, nil
}

func (f *fakeRemote) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = nil
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []types.Notice
}

func (n *recordingNotifier) Notify(notice types.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) count(kind types.NoticeKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, notice := range n.notices {
		if notice.Kind == kind {
			c++
		}
	}
	return c
}

type staticTitles struct {
	title string
	err   error
	calls int
}

func (s *staticTitles) Title(ctx context.Context, url string) (string, error) {
	s.calls++
	return s.title, s.err
}
