package service

import (
	"bookmark-manager/pkg/types"
	"sync"
	"time"
)

// DefaultNoticeTTL is how long a notice stays visible
const DefaultNoticeTTL = 3 * time.Second

// Notifier receives the transient notices produced by intents
type Notifier interface {
	Notify(notice types.Notice)
}

// Toaster keeps the single most recent notice and dismisses it after a fixed interval
type Toaster struct {
	ttl      time.Duration
	onChange func(notice *types.Notice)

	mu      sync.Mutex
	current *types.Notice
	timer   *time.Timer
}

// NewToaster creates a Toaster. onChange, if non-nil, is called with the new
// notice when one is shown and with nil when it is dismissed. Calls are made
// in order under the Toaster's lock, so onChange must not call back into it.
func NewToaster(ttl time.Duration, onChange func(notice *types.Notice)) *Toaster {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	return &Toaster{ttl: ttl, onChange: onChange}
}

// Notify implements Notifier. A new notice replaces the visible one.
func (t *Toaster) Notify(notice types.Notice) {
	t.mu.Lock()
	shown := notice
	t.current = &shown
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.ttl, func() { t.dismiss(&shown) })

	if t.onChange != nil {
		t.onChange(&shown)
	}
	t.mu.Unlock()
}

func (t *Toaster) dismiss(notice *types.Notice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != notice {
		// replaced in the meantime
		return
	}
	t.current = nil

	if t.onChange != nil {
		t.onChange(nil)
	}
}

// Current returns the visible notice, if any
func (t *Toaster) Current() (types.Notice, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return types.Notice{}, false
	}
	return *t.current, true
}

type discardNotifier struct{}

func (discardNotifier) Notify(types.Notice) {}
