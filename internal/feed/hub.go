// Package feed fans committed bookmark changes out to per-owner subscribers.
package feed

import (
	"bookmark-manager/pkg/types"
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"
)

// ErrHubStopped is returned by Subscribe once the hub's run loop has exited
var ErrHubStopped = errors.New("change feed stopped")

const subscriptionBuffer = 64

// Hub maintains the set of active subscriptions and broadcasts change events to them
type Hub struct {
	subscriptions map[*Subscription]bool
	broadcast     chan types.ChangeEvent
	register      chan *Subscription
	unregister    chan *Subscription
	done          chan struct{}
	mu            sync.RWMutex
	logger        *log.Logger
}

// Subscription receives the change events of a single owner
type Subscription struct {
	hub    *Hub
	owner  string
	events chan types.ChangeEvent
	once   sync.Once
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(os.Stderr, "[feed] ", log.LstdFlags)
	}
	return &Hub{
		subscriptions: make(map[*Subscription]bool),
		broadcast:     make(chan types.ChangeEvent, 256),
		register:      make(chan *Subscription),
		unregister:    make(chan *Subscription),
		done:          make(chan struct{}),
		logger:        logger,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
// Remaining subscriptions have their channels closed on exit.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for sub := range h.subscriptions {
			delete(h.subscriptions, sub)
			close(sub.events)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subscriptions[sub] = true
			count := len(h.subscriptions)
			h.mu.Unlock()
			h.logger.Printf("Subscribed owner %s. Total subscriptions: %d", sub.owner, count)

		case sub := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subscriptions[sub]; ok {
				delete(h.subscriptions, sub)
				close(sub.events)
			}
			count := len(h.subscriptions)
			h.mu.Unlock()
			h.logger.Printf("Unsubscribed owner %s. Total subscriptions: %d", sub.owner, count)

		case event := <-h.broadcast:
			h.mu.RLock()
			for sub := range h.subscriptions {
				// an external change without an owner may concern anyone
				if sub.owner != event.Record.OwnerID && event.Record.OwnerID != "" {
					continue
				}
				select {
				case sub.events <- event:
				default:
					// Buffer full: the queued events already force a refetch
					// that observes this change, so it is safe to drop.
					h.logger.Printf("Dropping %s event for slow subscriber %s", event.Kind, sub.owner)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleChange implements storage.ChangeHandler
func (h *Hub) HandleChange(event types.ChangeEvent) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	}
}

// HandleExternalChange publishes a ChangeExternal event for owner, or for
// every subscriber when owner is empty
func (h *Hub) HandleExternalChange(owner string) {
	h.HandleChange(types.ChangeEvent{
		Kind:   types.ChangeExternal,
		Record: types.Bookmark{OwnerID: owner},
		At:     time.Now().UTC(),
	})
}

// Subscribe registers a subscription for the owner's changes.
// The caller must Close it when done.
func (h *Hub) Subscribe(ctx context.Context, owner string) (*Subscription, error) {
	sub := &Subscription{
		hub:    h,
		owner:  owner,
		events: make(chan types.ChangeEvent, subscriptionBuffer),
	}

	select {
	case h.register <- sub:
		return sub, nil
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Count returns the number of active subscriptions
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// Events returns the channel events are delivered on. It is closed when
// the subscription is closed or the hub stops.
func (s *Subscription) Events() <-chan types.ChangeEvent {
	return s.events
}

// Close releases the subscription; it is safe to call more than once
func (s *Subscription) Close() error {
	s.once.Do(func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
	})
	return nil
}
