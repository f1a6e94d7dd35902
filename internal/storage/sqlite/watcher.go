package sqlite

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long the watcher waits after the first write of a
// burst before reporting it
const DefaultSettle = 50 * time.Millisecond

// WatcherConfig holds configuration for a Watcher
type WatcherConfig struct {
	// Settle groups the writes of one commit into a single report
	Settle time.Duration

	// OnChange is called from the watcher goroutine once per burst of writes
	OnChange func()

	Logger *log.Logger
}

// Watcher reports writes to a database's files, including those made by
// other processes sharing the file. Rows changed elsewhere never reach this
// process's change handlers, so the watcher is how it learns about them.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	files    map[string]bool
	settle   time.Duration
	onChange func()
	logger   *log.Logger

	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a Watcher for the database at dbPath.
// It must be started with Start before it reports anything.
func NewWatcher(dbPath string, config WatcherConfig) (*Watcher, error) {
	if config.OnChange == nil {
		return nil, fmt.Errorf("watcher needs an OnChange callback")
	}
	if config.Settle <= 0 {
		config.Settle = DefaultSettle
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[sqlite] ", log.LstdFlags)
	}

	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// The WAL holds commits until a checkpoint copies them into the main
	// file; the rollback journal is used when WAL is unavailable
	base := filepath.Base(absPath)
	return &Watcher{
		watcher: watcher,
		dir:     filepath.Dir(absPath),
		files: map[string]bool{
			base:              true,
			base + "-wal":     true,
			base + "-journal": true,
		},
		settle:   config.Settle,
		onChange: config.OnChange,
		logger:   config.Logger,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. The directory is watched rather than the files so
// that journals created after Start are seen.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch database directory %s: %w", w.dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	return nil
}

// Stop stops watching and blocks until the event loop has exited
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	// Closing the underlying watcher unblocks the event loop
	err := w.watcher.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Close implements io.Closer
func (w *Watcher) Close() error {
	return w.Stop()
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	// pending is armed by the first write of a burst and fires once
	var pending <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if pending == nil {
				pending = time.After(w.settle)
			}

		case <-pending:
			pending = nil
			w.onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Database watcher error: %v", err)
		}
	}
}

// relevant reports whether event is a write to one of the database's files.
// Chmod and the shared-memory index change without any commit.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !w.files[filepath.Base(event.Name)] {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
