package export

import (
	"bookmark-manager/pkg/types"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Source provides the collection to mirror
type Source interface {
	Bookmarks() []types.Bookmark
}

// MirrorConfig holds configuration for a Mirror
type MirrorConfig struct {
	// Dir receives the mirrored document; it must exist
	Dir string

	// Interval between scheduled rewrites
	Interval time.Duration

	Format Format
	Logger *log.Logger
}

// Mirror keeps a document copy of a bookmark collection in a directory, such
// as a notes vault. It rewrites the file on a schedule and whenever Trigger
// is called, skipping writes that would not change it.
type Mirror struct {
	source   Source
	dir      string
	format   Format
	interval time.Duration
	logger   *log.Logger

	trigger chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup

	mu   sync.Mutex
	last []byte
}

func NewMirror(source Source, config MirrorConfig) (*Mirror, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("mirror directory is required")
	}

	// Verify the directory exists
	if info, err := os.Stat(config.Dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("mirror directory does not exist: %s", config.Dir)
	}

	if config.Interval <= 0 {
		return nil, fmt.Errorf("mirror interval must be positive, got: %v", config.Interval)
	}
	if config.Format == "" {
		config.Format = FormatMarkdown
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[mirror] ", log.LstdFlags)
	}

	return &Mirror{
		source:   source,
		dir:      config.Dir,
		format:   config.Format,
		interval: config.Interval,
		logger:   config.Logger,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Path is the file the mirror writes
func (m *Mirror) Path() string {
	ext := "json"
	if m.format == FormatMarkdown {
		ext = "md"
	}
	return filepath.Join(m.dir, "Bookmarks."+ext)
}

// Start writes the document once and keeps it current until ctx is done or
// Stop is called
func (m *Mirror) Start(ctx context.Context) error {
	m.logger.Printf("Starting mirror (file: %s)", m.Path())

	// Perform initial write
	if err := m.Sync(); err != nil {
		m.logger.Printf("Initial mirror error: %v", err)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case <-ticker.C:
			case <-m.trigger:
			}
			if err := m.Sync(); err != nil {
				m.logger.Printf("Error during mirror: %v", err)
			}
		}
	}()

	return nil
}

// Stop ends background writes
func (m *Mirror) Stop() {
	select {
	case <-m.done:
		// Already closed
	default:
		close(m.done)
	}
	m.wg.Wait()
}

// Trigger requests a rewrite soon; repeated calls coalesce
func (m *Mirror) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// HandleViewChange lets a Mirror follow an engine's change notifications.
// The whole collection is written regardless of the view it is handed.
func (m *Mirror) HandleViewChange([]types.Bookmark) {
	m.Trigger()
}

// Sync writes the current collection if it differs from the last write
func (m *Mirror) Sync() error {
	var buf bytes.Buffer
	if err := Write(&buf, m.format, m.source.Bookmarks()); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if bytes.Equal(buf.Bytes(), m.last) {
		return nil
	}

	// Write to a temp file and rename so readers never see a partial document
	tmp, err := os.CreateTemp(m.dir, ".bookmarks-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write mirror: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write mirror: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		m.logger.Printf("Failed to set mirror permissions: %v", err)
	}
	if err := os.Rename(tmp.Name(), m.Path()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace mirror: %w", err)
	}

	m.last = buf.Bytes()
	m.logger.Printf("Mirrored %d bytes to %s", buf.Len(), m.Path())
	return nil
}
