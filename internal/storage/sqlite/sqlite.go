package sqlite

import (
	"bookmark-manager/internal/storage"
	"bookmark-manager/pkg/types"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type SQLiteStorage struct {
	db *gorm.DB

	handlers []storage.ChangeHandler
	mu       sync.RWMutex

	now func() time.Time
}

// New creates a new SQLite storage instance
func New(config storage.Config) (*SQLiteStorage, error) {
	if dir := filepath.Dir(config.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(config.DBPath+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers anyway; a single connection avoids SQLITE_BUSY
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// Auto-migrate the schema
	if err := db.AutoMigrate(&storage.BookmarkModel{}, &storage.UserModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &SQLiteStorage{
		db:  db,
		now: time.Now,
	}, nil
}

// RegisterHandler adds a handler notified after every committed change
func (s *SQLiteStorage) RegisterHandler(handler storage.ChangeHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

func (s *SQLiteStorage) notify(kind types.ChangeKind, records ...types.Bookmark) {
	s.mu.RLock()
	handlers := s.handlers
	s.mu.RUnlock()

	at := s.now().UTC()
	for _, record := range records {
		event := types.ChangeEvent{Kind: kind, Record: record, At: at}
		for _, handler := range handlers {
			handler.HandleChange(event)
		}
	}
}

// Close releases the database connection
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func validate(title, url string) error {
	title = strings.TrimSpace(title)
	url = strings.TrimSpace(url)
	switch {
	case title == "":
		return fmt.Errorf("%w: title is required", storage.ErrInvalidInput)
	case url == "":
		return fmt.Errorf("%w: url is required", storage.ErrInvalidInput)
	case len(title) > storage.MaxTitleLength:
		return fmt.Errorf("%w: title exceeds %d bytes", storage.ErrInvalidInput, storage.MaxTitleLength)
	case len(url) > storage.MaxURLLength:
		return fmt.Errorf("%w: url exceeds %d bytes", storage.ErrInvalidInput, storage.MaxURLLength)
	}
	return nil
}

// List implements storage.Storage interface
func (s *SQLiteStorage) List(ctx context.Context, ownerID string, filter storage.ListFilter) ([]types.Bookmark, error) {
	query := s.db.WithContext(ctx).
		Model(&storage.BookmarkModel{}).
		Where("owner_id = ?", ownerID).
		// rowid breaks ties between rows created within the same clock tick
		Order("created_at DESC").
		Order("rowid DESC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var models []storage.BookmarkModel
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}

	bookmarks := make([]types.Bookmark, len(models))
	for i := range models {
		bookmarks[i] = models[i].ToBookmark()
	}
	return bookmarks, nil
}

// Insert implements storage.Storage interface
func (s *SQLiteStorage) Insert(ctx context.Context, ownerID, title, url string) (*types.Bookmark, error) {
	if err := validate(title, url); err != nil {
		return nil, err
	}

	model := &storage.BookmarkModel{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		URL:       strings.TrimSpace(url),
		OwnerID:   ownerID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, fmt.Errorf("failed to create bookmark: %w", err)
	}

	bookmark := model.ToBookmark()
	s.notify(types.ChangeInsert, bookmark)
	return &bookmark, nil
}

// Get implements storage.Storage interface
func (s *SQLiteStorage) Get(ctx context.Context, ownerID, id string) (*types.Bookmark, error) {
	var model storage.BookmarkModel
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmark: %w", err)
	}

	bookmark := model.ToBookmark()
	return &bookmark, nil
}

// Update implements storage.Storage interface
func (s *SQLiteStorage) Update(ctx context.Context, ownerID, id, title, url string) (*types.Bookmark, error) {
	if err := validate(title, url); err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).
		Model(&storage.BookmarkModel{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(map[string]interface{}{
			"title": strings.TrimSpace(title),
			"url":   strings.TrimSpace(url),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update bookmark: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, storage.ErrNotFound
	}

	bookmark, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	s.notify(types.ChangeUpdate, *bookmark)
	return bookmark, nil
}

// Delete implements storage.Storage interface
func (s *SQLiteStorage) Delete(ctx context.Context, ownerID, id string) (*types.Bookmark, error) {
	var model storage.BookmarkModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&model).Error; err != nil {
			return err
		}
		return tx.Delete(&model).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete bookmark: %w", err)
	}

	bookmark := model.ToBookmark()
	s.notify(types.ChangeDelete, bookmark)
	return &bookmark, nil
}

// DeleteMany implements storage.Storage interface
func (s *SQLiteStorage) DeleteMany(ctx context.Context, ownerID string, ids []string) ([]types.Bookmark, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > storage.MaxBatchDelete {
		return nil, storage.ErrBatchTooLarge
	}

	var models []storage.BookmarkModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ? AND id IN ?", ownerID, ids).Find(&models).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.Where("owner_id = ? AND id IN ?", ownerID, ids).Delete(&storage.BookmarkModel{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete bookmarks: %w", err)
	}

	deleted := make([]types.Bookmark, len(models))
	for i := range models {
		deleted[i] = models[i].ToBookmark()
	}
	s.notify(types.ChangeDelete, deleted...)
	return deleted, nil
}

// FindOrCreateUser implements storage.UserStore interface
func (s *SQLiteStorage) FindOrCreateUser(ctx context.Context, email string) (*types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", storage.ErrInvalidInput)
	}

	model := storage.UserModel{ID: uuid.NewString(), Email: email, CreatedAt: s.now().UTC()}
	err := s.db.WithContext(ctx).
		Where(storage.UserModel{Email: email}).
		FirstOrCreate(&model).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find or create user: %w", err)
	}

	user := model.ToUser()
	return &user, nil
}

// GetUser implements storage.UserStore interface
func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*types.User, error) {
	var model storage.UserModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user := model.ToUser()
	return &user, nil
}
