package storage

import (
	"bookmark-manager/pkg/types"
	"time"
)

type BookmarkModel struct {
	ID        string    `gorm:"primaryKey;type:text"`
	Title     string    `gorm:"type:text;not null"`
	URL       string    `gorm:"type:text;not null"`
	OwnerID   string    `gorm:"type:text;not null;index"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (BookmarkModel) TableName() string { return "bookmarks" }

type UserModel struct {
	ID        string `gorm:"primaryKey;type:text"`
	Email     string `gorm:"type:text;not null;uniqueIndex"`
	CreatedAt time.Time
}

func (UserModel) TableName() string { return "users" }

func (bm *BookmarkModel) ToBookmark() types.Bookmark {
	return types.Bookmark{
		ID:        bm.ID,
		Title:     bm.Title,
		URL:       bm.URL,
		OwnerID:   bm.OwnerID,
		CreatedAt: bm.CreatedAt,
	}
}

func (um *UserModel) ToUser() types.User {
	return types.User{ID: um.ID, Email: um.Email}
}
