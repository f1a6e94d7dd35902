package service

import (
	"errors"
	"fmt"
)

var (
	ErrURLRequired   = errors.New("url is required")
	ErrTitleRequired = errors.New("title is required")
	ErrDuplicateURL  = errors.New("a bookmark with this url already exists")
	ErrInvalidSort   = errors.New("unknown sort key")
	ErrInvalidView   = errors.New("unknown view mode")
)

// ValidationError is returned when an intent is rejected before any remote call
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s rejected: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// BookmarkError reports a failed remote operation
type BookmarkError struct {
	Op      string // Operation that failed
	ID      string // Bookmark involved (if applicable)
	Message string // Error message
	Err     error  // Underlying error
}

func (e *BookmarkError) Error() string {
	msg := fmt.Sprintf("%s failed: %s", e.Op, e.Message)
	if e.ID != "" {
		msg = fmt.Sprintf("%s failed for bookmark %s: %s", e.Op, e.ID, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BookmarkError) Unwrap() error {
	return e.Err
}
