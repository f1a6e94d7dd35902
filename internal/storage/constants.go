package storage

import "errors"

const (
	// Field limits
	MaxTitleLength = 512
	MaxURLLength   = 4096

	// Upper bound on ids accepted by a single DeleteMany call
	MaxBatchDelete = 500
)

// Storage errors
var (
	ErrNotFound      = errors.New("bookmark not found")
	ErrInvalidInput  = errors.New("invalid bookmark input")
	ErrBatchTooLarge = errors.New("too many ids in batch")
)
