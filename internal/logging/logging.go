// Package logging builds the component loggers used across the application.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// File, when set, receives all log output with size-based rotation
	File string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu     sync.RWMutex
	output io.Writer = os.Stderr
)

// Init directs all loggers to the configured destination. The returned closer
// releases the log file, if any.
func Init(config Config) (io.Closer, error) {
	if config.File == "" {
		setOutput(os.Stderr)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(config.File), 0755); err != nil {
		return nil, err
	}
	if config.MaxSizeMB <= 0 {
		config.MaxSizeMB = 10
	}
	if config.MaxBackups <= 0 {
		config.MaxBackups = 3
	}
	if config.MaxAgeDays <= 0 {
		config.MaxAgeDays = 28
	}

	rotator := &lumberjack.Logger{
		Filename:   config.File,
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAgeDays,
	}
	setOutput(rotator)
	return rotator, nil
}

func setOutput(w io.Writer) {
	mu.Lock()
	output = w
	mu.Unlock()
	log.SetOutput(w)
}

// New returns a logger whose lines are prefixed with the component name
func New(component string) *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log.New(output, "["+component+"] ", log.LstdFlags)
}

// Discard returns a logger that drops everything
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
