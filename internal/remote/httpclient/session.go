package httpclient

import (
	"bookmark-manager/pkg/types"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Session is the signed-in state the CLI keeps between invocations
type Session struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// LoadSession reads a saved session; a missing file yields an empty session
func LoadSession(path string) (Session, error) {
	var s Session
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read session: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse session: %w", err)
	}
	return s, nil
}

// SaveSession writes the session with owner-only permissions. An empty
// token removes the file.
func SaveSession(path string, s Session) error {
	if s.Token == "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove session: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
