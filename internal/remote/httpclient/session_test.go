package httpclient

import (
	"bookmark-manager/pkg/types"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	s, err := LoadSession(path)
	require.NoError(t, err)
	assert.Empty(t, s.Token)

	saved := Session{Token: "tok", User: types.User{ID: "u1", Email: "a@example.com"}}
	require.NoError(t, SaveSession(path, saved))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)

	require.NoError(t, SaveSession(path, Session{}))
	assert.NoFileExists(t, path)
}
