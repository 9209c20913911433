// Package session provides the per-client identity used to attribute claims
// and completions in the audit trail. It is a provenance label, not a
// credential.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// New returns a fresh random session id.
func New() string {
	return uuid.NewString()
}

// Valid reports whether id can be embedded in an audit tag.
func Valid(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	return !strings.ContainsAny(id, ":[]\n\r\t ")
}

// LoadOrCreate returns the session id persisted at path, creating and saving
// a new one on first use. The same file yields the same id across restarts.
func LoadOrCreate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if Valid(id) {
			return id, nil
		}
		return "", fmt.Errorf("session file %s holds an invalid id", path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("reading session file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating session directory: %w", err)
	}
	id := New()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("writing session file: %w", err)
	}
	return id, nil
}

// DefaultPath is where agents keep their session id when no path is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "oddaja", "session")
}
