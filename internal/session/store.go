package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const stateFileName = "session.json"

// User is the identity record returned by the auth endpoints.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// StoredCookie captures the server-issued refresh cookie so token refresh
// survives process restarts.
type StoredCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

type sessionState struct {
	AccessToken string         `json:"access_token"`
	User        *User          `json:"user,omitempty"`
	Cookies     []StoredCookie `json:"cookies,omitempty"`
}

func (s sessionState) authenticated() bool {
	return s.AccessToken != "" && s.User != nil
}

// Store abstracts persistence for session state.
type Store interface {
	Load() (sessionState, error)
	Save(sessionState) error
	Clear() error
}

// FileStore writes session state to a JSON file, serializing concurrent CLI
// invocations through a sibling lock file.
type FileStore struct {
	path string
	lock *flock.Flock
}

// NewFileStore builds a FileStore rooted at stateDir.
func NewFileStore(stateDir string) *FileStore {
	path := filepath.Join(stateDir, stateFileName)
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Load reads session state from disk. A missing file resolves to an empty
// state.
func (s *FileStore) Load() (sessionState, error) {
	if err := s.lock.Lock(); err != nil {
		return sessionState{}, fmt.Errorf("lock session state: %w", err)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sessionState{}, nil
		}
		return sessionState{}, fmt.Errorf("read session state: %w", err)
	}

	var state sessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return sessionState{}, fmt.Errorf("decode session state: %w", err)
	}
	return state, nil
}

// Save persists session state with restricted permissions.
func (s *FileStore) Save(state sessionState) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock session state: %w", err)
	}
	defer s.lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}

// Clear removes the persisted session state.
func (s *FileStore) Clear() error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock session state: %w", err)
	}
	defer s.lock.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session state: %w", err)
	}
	return nil
}
