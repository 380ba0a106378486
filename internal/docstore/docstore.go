// Package docstore implements the synchronous document store: the
// full username -> User mapping serialized as one JSON document in a
// single file, plus the durable session pointer.
//
// Every Save rewrites the whole file, O(total data size). There is no
// cross-process locking: if two processes write concurrently the last
// writer wins with a full overwrite. In-process access is serialized
// by a read-write mutex.
package docstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ermchat/ermchat/internal/models"
)

const usersFileName = "users.json"

// Store holds the user mapping with full in-memory caching.
type Store struct {
	path string

	mu    sync.RWMutex
	users map[string]*models.User
}

// Open creates the data directory if needed and loads the mapping.
//
// A file that exists but fails to parse is treated as an empty
// mapping: the corruption is logged and the next Save overwrites it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	s := &Store{path: filepath.Join(dir, usersFileName)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.users = map[string]*models.User{}
			return nil
		}
		return fmt.Errorf("failed to read document store %s: %w", s.path, err)
	}

	var users map[string]*models.User
	if err := json.Unmarshal(data, &users); err != nil {
		// Corrupt store degrades to an empty mapping. The next Save
		// overwrites the damaged file.
		slog.Warn("Document store is corrupt, starting empty", "path", s.path, "err", err)
		s.users = map[string]*models.User{}
		return nil
	}
	if users == nil {
		users = map[string]*models.User{}
	}
	s.users = users
	return nil
}

// Reload re-reads the mapping from disk, discarding the in-memory
// cache. Used when another process rewrote the file.
func (s *Store) Reload() error {
	return s.load()
}

// Load returns a deep copy of the full mapping.
func (s *Store) Load() map[string]*models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make(map[string]*models.User, len(s.users))
	for name, u := range s.users {
		users[name] = u.Clone()
	}
	return users
}

// Get returns a deep copy of one user, or nil if absent.
func (s *Store) Get(username string) *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u := s.users[username]
	if u == nil {
		return nil
	}
	return u.Clone()
}

// Len returns the number of user records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Save replaces the full mapping and rewrites the file.
//
// The write goes through a temp file and rename so a crash mid-write
// never leaves a half-serialized store behind.
func (s *Store) Save(users map[string]*models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]*models.User, len(users))
	for name, u := range users {
		copied[name] = u.Clone()
	}

	if err := s.write(copied); err != nil {
		return err
	}
	s.users = copied
	return nil
}

// Mutate applies fn to the full mapping under the write lock, then
// rewrites the file. This is the read-modify-write sequence every
// domain mutation goes through; holding the lock for its whole span
// makes back-to-back mutations safe within this process.
func (s *Store) Mutate(fn func(users map[string]*models.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.users); err != nil {
		return err
	}
	return s.write(s.users)
}

func (s *Store) write(users map[string]*models.User) error {
	data, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("failed to marshal document store: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(s.path), ".users-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write document store: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename document store into place: %w", err)
	}
	return nil
}
