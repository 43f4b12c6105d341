package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/spf13/afero"
)

// IgnoreStore persists the set of item keys known to have no trailer, with
// the context of that decision, in a JSON file. Entries never expire on
// their own; removal is an explicit operation.
type IgnoreStore struct {
	fs       afero.Fs
	filepath string

	mu      sync.RWMutex
	entries map[string]models.IgnoreEntry
}

// NewIgnoreStore loads the store from path, creating an empty one when the
// file does not exist yet. An unparseable file is a fatal state error.
func NewIgnoreStore(fs afero.Fs, path string) (*IgnoreStore, error) {
	store := &IgnoreStore{
		fs:       fs,
		filepath: path,
		entries:  make(map[string]models.IgnoreEntry),
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &store.entries); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", path, models.ErrCorruptState, err)
		}
	}

	return store, nil
}

// Contains reports whether key is ignored
func (s *IgnoreStore) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[key]
	return ok
}

// Get retrieves the ignore entry for key
func (s *IgnoreStore) Get(key string) (models.IgnoreEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry, ok
}

// Add records entry.Key as having no trailer and persists the store
func (s *IgnoreStore) Add(entry models.IgnoreEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("ignore entry has no key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Key] = entry
	return saveJSON(s.fs, s.filepath, s.entries)
}

// Remove deletes the entry for key, if any, and persists the store
func (s *IgnoreStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return nil
	}

	delete(s.entries, key)
	return saveJSON(s.fs, s.filepath, s.entries)
}

// All returns a copy of every ignore entry, keyed by item key
func (s *IgnoreStore) All() map[string]models.IgnoreEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make(map[string]models.IgnoreEntry, len(s.entries))
	for key, entry := range s.entries {
		entries[key] = entry
	}
	return entries
}

// Len returns the number of ignored keys
func (s *IgnoreStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}
