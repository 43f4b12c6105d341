package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/spf13/afero"
)

// ExpirationStore persists the mapping from item key to its current trailer
// record in a JSON file. All methods are safe for concurrent use; per-key
// write ownership during resolution is the refresher's job, not the store's.
type ExpirationStore struct {
	fs       afero.Fs
	filepath string

	mu      sync.RWMutex
	records map[string]models.TrailerRecord
}

// NewExpirationStore loads the store from path, creating an empty one when
// the file does not exist yet. An unparseable file is a fatal state error.
func NewExpirationStore(fs afero.Fs, path string) (*ExpirationStore, error) {
	store := &ExpirationStore{
		fs:       fs,
		filepath: path,
		records:  make(map[string]models.TrailerRecord),
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &store.records); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", path, models.ErrCorruptState, err)
		}
	}

	return store, nil
}

// Get retrieves the record for key
func (s *ExpirationStore) Get(key string) (models.TrailerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key]
	return record, ok
}

// Put replaces the record for record.Key and persists the store.
// Records whose expiry precedes their resolution time are rejected.
func (s *ExpirationStore) Put(record models.TrailerRecord) error {
	if record.Key == "" {
		return fmt.Errorf("record has no key")
	}
	if record.ExpiresAt != nil && record.ExpiresAt.Before(record.ResolvedAt) {
		return fmt.Errorf("record for %s expires before it was resolved", record.Key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.Key] = record
	return saveJSON(s.fs, s.filepath, s.records)
}

// Delete removes the record for key, if any, and persists the store
func (s *ExpirationStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; !ok {
		return nil
	}

	delete(s.records, key)
	return saveJSON(s.fs, s.filepath, s.records)
}

// All returns a copy of every record, keyed by item key
func (s *ExpirationStore) All() map[string]models.TrailerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make(map[string]models.TrailerRecord, len(s.records))
	for key, record := range s.records {
		records[key] = record
	}
	return records
}

// Len returns the number of stored records
func (s *ExpirationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}
