package models

import (
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store holding the library index: one row per
// known item, mirroring the outcome of its last refresh pass. The index is
// derived data; deleting the file is always safe.
type Database struct {
	store *bolthold.Store
}

// NewDatabase opens (or creates) the index database
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// SaveItem inserts or replaces the index row for item.Key
func (db *Database) SaveItem(item *MediaItem) error {
	item.LastPass = time.Now()
	return db.store.Upsert(item.Key, item)
}

// GetItem retrieves one indexed item by key
func (db *Database) GetItem(key string) (*MediaItem, error) {
	var item MediaItem
	if err := db.store.Get(key, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetAllItems retrieves every indexed item
func (db *Database) GetAllItems() ([]*MediaItem, error) {
	var items []*MediaItem
	err := db.store.Find(&items, nil)
	return items, err
}

// GetItemsByState retrieves items whose last pass ended in the given state
func (db *Database) GetItemsByState(state ItemState) ([]*MediaItem, error) {
	var items []*MediaItem
	err := db.store.Find(&items, bolthold.Where("State").Eq(state))
	return items, err
}

// DeleteItem removes an item from the index
func (db *Database) DeleteItem(key string) error {
	return db.store.Delete(key, &MediaItem{})
}
