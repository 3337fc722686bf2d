// Package db persists fetched block records so an interrupted collection can resume
package db

import (
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
)

// DB wraps a pebble database with common operations
type DB struct {
	*pebble.DB
	path string
}

// Open opens a pebble database at the given path
func Open(path string, opts *pebble.Options) (*DB, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	return &DB{DB: db, path: path}, nil
}

// Path returns the database path
func (db *DB) Path() string {
	return db.path
}

// GetRecord returns the record fetched for a block height
func (db *DB) GetRecord(height uint64) (BlockRecord, bool, error) {
	value, closer, err := db.Get(recordKey(height))
	if errors.Is(err, pebble.ErrNotFound) {
		return BlockRecord{}, false, nil
	}
	if err != nil {
		return BlockRecord{}, false, fmt.Errorf("failed to read record %d: %w", height, err)
	}
	defer closer.Close()

	rec, err := DecodeBlockRecord(value)
	if err != nil {
		return BlockRecord{}, false, fmt.Errorf("record %d: %w", height, err)
	}
	return rec, true, nil
}

// PutRecord stores the record of a block height
func (db *DB) PutRecord(height uint64, rec BlockRecord) error {
	if err := db.Set(recordKey(height), rec.Encode(), pebble.Sync); err != nil {
		return fmt.Errorf("failed to write record %d: %w", height, err)
	}
	return nil
}

// RecordCount returns the number of stored records
func (db *DB) RecordCount() (int, error) {
	return countRecords(db)
}

// ForEachRecord calls fn for every stored record in height order
func (db *DB) ForEachRecord(fn func(height uint64, rec BlockRecord) error) error {
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: recordPrefix,
		UpperBound: prefixEnd(recordPrefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		if err := visitRecord(iter.Key(), iter.Value(), fn); err != nil {
			return err
		}
	}
	return iter.Error()
}
