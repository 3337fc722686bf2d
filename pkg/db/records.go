package db

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Storage backends
const (
	BackendPebble  = "pebble"
	BackendLevelDB = "leveldb"
)

var recordPrefix = []byte("blk/")

// ErrCorruptRecord is returned for a stored value that does not decode
var ErrCorruptRecord = errors.New("corrupt block record")

// BlockRecord is what the collector extracts from one block: the miner
// identity and its primary reward in shannons
type BlockRecord struct {
	Identity []byte
	Reward   uint64
}

// Encode serialises the record as the big endian reward followed by the identity
func (r BlockRecord) Encode() []byte {
	out := make([]byte, 8, 8+len(r.Identity))
	binary.BigEndian.PutUint64(out, r.Reward)
	return append(out, r.Identity...)
}

// DecodeBlockRecord is the inverse of Encode
func DecodeBlockRecord(b []byte) (BlockRecord, error) {
	if len(b) < 8 {
		return BlockRecord{}, fmt.Errorf("%w: %d bytes", ErrCorruptRecord, len(b))
	}
	return BlockRecord{
		Reward:   binary.BigEndian.Uint64(b[:8]),
		Identity: slices.Clone(b[8:]),
	}, nil
}

// RecordStore caches block records by height
type RecordStore interface {
	GetRecord(height uint64) (BlockRecord, bool, error)
	PutRecord(height uint64, rec BlockRecord) error
	RecordCount() (int, error)
	ForEachRecord(fn func(height uint64, rec BlockRecord) error) error
	Close() error
}

var (
	_ RecordStore = (*DB)(nil)
	_ RecordStore = (*LevelDB)(nil)
)

// OpenRecordStore opens a record store with the named backend
func OpenRecordStore(backend, path string) (RecordStore, error) {
	var (
		store RecordStore
		err   error
	)
	switch backend {
	case BackendPebble, "":
		store, err = Open(path, nil)
	case BackendLevelDB:
		store, err = OpenLevelDB(path)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// recordKey is the prefix followed by the big endian height, so keys sort by height
func recordKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64(slices.Clone(recordPrefix), height)
}

func heightOf(key []byte) (uint64, bool) {
	rest, ok := bytes.CutPrefix(key, recordPrefix)
	if !ok || len(rest) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(rest), true
}

// prefixEnd is the smallest key above every key starting with prefix, nil
// when there is none
func prefixEnd(prefix []byte) []byte {
	end := slices.Clone(prefix)
	for len(end) > 0 {
		last := len(end) - 1
		if end[last] < 0xff {
			end[last]++
			return end
		}
		end = end[:last]
	}
	return nil
}

func visitRecord(key, value []byte, fn func(height uint64, rec BlockRecord) error) error {
	height, ok := heightOf(key)
	if !ok {
		return fmt.Errorf("%w: key %x", ErrCorruptRecord, key)
	}
	rec, err := DecodeBlockRecord(value)
	if err != nil {
		return fmt.Errorf("record %d: %w", height, err)
	}
	return fn(height, rec)
}

func countRecords(store RecordStore) (int, error) {
	count := 0
	err := store.ForEachRecord(func(uint64, BlockRecord) error {
		count++
		return nil
	})
	return count, err
}

// LevelDB is a record store on goleveldb
type LevelDB struct {
	db   *leveldb.DB
	path string
}

// OpenLevelDB opens or creates a leveldb database
func OpenLevelDB(path string) (*LevelDB, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return &LevelDB{db: ldb, path: path}, nil
}

// Path returns the database path
func (l *LevelDB) Path() string {
	return l.path
}

// GetRecord returns the record fetched for a block height
func (l *LevelDB) GetRecord(height uint64) (BlockRecord, bool, error) {
	value, err := l.db.Get(recordKey(height), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return BlockRecord{}, false, nil
	}
	if err != nil {
		return BlockRecord{}, false, fmt.Errorf("failed to read record %d: %w", height, err)
	}
	rec, err := DecodeBlockRecord(value)
	if err != nil {
		return BlockRecord{}, false, fmt.Errorf("record %d: %w", height, err)
	}
	return rec, true, nil
}

// PutRecord stores the record of a block height
func (l *LevelDB) PutRecord(height uint64, rec BlockRecord) error {
	if err := l.db.Put(recordKey(height), rec.Encode(), nil); err != nil {
		return fmt.Errorf("failed to write record %d: %w", height, err)
	}
	return nil
}

// RecordCount returns the number of stored records
func (l *LevelDB) RecordCount() (int, error) {
	return countRecords(l)
}

// ForEachRecord calls fn for every stored record in height order
func (l *LevelDB) ForEachRecord(fn func(height uint64, rec BlockRecord) error) error {
	iter := l.db.NewIterator(util.BytesPrefix(recordPrefix), nil)
	defer iter.Release()

	for iter.Next() {
		if err := visitRecord(iter.Key(), iter.Value(), fn); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Close closes the database
func (l *LevelDB) Close() error {
	return l.db.Close()
}
