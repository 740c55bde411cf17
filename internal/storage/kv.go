package storage

import (
	"bytes"
	"context"
	"errors"
)

// Common errors returned by every backend.
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("store closed")
	ErrConflict    = errors.New("transaction conflict")
)

// Reader is a consistent read view of a store.
type Reader interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	// The returned slice must not be modified.
	Get(key []byte) ([]byte, error)

	// Scan visits keys carrying prefix in ascending order, starting at the
	// first key >= start (a nil start means the beginning of the prefix).
	// fn returns false to stop. Slices passed to fn are only valid during
	// the call.
	Scan(prefix, start []byte, fn func(key, value []byte) bool) error
}

// Tx is a read-write transaction. Reads observe the transaction's own
// writes.
type Tx interface {
	Reader

	// Set allocates or replaces the record under key.
	Set(key, value []byte) error

	// Delete frees the record under key. Deleting a missing key is not an error.
	Delete(key []byte) error
}

// Store is the transactional allocator the engine persists through.
//
// Every mutation runs inside Update: the transaction commits when fn
// returns nil and rolls back when fn returns an error or panics. A crash
// leaves either the state before or after a transaction, never a mix.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(r Reader) error) error
	Close() error
}

// Statser is implemented by stores that can report their size.
type Statser interface {
	Stats(ctx context.Context) (*KVStats, error)
}

// KVStats contains storage engine statistics.
type KVStats struct {
	// Backend names the implementation ("memory", "file", "badger").
	Backend string `json:"backend"`

	// TotalKeys is the approximate number of keys.
	TotalKeys uint64 `json:"total_keys"`

	// TotalSize is the total data size in bytes.
	TotalSize uint64 `json:"total_size"`

	// LSMSize is the LSM tree size (badger only).
	LSMSize uint64 `json:"lsm_size,omitempty"`

	// ValueLogSize is the value log size (badger only).
	ValueLogSize uint64 `json:"value_log_size,omitempty"`

	// WALOffset is the last durable WAL offset (file backend only).
	WALOffset uint64 `json:"wal_offset,omitempty"`

	// LastGCTime is the last GC or checkpoint timestamp (Unix milliseconds).
	LastGCTime int64 `json:"last_gc_time,omitempty"`
}

// PrefixEnd returns the smallest key greater than every key carrying prefix,
// or nil when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// scanStart returns the first key a prefix scan should visit.
func scanStart(prefix, start []byte) []byte {
	if bytes.Compare(start, prefix) > 0 {
		return start
	}
	return prefix
}

// First returns the first key/value carrying prefix at or after start.
func First(r Reader, prefix, start []byte) (key, value []byte, err error) {
	err = r.Scan(prefix, start, func(k, v []byte) bool {
		key = bytes.Clone(k)
		value = bytes.Clone(v)
		return false
	})
	if err == nil && key == nil {
		err = ErrKeyNotFound
	}
	return key, value, err
}

// DeletePrefix removes every key carrying prefix and returns the count.
func DeletePrefix(tx Tx, prefix []byte) (int, error) {
	var keys [][]byte
	if err := tx.Scan(prefix, nil, func(k, _ []byte) bool {
		keys = append(keys, bytes.Clone(k))
		return true
	}); err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := tx.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}
