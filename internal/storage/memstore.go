package storage

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yndnr/vos-go/internal/storage/memory"
	"github.com/yndnr/vos-go/internal/storage/wal"
)

// MemoryStore is a volatile Store over a copy-on-write B-tree.
//
// Readers work on the last published tree without locking. A single
// writer at a time mutates a lazy clone and publishes it on commit, so an
// aborted transaction simply drops its clone.
type MemoryStore struct {
	mu     sync.Mutex
	tree   atomic.Pointer[memory.Tree]
	closed atomic.Bool

	// onCommit runs under mu before the clone is published. An error
	// aborts the transaction.
	onCommit func(ops []wal.Op) error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.tree.Store(memory.New())
	return s
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{tree: s.tree.Load().Clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.ops) == 0 {
		return nil
	}
	if s.onCommit != nil {
		if err := s.onCommit(tx.ops); err != nil {
			return err
		}
	}
	s.tree.Store(tx.tree)
	return nil
}

// View implements Store.
func (s *MemoryStore) View(ctx context.Context, fn func(r Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return fn(memReader{tree: s.tree.Load()})
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

// Stats implements Statser.
func (s *MemoryStore) Stats(ctx context.Context) (*KVStats, error) {
	t := s.tree.Load()
	return &KVStats{
		Backend:   "memory",
		TotalKeys: uint64(t.Len()),
		TotalSize: t.Bytes(),
	}, nil
}

// published returns the current immutable tree.
func (s *MemoryStore) published() *memory.Tree {
	return s.tree.Load()
}

// replace publishes t, discarding the current contents.
func (s *MemoryStore) replace(t *memory.Tree) {
	s.mu.Lock()
	s.tree.Store(t)
	s.mu.Unlock()
}

type memReader struct {
	tree *memory.Tree
}

func (r memReader) Get(key []byte) ([]byte, error) {
	v, ok := r.tree.Get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

func (r memReader) Scan(prefix, start []byte, fn func(key, value []byte) bool) error {
	r.tree.Ascend(prefix, start, fn)
	return nil
}

type memTx struct {
	tree *memory.Tree
	ops  []wal.Op
}

func (tx *memTx) Get(key []byte) ([]byte, error) {
	return memReader{tree: tx.tree}.Get(key)
}

func (tx *memTx) Scan(prefix, start []byte, fn func(key, value []byte) bool) error {
	return memReader{tree: tx.tree}.Scan(prefix, start, fn)
}

func (tx *memTx) Set(key, value []byte) error {
	tx.tree.Set(key, value)
	op := wal.PutOp(append([]byte(nil), key...), append([]byte{}, value...))
	tx.ops = append(tx.ops, op)
	return nil
}

func (tx *memTx) Delete(key []byte) error {
	if !tx.tree.Delete(key) {
		return nil
	}
	tx.ops = append(tx.ops, wal.DeleteOp(append([]byte(nil), key...)))
	return nil
}

// applyOps replays logged mutations onto t.
func applyOps(t *memory.Tree, ops []wal.Op) {
	for _, op := range ops {
		switch op.Type {
		case wal.OpTypePut:
			t.Set(op.Key, op.Value)
		case wal.OpTypeDelete:
			t.Delete(op.Key)
		}
	}
}
