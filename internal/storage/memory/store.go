package memory

import (
	"bytes"

	"github.com/google/btree"
)

// DefaultDegree is the B-tree degree used by New.
const DefaultDegree = 32

type item struct {
	key   []byte
	value []byte
}

func less(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Tree is an ordered byte-string map.
type Tree struct {
	bt    *btree.BTreeG[item]
	bytes uint64
}

// New creates an empty tree.
func New() *Tree {
	return NewWithDegree(DefaultDegree)
}

// NewWithDegree creates an empty tree with the given B-tree degree.
func NewWithDegree(degree int) *Tree {
	if degree < 2 {
		degree = DefaultDegree
	}
	return &Tree{bt: btree.NewG[item](degree, less)}
}

// Clone returns a lazily copied tree. The receiver must not be mutated
// concurrently with the call.
func (t *Tree) Clone() *Tree {
	return &Tree{bt: t.bt.Clone(), bytes: t.bytes}
}

// Get returns the value stored under key.
func (t *Tree) Get(key []byte) ([]byte, bool) {
	it, ok := t.bt.Get(item{key: key})
	if !ok {
		return nil, false
	}
	return it.value, true
}

// Set stores a copy of key and value.
func (t *Tree) Set(key, value []byte) {
	it := item{key: bytes.Clone(key), value: bytes.Clone(value)}
	if it.value == nil {
		it.value = []byte{}
	}
	if old, ok := t.bt.ReplaceOrInsert(it); ok {
		t.bytes -= uint64(len(old.key) + len(old.value))
	}
	t.bytes += uint64(len(it.key) + len(it.value))
}

// Delete removes key and reports whether it was present.
func (t *Tree) Delete(key []byte) bool {
	old, ok := t.bt.Delete(item{key: key})
	if ok {
		t.bytes -= uint64(len(old.key) + len(old.value))
	}
	return ok
}

// Ascend visits keys carrying prefix in order, starting at the first key
// >= start. fn returns false to stop.
func (t *Tree) Ascend(prefix, start []byte, fn func(key, value []byte) bool) {
	pivot := prefix
	if bytes.Compare(start, prefix) > 0 {
		pivot = start
	}
	t.bt.AscendGreaterOrEqual(item{key: pivot}, func(it item) bool {
		if !bytes.HasPrefix(it.key, prefix) {
			return false
		}
		return fn(it.key, it.value)
	})
}

// Len returns the number of keys.
func (t *Tree) Len() int {
	return t.bt.Len()
}

// Bytes returns the total size of keys and values.
func (t *Tree) Bytes() uint64 {
	return t.bytes
}

// Clear removes every key.
func (t *Tree) Clear() {
	t.bt.Clear(false)
	t.bytes = 0
}
