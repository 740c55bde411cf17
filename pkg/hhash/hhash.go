package hhash

import (
	"encoding/binary"
	"sync"

	"github.com/spaolacci/murmur3"
)

// TypeBits is the number of low handle bits reserved for the type tag.
const TypeBits = 3

// Type tags the handles issued by a table.
type Type uint8

// MaxType is the largest type tag that fits in TypeBits.
const MaxType Type = 1<<TypeBits - 1

// Default and maximum bucket sizing, expressed in bits.
const (
	DefaultBucketBits = 6
	MaxBucketBits     = 20
)

// Link is one table entry. Callers receive a Link from Lookup and must hand
// it back with Put.
type Link[T any] struct {
	key    uint64
	value  T
	ref    int
	linked bool
	next   *Link[T]
}

// Key returns the handle of the entry.
func (l *Link[T]) Key() uint64 {
	return l.key
}

// Value returns the payload.
func (l *Link[T]) Value() T {
	return l.value
}

// Table is a fixed-bucket hash table of reference-counted payloads.
type Table[T any] struct {
	mu      sync.Mutex
	buckets []*Link[T]
	mask    uint64
	typ     Type
	counter uint64
	count   int
	destroy func(T)
}

// New creates a table with 2^bucketBits buckets. Out of range values fall
// back to DefaultBucketBits. destroy may be nil.
func New[T any](bucketBits uint, typ Type, destroy func(T)) *Table[T] {
	if bucketBits == 0 || bucketBits > MaxBucketBits {
		bucketBits = DefaultBucketBits
	}
	if typ > MaxType {
		typ = MaxType
	}

	n := uint64(1) << bucketBits
	return &Table[T]{
		buckets: make([]*Link[T], n),
		mask:    n - 1,
		typ:     typ,
		destroy: destroy,
	}
}

// Type returns the type tag of the table.
func (t *Table[T]) Type() Type {
	return t.typ
}

// TypeOf extracts the type tag from a handle.
func TypeOf(key uint64) Type {
	return Type(key & uint64(MaxType))
}

func (t *Table[T]) bucket(key uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	return murmur3.Sum64(buf[:]) & t.mask
}

// Insert adds a payload and returns its new handle. The table holds the
// initial reference.
func (t *Table[T]) Insert(value T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counter++
	key := t.counter<<TypeBits | uint64(t.typ)

	link := &Link[T]{
		key:    key,
		value:  value,
		ref:    1,
		linked: true,
	}
	idx := t.bucket(key)
	link.next = t.buckets[idx]
	t.buckets[idx] = link
	t.count++

	return key
}

// Lookup resolves a handle and takes a reference on it.
func (t *Table[T]) Lookup(key uint64) (*Link[T], bool) {
	if TypeOf(key) != t.typ {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for l := t.buckets[t.bucket(key)]; l != nil; l = l.next {
		if l.key == key {
			l.ref++
			return l, true
		}
	}
	return nil, false
}

// AddRef takes an additional reference on a link the caller already holds.
func (t *Table[T]) AddRef(link *Link[T]) {
	t.mu.Lock()
	link.ref++
	t.mu.Unlock()
}

// Put drops one reference. The destroy callback runs when the count
// reaches zero. Put reports whether the payload was destroyed.
func (t *Table[T]) Put(link *Link[T]) bool {
	if link == nil {
		return false
	}

	t.mu.Lock()
	if link.ref <= 0 {
		t.mu.Unlock()
		panic("hhash: put on released link")
	}
	link.ref--
	last := link.ref == 0
	if last && link.linked {
		t.unlinkLocked(link)
	}
	t.mu.Unlock()

	if last && t.destroy != nil {
		t.destroy(link.value)
	}
	return last
}

// Delete unlinks a handle and drops the table's reference. Later lookups
// fail immediately; the payload is destroyed once outstanding references
// are returned. Delete reports whether the handle was present.
func (t *Table[T]) Delete(key uint64) bool {
	if TypeOf(key) != t.typ {
		return false
	}

	t.mu.Lock()
	var link *Link[T]
	for l := t.buckets[t.bucket(key)]; l != nil; l = l.next {
		if l.key == key {
			link = l
			break
		}
	}
	if link == nil {
		t.mu.Unlock()
		return false
	}
	t.unlinkLocked(link)
	t.mu.Unlock()

	t.Put(link)
	return true
}

func (t *Table[T]) unlinkLocked(link *Link[T]) {
	idx := t.bucket(link.key)
	prev := &t.buckets[idx]
	for l := *prev; l != nil; l = l.next {
		if l == link {
			*prev = l.next
			l.next = nil
			l.linked = false
			t.count--
			return
		}
		prev = &l.next
	}
}

// Len returns the number of linked entries.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Keys returns a snapshot of the linked handles.
func (t *Table[T]) Keys() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]uint64, 0, t.count)
	for _, head := range t.buckets {
		for l := head; l != nil; l = l.next {
			keys = append(keys, l.key)
		}
	}
	return keys
}

// Refs returns the current reference count of a handle, or 0 if it is not
// linked.
func (t *Table[T]) Refs(key uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	for l := t.buckets[t.bucket(key)]; l != nil; l = l.next {
		if l.key == key {
			return l.ref
		}
	}
	return 0
}
