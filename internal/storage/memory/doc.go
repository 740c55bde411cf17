// Package memory provides the ordered in-memory tree behind the memory and
// file store backends.
//
// A Tree is a B-tree of byte-string keys. Clone is constant time and
// copy-on-write: after a Clone both trees may be used independently, and
// nodes are copied lazily on first mutation. The store backends rely on it
// for transactions (mutate a clone, publish it on commit, drop it on
// rollback) and for snapshot reads (a published tree is never mutated).
//
// Thread Safety:
//
// A Tree is not safe for concurrent mutation. Concurrent reads of a tree
// that is no longer mutated are safe.
package memory
