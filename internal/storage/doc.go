// Package storage provides the transactional key-value stores the
// versioned object store persists through.
//
// Three backends implement Store:
//
//   - memory: a copy-on-write B-tree, lost on exit
//   - file:   the memory tree plus a write-ahead log and periodic checkpoints
//   - badger: Badger v3 transactions on disk
//
// Every backend gives the same guarantee: a transaction either commits all
// of its writes or none of them, including when the callback panics.
package storage
