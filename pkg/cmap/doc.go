// Package cmap provides a concurrent-safe sharded map with string keys.
//
// Keys are spread over a power-of-two number of shards by maphash, each
// shard guarded by its own RWMutex, so unrelated keys do not contend.
package cmap
