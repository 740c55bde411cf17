// Package vos implements the versioning object store: pools of containers
// whose objects hold epoch versioned array values.
//
// Each container is a four level tree:
//
//	object -> dkey -> akey -> record extent (epoch, index range, data)
//
// Updates append record extents at an epoch and never modify one in place.
// Fetch resolves the newest extent at or below the query epoch. Punch
// writes tombstone extents.
//
// Epochs:
//
// A container handle sees three epochs. HCE is the highest committed epoch
// of the container, LRE the lowest epoch the handle keeps readable, LHE the
// lowest epoch the handle may still write (EpochMax when it holds nothing).
// A writer holds an epoch, updates at or above it, and commits. Commits
// advance HCE in order; a commit is refused while another handle of the
// same container has written below it without committing.
//
// Every write handle carries a cookie. The cookie index remembers, per
// container, the last epoch committed under each cookie; Discard uses it
// to remove extents that were aborted or superseded.
//
// Handles:
//
// Pool and container handles are keys in two hhash tables owned by the
// Engine. Closing a handle takes effect once in-flight calls through it
// return.
//
// Persistence:
//
// All state lives in the storage.Store of the pool; every mutation runs in
// one store transaction. The engine keeps only the epoch state of open
// containers in memory, guarded by a per-container mutex.
package vos
