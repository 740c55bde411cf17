// Package domain defines the core domain models for the versioning object store.
//
// Domain models are pure value objects without any IO dependencies.
// This package contains:
//
//   - Epochs: epoch values, ranges and the per-handle epoch state
//   - Objects: 192-bit object ids, shard addressing and record extents
//   - Records: fetch results and record status
//   - Errors: the engine error taxonomy
package domain
