// Package wal provides the write-ahead transaction log of the file store.
//
// Every committed store transaction is appended as one frame before it is
// published to readers. Recovery replays whole frames only: a torn or
// corrupted tail frame is dropped, so a crash never exposes half of a
// transaction.
//
// Features:
//
//   - Batched Writes: Configurable batch size and sync interval
//   - File Rotation: Automatic rotation at configurable file sizes
//   - Compaction: Cleanup of segments covered by a checkpoint
//   - Recovery: Sequential replay from a composite offset
//
// Format:
//
//	wal-<segment-id>.log
//	[magic:8 "VOSUWAL\x01"]
//	[Frame]*
//	[checksum:32 SHA-256 of all bytes above] (absent on the active segment)
//
// Frame wire format:
//
//	[Length:4][CRC32:4][Type:1][Payload:Length-5]
//
// Where:
//   - Length = CRC32 + Type + Payload (big-endian uint32)
//   - CRC32 covers Type+Payload (IEEE)
//   - Payload is the JSON encoded transaction
package wal
