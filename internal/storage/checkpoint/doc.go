// Package checkpoint writes and loads full dumps of a key-value store.
//
// A checkpoint bounds WAL replay: recovery loads the newest intact
// checkpoint and replays WAL entries after the offset it records.
//
//	checkpoint-<timestamp>-<sequence>.ckpt
//	[magic:8 "VOSUCKPT"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	[DataLen:4][Data:DataLen]   (JSON array of key/value pairs)
//	[checksum:32 SHA-256 of all bytes above]
//
// Files are written to a temporary name and renamed into place, so a
// crash mid-write never leaves a half checkpoint under a valid name.
package checkpoint
