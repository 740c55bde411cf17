package wal

import (
	"errors"
	"time"
)

// File format constants.
const (
	// headerSize is the size of frame header: length (4) + crc (4) = 8 bytes.
	headerSize = 8

	// minEntrySize is the minimum frame size: header (8) + type (1).
	minEntrySize = headerSize + 1

	// maxFrameSize bounds a single frame to reject garbage lengths early.
	maxFrameSize = 256 << 20
)

// Errors for WAL operations.
var (
	ErrCorruptedEntry   = errors.New("wal: corrupted entry")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrInvalidEntryType = errors.New("wal: invalid entry type")
	ErrEmptyEntry       = errors.New("wal: entry has no operations")
)

// EntryType is the frame kind.
type EntryType uint8

const (
	EntryTypeUnspecified EntryType = iota
	// EntryTypeTx is one committed store transaction.
	EntryTypeTx
)

// OpType is the kind of one mutation inside a transaction.
type OpType uint8

const (
	OpTypeUnspecified OpType = iota
	OpTypePut
	OpTypeDelete
)

func (t OpType) String() string {
	switch t {
	case OpTypePut:
		return "put"
	case OpTypeDelete:
		return "delete"
	default:
		return "unspecified"
	}
}

// Op is one key mutation.
type Op struct {
	Type  OpType `json:"t"`
	Key   []byte `json:"k"`
	Value []byte `json:"v,omitempty"`
}

// Entry represents one committed transaction written to the WAL.
//
// Timestamp uses Unix milliseconds.
type Entry struct {
	Type      EntryType
	TxID      uint64
	Timestamp int64
	Ops       []Op
}

// NewTxEntry creates a transaction entry.
func NewTxEntry(txID uint64, ops []Op) *Entry {
	return &Entry{
		Type:      EntryTypeTx,
		TxID:      txID,
		Timestamp: time.Now().UnixMilli(),
		Ops:       ops,
	}
}

// PutOp returns a put mutation.
func PutOp(key, value []byte) Op {
	return Op{Type: OpTypePut, Key: key, Value: value}
}

// DeleteOp returns a delete mutation.
func DeleteOp(key []byte) Op {
	return Op{Type: OpTypeDelete, Key: key}
}
