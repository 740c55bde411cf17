package wal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
)

type wirePayload struct {
	Timestamp int64  `json:"ts"`
	TxID      uint64 `json:"tx"`
	Ops       []Op   `json:"ops"`
}

func encodeEntryFrame(e *Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("wal: entry is nil")
	}
	if e.Type != EntryTypeTx {
		return nil, ErrInvalidEntryType
	}
	if len(e.Ops) == 0 {
		return nil, ErrEmptyEntry
	}
	for i, op := range e.Ops {
		if op.Type != OpTypePut && op.Type != OpTypeDelete {
			return nil, fmt.Errorf("wal: op %d: %w", i, ErrInvalidEntryType)
		}
	}

	payload, err := json.Marshal(wirePayload{
		Timestamp: e.Timestamp,
		TxID:      e.TxID,
		Ops:       e.Ops,
	})
	if err != nil {
		return nil, fmt.Errorf("wal: marshal payload: %w", err)
	}

	// Length = CRC(4) + Type(1) + Payload.
	length := uint32(4 + 1 + len(payload))

	out := make([]byte, 4+int(length))
	binary.BigEndian.PutUint32(out[0:4], length)
	out[8] = byte(e.Type)
	copy(out[9:], payload)
	binary.BigEndian.PutUint32(out[4:8], crc32.ChecksumIEEE(out[8:]))
	return out, nil
}

func decodeEntryFrame(frame []byte) (*Entry, error) {
	// Frame layout: [crc32:4][type:1][payload...]
	if len(frame) < 5 {
		return nil, ErrCorruptedEntry
	}

	wantCRC := binary.BigEndian.Uint32(frame[:4])
	if crc32.ChecksumIEEE(frame[4:]) != wantCRC {
		return nil, ErrChecksumMismatch
	}

	typ := EntryType(frame[4])
	if typ != EntryTypeTx {
		return nil, ErrInvalidEntryType
	}

	var p wirePayload
	if err := json.Unmarshal(frame[5:], &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedEntry, err)
	}
	if len(p.Ops) == 0 {
		return nil, ErrEmptyEntry
	}

	return &Entry{
		Type:      typ,
		TxID:      p.TxID,
		Timestamp: p.Timestamp,
		Ops:       p.Ops,
	}, nil
}
