package vos

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/storage"
)

type poolRecord struct {
	UUID      uuid.UUID `json:"uuid"`
	Size      uint64    `json:"size"`
	Used      uint64    `json:"used"`
	CreatedAt int64     `json:"created_at"`
}

type contRecord struct {
	UUID      uuid.UUID         `json:"uuid"`
	HCE       domain.Epoch      `json:"hce"`
	Snapshots []domain.Snapshot `json:"snapshots,omitempty"`
	Aborted   []domain.Epoch    `json:"aborted,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

// cookieRecord is one entry of the epoch cookie index.
type cookieRecord struct {
	// Committed is the highest epoch committed under the cookie.
	Committed domain.Epoch `json:"committed"`
	// Written is the highest epoch the cookie wrote at, committed or not.
	Written domain.Epoch `json:"written"`
}

// nodeRecord carries the epoch bounds of everything below an object,
// dkey or akey node. Bounds only widen.
type nodeRecord struct {
	MinEpoch domain.Epoch `json:"min"`
	MaxEpoch domain.Epoch `json:"max"`
}

func (n nodeRecord) overlaps(lo, hi domain.Epoch) bool {
	return n.MaxEpoch >= lo && n.MinEpoch <= hi
}

type recxRecord struct {
	Epoch    domain.Epoch        `json:"epoch"`
	Index    uint64              `json:"index"`
	Count    uint64              `json:"count"`
	Size     uint64              `json:"size"`
	Cookie   uuid.UUID           `json:"cookie"`
	Status   domain.RecordStatus `json:"status"`
	Checksum *uint32             `json:"csum,omitempty"`
	Data     []byte              `json:"data,omitempty"`
}

func (r *recxRecord) recx() domain.Recx {
	return domain.Recx{Index: r.Index, Count: r.Count}
}

// getJSON loads the record under key into v and reports whether it exists.
func getJSON(r storage.Reader, key []byte, v any) (bool, error) {
	raw, err := r.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, domain.ErrIO.WithDetailsf("decode record %x", key).WithCause(err)
	}
	return true, nil
}

func putJSON(tx storage.Tx, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return domain.ErrIO.WithDetails("encode record").WithCause(err)
	}
	return tx.Set(key, raw)
}

// storeErr converts a store failure into the engine taxonomy. Domain and
// context errors pass through unchanged.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, storage.ErrClosed) {
		return domain.ErrClosed.WithCause(err)
	}
	return domain.ErrIO.WithCause(err)
}

// widenNode creates or widens the epoch bounds of the node under key.
func widenNode(tx storage.Tx, key []byte, epoch domain.Epoch) error {
	var n nodeRecord
	found, err := getJSON(tx, key, &n)
	if err != nil {
		return err
	}
	if found && n.MinEpoch <= epoch && n.MaxEpoch >= epoch {
		return nil
	}
	if !found {
		n = nodeRecord{MinEpoch: epoch, MaxEpoch: epoch}
	}
	if epoch < n.MinEpoch {
		n.MinEpoch = epoch
	}
	if epoch > n.MaxEpoch {
		n.MaxEpoch = epoch
	}
	return putJSON(tx, key, n)
}

// widenPath widens the object, dkey and akey nodes above s.
func widenPath(tx storage.Tx, s scope, epoch domain.Epoch) error {
	for _, level := range []Level{LevelObject, LevelDKey, LevelAKey} {
		if err := widenNode(tx, s.nodeKey(level), epoch); err != nil {
			return err
		}
	}
	return nil
}

func loadPool(r storage.Reader) (poolRecord, error) {
	var p poolRecord
	found, err := getJSON(r, poolRootKey, &p)
	if err != nil {
		return p, err
	}
	if !found {
		return p, domain.ErrPoolNotFound
	}
	return p, nil
}

// chargeSpace adds delta bytes to the pool usage, failing with NO_MEMORY
// when the pool would overflow. Negative deltas credit space back.
func chargeSpace(tx storage.Tx, delta int64) error {
	if delta == 0 {
		return nil
	}
	p, err := loadPool(tx)
	if err != nil {
		return err
	}
	if delta > 0 {
		if p.Used+uint64(delta) > p.Size || p.Used+uint64(delta) < p.Used {
			return domain.ErrNoSpace.WithDetailsf("need %d bytes, %d of %d used", delta, p.Used, p.Size)
		}
		p.Used += uint64(delta)
	} else {
		credit := uint64(-delta)
		if credit > p.Used {
			credit = p.Used
		}
		p.Used -= credit
	}
	return putJSON(tx, poolRootKey, p)
}

func loadCont(r storage.Reader, c uuid.UUID) (contRecord, error) {
	var rec contRecord
	found, err := getJSON(r, contRootKey(c), &rec)
	if err != nil {
		return rec, err
	}
	if !found {
		return rec, domain.ErrContainerNotFound.WithDetails(c.String())
	}
	return rec, nil
}
