package vos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/storage"
)

// Level is a level of the object tree.
type Level int

const (
	LevelObject Level = iota
	LevelDKey
	LevelAKey
	LevelRecx
)

func (l Level) String() string {
	switch l {
	case LevelObject:
		return "object"
	case LevelDKey:
		return "dkey"
	case LevelAKey:
		return "akey"
	case LevelRecx:
		return "recx"
	default:
		return "unknown"
	}
}

// Filter selects entries by epoch against IterParam.Epr. Object, dkey and
// akey entries match when their epoch bounds could hold a match below
// them; record extents match on their own epoch.
type Filter int

const (
	// FilterNone matches every entry.
	FilterNone Filter = iota
	// FilterEQ matches epoch == Epr.Lo.
	FilterEQ
	// FilterGE matches epoch >= Epr.Lo.
	FilterGE
	// FilterRange matches Epr.Lo <= epoch <= Epr.Hi.
	FilterRange
)

// IterParam selects the entries an iterator walks: the children of the
// node named by OID, DKey and AKey at the given level.
type IterParam struct {
	Level  Level
	OID    domain.UnitOID
	DKey   []byte
	AKey   []byte
	Epr    domain.EpochRange
	Filter Filter
}

// child returns the parameters that walk the children of entry.
func (p IterParam) child(entry IterEntry) IterParam {
	out := p
	out.Level = p.Level + 1
	switch p.Level {
	case LevelObject:
		out.OID = entry.OID
	case LevelDKey:
		out.DKey = entry.Key
	case LevelAKey:
		out.AKey = entry.Key
	}
	return out
}

// IterEntry is the entry under the iterator cursor.
type IterEntry struct {
	Level Level          `json:"level"`
	OID   domain.UnitOID `json:"oid"`
	// Key is the dkey or akey of dkey and akey entries.
	Key []byte `json:"key,omitempty"`

	// MinEpoch and MaxEpoch bound everything below a node entry. For
	// record extents both equal the record epoch.
	MinEpoch domain.Epoch `json:"min_epoch"`
	MaxEpoch domain.Epoch `json:"max_epoch"`

	Recx   domain.Recx         `json:"recx"`
	Size   uint64              `json:"size,omitempty"`
	Cookie uuid.UUID           `json:"cookie"`
	Status domain.RecordStatus `json:"status,omitempty"`
}

// Anchor is an opaque resumable cursor position.
type Anchor []byte

type iterState int

const (
	iterOpen iterState = iota
	iterProbed
	iterExhausted
	iterClosed
)

// Iterator walks one level of the object tree. Each call runs its own
// store transaction, so entries written or removed by other callers
// between calls may or may not be observed.
type Iterator struct {
	store  storage.Store
	scope  scope
	param  IterParam
	prefix []byte
	state  iterState

	key   []byte
	value []byte

	// freed accumulates payload bytes released by Delete.
	freed uint64

	// readOnly refuses Delete on iterators of RO handles.
	readOnly bool

	release func()
}

// IterPrepare opens an iterator over the children selected by param. It
// returns ErrIterExhausted when the subtree is empty or does not exist.
// The iterator must be closed.
func (e *Engine) IterPrepare(ctx context.Context, coh ContHandle, param IterParam) (*Iterator, error) {
	link, err := e.lookupCont(coh)
	if err != nil {
		return nil, err
	}
	h := link.Value()
	it, err := newIterator(ctx, h.store(), h.cont.uuid, param)
	if err != nil {
		e.conts.Put(link)
		return nil, err
	}
	it.readOnly = h.mode != domain.ModeRW
	it.release = func() { e.conts.Put(link) }
	return it, nil
}

func newIterator(ctx context.Context, store storage.Store, cont uuid.UUID, param IterParam) (*Iterator, error) {
	if param.Level < LevelObject || param.Level > LevelRecx {
		return nil, domain.ErrInvalidArgument.WithDetailsf("iterator level %d", param.Level)
	}
	if param.Filter < FilterNone || param.Filter > FilterRange {
		return nil, domain.ErrInvalidArgument.WithDetailsf("iterator filter %d", param.Filter)
	}
	if param.Filter != FilterNone {
		if err := param.Epr.Validate(); err != nil {
			return nil, err
		}
	}
	if param.Level >= LevelAKey && len(param.DKey) == 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("dkey is required")
	}
	if param.Level == LevelRecx && len(param.AKey) == 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("akey is required")
	}

	s := scope{cont: cont, oid: param.OID, dkey: param.DKey, akey: param.AKey}
	it := &Iterator{
		store:  store,
		scope:  s,
		param:  param,
		prefix: s.childPrefix(param.Level),
		state:  iterOpen,
	}
	empty, err := it.IsEmpty(ctx)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, domain.ErrIterExhausted.WithDetailsf("no %s entries", param.Level)
	}
	return it, nil
}

// Close releases the iterator. It is safe to call more than once.
func (it *Iterator) Close() {
	if it.state == iterClosed {
		return
	}
	it.state = iterClosed
	it.key, it.value = nil, nil
	if it.release != nil {
		it.release()
		it.release = nil
	}
}

// Probe positions the cursor on the first matching entry, or on the first
// matching entry at or after anchor.
func (it *Iterator) Probe(ctx context.Context, anchor Anchor) error {
	if it.state == iterClosed {
		return domain.ErrInvalidArgument.WithDetails("iterator closed")
	}
	start := it.prefix
	if len(anchor) > 0 {
		start = append(bytes.Clone(it.prefix), anchor...)
	}
	return it.seek(ctx, start)
}

// Next advances the cursor. ErrIterExhausted marks the end of the level.
func (it *Iterator) Next(ctx context.Context) error {
	switch it.state {
	case iterProbed:
		return it.seek(ctx, keyAfter(it.key))
	case iterExhausted:
		return domain.ErrIterExhausted
	case iterClosed:
		return domain.ErrInvalidArgument.WithDetails("iterator closed")
	default:
		return domain.ErrInvalidArgument.WithDetails("iterator not probed")
	}
}

// Fetch returns the entry under the cursor and its anchor.
func (it *Iterator) Fetch() (IterEntry, Anchor, error) {
	switch it.state {
	case iterProbed:
	case iterExhausted:
		return IterEntry{}, nil, domain.ErrIterExhausted
	case iterClosed:
		return IterEntry{}, nil, domain.ErrInvalidArgument.WithDetails("iterator closed")
	default:
		return IterEntry{}, nil, domain.ErrInvalidArgument.WithDetails("iterator not probed")
	}

	suffix := it.key[len(it.prefix):]
	entry, err := it.decode(suffix, it.value)
	if err != nil {
		return IterEntry{}, nil, err
	}
	return entry, Anchor(bytes.Clone(suffix)), nil
}

// Delete removes the entry under the cursor together with everything
// below it, in one transaction. The cursor is invalidated: the caller
// must Probe with the returned anchor before continuing.
func (it *Iterator) Delete(ctx context.Context) (Anchor, error) {
	if it.readOnly {
		return nil, domain.ErrNoPermission.WithDetails("delete through a read-only handle")
	}
	if it.state != iterProbed {
		return nil, domain.ErrInvalidArgument.WithDetails("no entry under the cursor")
	}
	key := it.key
	suffix := key[len(it.prefix):]

	target := it.scope
	if it.param.Level != LevelRecx {
		var err error
		target, err = it.scope.withChild(it.param.Level, suffix)
		if err != nil {
			return nil, domain.ErrIO.WithDetailsf("corrupt %s key", it.param.Level).WithCause(err)
		}
	}

	var freed uint64
	err := it.store.Update(ctx, func(tx storage.Tx) error {
		var err error
		freed, err = deleteEntry(tx, key, target, it.param.Level)
		return err
	})
	if err != nil {
		return nil, storeErr(err)
	}

	it.freed += freed
	it.state = iterOpen
	it.key, it.value = nil, nil
	return Anchor(bytes.Clone(suffix)), nil
}

// IsEmpty reports whether the level has no entries at all. The epoch
// filter is ignored.
func (it *Iterator) IsEmpty(ctx context.Context) (bool, error) {
	empty := true
	err := it.store.View(ctx, func(r storage.Reader) error {
		return r.Scan(it.prefix, nil, func(_, _ []byte) bool {
			empty = false
			return false
		})
	})
	if err != nil {
		return false, storeErr(err)
	}
	return empty, nil
}

func (it *Iterator) seek(ctx context.Context, start []byte) error {
	var key, value []byte
	var matchErr error
	err := it.store.View(ctx, func(r storage.Reader) error {
		return r.Scan(it.prefix, start, func(k, v []byte) bool {
			ok, err := it.matches(k, v)
			if err != nil {
				matchErr = err
				return false
			}
			if !ok {
				return true
			}
			key, value = bytes.Clone(k), bytes.Clone(v)
			return false
		})
	})
	if err == nil {
		err = matchErr
	}
	if err != nil {
		return storeErr(err)
	}
	if key == nil {
		it.state = iterExhausted
		it.key, it.value = nil, nil
		return domain.ErrIterExhausted
	}
	it.state = iterProbed
	it.key, it.value = key, value
	return nil
}

func (it *Iterator) matches(key, value []byte) (bool, error) {
	if it.param.Filter == FilterNone {
		return true, nil
	}
	epr := it.param.Epr

	if it.param.Level == LevelRecx {
		epoch, _, err := decodeRecx(key[len(it.prefix):])
		if err != nil {
			return false, domain.ErrIO.WithDetails("corrupt recx key").WithCause(err)
		}
		switch it.param.Filter {
		case FilterEQ:
			return epoch == epr.Lo, nil
		case FilterGE:
			return epoch >= epr.Lo, nil
		default:
			return epr.Contains(epoch), nil
		}
	}

	var n nodeRecord
	if err := json.Unmarshal(value, &n); err != nil {
		return false, domain.ErrIO.WithDetailsf("decode %s node", it.param.Level).WithCause(err)
	}
	switch it.param.Filter {
	case FilterEQ:
		return n.overlaps(epr.Lo, epr.Lo), nil
	case FilterGE:
		return n.MaxEpoch >= epr.Lo, nil
	default:
		return n.overlaps(epr.Lo, epr.Hi), nil
	}
}

func (it *Iterator) decode(suffix, value []byte) (IterEntry, error) {
	entry := IterEntry{Level: it.param.Level, OID: it.param.OID}

	if it.param.Level == LevelRecx {
		var rec recxRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return entry, domain.ErrIO.WithDetails("decode recx").WithCause(err)
		}
		entry.MinEpoch, entry.MaxEpoch = rec.Epoch, rec.Epoch
		entry.Recx = rec.recx()
		entry.Size = rec.Size
		entry.Cookie = rec.Cookie
		entry.Status = rec.Status
		return entry, nil
	}

	child, err := it.scope.withChild(it.param.Level, suffix)
	if err != nil {
		return entry, domain.ErrIO.WithDetailsf("corrupt %s key", it.param.Level).WithCause(err)
	}
	switch it.param.Level {
	case LevelObject:
		entry.OID = child.oid
	case LevelDKey:
		entry.Key = child.dkey
	case LevelAKey:
		entry.Key = child.akey
	}

	var n nodeRecord
	if err := json.Unmarshal(value, &n); err != nil {
		return entry, domain.ErrIO.WithDetailsf("decode %s node", it.param.Level).WithCause(err)
	}
	entry.MinEpoch, entry.MaxEpoch = n.MinEpoch, n.MaxEpoch
	return entry, nil
}

// deleteEntry removes key and, for object, dkey and akey nodes, every
// record below the node addressed by target. Freed payload bytes are
// credited back to the pool.
func deleteEntry(tx storage.Tx, key []byte, target scope, level Level) (uint64, error) {
	keys := [][]byte{bytes.Clone(key)}
	var freed uint64

	if level == LevelRecx {
		var rec recxRecord
		found, err := getJSON(tx, key, &rec)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, nil
		}
		freed += uint64(len(rec.Data))
	}

	for _, prefix := range target.descendantPrefixes(level) {
		var decodeErr error
		err := tx.Scan(prefix, nil, func(k, v []byte) bool {
			keys = append(keys, bytes.Clone(k))
			if k[0] == tagRecx {
				var rec recxRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					decodeErr = domain.ErrIO.WithDetails("decode recx").WithCause(err)
					return false
				}
				freed += uint64(len(rec.Data))
			}
			return true
		})
		if err != nil {
			return 0, err
		}
		if decodeErr != nil {
			return 0, decodeErr
		}
	}

	for _, k := range keys {
		if err := tx.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := chargeSpace(tx, -int64(freed)); err != nil {
		return 0, err
	}
	return freed, nil
}

// isExhausted reports whether err is the benign end of a walk.
func isExhausted(err error) bool {
	return errors.Is(err, domain.ErrIterExhausted)
}
