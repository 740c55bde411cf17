package vos

import (
	"bytes"
	"context"
	"encoding/json"
	"math/bits"
	"sort"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/storage"
)

// IOD describes one extent of an array value under dkey/akey.
type IOD struct {
	DKey []byte
	AKey []byte
	Recx domain.Recx
	// Size is the size in bytes of one index.
	Size uint64
}

func (iod IOD) validate(data []byte) error {
	if len(iod.DKey) == 0 || len(iod.AKey) == 0 {
		return domain.ErrInvalidArgument.WithDetails("dkey and akey are required")
	}
	if err := iod.Recx.Validate(); err != nil {
		return err
	}
	if iod.Size == 0 {
		return domain.ErrInvalidArgument.WithDetails("record size is zero")
	}
	hi, want := bits.Mul64(iod.Recx.Count, iod.Size)
	if hi != 0 || want != uint64(len(data)) {
		return domain.ErrInvalidArgument.WithDetailsf("%d bytes for %s of size %d", len(data), iod.Recx, iod.Size)
	}
	return nil
}

func checksum(data []byte) uint32 {
	return murmur3.Sum32(data)
}

func (e *Engine) verify(rec *recxRecord) error {
	if e.opts.DisableChecksum || rec.Checksum == nil {
		return nil
	}
	if got := checksum(rec.Data); got != *rec.Checksum {
		return domain.ErrChecksum.WithDetailsf("recx %s at epoch %s: %08x != %08x", rec.recx(), rec.Epoch, got, *rec.Checksum)
	}
	return nil
}

// beginWrite checks that h may write at epoch and marks the epoch pending.
// It reports whether the mark is new, so a failed write can undo it.
func beginWrite(h *contHandle, epoch domain.Epoch) (bool, error) {
	if h.mode != domain.ModeRW {
		return false, domain.ErrNoPermission.WithDetails("write through a read-only handle")
	}
	c := h.cont
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isAbortedLocked(epoch) {
		return false, domain.ErrEpochAborted.WithDetailsf("epoch %s", epoch)
	}
	if epoch < h.lhe {
		return false, domain.ErrInvalidEpoch.WithDetailsf("epoch %s is below LHE %s", epoch, h.lhe)
	}
	if epoch <= c.hce {
		return false, domain.ErrInvalidEpoch.WithDetailsf("epoch %s is not above HCE %s", epoch, c.hce)
	}
	if _, ok := h.pending[epoch]; ok {
		return false, nil
	}
	h.pending[epoch] = struct{}{}
	return true, nil
}

func abandonWrite(h *contHandle, epoch domain.Epoch, marked bool) {
	if !marked {
		return
	}
	h.cont.mu.Lock()
	delete(h.pending, epoch)
	h.cont.mu.Unlock()
}

// Update writes one record extent at epoch. Extents written at the same
// epoch must not overlap: the first writer wins and later overlapping
// writes fail with ErrRecxConflict.
func (e *Engine) Update(ctx context.Context, coh ContHandle, epoch domain.Epoch, oid domain.UnitOID, iod IOD, data []byte) error {
	if err := iod.validate(data); err != nil {
		return err
	}
	return e.withCont(coh, func(h *contHandle) error {
		marked, err := beginWrite(h, epoch)
		if err != nil {
			return err
		}

		s := scope{cont: h.cont.uuid, oid: oid, dkey: iod.DKey, akey: iod.AKey}
		rec := recxRecord{
			Epoch:  epoch,
			Index:  iod.Recx.Index,
			Count:  iod.Recx.Count,
			Size:   iod.Size,
			Cookie: h.cookie,
			Status: domain.StatusData,
			Data:   data,
		}
		if !e.opts.DisableChecksum {
			sum := checksum(data)
			rec.Checksum = &sum
		}

		err = h.store().Update(ctx, func(tx storage.Tx) error {
			if err := chargeSpace(tx, int64(len(data))); err != nil {
				return err
			}
			if err := checkConflict(tx, s, epoch, iod.Recx); err != nil {
				return err
			}
			if err := putJSON(tx, s.recxKey(epoch, iod.Recx.Index), rec); err != nil {
				return err
			}
			if err := widenPath(tx, s, epoch); err != nil {
				return err
			}
			return cookieNoteWrite(tx, s.cont, h.cookie, epoch)
		})
		if err != nil {
			abandonWrite(h, epoch, marked)
			return storeErr(err)
		}
		e.metrics.updated(len(data))
		return nil
	})
}

// checkConflict fails when an extent already written at epoch overlaps rx.
func checkConflict(tx storage.Tx, s scope, epoch domain.Epoch, rx domain.Recx) error {
	prefix := s.recxEpochPrefix(epoch)
	var conflict *recxRecord
	var decodeErr error
	err := tx.Scan(prefix, nil, func(_, v []byte) bool {
		var rec recxRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			decodeErr = domain.ErrIO.WithDetails("decode recx").WithCause(err)
			return false
		}
		if rec.recx().Overlaps(rx) {
			conflict = &rec
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if decodeErr != nil {
		return decodeErr
	}
	if conflict != nil {
		return domain.ErrRecxConflict.WithDetailsf("%s overlaps %s written at epoch %s", rx, conflict.recx(), epoch)
	}
	return nil
}

// visibleRecords returns the records under s with epoch <= upTo that are
// not at an aborted epoch, in (epoch, index) order.
func visibleRecords(r storage.Reader, s scope, upTo domain.Epoch, aborted map[domain.Epoch]struct{}) ([]recxRecord, error) {
	prefix := s.childPrefix(LevelRecx)
	var out []recxRecord
	var decodeErr error
	err := r.Scan(prefix, nil, func(k, v []byte) bool {
		epoch, _, err := decodeRecx(k[len(prefix):])
		if err != nil {
			decodeErr = domain.ErrIO.WithDetails("corrupt recx key").WithCause(err)
			return false
		}
		if epoch > upTo {
			return false
		}
		if _, ok := aborted[epoch]; ok {
			return true
		}
		var rec recxRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			decodeErr = domain.ErrIO.WithDetails("decode recx").WithCause(err)
			return false
		}
		out = append(out, rec)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decodeErr
}

// Fetch returns the value of one index as of epoch: the newest record at
// or below epoch that covers it.
func (e *Engine) Fetch(ctx context.Context, coh ContHandle, epoch domain.Epoch, oid domain.UnitOID, dkey, akey []byte, index uint64) (domain.FetchResult, error) {
	var res domain.FetchResult
	err := e.withCont(coh, func(h *contHandle) error {
		aborted := h.cont.abortedSnapshot()
		s := scope{cont: h.cont.uuid, oid: oid, dkey: dkey, akey: akey}

		var recs []recxRecord
		err := h.store().View(ctx, func(r storage.Reader) error {
			var err error
			recs, err = visibleRecords(r, s, epoch, aborted)
			return err
		})
		if err != nil {
			return storeErr(err)
		}
		e.metrics.fetched()

		var best *recxRecord
		for i := range recs {
			if recs[i].recx().Contains(index) {
				best = &recs[i]
			}
		}
		if best == nil {
			return domain.ErrNoData.WithDetailsf("index %d at epoch %s", index, epoch)
		}

		res = domain.FetchResult{
			Status: best.Status,
			Epoch:  best.Epoch,
			Cookie: best.Cookie,
		}
		if best.Status == domain.StatusPunched {
			return nil
		}
		if err := e.verify(best); err != nil {
			return err
		}
		off := (index - best.Index) * best.Size
		res.Size = best.Size
		res.Data = bytes.Clone(best.Data[off : off+best.Size])
		return nil
	})
	return res, err
}

// segment is a run of indices [lo, hi) whose value comes from rec.
type segment struct {
	lo, hi uint64
	rec    *recxRecord
}

// overlay resolves records, given oldest first, into sorted disjoint
// segments where later records shadow earlier ones.
func overlay(recs []recxRecord) []segment {
	var segs []segment
	for i := range recs {
		rec := &recs[i]
		lo, hi := rec.Index, rec.recx().End()

		next := segs[:0:0]
		for _, s := range segs {
			if s.hi <= lo || s.lo >= hi {
				next = append(next, s)
				continue
			}
			if s.lo < lo {
				next = append(next, segment{lo: s.lo, hi: lo, rec: s.rec})
			}
			if s.hi > hi {
				next = append(next, segment{lo: hi, hi: s.hi, rec: s.rec})
			}
		}
		next = append(next, segment{lo: lo, hi: hi, rec: rec})
		sort.Slice(next, func(a, b int) bool { return next[a].lo < next[b].lo })
		segs = next
	}
	return segs
}

// clip restricts segs to rx.
func clip(segs []segment, rx domain.Recx) []segment {
	var out []segment
	for _, s := range segs {
		lo, hi := max(s.lo, rx.Index), min(s.hi, rx.End())
		if lo < hi {
			out = append(out, segment{lo: lo, hi: hi, rec: s.rec})
		}
	}
	return out
}

// FetchExtent assembles the value of rx as of epoch. Indices without data
// are zero filled; the result size is the largest record size seen.
func (e *Engine) FetchExtent(ctx context.Context, coh ContHandle, epoch domain.Epoch, oid domain.UnitOID, dkey, akey []byte, rx domain.Recx) (domain.ExtentResult, error) {
	var res domain.ExtentResult
	if err := rx.Validate(); err != nil {
		return res, err
	}
	err := e.withCont(coh, func(h *contHandle) error {
		aborted := h.cont.abortedSnapshot()
		s := scope{cont: h.cont.uuid, oid: oid, dkey: dkey, akey: akey}

		var recs []recxRecord
		err := h.store().View(ctx, func(r storage.Reader) error {
			var err error
			recs, err = visibleRecords(r, s, epoch, aborted)
			return err
		})
		if err != nil {
			return storeErr(err)
		}
		e.metrics.fetched()

		segs := clip(overlay(recs), rx)
		var covered uint64
		for _, seg := range segs {
			covered += seg.hi - seg.lo
			if seg.rec.Status == domain.StatusPunched {
				res.Punched += seg.hi - seg.lo
				continue
			}
			if err := e.verify(seg.rec); err != nil {
				return err
			}
			res.Size = max(res.Size, seg.rec.Size)
		}
		if len(segs) == 0 {
			return domain.ErrNoData.WithDetailsf("%s at epoch %s", rx, epoch)
		}
		res.Holes = rx.Count - covered
		if res.Size == 0 {
			return nil
		}

		hi, total := bits.Mul64(rx.Count, res.Size)
		if hi != 0 || total > uint64(maxExtentBytes) {
			return domain.ErrInvalidArgument.WithDetailsf("extent %s of size %d is too large", rx, res.Size)
		}
		res.Data = make([]byte, total)
		for _, seg := range segs {
			if seg.rec.Status != domain.StatusData {
				continue
			}
			for idx := seg.lo; idx < seg.hi; idx++ {
				src := seg.rec.Data[(idx-seg.rec.Index)*seg.rec.Size:][:seg.rec.Size]
				copy(res.Data[(idx-rx.Index)*res.Size:], src)
			}
		}
		return nil
	})
	return res, err
}

// maxExtentBytes bounds the buffer FetchExtent assembles.
const maxExtentBytes = 1 << 30

// PunchAKeys writes tombstones at epoch over every extent of the given
// akeys that is visible at epoch. It returns the number of tombstones.
func (e *Engine) PunchAKeys(ctx context.Context, coh ContHandle, epoch domain.Epoch, oid domain.UnitOID, dkey []byte, akeys [][]byte) (int, error) {
	if len(dkey) == 0 || len(akeys) == 0 {
		return 0, domain.ErrInvalidArgument.WithDetails("dkey and akeys are required")
	}
	return e.punch(ctx, coh, epoch, func(tx storage.Tx, base scope) ([]scope, error) {
		out := make([]scope, 0, len(akeys))
		for _, ak := range akeys {
			if len(ak) == 0 {
				return nil, domain.ErrInvalidArgument.WithDetails("empty akey")
			}
			out = append(out, scope{cont: base.cont, oid: oid, dkey: dkey, akey: ak})
		}
		return out, nil
	})
}

// PunchDKey punches every akey under dkey.
func (e *Engine) PunchDKey(ctx context.Context, coh ContHandle, epoch domain.Epoch, oid domain.UnitOID, dkey []byte) (int, error) {
	if len(dkey) == 0 {
		return 0, domain.ErrInvalidArgument.WithDetails("dkey is required")
	}
	return e.punch(ctx, coh, epoch, func(tx storage.Tx, base scope) ([]scope, error) {
		return childScopes(tx, scope{cont: base.cont, oid: oid, dkey: dkey}, LevelAKey)
	})
}

// PunchObject punches every akey of every dkey of oid.
func (e *Engine) PunchObject(ctx context.Context, coh ContHandle, epoch domain.Epoch, oid domain.UnitOID) (int, error) {
	return e.punch(ctx, coh, epoch, func(tx storage.Tx, base scope) ([]scope, error) {
		dkeys, err := childScopes(tx, scope{cont: base.cont, oid: oid}, LevelDKey)
		if err != nil {
			return nil, err
		}
		var out []scope
		for _, d := range dkeys {
			akeys, err := childScopes(tx, d, LevelAKey)
			if err != nil {
				return nil, err
			}
			out = append(out, akeys...)
		}
		return out, nil
	})
}

// childScopes lists the children of s at level.
func childScopes(r storage.Reader, s scope, level Level) ([]scope, error) {
	prefix := s.childPrefix(level)
	var suffixes [][]byte
	err := r.Scan(prefix, nil, func(k, _ []byte) bool {
		suffixes = append(suffixes, bytes.Clone(k[len(prefix):]))
		return true
	})
	if err != nil {
		return nil, err
	}
	out := make([]scope, 0, len(suffixes))
	for _, suffix := range suffixes {
		child, err := s.withChild(level, suffix)
		if err != nil {
			return nil, domain.ErrIO.WithDetailsf("corrupt %s key", level).WithCause(err)
		}
		out = append(out, child)
	}
	return out, nil
}

// punch writes tombstones over the visible data of every akey scope that
// targets returns, in one transaction.
func (e *Engine) punch(ctx context.Context, coh ContHandle, epoch domain.Epoch, targets func(tx storage.Tx, base scope) ([]scope, error)) (int, error) {
	var n int
	err := e.withCont(coh, func(h *contHandle) error {
		marked, err := beginWrite(h, epoch)
		if err != nil {
			return err
		}
		aborted := h.cont.abortedSnapshot()
		base := scope{cont: h.cont.uuid}

		err = h.store().Update(ctx, func(tx storage.Tx) error {
			n = 0
			akeys, err := targets(tx, base)
			if err != nil {
				return err
			}
			for _, s := range akeys {
				recs, err := visibleRecords(tx, s, epoch, aborted)
				if err != nil {
					return err
				}
				var wrote bool
				for _, seg := range overlay(recs) {
					if seg.rec.Status != domain.StatusData {
						continue
					}
					if seg.rec.Epoch == epoch {
						return domain.ErrRecxConflict.WithDetailsf("punch at epoch %s over data written at the same epoch", epoch)
					}
					tomb := recxRecord{
						Epoch:  epoch,
						Index:  seg.lo,
						Count:  seg.hi - seg.lo,
						Cookie: h.cookie,
						Status: domain.StatusPunched,
					}
					if err := putJSON(tx, s.recxKey(epoch, seg.lo), tomb); err != nil {
						return err
					}
					wrote = true
					n++
				}
				if wrote {
					if err := widenPath(tx, s, epoch); err != nil {
						return err
					}
				}
			}
			if n == 0 {
				return nil
			}
			return cookieNoteWrite(tx, base.cont, h.cookie, epoch)
		})
		if err != nil || n == 0 {
			abandonWrite(h, epoch, marked)
		}
		if err != nil {
			return storeErr(err)
		}
		e.metrics.punched(n)
		return nil
	})
	return n, err
}

// ObjectDelete physically removes an object and everything below it,
// regardless of epochs.
func (e *Engine) ObjectDelete(ctx context.Context, coh ContHandle, oid domain.UnitOID) error {
	return e.withCont(coh, func(h *contHandle) error {
		if h.mode != domain.ModeRW {
			return domain.ErrNoPermission.WithDetails("delete through a read-only handle")
		}
		s := scope{cont: h.cont.uuid, oid: oid}
		err := h.store().Update(ctx, func(tx storage.Tx) error {
			key := s.nodeKey(LevelObject)
			var n nodeRecord
			found, err := getJSON(tx, key, &n)
			if err != nil {
				return err
			}
			if !found {
				return domain.ErrNotFound.WithDetailsf("object %s", oid)
			}
			_, err = deleteEntry(tx, key, s, LevelObject)
			return err
		})
		if err != nil {
			return storeErr(err)
		}
		e.logger.Info("object deleted", "container", s.cont, "oid", oid.String())
		return nil
	})
}
