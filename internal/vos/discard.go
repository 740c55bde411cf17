package vos

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/storage"
)

// DiscardStats reports what one discard call removed.
type DiscardStats struct {
	Objects  int    `json:"objects"`
	DKeys    int    `json:"dkeys"`
	AKeys    int    `json:"akeys"`
	Records  int    `json:"records"`
	Bytes    uint64 `json:"bytes"`
	FastPath bool   `json:"fast_path"`
}

// Deleted returns the number of tree entries removed.
func (s DiscardStats) Deleted() int {
	return s.Objects + s.DKeys + s.AKeys + s.Records
}

func (s *DiscardStats) count(level Level) {
	switch level {
	case LevelObject:
		s.Objects++
	case LevelDKey:
		s.DKeys++
	case LevelAKey:
		s.AKeys++
	default:
		s.Records++
	}
}

// Discard removes the record extents written by cookie in epr that are
// stale: extents below the epoch last committed under cookie, extents at
// an aborted epoch, and extents above it that no open handle of the
// cookie still holds pending. Nodes left without children are removed too.
//
// epr must be {e,e} or {e,MAX}. Each removal is its own transaction and a
// failure does not roll back earlier removals. Callers must not write
// into epr on the same container while a discard runs.
func (e *Engine) Discard(ctx context.Context, coh ContHandle, epr domain.EpochRange, cookie uuid.UUID) (DiscardStats, error) {
	var stats DiscardStats
	err := e.withCont(coh, func(h *contHandle) error {
		var err error
		stats, err = e.discard(ctx, h.cont, epr, cookie)
		return err
	})
	return stats, err
}

// DiscardByUUID runs Discard on container id of an open pool without a
// container handle.
func (e *Engine) DiscardByUUID(ctx context.Context, poh PoolHandle, id uuid.UUID, epr domain.EpochRange, cookie uuid.UUID) (DiscardStats, error) {
	var stats DiscardStats
	err := e.withPool(poh, func(p *pool) error {
		c, err := p.acquireContainer(ctx, id)
		if err != nil {
			return err
		}
		defer p.releaseContainer(c)

		stats, err = e.discard(ctx, c, epr, cookie)
		return err
	})
	return stats, err
}

func (e *Engine) discard(ctx context.Context, c *container, epr domain.EpochRange, cookie uuid.UUID) (stats DiscardStats, err error) {
	defer func() { e.metrics.discarded(stats, err) }()
	store, cont := c.pool.store, c.uuid

	if err := epr.ValidateDiscard(); err != nil {
		return stats, err
	}

	var entry cookieRecord
	var found bool
	err = store.View(ctx, func(r storage.Reader) error {
		rec, err := loadCont(r, cont)
		if err != nil {
			return err
		}
		for _, snap := range rec.Snapshots {
			if epr.Contains(snap.Epoch) {
				return domain.ErrEpochPinned.WithDetailsf("snapshot at epoch %s", snap.Epoch)
			}
		}
		entry, found, err = cookieLookup(r, cont, cookie)
		return err
	})
	if err != nil {
		return stats, storeErr(err)
	}
	if !found || entry.Written < epr.Lo {
		stats.FastPath = true
		return stats, nil
	}

	start := time.Now()
	aborted, pending := c.discardView(cookie)
	d := &discarder{
		store:     store,
		cont:      cont,
		cookie:    cookie,
		committed: entry.Committed,
		aborted:   aborted,
		pending:   pending,
		param:     IterParam{Epr: epr, Filter: FilterGE},
		stats:     &stats,
	}
	if epr.IsSingle() {
		d.param.Filter = FilterEQ
	}
	if _, err := d.level(ctx, d.param); err != nil {
		return stats, err
	}

	if stats.Deleted() > 0 {
		e.logger.Debug("discard complete",
			"container", cont,
			"epr", epr.String(),
			"cookie", cookie,
			"records", stats.Records,
			"objects", stats.Objects,
			"bytes", stats.Bytes,
			"duration", time.Since(start))
	}
	return stats, nil
}

type discarder struct {
	store     storage.Store
	cont      uuid.UUID
	cookie    uuid.UUID
	committed domain.Epoch
	aborted   map[domain.Epoch]struct{}
	pending   map[domain.Epoch]struct{}
	param     IterParam
	stats     *DiscardStats
}

// stale reports whether a record extent of the cookie is obsolete.
func (d *discarder) stale(entry IterEntry) bool {
	if entry.Cookie != d.cookie {
		return false
	}
	epoch := entry.MinEpoch
	if _, ok := d.aborted[epoch]; ok {
		return true
	}
	switch {
	case epoch < d.committed:
		return true
	case epoch == d.committed:
		return false
	}
	_, ok := d.pending[epoch]
	return !ok
}

// discardView returns the aborted epochs of the container and the epochs
// still pending on open handles of cookie.
func (c *container) discardView(cookie uuid.UUID) (aborted, pending map[domain.Epoch]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	aborted = make(map[domain.Epoch]struct{}, len(c.aborted))
	for e := range c.aborted {
		aborted[e] = struct{}{}
	}
	pending = make(map[domain.Epoch]struct{})
	for h := range c.handles {
		if h.cookie != cookie {
			continue
		}
		for e := range h.pending {
			pending[e] = struct{}{}
		}
	}
	return aborted, pending
}

// level discards below the node selected by param and reports whether
// the node was left without children.
func (d *discarder) level(ctx context.Context, param IterParam) (bool, error) {
	it, err := newIterator(ctx, d.store, d.cont, param)
	if err != nil {
		if isExhausted(err) {
			return true, nil
		}
		return false, err
	}
	defer it.Close()

	err = it.Probe(ctx, nil)
	for err == nil {
		var entry IterEntry
		entry, _, err = it.Fetch()
		if err != nil {
			break
		}

		var empty bool
		if param.Level == LevelRecx {
			empty = d.stale(entry)
		} else {
			empty, err = d.level(ctx, param.child(entry))
			if err != nil {
				return false, err
			}
		}

		if !empty {
			err = it.Next(ctx)
			continue
		}

		var anchor Anchor
		anchor, err = it.Delete(ctx)
		if err != nil {
			return false, err
		}
		d.stats.count(param.Level)
		err = it.Probe(ctx, anchor)
	}
	d.stats.Bytes += it.freed
	if !isExhausted(err) {
		return false, err
	}
	return it.IsEmpty(ctx)
}
