package vos

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/storage"
	"github.com/yndnr/vos-go/pkg/hhash"
)

// destroyBatch bounds the number of keys removed per transaction when a
// container is destroyed.
const destroyBatch = 1024

// container is the in-memory epoch state of an open container, shared by
// all of its handles.
type container struct {
	uuid  uuid.UUID
	pool  *pool
	opens int // guarded by pool.mu

	mu      sync.Mutex
	hce     domain.Epoch
	aborted map[domain.Epoch]struct{}
	handles map[*contHandle]struct{}
	// changed is closed and replaced whenever HCE advances or an epoch is
	// aborted.
	changed chan struct{}
}

// broadcastLocked wakes every Wait caller. c.mu must be held.
func (c *container) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *container) isAbortedLocked(e domain.Epoch) bool {
	_, ok := c.aborted[e]
	return ok
}

// abortedSnapshot copies the aborted set for use outside c.mu.
func (c *container) abortedSnapshot() map[domain.Epoch]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.Epoch]struct{}, len(c.aborted))
	for e := range c.aborted {
		out[e] = struct{}{}
	}
	return out
}

// contHandle is the registry payload of one container handle.
type contHandle struct {
	cont     *container
	poolLink *hhash.Link[*poolRef]
	mode     domain.OpenMode
	cookie   uuid.UUID

	// Guarded by cont.mu.
	lre     domain.Epoch
	lhe     domain.Epoch
	pending map[domain.Epoch]struct{}
}

func (h *contHandle) store() storage.Store {
	return h.cont.pool.store
}

func (h *contHandle) stateLocked() domain.EpochState {
	return domain.EpochState{HCE: h.cont.hce, LRE: h.lre, LHE: h.lhe}
}

func (h *contHandle) lowestPendingLocked() (domain.Epoch, bool) {
	lowest, ok := domain.EpochMax, false
	for e := range h.pending {
		if e < lowest {
			lowest = e
		}
		ok = true
	}
	return lowest, ok
}

// ContInfo is the result of ContQuery.
type ContInfo struct {
	UUID        uuid.UUID         `json:"uuid"`
	HCE         domain.Epoch      `json:"hce"`
	LRE         domain.Epoch      `json:"lre"`
	LHE         domain.Epoch      `json:"lhe"`
	Mode        string            `json:"mode"`
	Cookie      uuid.UUID         `json:"cookie"`
	Objects     int               `json:"objects"`
	Snapshots   []domain.Snapshot `json:"snapshots"`
	OpenHandles int               `json:"open_handles"`
}

// ContSummary is one entry of ContList.
type ContSummary struct {
	UUID        uuid.UUID    `json:"uuid"`
	HCE         domain.Epoch `json:"hce"`
	Snapshots   int          `json:"snapshots"`
	OpenHandles int          `json:"open_handles"`
	CreatedAt   int64        `json:"created_at"`
}

// acquireContainer returns the shared state of container id, loading it
// from the store on first use. Callers release it with releaseContainer.
func (p *pool) acquireContainer(ctx context.Context, id uuid.UUID) (*container, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conts[id]; ok {
		c.opens++
		return c, nil
	}
	if _, ok := p.destroying[id]; ok {
		return nil, domain.ErrBusy.WithDetailsf("container %s is being destroyed", id)
	}

	var rec contRecord
	err := p.store.View(ctx, func(r storage.Reader) error {
		var err error
		rec, err = loadCont(r, id)
		return err
	})
	if err != nil {
		return nil, storeErr(err)
	}

	c := &container{
		uuid:    id,
		pool:    p,
		opens:   1,
		hce:     rec.HCE,
		aborted: make(map[domain.Epoch]struct{}, len(rec.Aborted)),
		handles: make(map[*contHandle]struct{}),
		changed: make(chan struct{}),
	}
	for _, e := range rec.Aborted {
		c.aborted[e] = struct{}{}
	}
	p.conts[id] = c
	return c, nil
}

func (p *pool) releaseContainer(c *container) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c.opens--
	if c.opens == 0 {
		delete(p.conts, c.uuid)
	}
}

// ContCreate creates an empty container with HCE 0.
func (e *Engine) ContCreate(ctx context.Context, poh PoolHandle, id uuid.UUID) error {
	if id == uuid.Nil {
		return domain.ErrInvalidArgument.WithDetails("container uuid is nil")
	}
	return e.withPool(poh, func(p *pool) error {
		err := p.store.Update(ctx, func(tx storage.Tx) error {
			var existing contRecord
			found, err := getJSON(tx, contRootKey(id), &existing)
			if err != nil {
				return err
			}
			if found {
				return domain.ErrAlreadyExists.WithDetailsf("container %s", id)
			}
			return putJSON(tx, contRootKey(id), contRecord{UUID: id, CreatedAt: time.Now().UnixMilli()})
		})
		if err != nil {
			return storeErr(err)
		}
		e.logger.Info("container created", "pool", p.uuid, "container", id)
		return nil
	})
}

// ContDestroy removes a container and every record below it. It fails
// with ErrContainerInUse while the container is open. Opens of the
// container fail with ErrBusy until the destroy returns.
func (e *Engine) ContDestroy(ctx context.Context, poh PoolHandle, id uuid.UUID) error {
	return e.withPool(poh, func(p *pool) error {
		if err := p.beginDestroy(id); err != nil {
			return err
		}
		defer p.endDestroy(id)

		err := p.store.View(ctx, func(r storage.Reader) error {
			_, err := loadCont(r, id)
			return err
		})
		if err != nil {
			return storeErr(err)
		}

		var removed int
		var freed uint64
		// The root goes last so a partial destroy can be resumed.
		for i := len(allContainerTags) - 1; i >= 0; i-- {
			n, bytes, err := deletePrefixBatched(ctx, p.store, contPrefix(allContainerTags[i], id))
			removed += n
			freed += bytes
			if err != nil {
				return storeErr(err)
			}
		}

		e.logger.Info("container destroyed",
			"pool", p.uuid,
			"container", id,
			"records", removed,
			"bytes_freed", freed)
		return nil
	})
}

func (p *pool) beginDestroy(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conts[id]; ok && c.opens > 0 {
		return domain.ErrContainerInUse.WithDetailsf("container %s has %d users", id, c.opens)
	}
	if _, ok := p.destroying[id]; ok {
		return domain.ErrBusy.WithDetailsf("container %s is being destroyed", id)
	}
	p.destroying[id] = struct{}{}
	return nil
}

func (p *pool) endDestroy(id uuid.UUID) {
	p.mu.Lock()
	delete(p.destroying, id)
	p.mu.Unlock()
}

// deletePrefixBatched deletes every key under prefix in bounded
// transactions, crediting recx payload bytes back to the pool.
func deletePrefixBatched(ctx context.Context, store storage.Store, prefix []byte) (int, uint64, error) {
	var total int
	var freed uint64
	for {
		var n int
		err := store.Update(ctx, func(tx storage.Tx) error {
			var keys [][]byte
			var bytes uint64
			err := tx.Scan(prefix, nil, func(k, v []byte) bool {
				keys = append(keys, append([]byte(nil), k...))
				if k[0] == tagRecx {
					var rec recxRecord
					if json.Unmarshal(v, &rec) == nil {
						bytes += uint64(len(rec.Data))
					}
				}
				return len(keys) < destroyBatch
			})
			if err != nil {
				return err
			}
			for _, k := range keys {
				if err := tx.Delete(k); err != nil {
					return err
				}
			}
			n = len(keys)
			if bytes > 0 {
				if err := chargeSpace(tx, -int64(bytes)); err != nil {
					return err
				}
				freed += bytes
			}
			return nil
		})
		if err != nil {
			return total, freed, err
		}
		total += n
		if n < destroyBatch {
			return total, freed, nil
		}
	}
}

// ContOpen opens container id. A nil cookie on a write handle is replaced
// by a fresh one, so every writer is distinguishable.
func (e *Engine) ContOpen(ctx context.Context, poh PoolHandle, id uuid.UUID, mode domain.OpenMode, cookie uuid.UUID) (ContHandle, error) {
	if mode != domain.ModeRO && mode != domain.ModeRW {
		return 0, domain.ErrInvalidArgument.WithDetailsf("open mode %d", mode)
	}
	if cookie == uuid.Nil && mode == domain.ModeRW {
		cookie = uuid.New()
	}

	poolLink, err := e.lookupPool(poh)
	if err != nil {
		return 0, err
	}
	p := poolLink.Value().pool

	c, err := p.acquireContainer(ctx, id)
	if err != nil {
		e.pools.Put(poolLink)
		return 0, err
	}

	h := &contHandle{
		cont:     c,
		poolLink: poolLink,
		mode:     mode,
		cookie:   cookie,
		lhe:      domain.EpochMax,
		pending:  make(map[domain.Epoch]struct{}),
	}
	c.mu.Lock()
	h.lre = c.hce
	c.handles[h] = struct{}{}
	c.mu.Unlock()

	key := e.conts.Insert(h)
	e.metrics.contOpened()
	e.logger.Debug("container opened",
		"container", id,
		"mode", mode.String(),
		"cookie", cookie)
	return ContHandle(key), nil
}

// ContClose closes a container handle. Epochs the handle wrote but never
// committed are reported to OnDiscardable once in-flight calls finish.
func (e *Engine) ContClose(coh ContHandle) error {
	if hhash.TypeOf(uint64(coh)) != handleTypeCont || !e.conts.Delete(uint64(coh)) {
		return domain.ErrHandleNotFound.WithDetailsf("container handle %#x", uint64(coh))
	}
	return nil
}

func (e *Engine) releaseCont(h *contHandle) {
	c := h.cont

	c.mu.Lock()
	delete(c.handles, h)
	var jobs []DiscardJob
	for ep := range h.pending {
		jobs = append(jobs, DiscardJob{
			Pool:      c.pool.uuid,
			Container: c.uuid,
			Epr:       domain.Single(ep),
			Cookie:    h.cookie,
			Reason:    "release",
		})
	}
	h.pending = nil
	c.mu.Unlock()

	c.pool.releaseContainer(c)
	e.pools.Put(h.poolLink)
	e.metrics.contClosed()

	if len(jobs) > 0 {
		e.logger.Info("write handle released with uncommitted epochs",
			"container", c.uuid,
			"cookie", h.cookie,
			"epochs", len(jobs))
	}
	e.notifyDiscardable(jobs)
}

// ContQuery returns the epoch state of the handle and container counts.
func (e *Engine) ContQuery(ctx context.Context, coh ContHandle) (ContInfo, error) {
	var info ContInfo
	err := e.withCont(coh, func(h *contHandle) error {
		c := h.cont
		c.mu.Lock()
		st := h.stateLocked()
		open := len(c.handles)
		c.mu.Unlock()

		info = ContInfo{
			UUID:        c.uuid,
			HCE:         st.HCE,
			LRE:         st.LRE,
			LHE:         st.LHE,
			Mode:        h.mode.String(),
			Cookie:      h.cookie,
			OpenHandles: open,
		}
		return storeErr(h.store().View(ctx, func(r storage.Reader) error {
			rec, err := loadCont(r, c.uuid)
			if err != nil {
				return err
			}
			info.Snapshots = rec.Snapshots
			if info.Snapshots == nil {
				info.Snapshots = []domain.Snapshot{}
			}
			return r.Scan(contPrefix(tagObject, c.uuid), nil, func(_, _ []byte) bool {
				info.Objects++
				return true
			})
		}))
	})
	return info, err
}

// ContList lists the containers of a pool.
func (e *Engine) ContList(ctx context.Context, poh PoolHandle) ([]ContSummary, error) {
	var out []ContSummary
	err := e.withPool(poh, func(p *pool) error {
		var recs []contRecord
		err := p.store.View(ctx, func(r storage.Reader) error {
			var decodeErr error
			err := r.Scan([]byte{tagCont}, nil, func(_, v []byte) bool {
				var rec contRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					decodeErr = domain.ErrIO.WithDetails("decode container record").WithCause(err)
					return false
				}
				recs = append(recs, rec)
				return true
			})
			if err != nil {
				return err
			}
			return decodeErr
		})
		if err != nil {
			return storeErr(err)
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		for _, rec := range recs {
			s := ContSummary{
				UUID:      rec.UUID,
				HCE:       rec.HCE,
				Snapshots: len(rec.Snapshots),
				CreatedAt: rec.CreatedAt,
			}
			if c, ok := p.conts[rec.UUID]; ok {
				c.mu.Lock()
				s.HCE = c.hce
				s.OpenHandles = len(c.handles)
				c.mu.Unlock()
			}
			out = append(out, s)
		}
		return nil
	})
	return out, err
}

// ContUUID returns the container uuid and cookie of a handle.
func (e *Engine) ContUUID(coh ContHandle) (cont, cookie uuid.UUID, err error) {
	err = e.withCont(coh, func(h *contHandle) error {
		cont, cookie = h.cont.uuid, h.cookie
		return nil
	})
	return cont, cookie, err
}
