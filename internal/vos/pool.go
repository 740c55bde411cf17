package vos

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/storage"
	"github.com/yndnr/vos-go/pkg/hhash"
)

// pool is the in-memory state of an open pool, shared by all of its
// handles.
type pool struct {
	uuid  uuid.UUID
	store storage.Store
	opens int // guarded by Engine.mu

	mu         sync.Mutex
	conts      map[uuid.UUID]*container
	destroying map[uuid.UUID]struct{}
}

// PoolInfo is the result of PoolQuery.
type PoolInfo struct {
	UUID       uuid.UUID `json:"uuid"`
	Size       uint64    `json:"size"`
	Used       uint64    `json:"used"`
	Available  uint64    `json:"available"`
	Containers int       `json:"containers"`
	CreatedAt  int64     `json:"created_at"`
}

// PoolCreate formats store as a pool of size payload bytes.
func (e *Engine) PoolCreate(ctx context.Context, store storage.Store, id uuid.UUID, size uint64) error {
	if id == uuid.Nil {
		return domain.ErrInvalidArgument.WithDetails("pool uuid is nil")
	}
	if size == 0 {
		return domain.ErrInvalidArgument.WithDetails("pool size is zero")
	}

	err := store.Update(ctx, func(tx storage.Tx) error {
		var existing poolRecord
		found, err := getJSON(tx, poolRootKey, &existing)
		if err != nil {
			return err
		}
		if found {
			return domain.ErrAlreadyExists.WithDetailsf("pool %s", existing.UUID)
		}
		return putJSON(tx, poolRootKey, poolRecord{
			UUID:      id,
			Size:      size,
			CreatedAt: time.Now().UnixMilli(),
		})
	})
	if err != nil {
		return storeErr(err)
	}

	e.logger.Info("pool created", "pool", id, "size", size)
	return nil
}

// PoolOpen opens the pool stored in store.
func (e *Engine) PoolOpen(ctx context.Context, store storage.Store) (PoolHandle, error) {
	var rec poolRecord
	err := store.View(ctx, func(r storage.Reader) error {
		var err error
		rec, err = loadPool(r)
		return err
	})
	if err != nil {
		return 0, storeErr(err)
	}

	e.mu.Lock()
	p, ok := e.openPools[rec.UUID]
	if ok && p.store != store {
		e.mu.Unlock()
		return 0, domain.ErrBusy.WithDetailsf("pool %s is open through another store", rec.UUID)
	}
	if !ok {
		p = &pool{
			uuid:       rec.UUID,
			store:      store,
			conts:      make(map[uuid.UUID]*container),
			destroying: make(map[uuid.UUID]struct{}),
		}
		e.openPools[rec.UUID] = p
		e.logger.Info("pool opened", "pool", rec.UUID)
	}
	p.opens++
	e.mu.Unlock()

	key := e.pools.Insert(&poolRef{pool: p})
	e.metrics.poolOpened()
	return PoolHandle(key), nil
}

// PoolClose closes a pool handle. Container handles opened through it
// keep the pool alive until they are closed.
func (e *Engine) PoolClose(poh PoolHandle) error {
	if hhash.TypeOf(uint64(poh)) != handleTypePool || !e.pools.Delete(uint64(poh)) {
		return domain.ErrHandleNotFound.WithDetailsf("pool handle %#x", uint64(poh))
	}
	return nil
}

func (e *Engine) releasePool(ref *poolRef) {
	p := ref.pool
	e.metrics.poolClosed()

	e.mu.Lock()
	defer e.mu.Unlock()
	p.opens--
	if p.opens == 0 {
		delete(e.openPools, p.uuid)
		e.logger.Info("pool closed", "pool", p.uuid)
	}
}

// PoolQuery returns the pool size, usage and container count.
func (e *Engine) PoolQuery(ctx context.Context, poh PoolHandle) (PoolInfo, error) {
	var info PoolInfo
	err := e.withPool(poh, func(p *pool) error {
		return p.store.View(ctx, func(r storage.Reader) error {
			rec, err := loadPool(r)
			if err != nil {
				return err
			}
			info = PoolInfo{
				UUID:      rec.UUID,
				Size:      rec.Size,
				Used:      rec.Used,
				CreatedAt: rec.CreatedAt,
			}
			if rec.Size > rec.Used {
				info.Available = rec.Size - rec.Used
			}
			return r.Scan([]byte{tagCont}, nil, func(_, _ []byte) bool {
				info.Containers++
				return true
			})
		})
	})
	return info, storeErr(err)
}

// PoolUUID returns the uuid of an open pool.
func (e *Engine) PoolUUID(poh PoolHandle) (uuid.UUID, error) {
	var id uuid.UUID
	err := e.withPool(poh, func(p *pool) error {
		id = p.uuid
		return nil
	})
	return id, err
}
