package vos

import (
	"context"
	"slices"
	"time"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/storage"
)

// SnapCreate pins the current HCE of the container. Discards whose range
// contains a pinned epoch are refused until the snapshot is destroyed.
func (e *Engine) SnapCreate(ctx context.Context, coh ContHandle) (domain.Epoch, error) {
	var epoch domain.Epoch
	err := e.withCont(coh, func(h *contHandle) error {
		c := h.cont
		c.mu.Lock()
		defer c.mu.Unlock()

		epoch = c.hce
		if epoch == 0 {
			return domain.ErrInvalidEpoch.WithDetails("nothing committed to snapshot")
		}
		err := h.store().Update(ctx, func(tx storage.Tx) error {
			rec, err := loadCont(tx, c.uuid)
			if err != nil {
				return err
			}
			for _, s := range rec.Snapshots {
				if s.Epoch == epoch {
					return nil
				}
			}
			rec.Snapshots = append(rec.Snapshots, domain.Snapshot{Epoch: epoch, CreatedAt: time.Now().UnixMilli()})
			slices.SortFunc(rec.Snapshots, func(a, b domain.Snapshot) int {
				return compareEpoch(a.Epoch, b.Epoch)
			})
			return putJSON(tx, contRootKey(c.uuid), rec)
		})
		if err != nil {
			return storeErr(err)
		}
		e.logger.Info("snapshot created", "container", c.uuid, "epoch", epoch.String())
		return nil
	})
	return epoch, err
}

// SnapList returns the snapshots of the container, oldest first.
func (e *Engine) SnapList(ctx context.Context, coh ContHandle) ([]domain.Snapshot, error) {
	var out []domain.Snapshot
	err := e.withCont(coh, func(h *contHandle) error {
		return storeErr(h.store().View(ctx, func(r storage.Reader) error {
			rec, err := loadCont(r, h.cont.uuid)
			if err != nil {
				return err
			}
			out = rec.Snapshots
			return nil
		}))
	})
	if out == nil && err == nil {
		out = []domain.Snapshot{}
	}
	return out, err
}

// SnapDestroy unpins the snapshot at epoch.
func (e *Engine) SnapDestroy(ctx context.Context, coh ContHandle, epoch domain.Epoch) error {
	return e.withCont(coh, func(h *contHandle) error {
		c := h.cont
		c.mu.Lock()
		defer c.mu.Unlock()

		err := h.store().Update(ctx, func(tx storage.Tx) error {
			rec, err := loadCont(tx, c.uuid)
			if err != nil {
				return err
			}
			i := slices.IndexFunc(rec.Snapshots, func(s domain.Snapshot) bool { return s.Epoch == epoch })
			if i < 0 {
				return domain.ErrSnapshotNotFound.WithDetailsf("epoch %s", epoch)
			}
			rec.Snapshots = slices.Delete(rec.Snapshots, i, i+1)
			return putJSON(tx, contRootKey(c.uuid), rec)
		})
		if err != nil {
			return storeErr(err)
		}
		e.logger.Info("snapshot destroyed", "container", c.uuid, "epoch", epoch.String())
		return nil
	})
}

func compareEpoch(a, b domain.Epoch) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
