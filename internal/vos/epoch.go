package vos

import (
	"context"
	"slices"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/storage"
)

// EpochQuery returns the epoch state seen through coh.
func (e *Engine) EpochQuery(coh ContHandle) (domain.EpochState, error) {
	var st domain.EpochState
	err := e.withCont(coh, func(h *contHandle) error {
		h.cont.mu.Lock()
		st = h.stateLocked()
		h.cont.mu.Unlock()
		return nil
	})
	return st, err
}

// EpochHold sets the handle LHE to max(HCE+1, epoch). The last hold wins,
// so a hold may also lower the LHE. It fails with BUSY when the handle has
// written below the new LHE without committing.
func (e *Engine) EpochHold(coh ContHandle, epoch domain.Epoch) (domain.EpochState, error) {
	var st domain.EpochState
	err := e.withCont(coh, func(h *contHandle) error {
		if h.mode != domain.ModeRW {
			return domain.ErrNoPermission.WithDetails("hold through a read-only handle")
		}
		c := h.cont
		c.mu.Lock()
		defer c.mu.Unlock()

		lhe := h.stateLocked().HoldFloor(epoch)
		if lowest, ok := h.lowestPendingLocked(); ok && lhe > lowest {
			return domain.ErrBusy.WithDetailsf("epoch %s written but not committed", lowest)
		}
		h.lhe = lhe
		st = h.stateLocked()
		return nil
	})
	return st, err
}

// EpochSlip raises the handle LRE to min(HCE, max(LRE, epoch)).
func (e *Engine) EpochSlip(coh ContHandle, epoch domain.Epoch) (domain.EpochState, error) {
	var st domain.EpochState
	err := e.withCont(coh, func(h *contHandle) error {
		c := h.cont
		c.mu.Lock()
		defer c.mu.Unlock()

		h.lre = h.stateLocked().SlipTarget(epoch)
		st = h.stateLocked()
		return nil
	})
	return st, err
}

// EpochCommit commits epoch for the container of coh. Every epoch in
// depends must already be committed, or equal epoch itself.
func (e *Engine) EpochCommit(ctx context.Context, coh ContHandle, epoch domain.Epoch, depends []domain.Epoch) (domain.EpochState, error) {
	var st domain.EpochState
	err := e.withCont(coh, func(h *contHandle) error {
		if h.mode != domain.ModeRW {
			return domain.ErrNoPermission.WithDetails("commit through a read-only handle")
		}
		c := h.cont
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.isAbortedLocked(epoch) {
			return domain.ErrEpochAborted.WithDetailsf("epoch %s", epoch)
		}
		if epoch < c.hce {
			return domain.ErrInvalidEpoch.WithDetailsf("epoch %s is below HCE %s", epoch, c.hce)
		}
		if epoch < h.lhe {
			return domain.ErrInvalidEpoch.WithDetailsf("epoch %s is below LHE %s", epoch, h.lhe)
		}
		for other := range c.handles {
			if other == h {
				continue
			}
			if lowest, ok := other.lowestPendingLocked(); ok && lowest < epoch {
				return domain.ErrInvalidEpoch.WithDetailsf("epoch %s of another writer is still uncommitted", lowest)
			}
		}
		for _, d := range depends {
			if c.isAbortedLocked(d) {
				return domain.ErrDependencyNotSatisfied.WithDetailsf("dependency %s was aborted", d)
			}
			if d > c.hce && d != epoch {
				return domain.ErrDependencyNotSatisfied.WithDetailsf("dependency %s is not committed", d)
			}
		}

		err := h.store().Update(ctx, func(tx storage.Tx) error {
			rec, err := loadCont(tx, c.uuid)
			if err != nil {
				return err
			}
			if rec.HCE < epoch {
				rec.HCE = epoch
				if err := putJSON(tx, contRootKey(c.uuid), rec); err != nil {
					return err
				}
			}
			_, _, err = cookieFindUpdate(tx, c.uuid, h.cookie, epoch, true)
			return err
		})
		if err != nil {
			return storeErr(err)
		}

		c.hce = epoch
		for p := range h.pending {
			if p <= epoch {
				delete(h.pending, p)
			}
		}
		if epoch == domain.EpochMax {
			h.lhe = domain.EpochMax
		} else {
			h.lhe = epoch + 1
		}
		c.broadcastLocked()
		st = h.stateLocked()
		e.metrics.committed()
		return nil
	})
	return st, err
}

// EpochAbort invalidates an uncommitted epoch. Records written at it stay
// in the tree, hidden from fetch, until a discard removes them.
func (e *Engine) EpochAbort(ctx context.Context, coh ContHandle, epoch domain.Epoch) (domain.EpochState, error) {
	var st domain.EpochState
	var job DiscardJob
	err := e.withCont(coh, func(h *contHandle) error {
		if h.mode != domain.ModeRW {
			return domain.ErrNoPermission.WithDetails("abort through a read-only handle")
		}
		c := h.cont
		c.mu.Lock()
		defer c.mu.Unlock()

		if epoch <= c.hce {
			return domain.ErrInvalidEpoch.WithDetailsf("epoch %s is already committed (HCE %s)", epoch, c.hce)
		}
		if epoch < h.lhe {
			return domain.ErrInvalidEpoch.WithDetailsf("epoch %s is below LHE %s", epoch, h.lhe)
		}

		if !c.isAbortedLocked(epoch) {
			err := h.store().Update(ctx, func(tx storage.Tx) error {
				rec, err := loadCont(tx, c.uuid)
				if err != nil {
					return err
				}
				if !slices.Contains(rec.Aborted, epoch) {
					rec.Aborted = append(rec.Aborted, epoch)
					slices.Sort(rec.Aborted)
				}
				return putJSON(tx, contRootKey(c.uuid), rec)
			})
			if err != nil {
				return storeErr(err)
			}
			c.aborted[epoch] = struct{}{}
			c.broadcastLocked()
		}

		delete(h.pending, epoch)
		job = DiscardJob{
			Pool:      c.pool.uuid,
			Container: c.uuid,
			Epr:       domain.Single(epoch),
			Cookie:    h.cookie,
			Reason:    "abort",
		}
		st = h.stateLocked()
		e.metrics.aborted()
		return nil
	})
	if err != nil {
		return st, err
	}
	e.notifyDiscardable([]DiscardJob{job})
	return st, nil
}

// EpochWait blocks until epoch is committed. It returns ErrEpochAborted if
// the epoch is aborted instead, or the context error on cancellation.
func (e *Engine) EpochWait(ctx context.Context, coh ContHandle, epoch domain.Epoch) error {
	return e.withCont(coh, func(h *contHandle) error {
		c := h.cont
		for {
			c.mu.Lock()
			if c.hce >= epoch {
				c.mu.Unlock()
				return nil
			}
			if c.isAbortedLocked(epoch) {
				c.mu.Unlock()
				return domain.ErrEpochAborted.WithDetailsf("epoch %s", epoch)
			}
			changed := c.changed
			c.mu.Unlock()

			select {
			case <-changed:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}
