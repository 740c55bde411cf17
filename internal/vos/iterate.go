package vos

import (
	"context"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/storage"
)

// Action tells Iterate what to do after the callback returns.
type Action int

const (
	// Continue descends into the children of the entry, then moves on.
	Continue Action = iota
	// SkipChildren moves on without visiting the children.
	SkipChildren
	// Stop ends the walk.
	Stop
	// Delete removes the entry and its subtree, then moves on.
	Delete
)

// Iterate walks the tree from param.Level down to record extents, calling
// fn for every entry in pre-order. The epoch filter applies at every
// level. The Delete action needs an RW handle.
func (e *Engine) Iterate(ctx context.Context, coh ContHandle, param IterParam, fn func(IterEntry) (Action, error)) error {
	return e.withCont(coh, func(h *contHandle) error {
		_, err := iterateLevel(ctx, h.store(), h.cont.uuid, h.mode != domain.ModeRW, param, fn)
		return err
	})
}

// iterateLevel walks one level and recurses into children. It reports
// whether the callback asked to stop.
func iterateLevel(ctx context.Context, store storage.Store, cont uuid.UUID, readOnly bool, param IterParam, fn func(IterEntry) (Action, error)) (bool, error) {
	it, err := newIterator(ctx, store, cont, param)
	if err != nil {
		if isExhausted(err) {
			return false, nil
		}
		return false, err
	}
	defer it.Close()
	it.readOnly = readOnly

	err = it.Probe(ctx, nil)
	for err == nil {
		if err = ctx.Err(); err != nil {
			return false, err
		}

		var entry IterEntry
		entry, _, err = it.Fetch()
		if err != nil {
			break
		}

		var act Action
		act, err = fn(entry)
		if err != nil {
			return false, err
		}

		switch act {
		case Stop:
			return true, nil
		case Delete:
			var anchor Anchor
			anchor, err = it.Delete(ctx)
			if err != nil {
				return false, err
			}
			err = it.Probe(ctx, anchor)
			continue
		case Continue:
			if param.Level < LevelRecx {
				stop, cerr := iterateLevel(ctx, store, cont, readOnly, param.child(entry), fn)
				if cerr != nil || stop {
					return stop, cerr
				}
			}
		}
		err = it.Next(ctx)
	}
	if isExhausted(err) {
		return false, nil
	}
	return false, err
}
