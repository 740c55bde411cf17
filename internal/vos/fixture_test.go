package vos

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/storage"
)

const testPoolSize = 1 << 20

var testOID = domain.UnitOID{ID: domain.ObjectID{Hi: 1, Mid: 2, Lo: 3}}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	e     *Engine
	store storage.Store
	poh   PoolHandle
	pool  uuid.UUID
	cont  uuid.UUID
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	e := New(opts)

	f := &fixture{t: t, ctx: ctx, e: e, store: store, pool: uuid.New(), cont: uuid.New()}
	if err := e.PoolCreate(ctx, store, f.pool, testPoolSize); err != nil {
		t.Fatalf("PoolCreate: %v", err)
	}
	poh, err := e.PoolOpen(ctx, store)
	if err != nil {
		t.Fatalf("PoolOpen: %v", err)
	}
	f.poh = poh
	if err := e.ContCreate(ctx, poh, f.cont); err != nil {
		t.Fatalf("ContCreate: %v", err)
	}
	t.Cleanup(func() {
		e.Close()
		store.Close()
	})
	return f
}

func (f *fixture) open(mode domain.OpenMode) ContHandle {
	f.t.Helper()
	coh, err := f.e.ContOpen(f.ctx, f.poh, f.cont, mode, uuid.Nil)
	if err != nil {
		f.t.Fatalf("ContOpen: %v", err)
	}
	return coh
}

func (f *fixture) cookie(coh ContHandle) uuid.UUID {
	f.t.Helper()
	_, cookie, err := f.e.ContUUID(coh)
	if err != nil {
		f.t.Fatalf("ContUUID: %v", err)
	}
	return cookie
}

func (f *fixture) hold(coh ContHandle, epoch domain.Epoch) domain.EpochState {
	f.t.Helper()
	st, err := f.e.EpochHold(coh, epoch)
	if err != nil {
		f.t.Fatalf("EpochHold(%s): %v", epoch, err)
	}
	return st
}

func (f *fixture) commit(coh ContHandle, epoch domain.Epoch) domain.EpochState {
	f.t.Helper()
	st, err := f.e.EpochCommit(f.ctx, coh, epoch, nil)
	if err != nil {
		f.t.Fatalf("EpochCommit(%s): %v", epoch, err)
	}
	return st
}

// write stores data with one byte per index starting at index.
func (f *fixture) write(coh ContHandle, epoch domain.Epoch, oid domain.UnitOID, dkey, akey string, index uint64, data string) {
	f.t.Helper()
	if err := f.update(coh, epoch, oid, dkey, akey, index, data); err != nil {
		f.t.Fatalf("Update(%s, %s/%s [%d]): %v", epoch, dkey, akey, index, err)
	}
}

func (f *fixture) update(coh ContHandle, epoch domain.Epoch, oid domain.UnitOID, dkey, akey string, index uint64, data string) error {
	iod := IOD{
		DKey: []byte(dkey),
		AKey: []byte(akey),
		Recx: domain.Recx{Index: index, Count: uint64(len(data))},
		Size: 1,
	}
	return f.e.Update(f.ctx, coh, epoch, oid, iod, []byte(data))
}

func (f *fixture) fetch(coh ContHandle, epoch domain.Epoch, dkey, akey string, index uint64) (domain.FetchResult, error) {
	return f.e.Fetch(f.ctx, coh, epoch, testOID, []byte(dkey), []byte(akey), index)
}

func (f *fixture) poolUsed() uint64 {
	f.t.Helper()
	info, err := f.e.PoolQuery(f.ctx, f.poh)
	if err != nil {
		f.t.Fatalf("PoolQuery: %v", err)
	}
	return info.Used
}

// countRecords counts every record extent of the container, ignoring epochs.
func (f *fixture) countRecords(coh ContHandle) int {
	f.t.Helper()
	n := 0
	err := f.e.Iterate(f.ctx, coh, IterParam{Level: LevelObject}, func(entry IterEntry) (Action, error) {
		if entry.Level == LevelRecx {
			n++
		}
		return Continue, nil
	})
	if err != nil {
		f.t.Fatalf("Iterate: %v", err)
	}
	return n
}

func wantErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want %v", err, want)
	}
}
