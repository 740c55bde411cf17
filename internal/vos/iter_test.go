package vos

import (
	"errors"
	"testing"

	"github.com/yndnr/vos-go/internal/core/domain"
)

func TestIterator_Levels(t *testing.T) {
	f := newFixture(t, Options{})
	coh := f.open(domain.ModeRW)
	objB := domain.UnitOID{ID: domain.ObjectID{Hi: 9}}
	objA := domain.UnitOID{ID: domain.ObjectID{Hi: 1}, Shard: 2}
	f.hold(coh, 1)
	f.write(coh, 1, objB, "d", "a", 0, "x")
	f.write(coh, 1, objA, "zeta", "a", 0, "x")
	f.write(coh, 1, objA, "alpha", "b", 0, "x")
	f.write(coh, 1, objA, "alpha", "a", 4, "yy")
	f.write(coh, 1, objA, "alpha", "a", 0, "zz")
	f.write(coh, 3, objA, "alpha", "a", 1, "w")

	collect := func(t *testing.T, param IterParam) []IterEntry {
		t.Helper()
		it, err := f.e.IterPrepare(f.ctx, coh, param)
		if err != nil {
			t.Fatalf("IterPrepare: %v", err)
		}
		defer it.Close()

		var out []IterEntry
		for err = it.Probe(f.ctx, nil); err == nil; err = it.Next(f.ctx) {
			entry, _, ferr := it.Fetch()
			if ferr != nil {
				t.Fatalf("Fetch: %v", ferr)
			}
			out = append(out, entry)
		}
		if !errors.Is(err, domain.ErrIterExhausted) {
			t.Fatalf("walk ended with %v", err)
		}
		return out
	}

	t.Run("objects in id order", func(t *testing.T) {
		got := collect(t, IterParam{Level: LevelObject})
		if len(got) != 2 || got[0].OID != objA || got[1].OID != objB {
			t.Errorf("objects = %+v", got)
		}
		if got[0].MinEpoch != 1 || got[0].MaxEpoch != 3 {
			t.Errorf("object bounds = %s..%s, want 1..3", got[0].MinEpoch, got[0].MaxEpoch)
		}
	})

	t.Run("dkeys in byte order", func(t *testing.T) {
		got := collect(t, IterParam{Level: LevelDKey, OID: objA})
		if len(got) != 2 || string(got[0].Key) != "alpha" || string(got[1].Key) != "zeta" {
			t.Errorf("dkeys = %+v", got)
		}
	})

	t.Run("recx by epoch then index", func(t *testing.T) {
		got := collect(t, IterParam{Level: LevelRecx, OID: objA, DKey: []byte("alpha"), AKey: []byte("a")})
		want := []struct {
			epoch domain.Epoch
			index uint64
		}{{1, 0}, {1, 4}, {3, 1}}
		if len(got) != len(want) {
			t.Fatalf("recx = %+v", got)
		}
		for i, w := range want {
			if got[i].MinEpoch != w.epoch || got[i].Recx.Index != w.index {
				t.Errorf("recx[%d] = %s@%s, want index %d at %s", i, got[i].Recx, got[i].MinEpoch, w.index, w.epoch)
			}
		}
	})

	t.Run("epoch filters", func(t *testing.T) {
		tests := []struct {
			name   string
			filter Filter
			epr    domain.EpochRange
			want   int
		}{
			{"none", FilterNone, domain.EpochRange{}, 3},
			{"eq", FilterEQ, domain.Single(3), 1},
			{"ge", FilterGE, domain.From(2), 1},
			{"range", FilterRange, domain.EpochRange{Lo: 1, Hi: 2}, 2},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got := collect(t, IterParam{
					Level:  LevelRecx,
					OID:    objA,
					DKey:   []byte("alpha"),
					AKey:   []byte("a"),
					Epr:    tt.epr,
					Filter: tt.filter,
				})
				if len(got) != tt.want {
					t.Errorf("entries = %d, want %d", len(got), tt.want)
				}
			})
		}

		// Node bounds filter the upper levels.
		got := collect(t, IterParam{Level: LevelObject, Epr: domain.Single(3), Filter: FilterEQ})
		if len(got) != 1 || got[0].OID != objA {
			t.Errorf("objects at epoch 3 = %+v", got)
		}
	})
}

func TestIterator_States(t *testing.T) {
	f := newFixture(t, Options{})
	coh := f.open(domain.ModeRW)

	_, err := f.e.IterPrepare(f.ctx, coh, IterParam{Level: LevelObject})
	wantErr(t, err, domain.ErrIterExhausted)
	if !domain.IsNotFound(err) {
		t.Errorf("empty tree error %v is not a NOT_FOUND", err)
	}

	_, err = f.e.IterPrepare(f.ctx, coh, IterParam{Level: LevelAKey, OID: testOID})
	wantErr(t, err, domain.ErrInvalidArgument)

	f.hold(coh, 1)
	f.write(coh, 1, testOID, "d", "a", 0, "x")

	it, err := f.e.IterPrepare(f.ctx, coh, IterParam{Level: LevelObject})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := it.Fetch(); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Fetch before Probe = %v", err)
	}
	if err := it.Next(f.ctx); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Next before Probe = %v", err)
	}
	if err := it.Probe(f.ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := it.Next(f.ctx); !errors.Is(err, domain.ErrIterExhausted) {
		t.Errorf("Next past the end = %v", err)
	}
	if _, _, err := it.Fetch(); !errors.Is(err, domain.ErrIterExhausted) {
		t.Errorf("Fetch past the end = %v", err)
	}

	it.Close()
	it.Close()
	if err := it.Probe(f.ctx, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Probe after Close = %v", err)
	}

	// A closed iterator no longer pins the container handle.
	if err := f.e.ContClose(coh); err != nil {
		t.Fatal(err)
	}
	if _, conts := f.e.OpenHandles(); conts != 0 {
		t.Errorf("container handles = %d, want 0", conts)
	}
}

func TestIterator_AnchorResume(t *testing.T) {
	f := newFixture(t, Options{})
	coh := f.open(domain.ModeRW)
	f.hold(coh, 1)
	for _, dk := range []string{"a", "b", "c", "d"} {
		f.write(coh, 1, testOID, dk, "x", 0, "v")
	}

	it, err := f.e.IterPrepare(f.ctx, coh, IterParam{Level: LevelDKey, OID: testOID})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	if err := it.Probe(f.ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := it.Next(f.ctx); err != nil {
		t.Fatal(err)
	}
	_, anchor, err := it.Fetch()
	if err != nil {
		t.Fatal(err)
	}

	// A fresh iterator probed at the anchor resumes on the same entry.
	it2, err := f.e.IterPrepare(f.ctx, coh, IterParam{Level: LevelDKey, OID: testOID})
	if err != nil {
		t.Fatal(err)
	}
	defer it2.Close()
	if err := it2.Probe(f.ctx, anchor); err != nil {
		t.Fatal(err)
	}
	entry, _, err := it2.Fetch()
	if err != nil {
		t.Fatal(err)
	}
	if string(entry.Key) != "b" {
		t.Errorf("resumed at %q, want b", entry.Key)
	}
}

func TestIterator_DeleteReprobe(t *testing.T) {
	f := newFixture(t, Options{})
	coh := f.open(domain.ModeRW)
	f.hold(coh, 1)
	for _, dk := range []string{"a", "b", "c"} {
		f.write(coh, 1, testOID, dk, "x", 0, "vv")
	}

	it, err := f.e.IterPrepare(f.ctx, coh, IterParam{Level: LevelDKey, OID: testOID})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	if err := it.Probe(f.ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := it.Next(f.ctx); err != nil {
		t.Fatal(err)
	}
	anchor, err := it.Delete(f.ctx)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// The cursor is invalid until re-probed.
	if _, _, err := it.Fetch(); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Fetch after Delete = %v", err)
	}
	if err := it.Probe(f.ctx, anchor); err != nil {
		t.Fatal(err)
	}
	entry, _, err := it.Fetch()
	if err != nil {
		t.Fatal(err)
	}
	if string(entry.Key) != "c" {
		t.Errorf("after delete at b, probe landed on %q, want c", entry.Key)
	}

	// The dkey subtree and its payload are gone.
	if _, err := f.fetch(coh, 1, "b", "x", 0); !errors.Is(err, domain.ErrNoData) {
		t.Errorf("fetch of deleted dkey = %v", err)
	}
	if got := f.poolUsed(); got != 4 {
		t.Errorf("pool used = %d, want 4", got)
	}
	if got := f.countRecords(coh); got != 2 {
		t.Errorf("records = %d, want 2", got)
	}
}

func TestIterate(t *testing.T) {
	f := newFixture(t, Options{})
	coh := f.open(domain.ModeRW)
	other := domain.UnitOID{ID: domain.ObjectID{Hi: 5}}
	f.hold(coh, 1)
	f.write(coh, 1, testOID, "d1", "a1", 0, "x")
	f.write(coh, 1, testOID, "d1", "a2", 0, "x")
	f.write(coh, 1, testOID, "d2", "a1", 0, "x")
	f.write(coh, 1, other, "d1", "a1", 0, "x")

	t.Run("pre-order", func(t *testing.T) {
		var levels []Level
		err := f.e.Iterate(f.ctx, coh, IterParam{Level: LevelObject}, func(e IterEntry) (Action, error) {
			levels = append(levels, e.Level)
			return Continue, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		want := []Level{
			LevelObject, LevelDKey, LevelAKey, LevelRecx, LevelAKey, LevelRecx, LevelDKey, LevelAKey, LevelRecx,
			LevelObject, LevelDKey, LevelAKey, LevelRecx,
		}
		if len(levels) != len(want) {
			t.Fatalf("visited %v, want %v", levels, want)
		}
		for i := range want {
			if levels[i] != want[i] {
				t.Fatalf("visited %v, want %v", levels, want)
			}
		}
	})

	t.Run("skip children", func(t *testing.T) {
		n := 0
		err := f.e.Iterate(f.ctx, coh, IterParam{Level: LevelObject}, func(e IterEntry) (Action, error) {
			n++
			if e.Level == LevelDKey {
				return SkipChildren, nil
			}
			return Continue, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if n != 5 {
			t.Errorf("visited %d entries, want 5", n)
		}
	})

	t.Run("stop", func(t *testing.T) {
		n := 0
		err := f.e.Iterate(f.ctx, coh, IterParam{Level: LevelObject}, func(e IterEntry) (Action, error) {
			n++
			if e.Level == LevelRecx {
				return Stop, nil
			}
			return Continue, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if n != 4 {
			t.Errorf("visited %d entries, want 4", n)
		}
	})

	t.Run("callback error", func(t *testing.T) {
		boom := errors.New("boom")
		err := f.e.Iterate(f.ctx, coh, IterParam{Level: LevelObject}, func(IterEntry) (Action, error) {
			return Continue, boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Iterate = %v, want boom", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		err := f.e.Iterate(f.ctx, coh, IterParam{Level: LevelDKey, OID: testOID}, func(e IterEntry) (Action, error) {
			if e.Level == LevelDKey && string(e.Key) == "d1" {
				return Delete, nil
			}
			return Continue, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if got := f.countRecords(coh); got != 2 {
			t.Errorf("records after delete = %d, want 2", got)
		}
	})
}

func TestIterator_IsEmpty(t *testing.T) {
	f := newFixture(t, Options{})
	coh := f.open(domain.ModeRW)
	oid := domain.UnitOID{ID: domain.ObjectID{Lo: 7}}
	f.hold(coh, 2)
	f.write(coh, 2, oid, "d", "a", 0, "x")

	_, err := f.e.IterPrepare(f.ctx, coh, IterParam{Level: LevelDKey, OID: domain.UnitOID{ID: domain.ObjectID{Lo: 8}}})
	wantErr(t, err, domain.ErrIterExhausted)

	it, err := f.e.IterPrepare(f.ctx, coh, IterParam{Level: LevelDKey, OID: oid, Epr: domain.Single(9), Filter: FilterEQ})
	if err != nil {
		t.Fatalf("IterPrepare: %v", err)
	}
	defer it.Close()
	empty, err := it.IsEmpty(f.ctx)
	if err != nil || empty {
		t.Fatalf("IsEmpty() = %v, %v; filter must not hide entries", empty, err)
	}
	if err := it.Probe(f.ctx, nil); !errors.Is(err, domain.ErrIterExhausted) {
		t.Errorf("Probe at filtered epoch = %v, want exhausted", err)
	}

	if err := f.e.ObjectDelete(f.ctx, coh, oid); err != nil {
		t.Fatal(err)
	}
	if empty, err := it.IsEmpty(f.ctx); err != nil || !empty {
		t.Errorf("IsEmpty() after delete = %v, %v", empty, err)
	}
}

func TestIterator_DeleteNeedsWriteHandle(t *testing.T) {
	f := newFixture(t, Options{})
	rw := f.open(domain.ModeRW)
	f.hold(rw, 1)
	f.write(rw, 1, testOID, "d", "a", 0, "x")
	f.commit(rw, 1)
	ro := f.open(domain.ModeRO)

	err := f.e.Iterate(f.ctx, ro, IterParam{Level: LevelObject}, func(IterEntry) (Action, error) {
		return Delete, nil
	})
	wantErr(t, err, domain.ErrNoPermission)

	it, err := f.e.IterPrepare(f.ctx, ro, IterParam{Level: LevelObject})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	if err := it.Probe(f.ctx, nil); err != nil {
		t.Fatal(err)
	}
	_, err = it.Delete(f.ctx)
	wantErr(t, err, domain.ErrNoPermission)

	if got := f.countRecords(ro); got != 1 {
		t.Errorf("records = %d, want 1", got)
	}
}
