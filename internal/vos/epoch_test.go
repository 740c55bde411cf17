package vos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/vos-go/internal/core/domain"
)

func TestEpochHold_LastHoldDominates(t *testing.T) {
	tests := []struct {
		name string
		hce  domain.Epoch
		a, b domain.Epoch
	}{
		{"both above floor", 0, 3, 7},
		{"second lower", 0, 9, 4},
		{"second below floor", 5, 8, 2},
		{"both below floor", 5, 1, 2},
		{"zero", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			coh := f.open(domain.ModeRW)
			if tt.hce > 0 {
				f.hold(coh, tt.hce)
				f.commit(coh, tt.hce)
			}

			f.hold(coh, tt.a)
			st := f.hold(coh, tt.b)

			want := max(tt.hce+1, tt.b)
			if st.LHE != want {
				t.Errorf("LHE = %s, want %s", st.LHE, want)
			}
		})
	}
}

func TestEpochHold_BusyAboveUncommittedWrite(t *testing.T) {
	f := newFixture(t, Options{})
	coh := f.open(domain.ModeRW)
	f.hold(coh, 2)
	f.write(coh, 2, testOID, "d", "a", 0, "x")

	_, err := f.e.EpochHold(coh, 3)
	wantErr(t, err, domain.ErrBusy)

	// Holding at or below the written epoch is fine.
	if st := f.hold(coh, 2); st.LHE != 2 {
		t.Errorf("LHE = %s, want 2", st.LHE)
	}
}

func TestEpochHold_ReadOnly(t *testing.T) {
	f := newFixture(t, Options{})
	coh := f.open(domain.ModeRO)
	_, err := f.e.EpochHold(coh, 1)
	wantErr(t, err, domain.ErrNoPermission)
}

func TestEpochCommit_Ordering(t *testing.T) {
	f := newFixture(t, Options{})
	coh := f.open(domain.ModeRW)

	f.hold(coh, 3)
	f.commit(coh, 3)
	f.hold(coh, 8)
	st := f.commit(coh, 8)
	if st.HCE != 8 {
		t.Fatalf("HCE = %s, want 8", st.HCE)
	}

	_, err := f.e.EpochCommit(f.ctx, coh, 3, nil)
	wantErr(t, err, domain.ErrInvalidEpoch)

	st, err = f.e.EpochQuery(coh)
	if err != nil {
		t.Fatal(err)
	}
	if st.HCE != 8 {
		t.Errorf("HCE after rejected commit = %s, want 8", st.HCE)
	}
}

func TestEpochCommit_Scenario(t *testing.T) {
	f := newFixture(t, Options{})
	coh := f.open(domain.ModeRW)

	st, err := f.e.EpochQuery(coh)
	if err != nil {
		t.Fatal(err)
	}
	if st.HCE != 0 || st.LHE != domain.EpochMax {
		t.Fatalf("initial state = %+v", st)
	}

	if st = f.hold(coh, 5); st.LHE != 5 {
		t.Fatalf("LHE after hold(5) = %s, want 5", st.LHE)
	}
	if st = f.commit(coh, 5); st.HCE != 5 {
		t.Fatalf("HCE after commit(5) = %s, want 5", st.HCE)
	}
	if st = f.hold(coh, 3); st.LHE != 6 {
		t.Fatalf("LHE after hold(3) = %s, want 6", st.LHE)
	}
}

func TestEpochCommit_Rejections(t *testing.T) {
	t.Run("below LHE", func(t *testing.T) {
		f := newFixture(t, Options{})
		coh := f.open(domain.ModeRW)
		f.hold(coh, 5)
		_, err := f.e.EpochCommit(f.ctx, coh, 4, nil)
		wantErr(t, err, domain.ErrInvalidEpoch)
	})

	t.Run("without hold", func(t *testing.T) {
		f := newFixture(t, Options{})
		coh := f.open(domain.ModeRW)
		_, err := f.e.EpochCommit(f.ctx, coh, 1, nil)
		wantErr(t, err, domain.ErrInvalidEpoch)
	})

	t.Run("earlier epoch of another writer pending", func(t *testing.T) {
		f := newFixture(t, Options{})
		a := f.open(domain.ModeRW)
		b := f.open(domain.ModeRW)
		f.hold(a, 2)
		f.write(a, 2, testOID, "d", "a", 0, "x")
		f.hold(b, 4)

		_, err := f.e.EpochCommit(f.ctx, b, 4, nil)
		wantErr(t, err, domain.ErrInvalidEpoch)

		f.commit(a, 2)
		f.commit(b, 4)
	})

	t.Run("dependency not committed", func(t *testing.T) {
		f := newFixture(t, Options{})
		coh := f.open(domain.ModeRW)
		f.hold(coh, 2)
		_, err := f.e.EpochCommit(f.ctx, coh, 2, []domain.Epoch{7})
		wantErr(t, err, domain.ErrDependencyNotSatisfied)

		if _, err := f.e.EpochCommit(f.ctx, coh, 2, []domain.Epoch{2}); err != nil {
			t.Fatalf("self dependency: %v", err)
		}
	})

	t.Run("dependency aborted", func(t *testing.T) {
		f := newFixture(t, Options{})
		coh := f.open(domain.ModeRW)
		f.hold(coh, 2)
		if _, err := f.e.EpochAbort(f.ctx, coh, 2); err != nil {
			t.Fatal(err)
		}
		_, err := f.e.EpochCommit(f.ctx, coh, 3, []domain.Epoch{2})
		wantErr(t, err, domain.ErrDependencyNotSatisfied)
	})

	t.Run("aborted epoch", func(t *testing.T) {
		f := newFixture(t, Options{})
		coh := f.open(domain.ModeRW)
		f.hold(coh, 2)
		if _, err := f.e.EpochAbort(f.ctx, coh, 2); err != nil {
			t.Fatal(err)
		}
		_, err := f.e.EpochCommit(f.ctx, coh, 2, nil)
		wantErr(t, err, domain.ErrEpochAborted)
	})

	t.Run("read only", func(t *testing.T) {
		f := newFixture(t, Options{})
		coh := f.open(domain.ModeRO)
		_, err := f.e.EpochCommit(f.ctx, coh, 1, nil)
		wantErr(t, err, domain.ErrNoPermission)
	})
}

func TestEpochCommit_Persists(t *testing.T) {
	f := newFixture(t, Options{})
	coh := f.open(domain.ModeRW)
	f.hold(coh, 4)
	f.commit(coh, 4)
	if err := f.e.ContClose(coh); err != nil {
		t.Fatal(err)
	}

	// The container state is reloaded from the store on the next open.
	coh = f.open(domain.ModeRO)
	st, err := f.e.EpochQuery(coh)
	if err != nil {
		t.Fatal(err)
	}
	if st.HCE != 4 || st.LRE != 4 {
		t.Errorf("state after reopen = %+v, want HCE 4 LRE 4", st)
	}
}

func TestEpochSlip(t *testing.T) {
	f := newFixture(t, Options{})
	coh := f.open(domain.ModeRW)
	f.hold(coh, 5)
	f.commit(coh, 5)

	tests := []struct {
		slip domain.Epoch
		want domain.Epoch
	}{
		{3, 3},
		{1, 3},
		{9, 5},
	}
	for _, tt := range tests {
		once, err := f.e.EpochSlip(coh, tt.slip)
		if err != nil {
			t.Fatal(err)
		}
		twice, err := f.e.EpochSlip(coh, tt.slip)
		if err != nil {
			t.Fatal(err)
		}
		if once.LRE != tt.want || twice.LRE != once.LRE {
			t.Errorf("slip(%s): LRE %s then %s, want %s", tt.slip, once.LRE, twice.LRE, tt.want)
		}
	}
}

func TestEpochAbort(t *testing.T) {
	var jobs []DiscardJob
	f := newFixture(t, Options{OnDiscardable: func(j DiscardJob) { jobs = append(jobs, j) }})
	coh := f.open(domain.ModeRW)
	f.hold(coh, 3)
	f.write(coh, 3, testOID, "d", "a", 0, "abc")

	if _, err := f.e.EpochAbort(f.ctx, coh, 3); err != nil {
		t.Fatalf("EpochAbort: %v", err)
	}

	// Records of the aborted epoch are hidden.
	_, err := f.fetch(coh, 3, "d", "a", 0)
	wantErr(t, err, domain.ErrNoData)

	// Writing at the aborted epoch is refused.
	wantErr(t, f.update(coh, 3, testOID, "d", "a", 5, "z"), domain.ErrEpochAborted)

	if len(jobs) != 1 {
		t.Fatalf("discard jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Epr != domain.Single(3) || jobs[0].Cookie != f.cookie(coh) || jobs[0].Reason != "abort" {
		t.Errorf("job = %+v", jobs[0])
	}

	// The aborted epoch is no longer pending, so a higher hold succeeds.
	if _, err := f.e.EpochHold(coh, 4); err != nil {
		t.Fatalf("EpochHold after abort: %v", err)
	}

	// A committed epoch cannot be aborted.
	f.commit(coh, 4)
	_, err = f.e.EpochAbort(f.ctx, coh, 4)
	wantErr(t, err, domain.ErrInvalidEpoch)
}

func TestEpochWait(t *testing.T) {
	t.Run("already committed", func(t *testing.T) {
		f := newFixture(t, Options{})
		coh := f.open(domain.ModeRW)
		f.hold(coh, 2)
		f.commit(coh, 2)
		if err := f.e.EpochWait(f.ctx, coh, 1); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("woken by commit", func(t *testing.T) {
		f := newFixture(t, Options{})
		writer := f.open(domain.ModeRW)
		reader := f.open(domain.ModeRO)
		f.hold(writer, 3)

		done := make(chan error, 1)
		go func() { done <- f.e.EpochWait(f.ctx, reader, 3) }()

		select {
		case err := <-done:
			t.Fatalf("wait returned early: %v", err)
		case <-time.After(20 * time.Millisecond):
		}

		f.commit(writer, 3)
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("EpochWait: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("wait not woken by commit")
		}
	})

	t.Run("woken by abort", func(t *testing.T) {
		f := newFixture(t, Options{})
		writer := f.open(domain.ModeRW)
		f.hold(writer, 3)

		done := make(chan error, 1)
		go func() { done <- f.e.EpochWait(f.ctx, writer, 3) }()
		time.Sleep(10 * time.Millisecond)

		if _, err := f.e.EpochAbort(f.ctx, writer, 3); err != nil {
			t.Fatal(err)
		}
		select {
		case err := <-done:
			wantErr(t, err, domain.ErrEpochAborted)
		case <-time.After(5 * time.Second):
			t.Fatal("wait not woken by abort")
		}
	})

	t.Run("canceled", func(t *testing.T) {
		f := newFixture(t, Options{})
		coh := f.open(domain.ModeRO)
		ctx, cancel := context.WithTimeout(f.ctx, 10*time.Millisecond)
		defer cancel()
		err := f.e.EpochWait(ctx, coh, 1)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("error = %v, want deadline exceeded", err)
		}
	})
}
