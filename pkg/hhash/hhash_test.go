package hhash

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

type payload struct {
	name string
}

func TestNew(t *testing.T) {
	tests := []struct {
		bits     uint
		expected int
	}{
		{0, 1 << DefaultBucketBits},
		{MaxBucketBits + 1, 1 << DefaultBucketBits},
		{1, 2},
		{4, 16},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("bits=%d", tt.bits), func(t *testing.T) {
			tbl := New[*payload](tt.bits, 1, nil)
			if len(tbl.buckets) != tt.expected {
				t.Errorf("bucket count = %d, want %d", len(tbl.buckets), tt.expected)
			}
		})
	}
}

func TestInsertLookup(t *testing.T) {
	tbl := New[*payload](4, 2, nil)

	h1 := tbl.Insert(&payload{name: "a"})
	h2 := tbl.Insert(&payload{name: "b"})

	if h1 == h2 {
		t.Fatal("handles must be unique")
	}
	if TypeOf(h1) != 2 || TypeOf(h2) != 2 {
		t.Errorf("type tag lost: %x %x", h1, h2)
	}

	link, ok := tbl.Lookup(h1)
	if !ok || link.Value().name != "a" || link.Key() != h1 {
		t.Fatalf("Lookup(h1) = %v, %v", link, ok)
	}
	if got := tbl.Refs(h1); got != 2 {
		t.Errorf("Refs after lookup = %d, want 2", got)
	}
	tbl.Put(link)
	if got := tbl.Refs(h1); got != 1 {
		t.Errorf("Refs after put = %d, want 1", got)
	}

	if tbl.Len() != 2 || len(tbl.Keys()) != 2 {
		t.Errorf("Len = %d, Keys = %d", tbl.Len(), len(tbl.Keys()))
	}
}

func TestLookupWrongType(t *testing.T) {
	pools := New[*payload](4, 1, nil)
	conts := New[*payload](4, 2, nil)

	h := pools.Insert(&payload{})
	if _, ok := conts.Lookup(h); ok {
		t.Error("container table resolved a pool handle")
	}
	if conts.Delete(h) {
		t.Error("container table deleted a pool handle")
	}
	if _, ok := pools.Lookup(h + 1<<TypeBits); ok {
		t.Error("unknown handle resolved")
	}
}

func TestDeleteDefersDestroy(t *testing.T) {
	var destroyed []string
	tbl := New[*payload](2, 1, func(p *payload) {
		destroyed = append(destroyed, p.name)
	})

	h := tbl.Insert(&payload{name: "pool"})
	link, _ := tbl.Lookup(h)

	if !tbl.Delete(h) {
		t.Fatal("Delete returned false")
	}
	if len(destroyed) != 0 {
		t.Fatal("destroyed while a reference is outstanding")
	}
	if _, ok := tbl.Lookup(h); ok {
		t.Error("deleted handle still resolves")
	}
	if tbl.Len() != 0 {
		t.Errorf("Len = %d after delete", tbl.Len())
	}

	if !tbl.Put(link) {
		t.Error("last Put should report destruction")
	}
	if len(destroyed) != 1 || destroyed[0] != "pool" {
		t.Errorf("destroyed = %v", destroyed)
	}
	if tbl.Delete(h) {
		t.Error("second Delete should fail")
	}
}

func TestPutPanicsOnReleasedLink(t *testing.T) {
	tbl := New[*payload](2, 1, nil)
	h := tbl.Insert(&payload{})
	link, _ := tbl.Lookup(h)
	tbl.Delete(h)
	tbl.Put(link)

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	tbl.Put(link)
}

func TestConcurrentDestroyOnce(t *testing.T) {
	var destroyed atomic.Int32
	tbl := New[*payload](3, 1, func(*payload) { destroyed.Add(1) })

	const handles = 32
	const workers = 8

	keys := make([]uint64, handles)
	for i := range keys {
		keys[i] = tbl.Insert(&payload{name: fmt.Sprint(i)})
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i, k := range keys {
				if link, ok := tbl.Lookup(k); ok {
					tbl.Put(link)
				}
				if i%workers == w {
					tbl.Delete(k)
				}
			}
		}(w)
	}
	wg.Wait()

	if got := destroyed.Load(); got != handles {
		t.Errorf("destroyed = %d, want %d", got, handles)
	}
	if tbl.Len() != 0 {
		t.Errorf("Len = %d, want 0", tbl.Len())
	}
}
