package memory

import (
	"fmt"
	"testing"
)

func collect(t *Tree, prefix, start string) []string {
	var keys []string
	t.Ascend([]byte(prefix), []byte(start), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	return keys
}

func TestTree_SetGetDelete(t *testing.T) {
	tr := New()

	tr.Set([]byte("a"), []byte("1"))
	tr.Set([]byte("b"), []byte("22"))

	if v, ok := tr.Get([]byte("b")); !ok || string(v) != "22" {
		t.Errorf("Get(b) = %q, %v", v, ok)
	}
	if tr.Len() != 2 || tr.Bytes() != 5 {
		t.Errorf("Len = %d, Bytes = %d", tr.Len(), tr.Bytes())
	}

	tr.Set([]byte("b"), []byte("3"))
	if tr.Bytes() != 4 {
		t.Errorf("Bytes after replace = %d, want 4", tr.Bytes())
	}

	if !tr.Delete([]byte("a")) || tr.Delete([]byte("a")) {
		t.Error("Delete should succeed exactly once")
	}
	if _, ok := tr.Get([]byte("a")); ok {
		t.Error("deleted key still present")
	}
	if tr.Bytes() != 2 {
		t.Errorf("Bytes after delete = %d, want 2", tr.Bytes())
	}
}

func TestTree_SetCopiesInput(t *testing.T) {
	tr := New()
	key := []byte("k")
	val := []byte("v")
	tr.Set(key, val)
	key[0], val[0] = 'x', 'y'

	if v, ok := tr.Get([]byte("k")); !ok || string(v) != "v" {
		t.Errorf("tree aliased caller buffers: %q %v", v, ok)
	}
}

func TestTree_Ascend(t *testing.T) {
	tr := New()
	for _, k := range []string{"a1", "a2", "a3", "b1", "a", "c"} {
		tr.Set([]byte(k), nil)
	}

	tests := []struct {
		name   string
		prefix string
		start  string
		want   []string
	}{
		{"whole prefix", "a", "", []string{"a", "a1", "a2", "a3"}},
		{"resume", "a", "a2", []string{"a2", "a3"}},
		{"resume between keys", "a", "a15", []string{"a2", "a3"}},
		{"start before prefix", "b", "a", []string{"b1"}},
		{"no match", "d", "", nil},
		{"everything", "", "", []string{"a", "a1", "a2", "a3", "b1", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(tr, tt.prefix, tt.start)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("Ascend(%q, %q) = %v, want %v", tt.prefix, tt.start, got, tt.want)
			}
		})
	}
}

func TestTree_CloneIsolation(t *testing.T) {
	base := New()
	for i := 0; i < 100; i++ {
		base.Set([]byte(fmt.Sprintf("k%03d", i)), []byte("v"))
	}

	clone := base.Clone()
	clone.Set([]byte("k000"), []byte("changed"))
	clone.Delete([]byte("k050"))
	clone.Set([]byte("new"), []byte("x"))

	if v, _ := base.Get([]byte("k000")); string(v) != "v" {
		t.Error("mutation of clone leaked into base")
	}
	if _, ok := base.Get([]byte("k050")); !ok {
		t.Error("delete in clone leaked into base")
	}
	if base.Len() != 100 || clone.Len() != 100 {
		t.Errorf("Len base=%d clone=%d", base.Len(), clone.Len())
	}
	if base.Bytes() == clone.Bytes() {
		t.Error("byte accounting should diverge")
	}
}
