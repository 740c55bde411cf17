package repl

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewHistory(t *testing.T) {
	h := NewHistory("")
	if h.maxSize != DefaultHistorySize {
		t.Errorf("maxSize = %d, want %d", h.maxSize, DefaultHistorySize)
	}
	if h.file != DefaultHistoryPath() {
		t.Errorf("file = %q", h.file)
	}
}

func TestHistory_Add(t *testing.T) {
	h := &History{maxSize: 3}
	for _, cmd := range []string{"cmd1", "cmd2", "cmd2", "cmd3", "cmd4"} {
		h.Add(cmd)
	}

	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}
	tests := []struct {
		index int
		want  string
	}{
		{0, "cmd4"},
		{1, "cmd3"},
		{2, "cmd2"},
		{3, ""},
		{-1, ""},
	}
	for _, tt := range tests {
		if got := h.Get(tt.index); got != tt.want {
			t.Errorf("Get(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestHistory_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history")
	h := NewHistory(path)
	h.Add("pool query")
	h.Add("cont list")
	if err := h.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("mode = %o, want 600", perm)
	}

	loaded := NewHistory(path)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != 2 || loaded.Get(0) != "cont list" {
		t.Errorf("loaded %d entries, newest %q", loaded.Len(), loaded.Get(0))
	}
}

func TestHistory_LoadMissing(t *testing.T) {
	h := NewHistory(filepath.Join(t.TempDir(), "none"))
	if err := h.Load(); err != nil {
		t.Errorf("Load() on a missing file = %v", err)
	}
	if h.Len() != 0 {
		t.Errorf("Len() = %d", h.Len())
	}
}
