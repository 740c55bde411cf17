package buildinfo

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version == "" || info.Commit == "" || info.BuildTime == "" || info.GoVersion == "" {
		t.Errorf("Get() has empty fields: %+v", info)
	}
	if !strings.Contains(String(), info.Version) {
		t.Errorf("String() = %q lacks version %q", String(), info.Version)
	}
}

func TestResolve(t *testing.T) {
	embedded := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	read := func() (*debug.BuildInfo, bool) { return embedded, true }

	tests := []struct {
		name                   string
		version, commit, built string
		read                   func() (*debug.BuildInfo, bool)
		want                   Info
	}{
		{"ldflags win", "v1.0.0", "abc", "today", read,
			Info{Version: "v1.0.0", Commit: "abc", BuildTime: "today", Modified: true}},
		{"embedded fallback", "dev", "unknown", "unknown", read,
			Info{Version: "v0.4.0", Commit: "0123456789ab", BuildTime: "2026-01-02T03:04:05Z", Modified: true}},
		{"no build info", "dev", "unknown", "unknown", func() (*debug.BuildInfo, bool) { return nil, false },
			Info{Version: "dev", Commit: "unknown", BuildTime: "unknown"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolve(tt.version, tt.commit, tt.built, tt.read)
			got.GoVersion = ""
			if got != tt.want {
				t.Errorf("resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
