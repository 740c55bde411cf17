package token

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("Generate returned the same token twice")
	}
	if !strings.HasPrefix(a, Prefix) || len(a) != len(Prefix)+43 {
		t.Errorf("token = %q", a)
	}
}

func TestHash(t *testing.T) {
	h := Hash("vosk_abc")
	if !strings.HasPrefix(h, HashPrefix) || len(h) != len(HashPrefix)+64 {
		t.Errorf("Hash() = %q", h)
	}
	if Hash("vosk_abc") != h {
		t.Error("Hash is not deterministic")
	}
	if !IsHash(h) {
		t.Error("IsHash rejected a hash")
	}
}

func TestIsHash(t *testing.T) {
	tests := map[string]bool{
		Hash("x"):                         true,
		"vosk_" + strings.Repeat("a", 43): false,
		"vosh_short":                      false,
		"vosh_" + strings.Repeat("z", 64): false,
		strings.Repeat("a", 64):           false,
		"":                                false,
	}
	for in, want := range tests {
		if got := IsHash(in); got != want {
			t.Errorf("IsHash(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMatcher(t *testing.T) {
	tok, err := Generate()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		configured string
		presented  string
		want       bool
	}{
		{"plain match", "s3cret", "s3cret", true},
		{"plain mismatch", "s3cret", "nope", false},
		{"hash match", Hash(tok), tok, true},
		{"hash mismatch", Hash(tok), tok + "x", false},
		{"hash presented as token", Hash(tok), Hash(tok), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matcher(tt.configured)(tt.presented); got != tt.want {
				t.Errorf("Matcher(%q)(%q) = %v, want %v", tt.configured, tt.presented, got, tt.want)
			}
		})
	}
}
