package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
)

type snapRow struct {
	Container uuid.UUID    `json:"container"`
	Epoch     domain.Epoch `json:"epoch"`
	Size      uint64       `json:"size"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON, false).(*JSONFormatter); !ok {
		t.Error("expected JSONFormatter")
	}
	if _, ok := NewFormatter(FormatYAML, false).(*YAMLFormatter); !ok {
		t.Error("expected YAMLFormatter")
	}
	tf, ok := NewFormatter("unknown", true).(*TableFormatter)
	if !ok || !tf.Wide {
		t.Errorf("expected wide TableFormatter, got %#v", tf)
	}
}

func TestJSONFormatter_Format(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	var buf bytes.Buffer
	if err := (&JSONFormatter{}).Format(&buf, snapRow{Container: id, Epoch: 7, Size: 10}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`"container": "6ba7b810-9dad-11d1-80b4-00c04fd430c8"`, `"epoch": 7`, `"size": 10`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := (&JSONFormatter{}).Format(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "null" {
		t.Errorf("Format(nil) = %q", buf.String())
	}
}

func TestYAMLFormatter_Format(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	var buf bytes.Buffer
	rows := []snapRow{{Container: id, Epoch: 3, Size: 1}, {Container: id, Epoch: 4, Size: 2}}
	if err := (&YAMLFormatter{}).Format(&buf, rows); err != nil {
		t.Fatal(err)
	}

	want := "- container: 6ba7b810-9dad-11d1-80b4-00c04fd430c8\n" +
		"  epoch: 3\n" +
		"  size: 1\n" +
		"- container: 6ba7b810-9dad-11d1-80b4-00c04fd430c8\n" +
		"  epoch: 4\n" +
		"  size: 2\n"
	if buf.String() != want {
		t.Errorf("yaml output:\n%s\nwant:\n%s", buf.String(), want)
	}
}
