package domain

import (
	"errors"
	"testing"
)

func TestEpochState_HoldFloor(t *testing.T) {
	tests := []struct {
		name string
		hce  Epoch
		e    Epoch
		want Epoch
	}{
		{"below floor", 5, 3, 6},
		{"at floor", 5, 6, 6},
		{"above floor", 5, 10, 10},
		{"zero hce", 0, 0, 1},
		{"max hce", EpochMax, 1, EpochMax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := EpochState{HCE: tt.hce, LRE: 0, LHE: EpochMax}
			if got := s.HoldFloor(tt.e); got != tt.want {
				t.Errorf("HoldFloor(%d) = %d, want %d", tt.e, got, tt.want)
			}
		})
	}
}

func TestEpochState_SlipTarget(t *testing.T) {
	tests := []struct {
		name     string
		hce, lre Epoch
		e        Epoch
		want     Epoch
	}{
		{"advance", 10, 2, 5, 5},
		{"never backwards", 10, 6, 5, 6},
		{"capped at hce", 10, 2, 50, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := EpochState{HCE: tt.hce, LRE: tt.lre, LHE: EpochMax}
			got := s.SlipTarget(tt.e)
			if got != tt.want {
				t.Errorf("SlipTarget(%d) = %d, want %d", tt.e, got, tt.want)
			}
			// Idempotent.
			s.LRE = got
			if again := s.SlipTarget(tt.e); again != got {
				t.Errorf("second slip = %d, want %d", again, got)
			}
		})
	}
}

func TestEpochRange_ValidateDiscard(t *testing.T) {
	tests := []struct {
		name    string
		r       EpochRange
		wantErr error
	}{
		{"single", Single(4), nil},
		{"open ended", From(4), nil},
		{"zero single", Single(0), nil},
		{"bounded", EpochRange{Lo: 2, Hi: 7}, ErrUnsupportedRange},
		{"inverted", EpochRange{Lo: 7, Hi: 2}, ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.ValidateDiscard()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateDiscard() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDiscard() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEpochRange_Contains(t *testing.T) {
	r := From(3)
	if r.Contains(2) || !r.Contains(3) || !r.Contains(EpochMax) {
		t.Errorf("From(3) containment wrong")
	}
	s := Single(3)
	if !s.IsSingle() || s.Contains(4) {
		t.Errorf("Single(3) containment wrong")
	}
}

func TestParseEpoch(t *testing.T) {
	tests := []struct {
		in      string
		want    Epoch
		wantErr bool
	}{
		{"0", 0, false},
		{" 42 ", 42, false},
		{"max", EpochMax, false},
		{"MAX", EpochMax, false},
		{"-1", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEpoch(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEpoch(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseEpoch(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
	if EpochMax.String() != "max" || Epoch(7).String() != "7" {
		t.Error("Epoch.String() mismatch")
	}
}
