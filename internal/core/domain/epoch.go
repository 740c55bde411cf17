package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Epoch is a logical version timestamp. Epoch 0 is never written.
type Epoch uint64

// EpochMax is the largest epoch. As an LHE it means "holds nothing".
const EpochMax Epoch = math.MaxUint64

// String renders EpochMax as "max".
func (e Epoch) String() string {
	if e == EpochMax {
		return "max"
	}
	return strconv.FormatUint(uint64(e), 10)
}

// ParseEpoch parses a decimal epoch or the literal "max".
func ParseEpoch(s string) (Epoch, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "max") {
		return EpochMax, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidArgument.WithDetailsf("epoch %q", s).WithCause(err)
	}
	return Epoch(v), nil
}

// EpochRange is an inclusive epoch interval.
type EpochRange struct {
	Lo Epoch `json:"lo"`
	Hi Epoch `json:"hi"`
}

// Single returns the range {e,e}.
func Single(e Epoch) EpochRange {
	return EpochRange{Lo: e, Hi: e}
}

// From returns the range {e,MAX}.
func From(e Epoch) EpochRange {
	return EpochRange{Lo: e, Hi: EpochMax}
}

// Contains reports whether e is inside the range.
func (r EpochRange) Contains(e Epoch) bool {
	return e >= r.Lo && e <= r.Hi
}

// IsSingle reports whether the range names exactly one epoch.
func (r EpochRange) IsSingle() bool {
	return r.Lo == r.Hi
}

// Validate checks that the range is well formed.
func (r EpochRange) Validate() error {
	if r.Lo > r.Hi {
		return ErrInvalidArgument.WithDetailsf("epoch range lo %s > hi %s", r.Lo, r.Hi)
	}
	return nil
}

// ValidateDiscard checks the shapes accepted by discard: {e,e} or {e,MAX}.
// Other ranges are rejected rather than widened or truncated.
func (r EpochRange) ValidateDiscard() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Lo == r.Hi || r.Hi == EpochMax {
		return nil
	}
	return ErrUnsupportedRange.WithDetails(r.String())
}

func (r EpochRange) String() string {
	return fmt.Sprintf("{%s,%s}", r.Lo, r.Hi)
}

// EpochState is the epoch view of one container handle.
type EpochState struct {
	// HCE is the highest committed epoch of the container.
	HCE Epoch `json:"hce"`
	// LRE is the lowest epoch the handle guarantees readable.
	LRE Epoch `json:"lre"`
	// LHE is the lowest epoch the handle may still write; EpochMax holds nothing.
	LHE Epoch `json:"lhe"`
}

// Holds reports whether the handle currently holds any epoch.
func (s EpochState) Holds() bool {
	return s.LHE != EpochMax
}

// HoldFloor returns the LHE produced by hold(e): max(HCE+1, e).
func (s EpochState) HoldFloor(e Epoch) Epoch {
	floor := s.HCE + 1
	if s.HCE == EpochMax {
		floor = EpochMax
	}
	if e > floor {
		return e
	}
	return floor
}

// SlipTarget returns the LRE produced by slip(e): min(HCE, max(LRE, e)).
func (s EpochState) SlipTarget(e Epoch) Epoch {
	lre := s.LRE
	if e > lre {
		lre = e
	}
	if lre > s.HCE {
		lre = s.HCE
	}
	return lre
}

// Snapshot is a pinned epoch.
type Snapshot struct {
	Epoch     Epoch `json:"epoch"`
	CreatedAt int64 `json:"created_at"`
}
