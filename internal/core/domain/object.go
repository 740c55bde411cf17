package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ObjectID is a 192-bit object identifier.
type ObjectID struct {
	Hi  uint64 `json:"hi"`
	Mid uint64 `json:"mid"`
	Lo  uint64 `json:"lo"`
}

// Compare orders object ids numerically.
func (o ObjectID) Compare(other ObjectID) int {
	switch {
	case o.Hi != other.Hi:
		return cmpUint(o.Hi, other.Hi)
	case o.Mid != other.Mid:
		return cmpUint(o.Mid, other.Mid)
	default:
		return cmpUint(o.Lo, other.Lo)
	}
}

func (o ObjectID) String() string {
	return fmt.Sprintf("%x.%x.%x", o.Hi, o.Mid, o.Lo)
}

// UnitOID addresses one shard of an object. It is the root of a KV tree.
type UnitOID struct {
	ID    ObjectID `json:"id"`
	Shard uint32   `json:"shard"`
}

// Compare orders by object id, then shard.
func (u UnitOID) Compare(other UnitOID) int {
	if c := u.ID.Compare(other.ID); c != 0 {
		return c
	}
	return cmpUint(uint64(u.Shard), uint64(other.Shard))
}

func (u UnitOID) String() string {
	return fmt.Sprintf("%s.%d", u.ID, u.Shard)
}

// ParseUnitOID parses "hi.mid.lo[.shard]" with hexadecimal id parts.
func ParseUnitOID(s string) (UnitOID, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 && len(parts) != 4 {
		return UnitOID{}, ErrInvalidArgument.WithDetailsf("object id %q", s)
	}

	var words [3]uint64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(parts[i], 16, 64)
		if err != nil {
			return UnitOID{}, ErrInvalidArgument.WithDetailsf("object id %q", s).WithCause(err)
		}
		words[i] = v
	}

	var shard uint64
	if len(parts) == 4 {
		v, err := strconv.ParseUint(parts[3], 10, 32)
		if err != nil {
			return UnitOID{}, ErrInvalidArgument.WithDetailsf("object shard %q", s).WithCause(err)
		}
		shard = v
	}

	return UnitOID{
		ID:    ObjectID{Hi: words[0], Mid: words[1], Lo: words[2]},
		Shard: uint32(shard),
	}, nil
}

// Recx is a record extent: Count consecutive indices starting at Index.
type Recx struct {
	Index uint64 `json:"index"`
	Count uint64 `json:"count"`
}

// End returns the first index after the extent.
func (r Recx) End() uint64 {
	return r.Index + r.Count
}

// Contains reports whether idx falls inside the extent.
func (r Recx) Contains(idx uint64) bool {
	return idx >= r.Index && idx < r.End()
}

// Overlaps reports whether two extents share an index.
func (r Recx) Overlaps(other Recx) bool {
	return r.Index < other.End() && other.Index < r.End()
}

// Validate rejects empty and wrapping extents.
func (r Recx) Validate() error {
	if r.Count == 0 {
		return ErrInvalidArgument.WithDetails("empty extent")
	}
	if r.End() < r.Index {
		return ErrInvalidArgument.WithDetailsf("extent [%d,+%d) wraps", r.Index, r.Count)
	}
	return nil
}

func (r Recx) String() string {
	return fmt.Sprintf("[%d,+%d)", r.Index, r.Count)
}

// OpenMode is the access mode of a container handle.
type OpenMode uint8

const (
	ModeRO OpenMode = iota
	ModeRW
)

func (m OpenMode) String() string {
	if m == ModeRW {
		return "rw"
	}
	return "ro"
}

// ParseOpenMode parses "ro" or "rw".
func ParseOpenMode(s string) (OpenMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ro", "":
		return ModeRO, nil
	case "rw":
		return ModeRW, nil
	default:
		return ModeRO, ErrInvalidArgument.WithDetailsf("open mode %q", s)
	}
}

// RecordStatus classifies what a fetch resolved to.
type RecordStatus uint8

const (
	// StatusNone means no record covers the index at the query epoch.
	StatusNone RecordStatus = iota
	// StatusData is a regular value.
	StatusData
	// StatusPunched is a tombstone.
	StatusPunched
)

func (s RecordStatus) String() string {
	switch s {
	case StatusData:
		return "data"
	case StatusPunched:
		return "punched"
	default:
		return "none"
	}
}

// FetchResult is the value of one index at a query epoch.
type FetchResult struct {
	Status RecordStatus `json:"status"`
	Epoch  Epoch        `json:"epoch"`
	Size   uint64       `json:"size"`
	Cookie uuid.UUID    `json:"cookie"`
	Data   []byte       `json:"data,omitempty"`
}

// ExtentResult is the assembled value of an extent at a query epoch.
// Indices without data are zero filled.
type ExtentResult struct {
	Data    []byte `json:"data"`
	Size    uint64 `json:"size"`
	Holes   uint64 `json:"holes"`
	Punched uint64 `json:"punched"`
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
