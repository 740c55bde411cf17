package vos

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
)

// Record key tags. Every persisted record lives under exactly one tag.
const (
	tagPool   = 'P'
	tagCont   = 'C'
	tagCookie = 'K'
	tagObject = 'O'
	tagDKey   = 'D'
	tagAKey   = 'A'
	tagRecx   = 'R'
)

const (
	uuidLen = 16
	oidLen  = 28 // hi, mid, lo (8 each) + shard (4)
	recxLen = 16 // epoch + index
)

var poolRootKey = []byte{tagPool}

// allContainerTags lists every tag whose keys are scoped by a container.
var allContainerTags = []byte{tagCont, tagCookie, tagObject, tagDKey, tagAKey, tagRecx}

func contPrefix(tag byte, c uuid.UUID) []byte {
	k := make([]byte, 0, 1+uuidLen+oidLen+recxLen)
	k = append(k, tag)
	return append(k, c[:]...)
}

func contRootKey(c uuid.UUID) []byte {
	return contPrefix(tagCont, c)
}

func cookieKey(c, cookie uuid.UUID) []byte {
	return append(contPrefix(tagCookie, c), cookie[:]...)
}

func appendOID(b []byte, u domain.UnitOID) []byte {
	b = binary.BigEndian.AppendUint64(b, u.ID.Hi)
	b = binary.BigEndian.AppendUint64(b, u.ID.Mid)
	b = binary.BigEndian.AppendUint64(b, u.ID.Lo)
	return binary.BigEndian.AppendUint32(b, u.Shard)
}

func decodeOID(b []byte) (domain.UnitOID, error) {
	if len(b) != oidLen {
		return domain.UnitOID{}, fmt.Errorf("object key has %d bytes", len(b))
	}
	return domain.UnitOID{
		ID: domain.ObjectID{
			Hi:  binary.BigEndian.Uint64(b[0:8]),
			Mid: binary.BigEndian.Uint64(b[8:16]),
			Lo:  binary.BigEndian.Uint64(b[16:24]),
		},
		Shard: binary.BigEndian.Uint32(b[24:28]),
	}, nil
}

// appendEscaped appends s so that byte order of escaped strings matches
// byte order of the originals and no escaped string prefixes another:
// 0x00 becomes 0x00 0xFF and the string ends with 0x00 0x01.
func appendEscaped(b, s []byte) []byte {
	for _, c := range s {
		if c == 0 {
			b = append(b, 0x00, 0xFF)
			continue
		}
		b = append(b, c)
	}
	return append(b, 0x00, 0x01)
}

// unescape decodes one escaped string from the front of b.
func unescape(b []byte) (s, rest []byte, err error) {
	s = make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != 0 {
			s = append(s, b[i])
			continue
		}
		if i+1 >= len(b) {
			return nil, nil, fmt.Errorf("truncated escape")
		}
		switch b[i+1] {
		case 0xFF:
			s = append(s, 0)
			i++
		case 0x01:
			return s, b[i+2:], nil
		default:
			return nil, nil, fmt.Errorf("bad escape 0x00 0x%02x", b[i+1])
		}
	}
	return nil, nil, fmt.Errorf("unterminated key")
}

func appendRecx(b []byte, epoch domain.Epoch, index uint64) []byte {
	b = binary.BigEndian.AppendUint64(b, uint64(epoch))
	return binary.BigEndian.AppendUint64(b, index)
}

func decodeRecx(b []byte) (domain.Epoch, uint64, error) {
	if len(b) != recxLen {
		return 0, 0, fmt.Errorf("recx key has %d bytes", len(b))
	}
	return domain.Epoch(binary.BigEndian.Uint64(b[:8])), binary.BigEndian.Uint64(b[8:]), nil
}

// scope names a position in the object tree of one container. Fields
// below the addressed level are ignored.
type scope struct {
	cont uuid.UUID
	oid  domain.UnitOID
	dkey []byte
	akey []byte
}

// childPrefix returns the key prefix shared by every child of the node
// that owns entries of the given level.
func (s scope) childPrefix(level Level) []byte {
	switch level {
	case LevelObject:
		return contPrefix(tagObject, s.cont)
	case LevelDKey:
		return appendOID(contPrefix(tagDKey, s.cont), s.oid)
	case LevelAKey:
		return appendEscaped(appendOID(contPrefix(tagAKey, s.cont), s.oid), s.dkey)
	default:
		k := appendOID(contPrefix(tagRecx, s.cont), s.oid)
		k = appendEscaped(k, s.dkey)
		return appendEscaped(k, s.akey)
	}
}

// nodeKey returns the key of the node at level (object, dkey or akey).
func (s scope) nodeKey(level Level) []byte {
	switch level {
	case LevelObject:
		return appendOID(contPrefix(tagObject, s.cont), s.oid)
	case LevelDKey:
		return appendEscaped(s.childPrefix(LevelDKey), s.dkey)
	default:
		return appendEscaped(s.childPrefix(LevelAKey), s.akey)
	}
}

// recxKey returns the key of one record extent.
func (s scope) recxKey(epoch domain.Epoch, index uint64) []byte {
	return appendRecx(s.childPrefix(LevelRecx), epoch, index)
}

// recxEpochPrefix returns the prefix of the record extents written at
// epoch.
func (s scope) recxEpochPrefix(epoch domain.Epoch) []byte {
	return binary.BigEndian.AppendUint64(s.childPrefix(LevelRecx), uint64(epoch))
}

// descendantPrefixes returns the prefixes holding everything below the
// node at level.
func (s scope) descendantPrefixes(level Level) [][]byte {
	switch level {
	case LevelObject:
		return [][]byte{
			appendOID(contPrefix(tagDKey, s.cont), s.oid),
			appendOID(contPrefix(tagAKey, s.cont), s.oid),
			appendOID(contPrefix(tagRecx, s.cont), s.oid),
		}
	case LevelDKey:
		return [][]byte{
			appendEscaped(appendOID(contPrefix(tagAKey, s.cont), s.oid), s.dkey),
			appendEscaped(appendOID(contPrefix(tagRecx, s.cont), s.oid), s.dkey),
		}
	case LevelAKey:
		return [][]byte{s.childPrefix(LevelRecx)}
	default:
		return nil
	}
}

// withChild returns the scope one level down, addressed by the entry
// suffix of a child of level.
func (s scope) withChild(level Level, suffix []byte) (scope, error) {
	out := s
	switch level {
	case LevelObject:
		oid, err := decodeOID(suffix)
		if err != nil {
			return out, err
		}
		out.oid = oid
	case LevelDKey:
		k, rest, err := unescape(suffix)
		if err != nil {
			return out, err
		}
		if len(rest) != 0 {
			return out, fmt.Errorf("trailing bytes after dkey")
		}
		out.dkey = k
	case LevelAKey:
		k, rest, err := unescape(suffix)
		if err != nil {
			return out, err
		}
		if len(rest) != 0 {
			return out, fmt.Errorf("trailing bytes after akey")
		}
		out.akey = k
	default:
		return out, fmt.Errorf("record extents have no children")
	}
	return out, nil
}

// childSuffix returns the entry suffix of the child of level named by s.
func (s scope) childSuffix(level Level) []byte {
	switch level {
	case LevelObject:
		return appendOID(nil, s.oid)
	case LevelDKey:
		return appendEscaped(nil, s.dkey)
	default:
		return appendEscaped(nil, s.akey)
	}
}

// keyAfter returns the smallest key strictly greater than k.
func keyAfter(k []byte) []byte {
	out := make([]byte, len(k)+1)
	copy(out, k)
	return out
}

func hasPrefix(k, prefix []byte) bool {
	return bytes.HasPrefix(k, prefix)
}
