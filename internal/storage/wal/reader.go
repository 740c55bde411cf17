package wal

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"os"
)

var (
	ErrCorrupted = errors.New("wal: corrupted segment")
)

// Reader reads WAL entries across all segments in order.
//
// A damaged frame ends the segment it belongs to: the reader moves on to
// the next segment, because nothing after a torn frame was acknowledged.
type Reader struct {
	dir string

	segments []segmentInfo
	segIndex int

	// seekSeg/seekOff position the first segment read after Seek.
	seekSeg uint64
	seekOff int64

	file   *os.File
	reader *bufio.Reader

	// Skipped counts frames dropped because of corruption.
	Skipped int
}

// NewReader creates a new WAL reader for a directory.
func NewReader(dir string) (*Reader, error) {
	segs, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	return &Reader{dir: dir, segments: segs}, nil
}

// Seek positions the reader at the given composite offset.
// Offset is (segmentID<<32 | offsetWithinSegment).
func (r *Reader) Seek(offset uint64) error {
	r.closeCurrent()

	segID := offset >> 32
	i := 0
	for ; i < len(r.segments); i++ {
		if r.segments[i].id >= segID {
			break
		}
	}
	r.segIndex = i
	r.seekSeg = segID
	r.seekOff = int64(uint32(offset))
	return nil
}

// Read reads the next entry from the WAL stream. It returns io.EOF after
// the last entry.
func (r *Reader) Read() (*Entry, error) {
	for {
		if r.reader == nil {
			if err := r.openNextSegment(); err != nil {
				if errors.Is(err, ErrCorrupted) || errors.Is(err, errInvalidMagic) {
					r.Skipped++
					continue
				}
				return nil, err
			}
		}

		e, err := r.readOneEntry()
		if err == nil {
			return e, nil
		}
		if errors.Is(err, io.EOF) {
			r.closeCurrent()
			continue
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrCorruptedEntry) ||
			errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidEntryType) ||
			errors.Is(err, ErrEmptyEntry) {
			r.Skipped++
			r.closeCurrent()
			continue
		}
		return nil, err
	}
}

// ReadAll reads all remaining entries.
func (r *Reader) ReadAll() ([]*Entry, error) {
	var out []*Entry
	for {
		e, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, e)
	}
}

// Close closes any open segment file.
func (r *Reader) Close() error {
	return r.closeCurrent()
}

func (r *Reader) openNextSegment() error {
	r.closeCurrent()

	if r.segIndex >= len(r.segments) {
		return io.EOF
	}

	seg := r.segments[r.segIndex]
	r.segIndex++

	f, err := os.Open(seg.path)
	if err != nil {
		return err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	closed, dataLen, err := verifyChecksumTrailer(f, stat.Size())
	if err != nil {
		f.Close()
		return err
	}
	if !closed {
		dataLen = stat.Size()
	}
	if dataLen < MagicBytesSize {
		f.Close()
		return ErrCorrupted
	}

	start := int64(MagicBytesSize)
	if seg.id == r.seekSeg && r.seekOff > start {
		start = r.seekOff
	}
	if start > dataLen {
		start = dataLen
	}

	r.file = f
	r.reader = bufio.NewReader(io.NewSectionReader(f, start, dataLen-start))
	return nil
}

func (r *Reader) closeCurrent() error {
	r.reader = nil
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

func (r *Reader) readOneEntry() (*Entry, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.reader, lenBuf[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < minEntrySize-4 || length > maxFrameSize {
		return nil, ErrCorruptedEntry
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r.reader, frame); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return decodeEntryFrame(frame)
}

// VerifyTrailerChecksum checks the checksum trailer of a finalized segment.
func VerifyTrailerChecksum(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}
	if stat.Size() < MagicBytesSize+ChecksumSize {
		return ErrCorrupted
	}

	trailer := make([]byte, ChecksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, stat.Size()-ChecksumSize, ChecksumSize), trailer); err != nil {
		return err
	}

	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, stat.Size()-ChecksumSize), stat.Size()-ChecksumSize); err != nil {
		return err
	}
	if !bytes.Equal(h.Sum(nil), trailer) {
		return errChecksumInvalid
	}
	return nil
}
