package wal

import (
	"errors"
	"fmt"
	"os"
)

// DefaultRetainCount is the default number of segments kept by Compact even
// when a checkpoint covers them.
const DefaultRetainCount = 2

// Compactor removes segments that a checkpoint has made redundant.
type Compactor struct {
	walDir      string
	retainCount int
}

// CompactorOption configures the Compactor.
type CompactorOption func(*Compactor)

// WithRetainCount sets the number of segments to retain.
func WithRetainCount(count int) CompactorOption {
	return func(c *Compactor) {
		if count > 0 {
			c.retainCount = count
		}
	}
}

// NewCompactor creates a new WAL compactor.
func NewCompactor(walDir string, opts ...CompactorOption) *Compactor {
	c := &Compactor{
		walDir:      walDir,
		retainCount: DefaultRetainCount,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact removes segments strictly older than the segment holding
// checkpointOffset, keeping at least retainCount segments overall. It
// returns the number of removed segments.
func (c *Compactor) Compact(checkpointOffset uint64) (int, error) {
	segs, err := listSegments(c.walDir)
	if err != nil {
		return 0, err
	}

	coveredSeg := checkpointOffset >> 32
	removable := 0
	for _, s := range segs {
		if s.id < coveredSeg {
			removable++
		}
	}
	if keep := len(segs) - removable; keep < c.retainCount {
		removable -= c.retainCount - keep
	}
	if removable <= 0 {
		return 0, nil
	}

	var errs []error
	removed := 0
	for _, s := range segs[:removable] {
		if err := os.Remove(s.path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", s.path, err))
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("wal: failed to delete %d files: %w", len(errs), errors.Join(errs...))
	}
	return removed, nil
}

// TotalSize returns the total size of all segments in bytes.
func (c *Compactor) TotalSize() (int64, error) {
	segs, err := listSegments(c.walDir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, s := range segs {
		info, err := os.Stat(s.path)
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// FileCount returns the number of segments.
func (c *Compactor) FileCount() (int, error) {
	segs, err := listSegments(c.walDir)
	return len(segs), err
}
