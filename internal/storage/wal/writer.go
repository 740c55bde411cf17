package wal

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	errInvalidMagic    = errors.New("wal: invalid magic bytes")
	errChecksumInvalid = errors.New("wal: checksum mismatch")
	errWriterClosed    = errors.New("wal: writer is closed")
)

// File format constants.
const (
	FilePrefix      = "wal-"
	FileExtension   = ".log"
	MagicBytes      = "VOSUWAL\x01"
	MagicBytesSize  = 8
	ChecksumSize    = 32
	DefaultFilePerm = 0600
	DefaultDirPerm  = 0750
)

// Default configuration values.
const (
	DefaultBatchCount          = 100
	DefaultBatchBytes    int64 = 1 << 20 // 1MB
	DefaultSyncInterval        = time.Second
	DefaultMaxFileSize   int64 = 64 << 20 // 64MB
	DefaultMaxEntryCount       = 100000
)

// SyncMode defines how WAL syncs to disk.
type SyncMode string

const (
	// SyncModeSync writes and fsyncs every entry before Append returns.
	SyncModeSync SyncMode = "sync"
	// SyncModeBatch buffers entries and flushes on size or interval.
	SyncModeBatch SyncMode = "batch"
)

// Config configures the WAL writer.
type Config struct {
	Dir string

	SyncMode     SyncMode
	SyncInterval time.Duration

	BatchCount int
	BatchBytes int64

	MaxFileSize   int64
	MaxEntryCount int
}

// DefaultConfig returns the default WAL configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:           dir,
		SyncMode:      SyncModeBatch,
		SyncInterval:  DefaultSyncInterval,
		BatchCount:    DefaultBatchCount,
		BatchBytes:    DefaultBatchBytes,
		MaxFileSize:   DefaultMaxFileSize,
		MaxEntryCount: DefaultMaxEntryCount,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.SyncMode == "" {
		cfg.SyncMode = SyncModeBatch
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.BatchCount <= 0 {
		cfg.BatchCount = DefaultBatchCount
	}
	if cfg.BatchBytes <= 0 {
		cfg.BatchBytes = DefaultBatchBytes
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.MaxEntryCount <= 0 {
		cfg.MaxEntryCount = DefaultMaxEntryCount
	}
}

// Writer appends entries to WAL segment files.
type Writer struct {
	cfg Config

	mu sync.Mutex

	segmentID      uint64
	file           *os.File
	filePath       string
	fileSize       int64 // bytes written excluding trailing checksum
	segmentEntries int
	hash           hash.Hash

	buffer      [][]byte
	bufferBytes int64

	syncTicker *time.Ticker
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closed     bool
}

// NewWriter opens the latest open segment of cfg.Dir or starts a new one.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("wal: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}

	applyDefaults(&cfg)

	w := &Writer{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}

	latest, ok, err := latestSegment(cfg.Dir)
	if err != nil {
		return nil, err
	}

	switch {
	case !ok:
		w.segmentID = 1
		err = w.openNewSegment()
	case latest.closed:
		w.segmentID = latest.id + 1
		err = w.openNewSegment()
	default:
		w.segmentID = latest.id
		w.filePath = latest.path
		err = w.resumeSegment()
	}
	if err != nil {
		return nil, err
	}

	if w.cfg.SyncMode == SyncModeBatch {
		w.startSyncLoop()
	}

	return w, nil
}

// CurrentOffset returns a composite offset: (segmentID<<32 | offsetWithinSegment).
// Buffered entries are not included; call Flush first for an exact value.
func (w *Writer) CurrentOffset() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return (w.segmentID << 32) | uint64(uint32(w.fileSize))
}

// Append encodes an entry and either writes it (sync mode) or buffers it
// until a batch threshold is reached.
func (w *Writer) Append(entry *Entry) error {
	frame, err := encodeEntryFrame(entry)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errWriterClosed
	}

	w.buffer = append(w.buffer, frame)
	w.bufferBytes += int64(len(frame))

	if w.cfg.SyncMode == SyncModeSync ||
		len(w.buffer) >= w.cfg.BatchCount || w.bufferBytes >= w.cfg.BatchBytes {
		return w.flushLocked()
	}
	return nil
}

// Flush writes buffered entries to disk and syncs the segment.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	if w.file != nil {
		return w.file.Sync()
	}
	return nil
}

func (w *Writer) flushLocked() error {
	if len(w.buffer) == 0 {
		return nil
	}
	if w.file == nil {
		return fmt.Errorf("wal: file not open")
	}

	batch := bytes.Join(w.buffer, nil)

	// Rotate before writing if this batch would exceed segment limits.
	if w.segmentEntries > 0 &&
		(w.fileSize+int64(len(batch)) > w.cfg.MaxFileSize || w.segmentEntries+len(w.buffer) > w.cfg.MaxEntryCount) {
		if err := w.finalizeSegmentLocked(); err != nil {
			return err
		}
		w.segmentID++
		if err := w.openNewSegment(); err != nil {
			return err
		}
	}

	if err := w.writeLocked(batch); err != nil {
		return fmt.Errorf("wal: write batch: %w", err)
	}

	w.segmentEntries += len(w.buffer)
	w.buffer = nil
	w.bufferBytes = 0

	if w.cfg.SyncMode == SyncModeSync {
		return w.file.Sync()
	}
	return nil
}

func (w *Writer) startSyncLoop() {
	w.syncTicker = time.NewTicker(w.cfg.SyncInterval)
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.syncTicker.C:
				_ = w.Flush()
			case <-w.stopCh:
				return
			}
		}
	}()
}

func (w *Writer) openNewSegment() error {
	path := filepath.Join(w.cfg.Dir, formatSegmentFilename(w.segmentID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("wal: open segment: %w", err)
	}

	w.file = file
	w.filePath = path
	w.fileSize = 0
	w.segmentEntries = 0
	w.hash = sha256.New()

	if err := w.writeLocked([]byte(MagicBytes)); err != nil {
		file.Close()
		return fmt.Errorf("wal: write magic: %w", err)
	}
	return nil
}

// resumeSegment reopens the active segment, truncating any torn tail frame
// so new frames are never appended after garbage.
func (w *Writer) resumeSegment() error {
	file, err := os.OpenFile(w.filePath, os.O_RDWR, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("wal: open existing segment: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("wal: stat segment: %w", err)
	}

	if stat.Size() < MagicBytesSize {
		// Crashed before the magic was complete: start the segment over.
		file.Close()
		return w.openNewSegment()
	}

	magic := make([]byte, MagicBytesSize)
	if _, err := io.ReadFull(io.NewSectionReader(file, 0, MagicBytesSize), magic); err != nil {
		file.Close()
		return fmt.Errorf("wal: read magic: %w", err)
	}
	if string(magic) != MagicBytes {
		file.Close()
		return errInvalidMagic
	}

	validLen, entries, err := scanValidFrames(file, stat.Size())
	if err != nil {
		file.Close()
		return err
	}
	if validLen < stat.Size() {
		if err := file.Truncate(validLen); err != nil {
			file.Close()
			return fmt.Errorf("wal: truncate torn tail: %w", err)
		}
	}

	w.hash = sha256.New()
	if _, err := io.CopyN(w.hash, io.NewSectionReader(file, 0, validLen), validLen); err != nil {
		file.Close()
		return fmt.Errorf("wal: hash existing segment: %w", err)
	}
	if _, err := file.Seek(validLen, io.SeekStart); err != nil {
		file.Close()
		return fmt.Errorf("wal: seek: %w", err)
	}

	w.file = file
	w.fileSize = validLen
	w.segmentEntries = entries
	return nil
}

// scanValidFrames walks frames after the magic and returns the length of
// the longest prefix made of intact frames.
func scanValidFrames(f *os.File, size int64) (int64, int, error) {
	br := bufio.NewReader(io.NewSectionReader(f, MagicBytesSize, size-MagicBytesSize))
	valid := int64(MagicBytesSize)
	entries := 0

	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return valid, entries, nil
		}
		length := binary.BigEndian.Uint32(lenBuf[:])
		if length < minEntrySize-4 || length > maxFrameSize {
			return valid, entries, nil
		}
		frame := make([]byte, length)
		if _, err := io.ReadFull(br, frame); err != nil {
			return valid, entries, nil
		}
		if _, err := decodeEntryFrame(frame); err != nil {
			return valid, entries, nil
		}
		valid += int64(4 + length)
		entries++
	}
}

func (w *Writer) writeLocked(p []byte) error {
	n, err := w.file.Write(p)
	if n > 0 {
		w.hash.Write(p[:n])
		w.fileSize += int64(n)
	}
	return err
}

func (w *Writer) finalizeSegmentLocked() error {
	checksum := w.hash.Sum(nil)
	if _, err := w.file.Write(checksum); err != nil {
		return fmt.Errorf("wal: write checksum: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close: %w", err)
	}
	w.file = nil
	return nil
}

// Close flushes pending writes and finalizes the current segment with a checksum.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.stopCh)
	w.mu.Unlock()

	if w.syncTicker != nil {
		w.syncTicker.Stop()
	}
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	return w.finalizeSegmentLocked()
}

func formatSegmentFilename(segmentID uint64) string {
	return fmt.Sprintf("%s%08d%s", FilePrefix, segmentID, FileExtension)
}

func parseSegmentFilename(name string) (uint64, bool) {
	if !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileExtension) {
		return 0, false
	}
	var id uint64
	_, err := fmt.Sscanf(name, FilePrefix+"%d"+FileExtension, &id)
	return id, err == nil
}

type segmentInfo struct {
	id     uint64
	path   string
	closed bool
}

func listSegments(dir string) ([]segmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: read dir: %w", err)
	}

	var segs []segmentInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := parseSegmentFilename(e.Name())
		if !ok {
			continue
		}
		segs = append(segs, segmentInfo{id: id, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].id < segs[j].id })
	return segs, nil
}

func latestSegment(dir string) (segmentInfo, bool, error) {
	segs, err := listSegments(dir)
	if err != nil || len(segs) == 0 {
		return segmentInfo{}, false, err
	}

	last := segs[len(segs)-1]
	f, err := os.Open(last.path)
	if err != nil {
		return segmentInfo{}, false, fmt.Errorf("wal: open latest: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return segmentInfo{}, false, fmt.Errorf("wal: stat latest: %w", err)
	}

	closed, _, err := verifyChecksumTrailer(f, stat.Size())
	if err != nil && !errors.Is(err, errInvalidMagic) {
		return segmentInfo{}, false, err
	}
	last.closed = closed || errors.Is(err, errInvalidMagic)
	return last, true, nil
}

func verifyChecksumTrailer(f *os.File, size int64) (closed bool, dataLen int64, err error) {
	if size < MagicBytesSize {
		return false, size, nil
	}

	magic := make([]byte, MagicBytesSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, MagicBytesSize), magic); err != nil {
		return false, 0, fmt.Errorf("wal: read magic: %w", err)
	}
	if string(magic) != MagicBytes {
		return false, 0, errInvalidMagic
	}

	if size < MagicBytesSize+ChecksumSize {
		return false, size, nil
	}

	trailer := make([]byte, ChecksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, size-ChecksumSize, ChecksumSize), trailer); err != nil {
		return false, 0, fmt.Errorf("wal: read checksum trailer: %w", err)
	}

	h := sha256.New()
	dataLen = size - ChecksumSize
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, dataLen), dataLen); err != nil {
		return false, 0, fmt.Errorf("wal: hash: %w", err)
	}
	if !bytes.Equal(h.Sum(nil), trailer) {
		return false, size, nil
	}
	return true, dataLen, nil
}
