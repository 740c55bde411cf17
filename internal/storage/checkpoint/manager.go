package checkpoint

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var magicBytes = []byte("VOSUCKPT")

const (
	filePrefix    = "checkpoint-"
	fileExtension = ".ckpt"
	checksumSize  = 32
	headerVersion = 1

	DefaultRetentionCount = 3
	DefaultRetentionDays  = 7
)

var (
	ErrInvalidMagic     = errors.New("checkpoint: invalid magic bytes")
	ErrChecksumMismatch = errors.New("checkpoint: checksum mismatch")
	ErrNoCheckpoints    = errors.New("checkpoint: no checkpoints available")
)

// Pair is one stored key and its value.
type Pair struct {
	Key   []byte `json:"k"`
	Value []byte `json:"v"`
}

type header struct {
	Version       int    `json:"version"`
	CreatedAt     int64  `json:"created_at"`
	PairCount     uint64 `json:"pair_count"`
	WALLastOffset uint64 `json:"wal_last_offset"`
}

// Config configures the checkpoint manager.
type Config struct {
	Dir string

	RetentionCount int
	RetentionDays  int
}

// DefaultConfig returns the default configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		RetentionCount: DefaultRetentionCount,
		RetentionDays:  DefaultRetentionDays,
	}
}

// Manager creates, loads and prunes checkpoint files in one directory.
type Manager struct {
	cfg Config
}

// NewManager creates the directory if needed and returns a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("checkpoint: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("checkpoint: create dir: %w", err)
	}
	if cfg.RetentionCount == 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	return &Manager{cfg: cfg}, nil
}

// Info contains metadata about a checkpoint.
type Info struct {
	ID string `json:"id"`

	// WALLastOffset is the WAL composite offset covered by this checkpoint.
	// Format: (segmentID<<32 | offsetWithinSegment).
	WALLastOffset uint64 `json:"wal_last_offset"`

	PairCount int64  `json:"pair_count"`
	CreatedAt int64  `json:"created_at"`
	Size      int64  `json:"size"`
	Path      string `json:"path"`
	Checksum  string `json:"checksum"`
}

// Create writes a checkpoint holding pairs and covering the WAL up to
// walLastOffset.
func (m *Manager) Create(pairs []Pair, walLastOffset uint64) (*Info, error) {
	now := time.Now()
	id := m.generateID(now)

	tempPath := filepath.Join(m.cfg.Dir, id+".tmp")
	file, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	hash := sha256.New()
	bw := bufio.NewWriter(io.MultiWriter(file, hash))

	hdrJSON, err := json.Marshal(header{
		Version:       headerVersion,
		CreatedAt:     now.UnixMilli(),
		PairCount:     uint64(len(pairs)),
		WALLastOffset: walLastOffset,
	})
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("checkpoint: marshal header: %w", err)
	}

	if pairs == nil {
		pairs = []Pair{}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("checkpoint: marshal pairs: %w", err)
	}

	if err := writeSections(bw, hdrJSON, data); err != nil {
		file.Close()
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return nil, fmt.Errorf("checkpoint: flush: %w", err)
	}

	// Checksum trailer is not part of the hash.
	sum := hash.Sum(nil)
	if _, err := file.Write(sum); err != nil {
		file.Close()
		return nil, fmt.Errorf("checkpoint: write checksum: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("checkpoint: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("checkpoint: close: %w", err)
	}

	stat, err := os.Stat(tempPath)
	if err != nil {
		return nil, err
	}

	finalPath := filepath.Join(m.cfg.Dir, id+fileExtension)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("checkpoint: rename: %w", err)
	}

	return &Info{
		ID:            id,
		WALLastOffset: walLastOffset,
		PairCount:     int64(len(pairs)),
		CreatedAt:     now.UnixMilli(),
		Size:          stat.Size(),
		Path:          finalPath,
		Checksum:      hex.EncodeToString(sum),
	}, nil
}

func writeSections(w io.Writer, hdr, data []byte) error {
	if _, err := w.Write(magicBytes); err != nil {
		return fmt.Errorf("checkpoint: write magic: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(hdr)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("checkpoint: write header length: %w", err)
	}
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("checkpoint: write header: %w", err)
	}
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("checkpoint: write data length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("checkpoint: write data: %w", err)
	}
	return nil
}

// Load returns the pairs of the newest intact checkpoint. A corrupted
// checkpoint is skipped in favour of the next older one.
func (m *Manager) Load() ([]Pair, *Info, error) {
	infos, err := m.List()
	if err != nil {
		return nil, nil, err
	}
	if len(infos) == 0 {
		return nil, nil, ErrNoCheckpoints
	}

	for i := len(infos) - 1; i >= 0; i-- {
		pairs, info, err := m.loadFile(infos[i].Path)
		if err == nil {
			return pairs, info, nil
		}
		if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidMagic) {
			continue
		}
		return nil, nil, err
	}

	return nil, nil, ErrNoCheckpoints
}

func (m *Manager) loadFile(path string) ([]Pair, *Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if stat.Size() < int64(len(magicBytes))+checksumSize {
		return nil, nil, ErrChecksumMismatch
	}

	dataLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, dataLen, checksumSize), expected); err != nil {
		return nil, nil, err
	}
	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, dataLen), dataLen); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return nil, nil, ErrChecksumMismatch
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, dataLen))

	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, nil, ErrInvalidMagic
	}

	hdrJSON, err := readSection(br)
	if err != nil {
		return nil, nil, fmt.Errorf("checkpoint: read header: %w", err)
	}
	var hdr header
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, nil, fmt.Errorf("checkpoint: unmarshal header: %w", err)
	}

	data, err := readSection(br)
	if err != nil {
		return nil, nil, fmt.Errorf("checkpoint: read data: %w", err)
	}
	var pairs []Pair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, nil, fmt.Errorf("checkpoint: unmarshal pairs: %w", err)
	}

	return pairs, &Info{
		ID:            strings.TrimSuffix(filepath.Base(path), fileExtension),
		WALLastOffset: hdr.WALLastOffset,
		PairCount:     int64(hdr.PairCount),
		CreatedAt:     hdr.CreatedAt,
		Size:          stat.Size(),
		Path:          path,
		Checksum:      hex.EncodeToString(expected),
	}, nil
}

func readSection(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, fmt.Errorf("empty section")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// List lists checkpoint files (metadata only), oldest first.
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExtension) {
			paths = append(paths, filepath.Join(m.cfg.Dir, name))
		}
	}
	sort.Strings(paths)

	var infos []*Info
	for _, p := range paths {
		stat, err := os.Stat(p)
		if err != nil {
			continue
		}
		infos = append(infos, &Info{
			ID:   strings.TrimSuffix(filepath.Base(p), fileExtension),
			Path: p,
			Size: stat.Size(),
		})
	}
	return infos, nil
}

// Prune applies the retention policy. The newest checkpoint is always kept.
func (m *Manager) Prune() error {
	infos, err := m.List()
	if err != nil {
		return err
	}
	if len(infos) <= 1 {
		return nil
	}

	keep := make(map[string]struct{}, len(infos))

	if m.cfg.RetentionCount > 0 {
		start := len(infos) - m.cfg.RetentionCount
		if start < 0 {
			start = 0
		}
		for _, info := range infos[start:] {
			keep[info.Path] = struct{}{}
		}
	}

	if m.cfg.RetentionDays > 0 {
		cutoff := time.Now().Add(-time.Duration(m.cfg.RetentionDays) * 24 * time.Hour)
		for _, info := range infos {
			st, err := os.Stat(info.Path)
			if err != nil {
				continue
			}
			if st.ModTime().After(cutoff) {
				keep[info.Path] = struct{}{}
			}
		}
	}

	keep[infos[len(infos)-1].Path] = struct{}{}

	for _, info := range infos {
		if _, ok := keep[info.Path]; ok {
			continue
		}
		_ = os.Remove(info.Path)
	}
	return nil
}

func (m *Manager) generateID(t time.Time) string {
	ts := t.Format("20060102150405")
	seq := 1

	entries, _ := os.ReadDir(m.cfg.Dir)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix+ts+"-") || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		seq++
	}

	return fmt.Sprintf("%s%s-%04d", filePrefix, ts, seq)
}
