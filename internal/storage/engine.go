package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/vos-go/internal/storage/checkpoint"
	"github.com/yndnr/vos-go/internal/storage/memory"
	"github.com/yndnr/vos-go/internal/storage/wal"
)

// Default configuration values.
const (
	DefaultCheckpointInterval = 10 * time.Minute
	DefaultWALDir             = "wal"
	DefaultCheckpointDir      = "checkpoints"
)

// Config configures the file-backed engine.
type Config struct {
	// DataDir is the base directory for all storage files.
	DataDir string

	WAL        wal.Config
	Checkpoint checkpoint.Config

	// CheckpointInterval is the interval between automatic checkpoints.
	// Zero disables the background loop.
	CheckpointInterval time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the default file engine configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:            dataDir,
		WAL:                wal.DefaultConfig(filepath.Join(dataDir, DefaultWALDir)),
		Checkpoint:         checkpoint.DefaultConfig(filepath.Join(dataDir, DefaultCheckpointDir)),
		CheckpointInterval: DefaultCheckpointInterval,
		Logger:             slog.Default(),
	}
}

// Engine is the durable file backend: a MemoryStore whose transactions
// are appended to the WAL before they become visible, plus periodic
// checkpoints that bound replay.
type Engine struct {
	cfg Config

	mem  *MemoryStore
	wal  *wal.Writer
	ckpt *checkpoint.Manager

	txID           atomic.Uint64
	lastCheckpoint atomic.Int64 // Unix milliseconds

	logger *slog.Logger

	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a file engine.
//
// This initializes all components but does NOT perform recovery.
// Call Recover() after New() to load existing data; Recover also starts
// the checkpoint loop.
func New(cfg Config) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("storage: data_dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WAL.Dir == "" {
		cfg.WAL.Dir = filepath.Join(cfg.DataDir, DefaultWALDir)
	}
	if cfg.Checkpoint.Dir == "" {
		cfg.Checkpoint.Dir = filepath.Join(cfg.DataDir, DefaultCheckpointDir)
	}

	walWriter, err := wal.NewWriter(cfg.WAL)
	if err != nil {
		return nil, fmt.Errorf("storage: create wal writer: %w", err)
	}

	ckpt, err := checkpoint.NewManager(cfg.Checkpoint)
	if err != nil {
		walWriter.Close()
		return nil, fmt.Errorf("storage: create checkpoint manager: %w", err)
	}

	e := &Engine{
		cfg:    cfg,
		mem:    NewMemoryStore(),
		wal:    walWriter,
		ckpt:   ckpt,
		logger: cfg.Logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	e.mem.onCommit = e.logCommit
	return e, nil
}

// Open creates an engine and recovers its state.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := e.Recover(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// Recover rebuilds the in-memory state.
//
// Recovery process:
//  1. Load the newest intact checkpoint (if any)
//  2. Replay WAL transactions after the checkpoint's WAL offset
func (e *Engine) Recover(ctx context.Context) error {
	startTime := time.Now()
	e.logger.Info("storage recovery started", "dir", e.cfg.DataDir)

	tree := memory.New()

	pairs, info, err := e.ckpt.Load()
	if err != nil && !errors.Is(err, checkpoint.ErrNoCheckpoints) {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	walOffset := uint64(0)
	if info != nil {
		for _, p := range pairs {
			tree.Set(p.Key, p.Value)
		}
		walOffset = info.WALLastOffset
		e.lastCheckpoint.Store(info.CreatedAt)
		e.logger.Info("checkpoint loaded",
			"path", info.Path,
			"pair_count", info.PairCount,
			"wal_last_offset", info.WALLastOffset)
	} else {
		e.logger.Info("no checkpoint found, starting with empty store")
	}

	replayStart := time.Now()
	applied, lastTx, err := e.replayWAL(ctx, tree, walOffset)
	if err != nil {
		return fmt.Errorf("replay wal: %w", err)
	}
	if applied > 0 {
		e.logger.Info("wal replayed",
			"transactions_applied", applied,
			"from_offset", walOffset,
			"elapsed", time.Since(replayStart))
	}

	e.txID.Store(lastTx)
	e.mem.replace(tree)

	e.logger.Info("recovery completed",
		"elapsed", time.Since(startTime),
		"keys", tree.Len())

	e.startOnce.Do(func() {
		if e.cfg.CheckpointInterval > 0 {
			e.started.Store(true)
			go e.backgroundLoop()
		}
	})
	return nil
}

func (e *Engine) replayWAL(ctx context.Context, tree *memory.Tree, fromOffset uint64) (int, uint64, error) {
	reader, err := wal.NewReader(e.cfg.WAL.Dir)
	if err != nil {
		return 0, 0, err
	}
	defer reader.Close()

	if err := reader.Seek(fromOffset); err != nil {
		return 0, 0, err
	}

	applied := 0
	var lastTx uint64
	for {
		if err := ctx.Err(); err != nil {
			return applied, lastTx, err
		}
		entry, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return applied, lastTx, err
		}
		applyOps(tree, entry.Ops)
		applied++
		if entry.TxID > lastTx {
			lastTx = entry.TxID
		}
	}

	if reader.Skipped > 0 {
		e.logger.Warn("skipped damaged wal frames during replay", "count", reader.Skipped)
	}
	return applied, lastTx, nil
}

// logCommit writes one transaction to the WAL. It runs under the memory
// store's writer lock, so WAL order matches commit order.
func (e *Engine) logCommit(ops []wal.Op) error {
	if err := e.wal.Append(wal.NewTxEntry(e.txID.Add(1), ops)); err != nil {
		return fmt.Errorf("write wal: %w", err)
	}
	return nil
}

// Update implements Store. The transaction is durable in the WAL before
// readers can observe it.
func (e *Engine) Update(ctx context.Context, fn func(tx Tx) error) error {
	return e.mem.Update(ctx, fn)
}

// View implements Store.
func (e *Engine) View(ctx context.Context, fn func(r Reader) error) error {
	return e.mem.View(ctx, fn)
}

// Checkpoint writes a checkpoint of the current state, prunes old
// checkpoints and compacts the WAL behind it.
func (e *Engine) Checkpoint(ctx context.Context) (*checkpoint.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mem.mu.Lock()
	if err := e.wal.Flush(); err != nil {
		e.mem.mu.Unlock()
		return nil, fmt.Errorf("flush wal: %w", err)
	}
	offset := e.wal.CurrentOffset()
	tree := e.mem.published()
	e.mem.mu.Unlock()

	pairs := make([]checkpoint.Pair, 0, tree.Len())
	tree.Ascend(nil, nil, func(k, v []byte) bool {
		pairs = append(pairs, checkpoint.Pair{Key: bytes.Clone(k), Value: bytes.Clone(v)})
		return true
	})

	info, err := e.ckpt.Create(pairs, offset)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}
	e.lastCheckpoint.Store(info.CreatedAt)

	e.logger.Info("checkpoint created",
		"id", info.ID,
		"pair_count", info.PairCount,
		"wal_last_offset", info.WALLastOffset,
		"size_bytes", info.Size)

	if err := e.ckpt.Prune(); err != nil {
		e.logger.Warn("checkpoint cleanup failed", "error", err)
	}

	compactor := wal.NewCompactor(e.cfg.WAL.Dir)
	if removed, err := compactor.Compact(info.WALLastOffset); err != nil {
		e.logger.Warn("wal compaction failed", "error", err)
	} else if removed > 0 {
		e.logger.Debug("wal compacted", "segments_removed", removed)
	}

	return info, nil
}

func (e *Engine) backgroundLoop() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.Checkpoint(ctx); err != nil {
				e.logger.Error("auto checkpoint failed", "error", err)
			}
			cancel()

		case <-e.stopCh:
			return
		}
	}
}

// Stats implements Statser.
func (e *Engine) Stats(ctx context.Context) (*KVStats, error) {
	st, err := e.mem.Stats(ctx)
	if err != nil {
		return nil, err
	}
	st.Backend = "file"
	st.WALOffset = e.wal.CurrentOffset()
	st.LastGCTime = e.lastCheckpoint.Load()
	return st, nil
}

// Close stops the checkpoint loop and closes the WAL.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.logger.Info("shutting down storage engine")

		e.mem.Close()
		close(e.stopCh)
		if e.started.Load() {
			<-e.doneCh
		}

		// Take the writer lock so no commit is half-logged.
		e.mem.mu.Lock()
		defer e.mem.mu.Unlock()
		if cerr := e.wal.Close(); cerr != nil {
			e.logger.Error("close wal failed", "error", cerr)
			err = cerr
			return
		}
		e.logger.Info("storage engine shutdown complete")
	})
	return err
}
