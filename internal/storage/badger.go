package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// maxConflictRetries bounds how often Update re-runs fn after Badger
// reports a write-write conflict.
const maxConflictRetries = 8

// BadgerConfig configures the Badger backend.
type BadgerConfig struct {
	Dir string

	// InMemory keeps everything in RAM. Dir is ignored.
	InMemory bool

	CacheSize               int64
	ValueLogFileSize        int64
	NumMemtables            int
	NumLevelZeroTables      int
	NumLevelZeroTablesStall int
	SyncWrites              bool

	// GCInterval is the period of value log GC. Zero disables the loop.
	GCInterval  time.Duration
	GCThreshold float64
}

// DefaultBadgerConfig returns production defaults for dir.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:                     dir,
		CacheSize:               256 << 20,
		ValueLogFileSize:        256 << 20,
		NumMemtables:            5,
		NumLevelZeroTables:      5,
		NumLevelZeroTablesStall: 15,
		SyncWrites:              true,
		GCInterval:              10 * time.Minute,
		GCThreshold:             0.5,
	}
}

// BadgerEngine implements Store on Badger v3 transactions.
type BadgerEngine struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger

	lastGCTime atomic.Int64 // Unix milliseconds
	gcRuns     atomic.Uint64
	closed     atomic.Bool

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge
	metricsGCRuns       prometheus.Counter
	metricsConflicts    prometheus.Counter

	closeOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewBadgerEngine opens a Badger database.
func NewBadgerEngine(cfg BadgerConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 && !cfg.InMemory {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}
	if cfg.NumLevelZeroTables > 0 {
		opts.NumLevelZeroTables = cfg.NumLevelZeroTables
	}
	if cfg.NumLevelZeroTablesStall > 0 {
		opts.NumLevelZeroTablesStall = cfg.NumLevelZeroTablesStall
	}
	opts.SyncWrites = cfg.SyncWrites && !cfg.InMemory
	opts.DetectConflicts = true

	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = 0.5
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	e := &BadgerEngine{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		e.wg.Add(1)
		go e.gcLoop()
	}

	logger.Info("badger engine started",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"cache_size", opts.BlockCacheSize,
		"gc_interval", cfg.GCInterval)

	return e, nil
}

// Update implements Store. fn may run more than once when Badger
// detects a conflicting concurrent transaction.
func (e *BadgerEngine) Update(ctx context.Context, fn func(tx Tx) error) error {
	if e.closed.Load() {
		return ErrClosed
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.db.Update(func(txn *badger.Txn) error {
			return fn(&badgerTx{txn: txn})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return mapBadgerErr(err)
		}
		if e.metricsConflicts != nil {
			e.metricsConflicts.Inc()
		}
		if attempt >= maxConflictRetries {
			return ErrConflict
		}
	}
}

// View implements Store.
func (e *BadgerEngine) View(ctx context.Context, fn func(r Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.closed.Load() {
		return ErrClosed
	}
	return mapBadgerErr(e.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	}))
}

func mapBadgerErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		return ErrConflict
	default:
		return err
	}
}

type badgerTx struct {
	txn *badger.Txn
}

func (tx *badgerTx) Get(key []byte) ([]byte, error) {
	item, err := tx.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (tx *badgerTx) Scan(prefix, start []byte, fn func(key, value []byte) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(scanStart(prefix, start)); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if !fn(item.Key(), value) {
			break
		}
	}
	return nil
}

func (tx *badgerTx) Set(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return tx.txn.Set(key, value)
}

func (tx *badgerTx) Delete(key []byte) error {
	return tx.txn.Delete(key)
}

// GC runs value log GC until Badger finds nothing left to rewrite and
// returns the number of rewritten files.
func (e *BadgerEngine) GC(ctx context.Context) (int, error) {
	if e.cfg.InMemory {
		return 0, nil
	}
	startTime := time.Now()

	runs := 0
	for ctx.Err() == nil {
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return runs, fmt.Errorf("gc: %w", err)
		}
		runs++
	}

	now := time.Now()
	e.lastGCTime.Store(now.UnixMilli())
	e.gcRuns.Add(uint64(runs))
	if e.metricsGCRuns != nil {
		e.metricsGCRuns.Add(float64(runs))
		e.metricsLastGCTime.Set(float64(now.Unix()))
	}

	e.logger.Debug("gc completed",
		"files_rewritten", runs,
		"elapsed", time.Since(startTime))

	return runs, nil
}

// Stats implements Statser.
func (e *BadgerEngine) Stats(ctx context.Context) (*KVStats, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	lsm, vlog := e.db.Size()

	var keys uint64
	for _, t := range e.db.Tables() {
		keys += uint64(t.KeyCount)
	}

	return &KVStats{
		Backend:      "badger",
		TotalKeys:    keys,
		TotalSize:    uint64(lsm + vlog),
		LSMSize:      uint64(lsm),
		ValueLogSize: uint64(vlog),
		LastGCTime:   e.lastGCTime.Load(),
	}, nil
}

// Close gracefully shuts down the Badger engine.
func (e *BadgerEngine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.logger.Info("shutting down badger engine")
		e.closed.Store(true)
		close(e.stopCh)
		e.wg.Wait()

		if cerr := e.db.Close(); cerr != nil {
			err = fmt.Errorf("close db: %w", cerr)
			return
		}
		e.logger.Info("badger engine shutdown complete")
	})
	return err
}

// RegisterMetrics registers Badger metrics with reg and starts a loop
// that refreshes the size gauges.
func (e *BadgerEngine) RegisterMetrics(reg prometheus.Registerer) *BadgerEngine {
	e.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vos",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	e.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vos",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	e.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vos",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last Badger GC run",
	})
	e.metricsGCRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vos",
		Subsystem: "badger",
		Name:      "gc_files_rewritten_total",
		Help:      "Value log files rewritten by Badger garbage collection",
	})
	e.metricsConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vos",
		Subsystem: "badger",
		Name:      "tx_conflicts_total",
		Help:      "Transactions retried after a Badger write conflict",
	})

	reg.MustRegister(
		e.metricsLSMSize,
		e.metricsValueLogSize,
		e.metricsLastGCTime,
		e.metricsGCRuns,
		e.metricsConflicts,
	)

	e.refreshSizeMetrics()
	e.wg.Add(1)
	go e.metricsUpdateLoop()

	return e
}

func (e *BadgerEngine) refreshSizeMetrics() {
	lsm, vlog := e.db.Size()
	e.metricsLSMSize.Set(float64(lsm))
	e.metricsValueLogSize.Set(float64(vlog))
}

func (e *BadgerEngine) metricsUpdateLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.refreshSizeMetrics()
		case <-e.stopCh:
			return
		}
	}
}

func (e *BadgerEngine) gcLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.GC(ctx); err != nil {
				e.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-e.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
