// Package reclaimer runs epoch discards in the background.
//
// The engine reports epochs that were written but never committed, either
// because the writer aborted them or because it closed its handle with
// work outstanding. Those reports land in a queue here and a paced loop
// hands them to Engine.DiscardByUUID until the records are gone.
package reclaimer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/vos"
)

// Discarder removes the stale records of one writer.
type Discarder interface {
	DiscardByUUID(ctx context.Context, poh vos.PoolHandle, id uuid.UUID, epr domain.EpochRange, cookie uuid.UUID) (vos.DiscardStats, error)
}

// Config controls the reclaimer loop.
type Config struct {
	Enabled bool

	// Interval between queue drains.
	Interval time.Duration

	// Rate is the number of discards per second; Burst the bucket size.
	Rate  float64
	Burst int

	// DiscardOnAbort queues the epochs of explicit aborts. Epochs left
	// behind by closed handles are always queued.
	DiscardOnAbort bool

	// MaxAttempts drops a job after that many failed runs. Zero retries forever.
	MaxAttempts int

	// QueueSize caps pending jobs; further jobs are dropped.
	QueueSize int
}

// DefaultConfig returns the defaults used by the server.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Interval:       5 * time.Second,
		Rate:           50,
		Burst:          10,
		DiscardOnAbort: true,
		MaxAttempts:    10,
		QueueSize:      4096,
	}
}

// Stats is a snapshot of reclaimer counters.
type Stats struct {
	Queued     int       `json:"queued"`
	Completed  uint64    `json:"completed"`
	Failed     uint64    `json:"failed"`
	Dropped    uint64    `json:"dropped"`
	Deleted    uint64    `json:"deleted"`
	BytesFreed uint64    `json:"bytes_freed"`
	Runs       uint64    `json:"runs"`
	LastRunID  string    `json:"last_run_id,omitempty"`
	LastRunAt  time.Time `json:"last_run_at,omitempty"`
}

// Report summarises one drain of the queue.
type Report struct {
	RunID     string `json:"run_id"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Deleted   uint64 `json:"deleted"`
}

type jobKey struct {
	cont   uuid.UUID
	epr    domain.EpochRange
	cookie uuid.UUID
}

type pending struct {
	job      vos.DiscardJob
	attempts int
	lastErr  error
}

// Reclaimer drains discard jobs for one open pool.
type Reclaimer struct {
	cfg     Config
	d       Discarder
	poh     vos.PoolHandle
	pool    uuid.UUID
	limiter *rate.Limiter
	logger  *slog.Logger

	mu    sync.Mutex
	queue []*pending
	index map[jobKey]*pending
	stats Stats

	runMu  sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a reclaimer for the pool opened as poh. Jobs of other
// pools are refused by Enqueue.
func New(cfg Config, d Discarder, poh vos.PoolHandle, pool uuid.UUID, logger *slog.Logger) *Reclaimer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Reclaimer{
		cfg:     cfg,
		d:       d,
		poh:     poh,
		pool:    pool,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger.With("component", "reclaimer"),
		index:   make(map[jobKey]*pending),
	}
}

// Enqueue adds a job. It reports whether the job was accepted; duplicates
// of a queued job count as accepted.
func (r *Reclaimer) Enqueue(job vos.DiscardJob) bool {
	if job.Pool != uuid.Nil && job.Pool != r.pool {
		return false
	}
	if job.Reason == "abort" && !r.cfg.DiscardOnAbort {
		return false
	}
	key := jobKey{job.Container, job.Epr, job.Cookie}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[key]; ok {
		return true
	}
	if len(r.queue) >= r.cfg.QueueSize {
		r.stats.Dropped++
		r.logger.Warn("discard queue full, job dropped",
			"container", job.Container, "epr", job.Epr.String(), "cookie", job.Cookie)
		return false
	}
	p := &pending{job: job}
	r.queue = append(r.queue, p)
	r.index[key] = p
	return true
}

// Pending returns the queued jobs in order.
func (r *Reclaimer) Pending() []vos.DiscardJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]vos.DiscardJob, len(r.queue))
	for i, p := range r.queue {
		out[i] = p.job
	}
	return out
}

// Stats returns the current counters.
func (r *Reclaimer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Queued = len(r.queue)
	return s
}

// Start launches the background loop. It is a no-op when disabled or
// already running.
func (r *Reclaimer) Start() {
	if !r.cfg.Enabled {
		r.logger.Info("reclaimer disabled")
		return
	}
	r.mu.Lock()
	if r.stopCh != nil {
		r.mu.Unlock()
		return
	}
	r.stopCh = make(chan struct{})
	stop := r.stopCh
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(stop)
	r.logger.Info("reclaimer started", "interval", r.cfg.Interval, "rate", r.cfg.Rate)
}

// Stop ends the loop and waits for the current run, or until ctx is done.
func (r *Reclaimer) Stop(ctx context.Context) error {
	r.mu.Lock()
	stop := r.stopCh
	r.stopCh = nil
	r.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reclaimer) loop(stop <-chan struct{}) {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("reclaimer run failed", "error", err)
			}
		}
	}
}

// RunOnce drains the jobs queued when it starts. Failed jobs stay queued
// for the next run. The returned error is only set when ctx ends the run.
func (r *Reclaimer) RunOnce(ctx context.Context) (Report, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.mu.Lock()
	batch := make([]*pending, len(r.queue))
	copy(batch, r.queue)
	r.mu.Unlock()

	rep := Report{RunID: ulid.Make().String()}
	if len(batch) == 0 {
		return rep, nil
	}
	log := r.logger.With("run_id", rep.RunID)
	start := time.Now()

	var err error
	for _, p := range batch {
		if err = r.limiter.Wait(ctx); err != nil {
			break
		}
		stats, derr := r.d.DiscardByUUID(ctx, r.poh, p.job.Container, p.job.Epr, p.job.Cookie)
		rep.Processed++
		if derr != nil && ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		r.finish(log, p, stats, derr)
		if derr != nil {
			rep.Failed++
			continue
		}
		rep.Deleted += uint64(stats.Deleted())
	}

	r.mu.Lock()
	r.stats.Runs++
	r.stats.LastRunID = rep.RunID
	r.stats.LastRunAt = start
	r.mu.Unlock()

	log.Info("reclaimer run finished",
		"processed", rep.Processed,
		"failed", rep.Failed,
		"deleted", rep.Deleted,
		"duration", time.Since(start))
	return rep, err
}

// finish records the outcome of one job.
func (r *Reclaimer) finish(log *slog.Logger, p *pending, stats vos.DiscardStats, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case err == nil:
		r.stats.Completed++
		r.stats.Deleted += uint64(stats.Deleted())
		r.stats.BytesFreed += stats.Bytes
		r.removeLocked(p)
		return
	case errors.Is(err, domain.ErrContainerNotFound):
		// Destroyed containers take their records with them.
		r.stats.Completed++
		r.removeLocked(p)
		return
	}

	r.stats.Failed++
	p.attempts++
	p.lastErr = err
	if r.cfg.MaxAttempts > 0 && p.attempts >= r.cfg.MaxAttempts {
		r.stats.Dropped++
		r.removeLocked(p)
		log.Error("discard job dropped",
			"container", p.job.Container, "epr", p.job.Epr.String(),
			"attempts", p.attempts, "error", err)
		return
	}
	log.Warn("discard job failed, will retry",
		"container", p.job.Container, "epr", p.job.Epr.String(),
		"attempts", p.attempts, "error", err)
}

func (r *Reclaimer) removeLocked(p *pending) {
	delete(r.index, jobKey{p.job.Container, p.job.Epr, p.job.Cookie})
	for i, q := range r.queue {
		if q == p {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return
		}
	}
}
