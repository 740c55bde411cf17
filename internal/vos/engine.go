package vos

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/pkg/hhash"
)

// Handle type tags in the registry.
const (
	handleTypePool hhash.Type = 1
	handleTypeCont hhash.Type = 2
)

// PoolHandle is an open pool.
type PoolHandle uint64

// ContHandle is an open container.
type ContHandle uint64

// DiscardJob describes epochs of one writer that became discard eligible.
type DiscardJob struct {
	Pool      uuid.UUID         `json:"pool"`
	Container uuid.UUID         `json:"container"`
	Epr       domain.EpochRange `json:"epr"`
	Cookie    uuid.UUID         `json:"cookie"`
	Reason    string            `json:"reason"`
}

// Options configures an Engine.
type Options struct {
	// BucketBits sizes the handle tables (2^BucketBits buckets each).
	BucketBits uint

	// DisableChecksum skips recx checksums on update and fetch.
	DisableChecksum bool

	// Metrics receives operation counters. Nil disables metrics.
	Metrics *Metrics

	// OnDiscardable is called, outside any engine lock, when an abort or
	// the close of a write handle leaves uncommitted epochs behind.
	OnDiscardable func(DiscardJob)

	Logger *slog.Logger
}

// Engine is the versioning object store. It owns the pool and container
// handle registries; the persistent state lives in the stores of the
// opened pools.
type Engine struct {
	opts    Options
	logger  *slog.Logger
	metrics *Metrics

	pools *hhash.Table[*poolRef]
	conts *hhash.Table[*contHandle]

	mu        sync.Mutex
	openPools map[uuid.UUID]*pool
}

// poolRef is the registry payload of one pool handle.
type poolRef struct {
	pool *pool
}

// New creates an engine with empty registries.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	e := &Engine{
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		openPools: make(map[uuid.UUID]*pool),
	}
	e.pools = hhash.New(opts.BucketBits, handleTypePool, e.releasePool)
	e.conts = hhash.New(opts.BucketBits, handleTypeCont, e.releaseCont)
	return e
}

// Close releases every handle still registered. Pool stores are owned by
// the caller and stay open.
func (e *Engine) Close() {
	for _, k := range e.conts.Keys() {
		e.conts.Delete(k)
	}
	for _, k := range e.pools.Keys() {
		e.pools.Delete(k)
	}
}

// lookupPool takes a reference on an open pool handle. The caller must
// release it with e.pools.Put.
func (e *Engine) lookupPool(poh PoolHandle) (*hhash.Link[*poolRef], error) {
	if hhash.TypeOf(uint64(poh)) != handleTypePool {
		return nil, domain.ErrHandleNotFound.WithDetailsf("pool handle %#x", uint64(poh))
	}
	link, ok := e.pools.Lookup(uint64(poh))
	if !ok {
		return nil, domain.ErrHandleNotFound.WithDetailsf("pool handle %#x", uint64(poh))
	}
	return link, nil
}

// lookupCont takes a reference on an open container handle. The caller
// must release it with e.conts.Put.
func (e *Engine) lookupCont(coh ContHandle) (*hhash.Link[*contHandle], error) {
	if hhash.TypeOf(uint64(coh)) != handleTypeCont {
		return nil, domain.ErrHandleNotFound.WithDetailsf("container handle %#x", uint64(coh))
	}
	link, ok := e.conts.Lookup(uint64(coh))
	if !ok {
		return nil, domain.ErrHandleNotFound.WithDetailsf("container handle %#x", uint64(coh))
	}
	return link, nil
}

// withCont runs fn with a referenced container handle.
func (e *Engine) withCont(coh ContHandle, fn func(h *contHandle) error) error {
	link, err := e.lookupCont(coh)
	if err != nil {
		return err
	}
	defer e.conts.Put(link)
	return fn(link.Value())
}

// withPool runs fn with a referenced pool.
func (e *Engine) withPool(poh PoolHandle, fn func(p *pool) error) error {
	link, err := e.lookupPool(poh)
	if err != nil {
		return err
	}
	defer e.pools.Put(link)
	return fn(link.Value().pool)
}

func (e *Engine) notifyDiscardable(jobs []DiscardJob) {
	if e.opts.OnDiscardable == nil {
		return
	}
	for _, j := range jobs {
		e.opts.OnDiscardable(j)
	}
}

// OpenHandles returns the number of registered pool and container handles.
func (e *Engine) OpenHandles() (pools, conts int) {
	return e.pools.Len(), e.conts.Len()
}
