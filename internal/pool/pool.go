// Package pool manages a bounded set of expensive, reusable handles such as
// headless browser processes.
//
// Handles are created lazily on Acquire, reused after Release, evicted by age
// on the next Acquire and by idleness on the periodic Sweep. The pool mutex
// only guards bookkeeping: handle creation and Close run outside it, so a slow
// browser launch never blocks callers that can reuse a warm handle.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxAge bounds the lifetime of any handle, in use or not.
	DefaultMaxAge = 2 * time.Hour
	// DefaultMaxIdle is how long an unclaimed handle may sit before Sweep closes it.
	DefaultMaxIdle = 30 * time.Minute
	// DefaultSweepInterval matches DefaultMaxIdle so no idle handle survives
	// more than one cycle past its threshold.
	DefaultSweepInterval = DefaultMaxIdle
)

var (
	// ErrHandleCreation wraps a factory failure during Acquire.
	ErrHandleCreation = errors.New("pool: handle creation failed")
	// ErrExhausted is returned when MaxHandles are all claimed.
	ErrExhausted = errors.New("pool: exhausted")
	// ErrClosed is returned by Acquire after CloseAll.
	ErrClosed = errors.New("pool: closed")
)

// Handle is anything the pool can hand out and later close.
type Handle interface {
	comparable
	Close() error
}

// Factory launches a new handle.
type Factory[H Handle] func(ctx context.Context) (H, error)

// Options tunes a Pool. Zero values fall back to the package defaults.
type Options struct {
	MaxAge        time.Duration
	MaxIdle       time.Duration
	SweepInterval time.Duration
	// MaxHandles caps live plus in-flight handles; 0 means unbounded.
	MaxHandles int
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
	// OnEvict is called after a handle leaves the pool.
	OnEvict func(reason string)
	// OnStats receives the pool size after every change to it.
	OnStats func(Stats)
}

// Eviction reasons reported to Options.OnEvict.
const (
	ReasonMaxAge   = "max_age"
	ReasonIdle     = "idle"
	ReasonShutdown = "shutdown"
)

// Stats is a point-in-time view of the pool.
type Stats struct {
	Total int
	InUse int
}

type entry[H Handle] struct {
	handle     H
	createdAt  time.Time
	lastUsedAt time.Time
	inUse      bool
}

// Pool hands out handles for exclusive use.
type Pool[H Handle] struct {
	mu       sync.Mutex
	entries  []*entry[H]
	creating int
	closed   bool

	factory Factory[H]
	opts    Options
	logger  *zap.Logger
}

// New builds a Pool around factory.
func New[H Handle](factory Factory[H], opts Options, logger *zap.Logger) *Pool[H] {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = DefaultMaxIdle
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = opts.MaxIdle
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool[H]{
		factory: factory,
		opts:    opts,
		logger:  logger,
	}
}

// Acquire returns a handle marked in use. Handles older than MaxAge are
// closed first; an idle handle is reused when available, otherwise a new one
// is created.
func (p *Pool[H]) Acquire(ctx context.Context) (H, error) {
	var zero H
	now := p.opts.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return zero, ErrClosed
	}
	expired := p.removeLocked(func(e *entry[H]) bool {
		return now.Sub(e.createdAt) > p.opts.MaxAge
	})
	for _, e := range p.entries {
		if e.inUse {
			continue
		}
		e.inUse = true
		e.lastUsedAt = now
		p.mu.Unlock()
		p.closeEntries(expired, ReasonMaxAge)
		p.reportStats()
		return e.handle, nil
	}
	if p.opts.MaxHandles > 0 && len(p.entries)+p.creating >= p.opts.MaxHandles {
		p.mu.Unlock()
		p.closeEntries(expired, ReasonMaxAge)
		p.reportStats()
		return zero, ErrExhausted
	}
	p.creating++
	p.mu.Unlock()
	p.closeEntries(expired, ReasonMaxAge)
	if len(expired) > 0 {
		p.reportStats()
	}

	p.logger.Info("creating pool handle")
	handle, err := p.factory(ctx)

	p.mu.Lock()
	p.creating--
	if err != nil {
		p.mu.Unlock()
		return zero, fmt.Errorf("%w: %w", ErrHandleCreation, err)
	}
	if p.closed {
		p.mu.Unlock()
		if cerr := handle.Close(); cerr != nil {
			p.logger.Warn("close handle created during shutdown", zap.Error(cerr))
		}
		return zero, ErrClosed
	}
	created := p.opts.Now()
	p.entries = append(p.entries, &entry[H]{
		handle:     handle,
		createdAt:  created,
		lastUsedAt: created,
		inUse:      true,
	})
	p.mu.Unlock()
	p.reportStats()
	return handle, nil
}

// Release returns a handle to the pool. Unknown handles are ignored.
func (p *Pool[H]) Release(handle H) {
	now := p.opts.Now()
	p.mu.Lock()
	found := false
	for _, e := range p.entries {
		if e.handle == handle {
			e.inUse = false
			e.lastUsedAt = now
			found = true
			break
		}
	}
	p.mu.Unlock()
	if found {
		p.reportStats()
	}
}

// Sweep closes handles that are idle and unused for longer than MaxIdle. It
// returns how many handles were removed.
func (p *Pool[H]) Sweep() int {
	now := p.opts.Now()
	p.mu.Lock()
	idle := p.removeLocked(func(e *entry[H]) bool {
		return !e.inUse && now.Sub(e.lastUsedAt) > p.opts.MaxIdle
	})
	p.mu.Unlock()

	if len(idle) > 0 {
		p.logger.Info("sweeping idle pool handles", zap.Int("count", len(idle)))
	}
	p.closeEntries(idle, ReasonIdle)
	if len(idle) > 0 {
		p.reportStats()
	}
	return len(idle)
}

// Run sweeps on every SweepInterval until ctx is done.
func (p *Pool[H]) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// CloseAll closes every handle, including claimed ones, and rejects further
// acquisitions. Draining in-flight work is the caller's job.
func (p *Pool[H]) CloseAll() error {
	p.mu.Lock()
	all := p.entries
	p.entries = nil
	p.closed = true
	p.mu.Unlock()

	p.logger.Info("closing all pool handles", zap.Int("count", len(all)))
	var errs []error
	for _, e := range all {
		if err := e.handle.Close(); err != nil {
			errs = append(errs, err)
		}
		p.evicted(ReasonShutdown)
	}
	p.reportStats()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close pool handles: %w", err)
	}
	return nil
}

// Stats reports the current pool size.
func (p *Pool[H]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{Total: len(p.entries)}
	for _, e := range p.entries {
		if e.inUse {
			s.InUse++
		}
	}
	return s
}

// removeLocked drops matching entries from the pool and returns them.
func (p *Pool[H]) removeLocked(match func(*entry[H]) bool) []*entry[H] {
	var removed []*entry[H]
	kept := make([]*entry[H], 0, len(p.entries))
	for _, e := range p.entries {
		if match(e) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	p.entries = kept
	return removed
}

func (p *Pool[H]) closeEntries(entries []*entry[H], reason string) {
	for _, e := range entries {
		if err := e.handle.Close(); err != nil {
			p.logger.Warn("close pool handle", zap.String("reason", reason), zap.Error(err))
		}
		p.evicted(reason)
	}
}

func (p *Pool[H]) reportStats() {
	if p.opts.OnStats != nil {
		p.opts.OnStats(p.Stats())
	}
}

func (p *Pool[H]) evicted(reason string) {
	if p.opts.OnEvict != nil {
		p.opts.OnEvict(reason)
	}
}
