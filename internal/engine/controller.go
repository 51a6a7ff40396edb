package engine

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/internal/lifecycle"
	"github.com/wonny/optrader/pkg/logger"
)

// TickSource yields tick batches in arrival order
type TickSource interface {
	TryPop() ([]contracts.Tick, bool)
}

// UpdateSource holds streamed order updates per trading symbol
type UpdateSource interface {
	Get(symbol string) []contracts.OrderUpdate
	Drop(symbol string)
}

// EventSink persists ledger events
type EventSink interface {
	Apply(ctx context.Context, ev contracts.LedgerEvent) error
}

// ControllerStats counts controller activity since start
type ControllerStats struct {
	Cycles       int64 `json:"cycles"`
	Driven       int64 `json:"driven"`
	Events       int64 `json:"events"`
	LedgerErrors int64 `json:"ledger_errors"`
	Live         int   `json:"live"`
}

// Controller matches tick batches to live lifecycles and drives them
// ⭐ SSOT: 라이프사이클 집합의 유일한 writer
// Cycle and Add must be called from one goroutine; Snapshot and Stats are safe anywhere.
type Controller struct {
	ticks   TickSource
	updates UpdateSource
	sink    EventSink
	logger  *logger.Logger
	workers int

	live []*lifecycle.Lifecycle

	mu       sync.RWMutex
	snapshot []lifecycle.Snapshot

	cycles       atomic.Int64
	driven       atomic.Int64
	events       atomic.Int64
	ledgerErrors atomic.Int64
}

// NewController creates a controller; workers <= 0 means runtime.NumCPU()
func NewController(ticks TickSource, updates UpdateSource, sink EventSink, log *logger.Logger, workers int) *Controller {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Controller{
		ticks:   ticks,
		updates: updates,
		sink:    sink,
		logger:  log.Component("controller"),
		workers: workers,
	}
}

// Add registers a lifecycle; terminated instances are ignored
func (c *Controller) Add(l *lifecycle.Lifecycle) {
	if l.Terminated() {
		c.logger.WithField("symbol", l.Symbol()).Debug("Lifecycle already terminated, not added")
		return
	}
	c.live = append(c.live, l)
	c.publish()
}

// Len returns the number of live lifecycles
func (c *Controller) Len() int {
	return len(c.live)
}

// Tokens returns the instrument tokens of live lifecycles
func (c *Controller) Tokens() []uint32 {
	seen := make(map[uint32]bool, len(c.live))
	tokens := make([]uint32, 0, len(c.live))
	for _, l := range c.live {
		if !seen[l.Token()] {
			seen[l.Token()] = true
			tokens = append(tokens, l.Token())
		}
	}
	return tokens
}

// job is one (lifecycle, tick, updates) triple
type job struct {
	lc      *lifecycle.Lifecycle
	tick    contracts.Tick
	updates []contracts.OrderUpdate
}

// Cycle processes at most one tick batch and reports whether one was available
func (c *Controller) Cycle(ctx context.Context) bool {
	batch, ok := c.ticks.TryPop()
	if !ok {
		return false
	}
	c.cycles.Add(1)

	c.prune()

	jobs := c.match(batch)
	if len(jobs) == 0 {
		return true
	}

	results := make([][]contracts.LedgerEvent, len(jobs))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i := range jobs {
		i := i
		g.Go(func() error {
			j := jobs[i]
			results[i] = j.lc.Drive(ctx, j.tick, j.updates)
			return nil
		})
	}
	_ = g.Wait()
	c.driven.Add(int64(len(jobs)))

	// 원장 기록은 직렬로
	for i, events := range results {
		for _, ev := range events {
			c.events.Add(1)
			if err := c.sink.Apply(ctx, ev); err != nil {
				c.ledgerErrors.Add(1)
				key := ev.Key()
				c.logger.WithError(err).WithFields(map[string]interface{}{
					"symbol":         key.Symbol,
					"entry_order_id": key.EntryOrderID,
					"event":          string(ev.Kind()),
					"lifecycle":      jobs[i].lc.ID(),
				}).Error("Failed to persist ledger event")
			}
		}
	}

	c.prune()
	return true
}

// match pairs each live lifecycle with the latest tick for its token in batch
func (c *Controller) match(batch []contracts.Tick) []job {
	latest := make(map[uint32]contracts.Tick, len(batch))
	for _, t := range batch {
		latest[t.InstrumentToken] = t
	}

	jobs := make([]job, 0, len(c.live))
	for _, l := range c.live {
		tick, ok := latest[l.Token()]
		if !ok {
			continue
		}
		jobs = append(jobs, job{lc: l, tick: tick, updates: c.updates.Get(l.Symbol())})
	}
	return jobs
}

// prune removes terminated lifecycles and releases update history nobody reads
func (c *Controller) prune() {
	kept := c.live[:0]
	removed := make(map[string]bool)
	for _, l := range c.live {
		if l.Terminated() {
			removed[l.Symbol()] = true
			c.logger.WithFields(map[string]interface{}{
				"symbol":    l.Symbol(),
				"lifecycle": l.ID(),
			}).Info("Lifecycle removed")
			continue
		}
		kept = append(kept, l)
	}
	for i := len(kept); i < len(c.live); i++ {
		c.live[i] = nil
	}
	c.live = kept

	for _, l := range c.live {
		delete(removed, l.Symbol())
	}
	for symbol := range removed {
		c.updates.Drop(symbol)
	}

	c.publish()
}

// publish stores a copy of every live view
func (c *Controller) publish() {
	snap := make([]lifecycle.Snapshot, 0, len(c.live))
	for _, l := range c.live {
		snap = append(snap, l.Snapshot())
	}

	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
}

// Snapshot returns the views published after the last cycle
func (c *Controller) Snapshot() []lifecycle.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]lifecycle.Snapshot, len(c.snapshot))
	copy(out, c.snapshot)
	return out
}

// Stats returns activity counters
func (c *Controller) Stats() ControllerStats {
	c.mu.RLock()
	live := len(c.snapshot)
	c.mu.RUnlock()

	return ControllerStats{
		Cycles:       c.cycles.Load(),
		Driven:       c.driven.Load(),
		Events:       c.events.Load(),
		LedgerErrors: c.ledgerErrors.Load(),
		Live:         live,
	}
}
