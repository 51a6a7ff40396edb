package feed

import (
	"sync"

	"github.com/wonny/optrader/internal/contracts"
)

// TickQueue is an unbounded FIFO of tick batches (one batch per frame)
// ⭐ SSOT: 피드 → 컨트롤러 틱 전달은 이 큐에서만
type TickQueue struct {
	mu      sync.Mutex
	batches [][]contracts.Tick
}

// NewTickQueue creates an empty queue
func NewTickQueue() *TickQueue {
	return &TickQueue{}
}

// Push appends one batch
func (q *TickQueue) Push(batch []contracts.Tick) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.batches = append(q.batches, batch)
}

// TryPop removes the oldest batch without blocking
func (q *TickQueue) TryPop() ([]contracts.Tick, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.batches) == 0 {
		return nil, false
	}

	batch := q.batches[0]
	q.batches[0] = nil
	q.batches = q.batches[1:]
	if len(q.batches) == 0 {
		q.batches = nil
	}
	return batch, true
}

// Len returns the number of queued batches
func (q *TickQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batches)
}

// UpdateBook holds every order update received, per trading symbol, in arrival order
type UpdateBook struct {
	mu       sync.RWMutex
	bySymbol map[string][]contracts.OrderUpdate
}

// NewUpdateBook creates an empty book
func NewUpdateBook() *UpdateBook {
	return &UpdateBook{bySymbol: make(map[string][]contracts.OrderUpdate)}
}

// Append records an update; earlier updates are kept
func (b *UpdateBook) Append(u contracts.OrderUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bySymbol[u.TradingSymbol] = append(b.bySymbol[u.TradingSymbol], u)
}

// Get returns a copy of the updates for symbol (nil if none)
func (b *UpdateBook) Get(symbol string) []contracts.OrderUpdate {
	b.mu.RLock()
	defer b.mu.RUnlock()

	list := b.bySymbol[symbol]
	if len(list) == 0 {
		return nil
	}
	return append([]contracts.OrderUpdate(nil), list...)
}

// Drop releases the updates of a symbol nobody trades anymore
func (b *UpdateBook) Drop(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bySymbol, symbol)
}

// Len returns the number of tracked symbols
func (b *UpdateBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bySymbol)
}
