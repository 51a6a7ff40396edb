package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wonny/optrader/internal/contracts"
)

// ErrMock is the error returned by a MockBroker operation set to fail
var ErrMock = errors.New("mock broker failure")

// MockBroker implements Broker for tests and dry runs
// ⭐ 실제 운영에서는 Session(kite) 사용
type MockBroker struct {
	mu sync.Mutex

	nextID      int
	placeFail   bool
	modifyFail  bool
	orders      []contracts.OrderUpdate
	ordersFail  bool
	positions   []contracts.Position
	posFail     bool
	prices      map[string]float64
	instruments []contracts.Instrument

	Placed    []contracts.OrderRequest
	Modified  []contracts.ModifyRequest
	Cancelled []string
}

// NewMockBroker creates a new mock broker
func NewMockBroker() *MockBroker {
	return &MockBroker{prices: make(map[string]float64)}
}

var _ Broker = (*MockBroker)(nil)

// FailPlace makes PlaceOrder fail until reset
func (b *MockBroker) FailPlace(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.placeFail = fail
}

// FailModify makes ModifyOrder fail until reset
func (b *MockBroker) FailModify(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modifyFail = fail
}

// FailOrders makes Orders fail until reset
func (b *MockBroker) FailOrders(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ordersFail = fail
}

// FailPositions makes Positions fail until reset
func (b *MockBroker) FailPositions(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posFail = fail
}

// SetOrders replaces the order book
func (b *MockBroker) SetOrders(orders ...contracts.OrderUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append([]contracts.OrderUpdate(nil), orders...)
}

// SetPositions replaces the day positions
func (b *MockBroker) SetPositions(positions ...contracts.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions = append([]contracts.Position(nil), positions...)
}

// SetPrice sets mock price for testing
func (b *MockBroker) SetPrice(key string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[key] = price
}

// SetInstruments replaces the instrument master
func (b *MockBroker) SetInstruments(instruments ...contracts.Instrument) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.instruments = append([]contracts.Instrument(nil), instruments...)
}

// LastOrderID returns the id handed out by the latest successful PlaceOrder
func (b *MockBroker) LastOrderID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("ORD-%d", b.nextID)
}

// PlacedCount returns the number of successful placements
func (b *MockBroker) PlacedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Placed)
}

// ModifiedCount returns the number of successful modifications
func (b *MockBroker) ModifiedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Modified)
}

// PlaceOrder records the request and returns a sequential id
func (b *MockBroker) PlaceOrder(ctx context.Context, req contracts.OrderRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.placeFail {
		return "", ErrMock
	}
	b.nextID++
	b.Placed = append(b.Placed, req)
	return fmt.Sprintf("ORD-%d", b.nextID), nil
}

// ModifyOrder records the request
func (b *MockBroker) ModifyOrder(ctx context.Context, req contracts.ModifyRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.modifyFail {
		return "", ErrMock
	}
	b.Modified = append(b.Modified, req)
	return req.OrderID, nil
}

// CancelOrder records the cancellation
func (b *MockBroker) CancelOrder(ctx context.Context, orderID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Cancelled = append(b.Cancelled, orderID)
	return orderID, nil
}

// Orders returns a copy of the order book
func (b *MockBroker) Orders(ctx context.Context) ([]contracts.OrderUpdate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ordersFail {
		return nil, ErrMock
	}
	return append([]contracts.OrderUpdate(nil), b.orders...), nil
}

// Positions returns a copy of the day positions
func (b *MockBroker) Positions(ctx context.Context) ([]contracts.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.posFail {
		return nil, ErrMock
	}
	return append([]contracts.Position(nil), b.positions...), nil
}

// LTP returns the known prices for keys; no known key is an empty quote
func (b *MockBroker) LTP(ctx context.Context, keys ...string) (map[string]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]float64, len(keys))
	for _, k := range keys {
		if p, ok := b.prices[k]; ok {
			out[k] = p
		}
	}
	if len(out) == 0 {
		return nil, ErrMock
	}
	return out, nil
}

// Instruments returns the instrument master filtered by exchange
func (b *MockBroker) Instruments(ctx context.Context, exchanges ...string) ([]contracts.Instrument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	want := make(map[string]bool, len(exchanges))
	for _, e := range exchanges {
		want[e] = true
	}

	var out []contracts.Instrument
	for _, inst := range b.instruments {
		if len(want) == 0 || want[inst.Exchange] {
			out = append(out, inst)
		}
	}
	return out, nil
}
