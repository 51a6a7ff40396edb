package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/optrader/internal/broker"
	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/internal/lifecycle"
	"github.com/wonny/optrader/internal/realtime/feed"
	"github.com/wonny/optrader/pkg/logger"
)

var ist = time.FixedZone("IST", 19800)

func fixedClock(h, m int) func() time.Time {
	return func() time.Time { return time.Date(2026, 10, 15, h, m, 0, 0, ist) }
}

type recordingSink struct {
	mu     sync.Mutex
	events []contracts.LedgerEvent
	fail   bool
}

func (s *recordingSink) Apply(ctx context.Context, ev contracts.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if s.fail {
		return errors.New("disk full")
	}
	return nil
}

func (s *recordingSink) kinds() []contracts.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]contracts.EventKind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind())
	}
	return out
}

func testLifecycle(symbol string, token uint32, b broker.Broker) *lifecycle.Lifecycle {
	return lifecycle.New(lifecycle.Config{
		Symbol:           symbol,
		InstrumentToken:  token,
		Exchange:         contracts.ExchangeNFO,
		UnderlyingSymbol: "NIFTY 50",
		Direction:        contracts.DirectionLong,
		LotSize:          50,
		Lots:             1,
		StopLossPercent:  2,
		EndTime:          contracts.TimeOfDay{Hour: 15, Minute: 10},
	}, b, lifecycle.WithClock(fixedClock(10, 0)), lifecycle.WithLocation(ist))
}

func tickFor(token uint32, price float64) contracts.Tick {
	return contracts.Tick{InstrumentToken: token, LastPrice: price, LastTradeTime: time.Date(2026, 10, 15, 10, 0, 0, 0, ist)}
}

func TestCycleEmptyQueue(t *testing.T) {
	b := broker.NewMockBroker()
	c := NewController(feed.NewTickQueue(), feed.NewUpdateBook(), &recordingSink{}, logger.Nop(), 2)
	c.Add(testLifecycle("A", 1, b))

	assert.False(t, c.Cycle(context.Background()))
	assert.Equal(t, 0, b.PlacedCount())
	assert.Equal(t, int64(0), c.Stats().Cycles)
}

func TestCycleDrivesMatchedAndPrunes(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMockBroker()
	ticks := feed.NewTickQueue()
	book := feed.NewUpdateBook()
	sink := &recordingSink{}

	c := NewController(ticks, book, sink, logger.Nop(), 2)
	c.Add(testLifecycle("A", 1001, b))
	c.Add(testLifecycle("B", 1002, b))
	assert.ElementsMatch(t, []uint32{1001, 1002}, c.Tokens())

	// B's token absent, 9999 has no lifecycle
	ticks.Push([]contracts.Tick{tickFor(1001, 100), tickFor(9999, 50)})
	require.True(t, c.Cycle(ctx))

	assert.Equal(t, []contracts.EventKind{contracts.EventMakeEntry}, sink.kinds())
	require.Equal(t, 1, b.PlacedCount())
	assert.Equal(t, "A", b.Placed[0].Symbol)
	assert.Equal(t, int64(1), c.Stats().Driven)

	// entry rejected → terminated and pruned in the same cycle
	book.Append(contracts.OrderUpdate{OrderID: "ORD-1", TradingSymbol: "A", Status: contracts.OrderStatusRejected})
	ticks.Push([]contracts.Tick{tickFor(1001, 100)})
	require.True(t, c.Cycle(ctx))

	assert.Equal(t, []contracts.EventKind{contracts.EventMakeEntry, contracts.EventConfirmEntry}, sink.kinds())
	assert.Equal(t, 1, c.Len())
	assert.Nil(t, book.Get("A"))

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "B", snap[0].Symbol)
	assert.Equal(t, 1, c.Stats().Live)
}

func TestCycleLatestTickPerToken(t *testing.T) {
	b := broker.NewMockBroker()
	ticks := feed.NewTickQueue()

	c := NewController(ticks, feed.NewUpdateBook(), &recordingSink{}, logger.Nop(), 1)
	c.Add(testLifecycle("A", 1001, b))

	ticks.Push([]contracts.Tick{tickFor(1001, 100), tickFor(1001, 101.26)})
	require.True(t, c.Cycle(context.Background()))

	require.Equal(t, 1, b.PlacedCount())
	assert.Equal(t, 101.3, b.Placed[0].Price)
}

func TestCycleParallelWorkers(t *testing.T) {
	b := broker.NewMockBroker()
	ticks := feed.NewTickQueue()
	sink := &recordingSink{}

	c := NewController(ticks, feed.NewUpdateBook(), sink, logger.Nop(), 4)

	var batch []contracts.Tick
	for i := 0; i < 20; i++ {
		token := uint32(2000 + i)
		c.Add(testLifecycle(fmt.Sprintf("SYM%d", i), token, b))
		batch = append(batch, tickFor(token, 100))
	}
	ticks.Push(batch)

	require.True(t, c.Cycle(context.Background()))
	assert.Equal(t, 20, b.PlacedCount())
	assert.Len(t, sink.kinds(), 20)

	ids := make(map[string]bool)
	for _, ev := range sink.events {
		ids[ev.Key().EntryOrderID] = true
	}
	assert.Len(t, ids, 20)
}

func TestCycleLedgerFailureDoesNotStop(t *testing.T) {
	b := broker.NewMockBroker()
	ticks := feed.NewTickQueue()
	sink := &recordingSink{fail: true}

	c := NewController(ticks, feed.NewUpdateBook(), sink, logger.Nop(), 2)
	c.Add(testLifecycle("A", 1001, b))
	c.Add(testLifecycle("B", 1002, b))

	ticks.Push([]contracts.Tick{tickFor(1001, 100), tickFor(1002, 100)})
	require.True(t, c.Cycle(context.Background()))

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Events)
	assert.Equal(t, int64(2), stats.LedgerErrors)
	assert.Equal(t, 2, c.Len())
}

func TestAddIgnoresTerminated(t *testing.T) {
	b := broker.NewMockBroker()
	c := NewController(feed.NewTickQueue(), feed.NewUpdateBook(), &recordingSink{}, logger.Nop(), 0)

	l := lifecycle.New(lifecycle.Config{Symbol: "Z", InstrumentToken: 1, LotSize: 50, Lots: 0}, b)
	require.True(t, l.Terminated())

	c.Add(l)
	assert.Equal(t, 0, c.Len())
	assert.Greater(t, c.workers, 0)
}
