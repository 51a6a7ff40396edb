package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/optrader/internal/broker"
	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/internal/ledger"
	"github.com/wonny/optrader/internal/realtime/feed"
	"github.com/wonny/optrader/internal/selection"
	"github.com/wonny/optrader/internal/strategyconfig"
	"github.com/wonny/optrader/pkg/logger"
)

type fakeSubscriber struct {
	mu     sync.Mutex
	tokens []uint32
}

func (f *fakeSubscriber) Subscribe(tokens ...uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, tokens...)
	return nil
}

type harness struct {
	broker *broker.MockBroker
	store  *ledger.SQLiteStore
	ticks  *feed.TickQueue
	subs   *fakeSubscriber
	sess   *Session
}

func newHarness(t *testing.T, now func() time.Time) *harness {
	t.Helper()

	store, err := ledger.NewSQLiteStore(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	h := &harness{
		broker: broker.NewMockBroker(),
		store:  store,
		ticks:  feed.NewTickQueue(),
		subs:   &fakeSubscriber{},
	}

	controller := NewController(h.ticks, feed.NewUpdateBook(), store, logger.Nop(), 2)
	selector := selection.NewSelector(h.broker, ist, logger.Nop(), now)
	h.sess = NewSession(h.broker, store, h.subs, controller, selector, logger.Nop(), now)
	return h
}

func runConfig(params *strategyconfig.Config) RunConfig {
	return RunConfig{
		Params:       params,
		Location:     ist,
		PollInterval: 5 * time.Millisecond,
		Exchanges:    []string{contracts.ExchangeNFO, contracts.ExchangeNSE},
	}
}

var expiry = time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

func option(token uint32, typ string, strike float64) contracts.Instrument {
	return contracts.Instrument{
		InstrumentToken: token,
		TradingSymbol:   fmt.Sprintf("NIFTY26OCT%.0f%s", strike, typ),
		Name:            "NIFTY",
		Expiry:          expiry,
		Strike:          strike,
		LotSize:         50,
		InstrumentType:  typ,
		Segment:         contracts.SegmentNFOOpt,
		Exchange:        contracts.ExchangeNFO,
	}
}

func strategy(start, end contracts.TimeOfDay) *strategyconfig.Config {
	return &strategyconfig.Config{Strategies: []strategyconfig.Strategy{{
		Symbol:     "NIFTY 50",
		Exchange:   contracts.ExchangeNSE,
		ExpiryDate: expiry,
		StartTime:  start,
		EndTime:    end,
		Lots:       1,
		NumBatches: 1,
		OptType:    selection.OptionCall,
		StrikeDist: 50,
		StrikeDiff: 100,
		StopLoss:   2,
		Direction:  contracts.DirectionLong,
	}}}
}

func TestSessionRecoversExitPlacedWithoutReentry(t *testing.T) {
	ctx := context.Background()
	now := fixedClock(10, 0)
	h := newHarness(t, now)

	const sym = "NIFTY26OCT18100CE"
	key := contracts.TradeKey{Symbol: sym, EntryOrderID: "ENTRY-1"}
	open := contracts.PositionOpen
	entryPrice, stop := 100.0, 98.0

	seed := []contracts.LedgerEvent{
		contracts.MakeEntry{
			TradeKey: key, EntryOrderTime: now().Add(-time.Hour), EntryOrderPrice: 100,
			Instruction: contracts.SideBuy, EntryOrderStatus: contracts.OrderStatusOpen, Side: contracts.SideBuy,
			Quantity: 50, Exchange: contracts.ExchangeNFO, Direction: contracts.DirectionLong,
			UnderlyingSymbol: "NIFTY 50", EndTime: contracts.TimeOfDay{Hour: 15, Minute: 10},
			Lots: 1, LotSize: 50, StopLossPercent: 2, InstrumentToken: 777,
		},
		contracts.ConfirmEntry{
			TradeKey: key, EntryOrderStatus: contracts.OrderStatusComplete,
			EntryPrice: &entryPrice, StopLoss: &stop, PositionStatus: &open,
		},
		contracts.MakeExit{
			TradeKey: key, PositionStatus: contracts.PositionOpen, ExitOrderID: "EXIT-1",
			ExitOrderTime: now().Add(-time.Hour), ExitOrderStatus: contracts.OrderStatusOpen, ExitOrderPrice: 98,
		},
	}
	for _, ev := range seed {
		require.NoError(t, h.store.Apply(ctx, ev))
	}

	h.broker.SetOrders(contracts.OrderUpdate{OrderID: "EXIT-1", TradingSymbol: sym, Status: contracts.OrderStatusComplete, AveragePrice: 97.9})
	h.ticks.Push([]contracts.Tick{tickFor(777, 97.9)})

	result, err := h.sess.Run(ctx, runConfig(nil))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Recovered)
	assert.Equal(t, int64(1), result.Stats.Events)
	assert.Equal(t, 0, h.broker.PlacedCount())
	assert.Equal(t, []uint32{777}, h.subs.tokens)

	openRows, err := h.store.OpenTrades(ctx, now())
	require.NoError(t, err)
	assert.Empty(t, openRows)

	rows, err := h.store.Trades(ctx, now())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "SL", *rows[0].ExitType)
	assert.Equal(t, 97.9, *rows[0].ExitPrice)
}

func TestSessionSelectsAndTrades(t *testing.T) {
	ctx := context.Background()
	now := fixedClock(10, 0)
	h := newHarness(t, now)

	call := option(11, contracts.InstrumentCall, 18100)
	h.broker.SetInstruments(
		option(10, contracts.InstrumentCall, 18000),
		call,
		option(12, contracts.InstrumentCall, 18200),
		option(20, contracts.InstrumentPut, 18000),
	)
	h.broker.SetPrice("NSE:NIFTY 50", 18050)

	// the entry is rejected on the first drive
	h.broker.SetOrders(contracts.OrderUpdate{OrderID: "ORD-1", TradingSymbol: call.TradingSymbol, Status: contracts.OrderStatusRejected})
	h.ticks.Push([]contracts.Tick{tickFor(call.InstrumentToken, 120)})

	params := strategy(contracts.TimeOfDay{Hour: 9, Minute: 20}, contracts.TimeOfDay{Hour: 15, Minute: 10})
	result, err := h.sess.Run(ctx, runConfig(params))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Batches)
	assert.Equal(t, 1, result.Selected)
	assert.Len(t, result.ParamsHash, 64)
	assert.Equal(t, []uint32{call.InstrumentToken}, h.subs.tokens)

	require.Equal(t, 1, h.broker.PlacedCount())
	assert.Equal(t, call.TradingSymbol, h.broker.Placed[0].Symbol)
	assert.Equal(t, 50, h.broker.Placed[0].Quantity)

	rows, err := h.store.Trades(ctx, now())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "REJECTED", rows[0].EntryOrderStatus)
	assert.Nil(t, rows[0].PositionStatus)
}

func TestSessionWaitsForStartTime(t *testing.T) {
	now := fixedClock(9, 0)
	h := newHarness(t, now)
	h.broker.SetInstruments(option(11, contracts.InstrumentCall, 18100), option(20, contracts.InstrumentPut, 18000))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	params := strategy(contracts.TimeOfDay{Hour: 9, Minute: 20}, contracts.TimeOfDay{Hour: 15, Minute: 10})
	_, err := h.sess.Run(ctx, runConfig(params))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, h.sess.Pending())
	assert.Equal(t, 0, h.broker.PlacedCount())
}

func TestSessionNothingToTrade(t *testing.T) {
	now := fixedClock(16, 0)
	h := newHarness(t, now)

	params := strategy(contracts.TimeOfDay{Hour: 9, Minute: 20}, contracts.TimeOfDay{Hour: 15, Minute: 10})
	result, err := h.sess.Run(context.Background(), runConfig(params))

	require.NoError(t, err)
	assert.Equal(t, 0, result.Batches)
	assert.Equal(t, 0, result.Recovered)
}

func TestSessionDropsFailedSelection(t *testing.T) {
	now := fixedClock(10, 0)
	h := newHarness(t, now)
	// no spot price → selection fails and is not retried
	h.broker.SetInstruments(option(11, contracts.InstrumentCall, 18100), option(20, contracts.InstrumentPut, 18000))

	params := strategy(contracts.TimeOfDay{Hour: 9, Minute: 20}, contracts.TimeOfDay{Hour: 15, Minute: 10})
	result, err := h.sess.Run(context.Background(), runConfig(params))

	require.NoError(t, err)
	assert.Equal(t, 0, result.Selected)
	assert.Equal(t, 0, h.sess.Pending())
}
