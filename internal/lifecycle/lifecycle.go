package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/optrader/internal/broker"
	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/pkg/logger"
)

// Config is the immutable identity and risk setup of one lifecycle
type Config struct {
	Symbol           string
	InstrumentToken  uint32
	Exchange         string
	UnderlyingSymbol string
	Direction        contracts.Direction
	LotSize          int
	Lots             int
	StopLossPercent  float64
	TrailSL          bool
	EndTime          contracts.TimeOfDay
}

// Quantity is lots × lot size
func (c Config) Quantity() int {
	return c.Lots * c.LotSize
}

// Lifecycle drives one instrument from entry to exit
// ⭐ SSOT: 종목별 주문 상태 전이는 여기서만
// Not safe for concurrent use; the engine drives each instance from one worker at a time.
type Lifecycle struct {
	id     string
	cfg    Config
	broker broker.Broker
	logger *logger.Logger
	loc    *time.Location
	now    func() time.Time

	state    State
	quantity int
	side     contracts.Side

	// entry
	entryOrderID     string
	entryOrderStatus contracts.OrderStatus
	entryOrderPrice  float64
	entryOrderTime   time.Time
	entryTime        time.Time
	entryPrice       float64

	// risk
	stopLoss    float64
	trailedStop float64
	reference   float64

	// exit
	exitOrderID      string
	exitOrderStatus  contracts.OrderStatus
	exitOrderPrice   float64
	exitOrderTime    time.Time
	exitTime         time.Time
	exitPrice        float64
	exitType         string
	marketConversion bool

	lastPrice float64
	lastTick  time.Time

	events []contracts.LedgerEvent
}

// Option customises a Lifecycle
type Option func(*Lifecycle)

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(l *Lifecycle) { l.logger = log }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) { l.now = now }
}

// WithLocation sets the exchange time zone used for the end-time check
func WithLocation(loc *time.Location) Option {
	return func(l *Lifecycle) { l.loc = loc }
}

// New creates a lifecycle awaiting entry; a non-positive quantity terminates it at once
func New(cfg Config, b broker.Broker, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		id:       uuid.NewString(),
		cfg:      cfg,
		broker:   b,
		logger:   logger.Nop(),
		loc:      time.UTC,
		now:      time.Now,
		state:    AwaitingEntry,
		quantity: cfg.Quantity(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.logger = l.logger.Instrument(cfg.Symbol, cfg.InstrumentToken)

	if l.quantity <= 0 {
		l.logger.WithField("quantity", l.quantity).Warn("Quantity not positive, closing instance")
		l.state = Terminated
	}

	l.logger.WithFields(map[string]interface{}{
		"direction":  cfg.Direction,
		"lots":       cfg.Lots,
		"lot_size":   cfg.LotSize,
		"stop_loss":  cfg.StopLossPercent,
		"trail_sl":   cfg.TrailSL,
		"end_time":   cfg.EndTime.String(),
		"underlying": cfg.UnderlyingSymbol,
	}).Debug("Lifecycle created")

	return l
}

// ID returns the instance id
func (l *Lifecycle) ID() string { return l.id }

// Symbol returns the trading symbol
func (l *Lifecycle) Symbol() string { return l.cfg.Symbol }

// Token returns the instrument token
func (l *Lifecycle) Token() uint32 { return l.cfg.InstrumentToken }

// State returns the current stage
func (l *Lifecycle) State() State { return l.state }

// Terminated reports whether the instance is finished
func (l *Lifecycle) Terminated() bool { return l.state == Terminated }

// Quantity returns the fixed order quantity
func (l *Lifecycle) Quantity() int { return l.quantity }

// Drive advances the lifecycle for one tick and returns the ledger events it produced.
// updates are the order updates seen for this symbol; nil means none were streamed.
func (l *Lifecycle) Drive(ctx context.Context, tick contracts.Tick, updates []contracts.OrderUpdate) (events []contracts.LedgerEvent) {
	if l.state == Terminated {
		return nil
	}
	if !tick.Valid() {
		return nil
	}

	l.events = l.events[:0]
	l.lastPrice = tick.LastPrice
	l.lastTick = tick.LastTradeTime

	defer func() {
		if r := recover(); r != nil {
			l.logger.WithFields(map[string]interface{}{
				"state": l.state.String(),
				"panic": fmt.Sprint(r),
			}).Error("Lifecycle panicked, continuing")
			events = l.flush()
		}
	}()

	orders := &orderSource{updates: updates, broker: l.broker}

	if l.state == AwaitingEntry {
		l.enter(ctx)
	}

	if l.state == EntryPlaced {
		l.confirmEntry(ctx, orders)
	}

	if l.state == PositionOpen {
		l.placeExit(ctx)
	}

	if l.state == ExitPlaced {
		l.confirmExit(ctx, orders)

		if l.state == ExitPlaced && (l.pastDeadline() || l.cfg.TrailSL) {
			l.adjustExit(ctx)
			l.confirmExit(ctx, orders)
		}
	}

	return l.flush()
}

func (l *Lifecycle) flush() []contracts.LedgerEvent {
	if len(l.events) == 0 {
		return nil
	}
	out := make([]contracts.LedgerEvent, len(l.events))
	copy(out, l.events)
	l.events = l.events[:0]
	return out
}

func (l *Lifecycle) emit(ev contracts.LedgerEvent) {
	l.events = append(l.events, ev)
}

func (l *Lifecycle) key() contracts.TradeKey {
	return contracts.TradeKey{Symbol: l.cfg.Symbol, EntryOrderID: l.entryOrderID}
}

func (l *Lifecycle) pastDeadline() bool {
	return l.cfg.EndTime.PassedAt(l.now(), l.loc)
}

func (l *Lifecycle) terminate(reason string) {
	l.state = Terminated
	l.logger.WithField("reason", reason).Info("Closing instance")
}

// ============================================================================
// Entry
// ============================================================================

func (l *Lifecycle) enter(ctx context.Context) {
	side := l.cfg.Direction.EntrySide()
	price := round1(l.lastPrice)

	l.logger.WithFields(map[string]interface{}{
		"side":  side,
		"price": l.lastPrice,
	}).Info("Entry signal")

	orderID, err := l.broker.PlaceOrder(ctx, contracts.OrderRequest{
		Symbol:       l.cfg.Symbol,
		Exchange:     l.cfg.Exchange,
		Side:         side,
		Quantity:     l.quantity,
		OrderType:    contracts.OrderTypeLimit,
		Price:        price,
		TriggerPrice: price,
		Product:      contracts.ProductMIS,
		Variety:      contracts.VarietyRegular,
		Tag:          contracts.OrderTag,
	})
	if err != nil || orderID == "" {
		l.logger.WithError(errOrEmpty(err)).Error("Entry order failed")
		l.terminate("entry order not placed")
		return
	}

	l.side = side
	l.entryOrderID = orderID
	l.entryOrderPrice = price
	l.entryOrderTime = l.now()
	l.entryOrderStatus = contracts.OrderStatusOpen
	l.state = EntryPlaced

	l.logger.WithFields(map[string]interface{}{
		"order_id": orderID,
		"quantity": l.quantity,
		"price":    price,
	}).Info("Entry order placed")

	l.emit(contracts.MakeEntry{
		TradeKey:         l.key(),
		EntryOrderTime:   l.entryOrderTime,
		EntryOrderPrice:  price,
		Instruction:      side,
		EntryOrderStatus: contracts.OrderStatusOpen,
		Side:             side,
		Quantity:         l.quantity,
		Exchange:         l.cfg.Exchange,
		Direction:        l.cfg.Direction,
		UnderlyingSymbol: l.cfg.UnderlyingSymbol,
		EndTime:          l.cfg.EndTime,
		Lots:             l.cfg.Lots,
		LotSize:          l.cfg.LotSize,
		StopLossPercent:  l.cfg.StopLossPercent,
		InstrumentToken:  l.cfg.InstrumentToken,
		TrailSL:          l.cfg.TrailSL,
	})
}

func (l *Lifecycle) confirmEntry(ctx context.Context, orders *orderSource) {
	list, ok := orders.get(ctx)
	if !ok {
		l.logger.Debug("Order list unavailable")
		return
	}

	for _, o := range list {
		if o.OrderID != l.entryOrderID {
			continue
		}

		if o.Status.Failed() {
			l.logger.WithFields(map[string]interface{}{
				"order_id": o.OrderID,
				"status":   o.Status,
				"reason":   o.StatusMessage,
			}).Warn("Entry order failed")

			l.entryOrderStatus = o.Status
			l.entryTime = time.Time{}
			l.entryPrice = 0
			l.emit(contracts.ConfirmEntry{
				TradeKey:         l.key(),
				EntryOrderStatus: o.Status,
				StopLoss:         optionalPrice(l.stopLoss),
			})
			l.terminate("entry " + string(o.Status))
			return
		}

		if o.Status == contracts.OrderStatusComplete {
			l.entryOrderStatus = o.Status
			l.entryPrice = o.AveragePrice
			l.entryTime = o.OrderTimestamp
			if l.entryTime.IsZero() {
				l.entryTime = l.now()
			}
			l.stopLoss = initialStop(l.entryPrice, l.cfg.StopLossPercent, l.cfg.Direction)
			l.trailedStop = l.stopLoss
			l.reference = l.entryPrice
			l.state = PositionOpen

			l.logger.WithFields(map[string]interface{}{
				"order_id":  o.OrderID,
				"price":     l.entryPrice,
				"stop_loss": l.stopLoss,
			}).Info("Entry order filled")

			open := contracts.PositionOpen
			entryTime := l.entryTime
			entryPrice := l.entryPrice
			stop := l.stopLoss
			l.emit(contracts.ConfirmEntry{
				TradeKey:         l.key(),
				EntryOrderStatus: o.Status,
				EntryTime:        &entryTime,
				EntryPrice:       &entryPrice,
				StopLoss:         &stop,
				PositionStatus:   &open,
			})
			return
		}
	}
}

// ============================================================================
// Exit
// ============================================================================

func (l *Lifecycle) placeExit(ctx context.Context) {
	positions, err := l.broker.Positions(ctx)
	if err != nil || len(positions) == 0 {
		// 포지션 조회 실패는 다음 틱에 재시도
		l.logger.WithError(errOrEmpty(err)).Debug("Positions unavailable")
		return
	}

	if !l.holds(positions) {
		l.logger.WithField("quantity", l.quantity).Warn("No matching position, clearing trade")
		l.emit(contracts.ConfirmExit{TradeKey: l.key()})
		l.terminate("position not found")
		return
	}

	closeSide := l.side.Opposite()
	price := round1(l.trailedStop)

	orderID, err := l.broker.PlaceOrder(ctx, contracts.OrderRequest{
		Symbol:       l.cfg.Symbol,
		Exchange:     l.cfg.Exchange,
		Side:         closeSide,
		Quantity:     l.quantity,
		OrderType:    contracts.OrderTypeStopLoss,
		Price:        price,
		TriggerPrice: price,
		Product:      contracts.ProductMIS,
		Variety:      contracts.VarietyRegular,
		Tag:          contracts.OrderTag,
	})
	if err != nil || orderID == "" {
		l.logger.WithError(errOrEmpty(err)).Warn("Exit order not placed, will retry")
		return
	}

	l.exitOrderID = orderID
	l.exitOrderPrice = price
	l.exitOrderTime = l.now()
	l.exitOrderStatus = contracts.OrderStatusOpen
	l.marketConversion = false
	l.state = ExitPlaced

	l.logger.WithFields(map[string]interface{}{
		"order_id": orderID,
		"side":     closeSide,
		"trigger":  price,
	}).Info("Exit order placed")

	l.emit(contracts.MakeExit{
		TradeKey:        l.key(),
		PositionStatus:  contracts.PositionOpen,
		ExitOrderID:     orderID,
		ExitOrderTime:   l.exitOrderTime,
		ExitOrderStatus: contracts.OrderStatusOpen,
		ExitOrderPrice:  price,
	})
}

// holds reports a day position of the right sign covering the full quantity
func (l *Lifecycle) holds(positions []contracts.Position) bool {
	for _, p := range positions {
		if p.TradingSymbol != l.cfg.Symbol {
			continue
		}
		if l.side == contracts.SideBuy && p.Quantity > 0 && p.Quantity >= l.quantity {
			return true
		}
		if l.side == contracts.SideSell && p.Quantity < 0 && -p.Quantity >= l.quantity {
			return true
		}
	}
	return false
}

func (l *Lifecycle) confirmExit(ctx context.Context, orders *orderSource) {
	list, ok := orders.get(ctx)
	if !ok {
		return
	}

	for _, o := range list {
		if o.OrderID != l.exitOrderID {
			continue
		}

		if o.Status.Failed() {
			l.logger.WithFields(map[string]interface{}{
				"order_id": o.OrderID,
				"status":   o.Status,
				"reason":   o.StatusMessage,
			}).Warn("Exit order failed, will place again")
			l.state = PositionOpen
			return
		}

		if o.Status == contracts.OrderStatusComplete {
			l.exitOrderStatus = o.Status
			l.exitPrice = o.AveragePrice
			l.exitTime = o.OrderTimestamp
			if l.exitTime.IsZero() {
				l.exitTime = l.now()
			}
			l.exitType = contracts.ExitTypeStopLoss
			if l.marketConversion {
				l.exitType = contracts.ExitTypeTime
			}

			l.logger.WithFields(map[string]interface{}{
				"order_id":  o.OrderID,
				"price":     l.exitPrice,
				"exit_type": l.exitType,
			}).Info("Exit order filled")

			closed := contracts.PositionClosed
			status := o.Status
			exitTime := l.exitTime
			exitPrice := l.exitPrice
			exitType := l.exitType
			l.emit(contracts.ConfirmExit{
				TradeKey:        l.key(),
				PositionStatus:  &closed,
				ExitTime:        &exitTime,
				ExitPrice:       &exitPrice,
				ExitType:        &exitType,
				ExitOrderStatus: &status,
			})
			l.terminate("trade completed")
			return
		}
	}
}

// adjustExit converts the exit to market past the deadline, otherwise trails the stop
func (l *Lifecycle) adjustExit(ctx context.Context) {
	if l.pastDeadline() {
		_, err := l.broker.ModifyOrder(ctx, contracts.ModifyRequest{
			OrderID:   l.exitOrderID,
			Variety:   contracts.VarietyRegular,
			OrderType: contracts.OrderTypeMarket,
		})
		if err != nil {
			l.logger.WithError(err).Warn("Market conversion failed")
			return
		}
		l.marketConversion = true
		l.logger.WithField("order_id", l.exitOrderID).Info("End time reached, exit converted to market")
		return
	}

	if !l.cfg.TrailSL {
		return
	}

	candidate, moved := trailedStop(l.stopLoss, l.reference, l.lastPrice, l.cfg.Direction)
	if !moved || !tighter(candidate, l.trailedStop, l.cfg.Direction) {
		return
	}

	price := round1(candidate)
	_, err := l.broker.ModifyOrder(ctx, contracts.ModifyRequest{
		OrderID:      l.exitOrderID,
		Variety:      contracts.VarietyRegular,
		Price:        &price,
		TriggerPrice: &price,
	})
	if err != nil {
		l.logger.WithError(err).Warn("Trailing modification failed")
		return
	}

	l.logger.WithFields(map[string]interface{}{
		"order_id": l.exitOrderID,
		"from":     l.trailedStop,
		"to":       candidate,
	}).Info("Stop loss trailed")

	l.trailedStop = candidate
	l.exitOrderPrice = price
	l.emit(contracts.ModifyExit{
		TradeKey:       l.key(),
		FinalStopLoss:  candidate,
		ExitOrderPrice: price,
	})
}

// orderSource yields the streamed updates, or the broker order list when none were streamed
type orderSource struct {
	updates []contracts.OrderUpdate
	broker  broker.Broker
	fetched bool
	ok      bool
}

func (s *orderSource) get(ctx context.Context) ([]contracts.OrderUpdate, bool) {
	if len(s.updates) > 0 {
		return s.updates, true
	}
	if !s.fetched {
		s.fetched = true
		list, err := s.broker.Orders(ctx)
		if err == nil {
			s.updates = list
			s.ok = true
		}
	}
	return s.updates, s.ok
}

func optionalPrice(p float64) *float64 {
	if p == 0 {
		return nil
	}
	return &p
}

func errOrEmpty(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("empty order id")
}
