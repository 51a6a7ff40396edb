package lifecycle

import (
	"time"

	"github.com/wonny/optrader/internal/broker"
	"github.com/wonny/optrader/internal/contracts"
)

// Recovered is the persisted progress of a trade found open at startup
type Recovered struct {
	Side             contracts.Side
	Quantity         int
	EntryOrderID     string
	EntryOrderStatus contracts.OrderStatus
	EntryOrderPrice  float64
	EntryTime        time.Time
	EntryPrice       float64
	StopLoss         float64
	FinalStopLoss    float64
	ExitOrderID      string
	ExitOrderStatus  contracts.OrderStatus
	ExitOrderPrice   float64
}

// Restore rebuilds a lifecycle from ledger state without placing a new entry
// entry_filled = entry status != OPEN, exit_pending = exit status == OPEN
func Restore(cfg Config, rec Recovered, b broker.Broker, opts ...Option) *Lifecycle {
	l := New(cfg, b, opts...)

	if rec.Quantity > 0 {
		l.quantity = rec.Quantity
	}
	if l.quantity <= 0 {
		l.state = Terminated
		return l
	}

	l.side = rec.Side
	if l.side == "" {
		l.side = cfg.Direction.EntrySide()
	}
	l.entryOrderID = rec.EntryOrderID
	l.entryOrderStatus = rec.EntryOrderStatus
	l.entryOrderPrice = rec.EntryOrderPrice
	l.entryTime = rec.EntryTime
	l.entryPrice = rec.EntryPrice
	l.stopLoss = rec.StopLoss
	l.trailedStop = rec.FinalStopLoss
	if l.trailedStop == 0 {
		l.trailedStop = rec.StopLoss
	}
	l.reference = rec.EntryPrice
	l.exitOrderID = rec.ExitOrderID
	l.exitOrderStatus = rec.ExitOrderStatus
	l.exitOrderPrice = rec.ExitOrderPrice

	entryFilled := rec.EntryOrderStatus != contracts.OrderStatusOpen
	exitPending := rec.ExitOrderStatus == contracts.OrderStatusOpen

	switch {
	case !entryFilled:
		l.state = EntryPlaced
	case exitPending:
		l.state = ExitPlaced
	default:
		l.state = PositionOpen
	}

	l.logger.WithFields(map[string]interface{}{
		"state":          l.state.String(),
		"entry_order_id": rec.EntryOrderID,
		"exit_order_id":  rec.ExitOrderID,
	}).Info("Lifecycle restored")

	return l
}
