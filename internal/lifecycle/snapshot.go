package lifecycle

import (
	"time"

	"github.com/wonny/optrader/internal/contracts"
)

// Snapshot is a read-only copy of a lifecycle for reporting
type Snapshot struct {
	ID               string                `json:"id"`
	Symbol           string                `json:"symbol"`
	InstrumentToken  uint32                `json:"instrument_token"`
	Exchange         string                `json:"exchange"`
	UnderlyingSymbol string                `json:"underlying_symbol"`
	Direction        contracts.Direction   `json:"direction"`
	State            string                `json:"state"`
	Entered          bool                  `json:"entered"`
	EntryFilled      bool                  `json:"entry_filled"`
	PositionOpen     bool                  `json:"position_open"`
	ExitPending      bool                  `json:"exit_pending"`
	Terminated       bool                  `json:"terminated"`
	Quantity         int                   `json:"quantity"`
	Side             contracts.Side        `json:"side,omitempty"`
	EndTime          string                `json:"end_time"`
	EntryOrderID     string                `json:"entry_order_id,omitempty"`
	EntryOrderStatus contracts.OrderStatus `json:"entry_order_status,omitempty"`
	EntryPrice       float64               `json:"entry_price,omitempty"`
	EntryTime        time.Time             `json:"entry_time,omitempty"`
	StopLoss         float64               `json:"stop_loss,omitempty"`
	TrailedStopLoss  float64               `json:"trailed_stop_loss,omitempty"`
	ReferencePrice   float64               `json:"reference_price,omitempty"`
	ExitOrderID      string                `json:"exit_order_id,omitempty"`
	ExitOrderPrice   float64               `json:"exit_order_price,omitempty"`
	ExitPrice        float64               `json:"exit_price,omitempty"`
	ExitType         string                `json:"exit_type,omitempty"`
	LastPrice        float64               `json:"last_price"`
	LastTickAt       time.Time             `json:"last_tick_at"`
}

// Snapshot copies the current view
func (l *Lifecycle) Snapshot() Snapshot {
	return Snapshot{
		ID:               l.id,
		Symbol:           l.cfg.Symbol,
		InstrumentToken:  l.cfg.InstrumentToken,
		Exchange:         l.cfg.Exchange,
		UnderlyingSymbol: l.cfg.UnderlyingSymbol,
		Direction:        l.cfg.Direction,
		State:            l.state.String(),
		Entered:          l.state.Entered(),
		EntryFilled:      l.state.EntryFilled(),
		PositionOpen:     l.state.PositionHeld(),
		ExitPending:      l.state.ExitPending(),
		Terminated:       l.state == Terminated,
		Quantity:         l.quantity,
		Side:             l.side,
		EndTime:          l.cfg.EndTime.String(),
		EntryOrderID:     l.entryOrderID,
		EntryOrderStatus: l.entryOrderStatus,
		EntryPrice:       l.entryPrice,
		EntryTime:        l.entryTime,
		StopLoss:         l.stopLoss,
		TrailedStopLoss:  l.trailedStop,
		ReferencePrice:   l.reference,
		ExitOrderID:      l.exitOrderID,
		ExitOrderPrice:   l.exitOrderPrice,
		ExitPrice:        l.exitPrice,
		ExitType:         l.exitType,
		LastPrice:        l.lastPrice,
		LastTickAt:       l.lastTick,
	}
}
