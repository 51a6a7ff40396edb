package contracts

import "time"

// EventKind names a ledger event
type EventKind string

const (
	EventMakeEntry    EventKind = "make_entry"
	EventConfirmEntry EventKind = "confirm_entry"
	EventMakeExit     EventKind = "make_exit"
	EventModifyExit   EventKind = "modify_exit"
	EventConfirmExit  EventKind = "confirm_exit"
)

// Exit types recorded on confirm_exit
const (
	ExitTypeStopLoss = "SL"
	ExitTypeTime     = "TIME"
)

// TradeKey identifies one trade row in the ledger
type TradeKey struct {
	Symbol       string `json:"symbol"`
	EntryOrderID string `json:"entry_order_id"`
}

// LedgerEvent is a typed persistence event emitted by a lifecycle
// ⭐ SSOT: Lifecycle → Ledger 이벤트는 아래 5종뿐
type LedgerEvent interface {
	Kind() EventKind
	Key() TradeKey
}

// MakeEntry records a submitted entry order (creates the trade row)
type MakeEntry struct {
	TradeKey
	EntryOrderTime   time.Time   `json:"entry_order_time"`
	EntryOrderPrice  float64     `json:"entry_order_price"`
	Instruction      Side        `json:"instruction"`
	EntryOrderStatus OrderStatus `json:"entry_order_status"`
	Side             Side        `json:"side"`
	Quantity         int         `json:"quantity"`
	Exchange         string      `json:"exchange"`
	Direction        Direction   `json:"direction"`
	UnderlyingSymbol string      `json:"underlying_symbol"`
	EndTime          TimeOfDay   `json:"end_time"`
	Lots             int         `json:"lots"`
	LotSize          int         `json:"lot_size"`
	StopLossPercent  float64     `json:"stop_loss_percent"`
	InstrumentToken  uint32      `json:"instrument_token"`
	TrailSL          bool        `json:"trail_sl"`
}

// ConfirmEntry records the entry fill or its failure
type ConfirmEntry struct {
	TradeKey
	EntryOrderStatus OrderStatus     `json:"entry_order_status"`
	EntryTime        *time.Time      `json:"entry_time"`
	EntryPrice       *float64        `json:"entry_price"`
	StopLoss         *float64        `json:"stop_loss"`
	PositionStatus   *PositionStatus `json:"position_status"`
}

// MakeExit records a submitted protective stop order
type MakeExit struct {
	TradeKey
	PositionStatus  PositionStatus `json:"position_status"`
	ExitOrderID     string         `json:"exit_order_id"`
	ExitOrderTime   time.Time      `json:"exit_order_time"`
	ExitOrderStatus OrderStatus    `json:"exit_order_status"`
	ExitOrderPrice  float64        `json:"exit_order_price"`
}

// ModifyExit records a trailed stop
type ModifyExit struct {
	TradeKey
	FinalStopLoss  float64 `json:"final_stop_loss"`
	ExitOrderPrice float64 `json:"exit_order_price"`
}

// ConfirmExit records the exit fill, or a cleared row when the position vanished
type ConfirmExit struct {
	TradeKey
	PositionStatus  *PositionStatus `json:"position_status"`
	ExitTime        *time.Time      `json:"exit_time"`
	ExitPrice       *float64        `json:"exit_price"`
	ExitType        *string         `json:"exit_type"`
	ExitOrderStatus *OrderStatus    `json:"exit_order_status"`
}

func (MakeEntry) Kind() EventKind    { return EventMakeEntry }
func (ConfirmEntry) Kind() EventKind { return EventConfirmEntry }
func (MakeExit) Kind() EventKind     { return EventMakeExit }
func (ModifyExit) Kind() EventKind   { return EventModifyExit }
func (ConfirmExit) Kind() EventKind  { return EventConfirmExit }

// Key returns the trade row key
func (k TradeKey) Key() TradeKey { return k }
