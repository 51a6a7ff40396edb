package contracts

import "time"

// Direction is the trading intent of a lifecycle
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// EntrySide is the transaction type that opens a position in this direction
func (d Direction) EntrySide() Side {
	if d == DirectionShort {
		return SideSell
	}
	return SideBuy
}

// Side is the venue transaction type
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType represents the venue order type
type OrderType string

const (
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeStopLoss OrderType = "SL"
)

// OrderStatus is the venue order status
// 거래소 중간 상태(TRIGGER PENDING 등)는 그대로 전달되며 미체결로 취급
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusComplete  OrderStatus = "COMPLETE"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Failed reports a terminal non-fill status
func (s OrderStatus) Failed() bool {
	return s == OrderStatusRejected || s == OrderStatusCancelled
}

// PositionStatus is the ledger view of a position
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Order defaults for intraday option trading
const (
	ProductMIS     = "MIS"
	VarietyRegular = "regular"
	OrderTag       = "algo_order"
)

// OrderRequest is a new order sent to the venue
// ⭐ SSOT: Lifecycle → Broker 주문 정보 전달
type OrderRequest struct {
	Symbol       string
	Exchange     string
	Side         Side
	Quantity     int
	OrderType    OrderType
	Price        float64
	TriggerPrice float64
	Product      string
	Variety      string
	Tag          string
}

// ModifyRequest changes a working order; zero fields stay unchanged
type ModifyRequest struct {
	OrderID      string
	Variety      string
	OrderType    OrderType
	Price        *float64
	TriggerPrice *float64
}

// OrderUpdate is one observed order status (stream or order book)
type OrderUpdate struct {
	OrderID         string      `json:"order_id"`
	TradingSymbol   string      `json:"tradingsymbol"`
	Status          OrderStatus `json:"status"`
	AveragePrice    float64     `json:"average_price"`
	OrderTimestamp  time.Time   `json:"order_timestamp"`
	StatusMessage   string      `json:"status_message,omitempty"`
	TransactionType Side        `json:"transaction_type,omitempty"`
}

// Position is one row of the venue's day positions
type Position struct {
	TradingSymbol string  `json:"tradingsymbol"`
	Exchange      string  `json:"exchange"`
	Product       string  `json:"product"`
	Quantity      int     `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
}
