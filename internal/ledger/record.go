package ledger

import (
	"time"

	"github.com/wonny/optrader/internal/contracts"
)

// TradeRecord is one row of the trades table
type TradeRecord struct {
	ID               int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Symbol           string     `gorm:"column:symbol;uniqueIndex:idx_trades_key;not null" json:"symbol"`
	EntryOrderID     string     `gorm:"column:entry_order_id;uniqueIndex:idx_trades_key;not null" json:"entry_order_id"`
	UnderlyingSymbol string     `gorm:"column:underlying_symbol" json:"underlying_symbol"`
	InstrumentToken  int64      `gorm:"column:instrument_token" json:"instrument_token"`
	Exchange         string     `gorm:"column:exchange" json:"exchange"`
	Direction        string     `gorm:"column:direction" json:"direction"`
	Side             string     `gorm:"column:side" json:"side"`
	Instruction      string     `gorm:"column:instruction" json:"instruction"`
	Quantity         int        `gorm:"column:quantity" json:"quantity"`
	Lots             int        `gorm:"column:lots" json:"lots"`
	LotSize          int        `gorm:"column:lot_size" json:"lot_size"`
	StopLossPercent  float64    `gorm:"column:stop_loss_percent" json:"stop_loss_percent"`
	TrailSL          bool       `gorm:"column:trail_sl" json:"trail_sl"`
	EndTime          string     `gorm:"column:end_time" json:"end_time"`
	EntryOrderTime   time.Time  `gorm:"column:entry_order_time;index" json:"entry_order_time"`
	EntryOrderPrice  float64    `gorm:"column:entry_order_price" json:"entry_order_price"`
	EntryOrderStatus string     `gorm:"column:entry_order_status" json:"entry_order_status"`
	EntryTime        *time.Time `gorm:"column:entry_time" json:"entry_time,omitempty"`
	EntryPrice       *float64   `gorm:"column:entry_price" json:"entry_price,omitempty"`
	StopLoss         *float64   `gorm:"column:stop_loss" json:"stop_loss,omitempty"`
	FinalStopLoss    *float64   `gorm:"column:final_stop_loss" json:"final_stop_loss,omitempty"`
	PositionStatus   *string    `gorm:"column:position_status" json:"position_status,omitempty"`
	ExitOrderID      *string    `gorm:"column:exit_order_id" json:"exit_order_id,omitempty"`
	ExitOrderTime    *time.Time `gorm:"column:exit_order_time" json:"exit_order_time,omitempty"`
	ExitOrderPrice   *float64   `gorm:"column:exit_order_price" json:"exit_order_price,omitempty"`
	ExitOrderStatus  *string    `gorm:"column:exit_order_status" json:"exit_order_status,omitempty"`
	ExitTime         *time.Time `gorm:"column:exit_time" json:"exit_time,omitempty"`
	ExitPrice        *float64   `gorm:"column:exit_price" json:"exit_price,omitempty"`
	ExitType         *string    `gorm:"column:exit_type" json:"exit_type,omitempty"`
	CreatedAt        time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

// TableName fixes the gorm table name
func (TradeRecord) TableName() string { return "trades" }

// recordFromEntry builds the initial row of a make_entry event
func recordFromEntry(e contracts.MakeEntry) TradeRecord {
	return TradeRecord{
		Symbol:           e.Symbol,
		EntryOrderID:     e.EntryOrderID,
		UnderlyingSymbol: e.UnderlyingSymbol,
		InstrumentToken:  int64(e.InstrumentToken),
		Exchange:         e.Exchange,
		Direction:        string(e.Direction),
		Side:             string(e.Side),
		Instruction:      string(e.Instruction),
		Quantity:         e.Quantity,
		Lots:             e.Lots,
		LotSize:          e.LotSize,
		StopLossPercent:  e.StopLossPercent,
		TrailSL:          e.TrailSL,
		EndTime:          e.EndTime.String(),
		EntryOrderTime:   e.EntryOrderTime.UTC(),
		EntryOrderPrice:  e.EntryOrderPrice,
		EntryOrderStatus: string(e.EntryOrderStatus),
	}
}

// Value helpers for nullable columns

func (r TradeRecord) PositionOpen() bool {
	return r.PositionStatus != nil && *r.PositionStatus == string(contracts.PositionOpen)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// ExitOrderIDValue returns the exit order id or ""
func (r TradeRecord) ExitOrderIDValue() string { return deref(r.ExitOrderID) }

// ExitOrderStatusValue returns the exit order status or ""
func (r TradeRecord) ExitOrderStatusValue() contracts.OrderStatus {
	return contracts.OrderStatus(deref(r.ExitOrderStatus))
}

// EntryPriceValue returns the fill price or 0
func (r TradeRecord) EntryPriceValue() float64 { return deref(r.EntryPrice) }

// StopLossValue returns the initial stop or 0
func (r TradeRecord) StopLossValue() float64 { return deref(r.StopLoss) }

// FinalStopLossValue returns the trailed stop or 0
func (r TradeRecord) FinalStopLossValue() float64 { return deref(r.FinalStopLoss) }

// ExitOrderPriceValue returns the exit order price or 0
func (r TradeRecord) ExitOrderPriceValue() float64 { return deref(r.ExitOrderPrice) }

// EntryTimeValue returns the fill time or the zero time
func (r TradeRecord) EntryTimeValue() time.Time { return deref(r.EntryTime) }
