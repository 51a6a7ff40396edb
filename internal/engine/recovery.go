package engine

import (
	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/internal/ledger"
	"github.com/wonny/optrader/internal/lifecycle"
	"github.com/wonny/optrader/internal/selection"
)

// configFromRecord rebuilds the lifecycle setup persisted with the entry
func configFromRecord(r ledger.TradeRecord) (lifecycle.Config, error) {
	end, err := contracts.ParseTimeOfDay(r.EndTime)
	if err != nil {
		return lifecycle.Config{}, err
	}
	return lifecycle.Config{
		Symbol:           r.Symbol,
		InstrumentToken:  uint32(r.InstrumentToken),
		Exchange:         r.Exchange,
		UnderlyingSymbol: r.UnderlyingSymbol,
		Direction:        contracts.Direction(r.Direction),
		LotSize:          r.LotSize,
		Lots:             r.Lots,
		StopLossPercent:  r.StopLossPercent,
		TrailSL:          r.TrailSL,
		EndTime:          end,
	}, nil
}

// recoveredFromRecord extracts order progress from a ledger row
func recoveredFromRecord(r ledger.TradeRecord) lifecycle.Recovered {
	return lifecycle.Recovered{
		Side:             contracts.Side(r.Side),
		Quantity:         r.Quantity,
		EntryOrderID:     r.EntryOrderID,
		EntryOrderStatus: contracts.OrderStatus(r.EntryOrderStatus),
		EntryOrderPrice:  r.EntryOrderPrice,
		EntryTime:        r.EntryTimeValue(),
		EntryPrice:       r.EntryPriceValue(),
		StopLoss:         r.StopLossValue(),
		FinalStopLoss:    r.FinalStopLossValue(),
		ExitOrderID:      r.ExitOrderIDValue(),
		ExitOrderStatus:  r.ExitOrderStatusValue(),
		ExitOrderPrice:   r.ExitOrderPriceValue(),
	}
}

// configFromCandidate sizes a new lifecycle from a selected contract
func configFromCandidate(c selection.Candidate) lifecycle.Config {
	return lifecycle.Config{
		Symbol:           c.Instrument.TradingSymbol,
		InstrumentToken:  c.Instrument.InstrumentToken,
		Exchange:         c.Instrument.Exchange,
		UnderlyingSymbol: c.Underlying,
		Direction:        c.Direction,
		LotSize:          c.Instrument.LotSize,
		Lots:             c.Lots,
		StopLossPercent:  c.StopLossPercent,
		TrailSL:          c.TrailSL,
		EndTime:          c.EndTime,
	}
}
