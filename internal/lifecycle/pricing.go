package lifecycle

import (
	"github.com/shopspring/decimal"

	"github.com/wonny/optrader/internal/contracts"
)

var hundred = decimal.NewFromInt(100)

// round1 rounds a price to one decimal place
func round1(p float64) float64 {
	return decimal.NewFromFloat(p).Round(1).InexactFloat64()
}

// initialStop is entry × (1 ∓ pct/100) depending on direction
func initialStop(entry, pct float64, dir contracts.Direction) float64 {
	e := decimal.NewFromFloat(entry)
	frac := decimal.NewFromFloat(pct).Div(hundred)

	if dir == contracts.DirectionShort {
		return e.Mul(decimal.NewFromInt(1).Add(frac)).InexactFloat64()
	}
	return e.Mul(decimal.NewFromInt(1).Sub(frac)).InexactFloat64()
}

// trailedStop shifts the initial stop by the favorable move from ref to ltp.
// ok is false when price has not moved favorably past ref.
func trailedStop(stop, ref, ltp float64, dir contracts.Direction) (float64, bool) {
	s := decimal.NewFromFloat(stop)
	r := decimal.NewFromFloat(ref)
	l := decimal.NewFromFloat(ltp)

	if dir == contracts.DirectionShort {
		if !l.LessThan(r) {
			return 0, false
		}
		return s.Sub(r.Sub(l)).InexactFloat64(), true
	}

	if !l.GreaterThan(r) {
		return 0, false
	}
	return s.Add(l.Sub(r)).InexactFloat64(), true
}

// tighter reports whether candidate reduces risk compared to current
func tighter(candidate, current float64, dir contracts.Direction) bool {
	if dir == contracts.DirectionShort {
		return candidate < current
	}
	return candidate > current
}
