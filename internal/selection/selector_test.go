package selection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/pkg/logger"
)

var ist = time.FixedZone("IST", 19800)

var expiry = time.Date(2026, 10, 20, 0, 0, 0, 0, ist)

type stubQuotes struct {
	prices map[string]float64
	calls  [][]string
	err    error
}

func (q *stubQuotes) LTP(ctx context.Context, keys ...string) (map[string]float64, error) {
	q.calls = append(q.calls, keys)
	if q.err != nil {
		return nil, q.err
	}
	out := map[string]float64{}
	for _, k := range keys {
		if p, ok := q.prices[k]; ok {
			out[k] = p
		}
	}
	return out, nil
}

func option(name string, strike float64, typ string) contracts.Instrument {
	return contracts.Instrument{
		InstrumentToken: uint32(strike),
		TradingSymbol:   fmt.Sprintf("%s26OCT%.0f%s", name, strike, typ),
		Name:            name,
		Expiry:          expiry,
		Strike:          strike,
		LotSize:         50,
		InstrumentType:  typ,
		Segment:         contracts.SegmentNFOOpt,
		Exchange:        contracts.ExchangeNFO,
	}
}

func universe() []contracts.Instrument {
	var out []contracts.Instrument
	for k := 17800.0; k <= 18300; k += 50 {
		out = append(out, option("NIFTY", k, "CE"), option("NIFTY", k, "PE"))
	}
	// other expiry and other underlying are ignored
	other := option("NIFTY", 18100, "CE")
	other.Expiry = expiry.AddDate(0, 0, 7)
	other.TradingSymbol = "NIFTY26OCT18100CE-NEXT"
	out = append(out, other, option("BANKNIFTY", 18100, "CE"))
	return out
}

func newSelector(q QuoteSource, h, m int) *Selector {
	now := func() time.Time { return time.Date(2026, 10, 15, h, m, 0, 0, ist) }
	return NewSelector(q, ist, logger.Nop(), now)
}

func baseRequest() Request {
	return Request{
		Symbol:          "NIFTY 50",
		Exchange:        contracts.ExchangeNSE,
		Expiry:          expiry,
		StartTime:       contracts.TimeOfDay{Hour: 9, Minute: 20},
		EndTime:         contracts.TimeOfDay{Hour: 15, Minute: 10},
		Lots:            2,
		OptType:         OptionBoth,
		StrikeDist:      50,
		StrikeDiff:      100,
		Direction:       contracts.DirectionShort,
		StopLossPercent: 20,
		TrailSL:         true,
	}
}

func TestSelectByDistance(t *testing.T) {
	q := &stubQuotes{prices: map[string]float64{"NSE:NIFTY 50": 18050}}
	s := newSelector(q, 9, 30)

	got, err := s.Select(context.Background(), baseRequest(), universe())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 18100.0, got[0].Instrument.Strike)
	assert.Equal(t, "CE", got[0].Instrument.InstrumentType)
	assert.Equal(t, 18000.0, got[1].Instrument.Strike)
	assert.Equal(t, "PE", got[1].Instrument.InstrumentType)

	assert.Equal(t, 2, got[0].Lots)
	assert.Equal(t, contracts.TimeOfDay{Hour: 15, Minute: 10}, got[0].EndTime)
	assert.Equal(t, "NIFTY 50", got[0].Underlying)
	assert.Equal(t, contracts.DirectionShort, got[1].Direction)

	require.Len(t, q.calls, 1)
	assert.Equal(t, []string{"NSE:NIFTY 50"}, q.calls[0])
}

func TestSelectByPremium(t *testing.T) {
	q := &stubQuotes{prices: map[string]float64{
		"NFO:NIFTY26OCT18100CE": 62,
		"NFO:NIFTY26OCT18200CE": 31,
		"NFO:NIFTY26OCT18300CE": 12,
		"NFO:NIFTY26OCT17900PE": 28,
		"NFO:NIFTY26OCT17800PE": 14,
	}}
	s := newSelector(q, 9, 30)

	req := baseRequest()
	req.CallPremium = 30
	req.PutPremium = 15

	got, err := s.Select(context.Background(), req, universe())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "NIFTY26OCT18200CE", got[0].Instrument.TradingSymbol)
	assert.Equal(t, "NIFTY26OCT17800PE", got[1].Instrument.TradingSymbol)

	// one batched lookup covering both sides
	require.Len(t, q.calls, 1)
	assert.Len(t, q.calls[0], 22)
}

func TestSelectOptionTypes(t *testing.T) {
	q := &stubQuotes{prices: map[string]float64{"NSE:NIFTY 50": 18050}}
	s := newSelector(q, 9, 30)

	req := baseRequest()
	req.OptType = OptionCall
	got, err := s.Select(context.Background(), req, universe())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "CE", got[0].Instrument.InstrumentType)

	req.OptType = OptionPut
	got, err = s.Select(context.Background(), req, universe())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PE", got[0].Instrument.InstrumentType)
}

func TestSelectNotYet(t *testing.T) {
	q := &stubQuotes{}
	s := newSelector(q, 9, 10)

	_, err := s.Select(context.Background(), baseRequest(), universe())
	assert.ErrorIs(t, err, ErrNotYet)
	assert.Empty(t, q.calls)
}

func TestSelectNoContracts(t *testing.T) {
	s := newSelector(&stubQuotes{}, 9, 30)

	req := baseRequest()
	req.Expiry = expiry.AddDate(0, 1, 0)
	_, err := s.Select(context.Background(), req, universe())
	assert.ErrorIs(t, err, ErrNoContracts)

	// only calls available
	var callsOnly []contracts.Instrument
	for _, inst := range universe() {
		if inst.InstrumentType == "CE" {
			callsOnly = append(callsOnly, inst)
		}
	}
	_, err = s.Select(context.Background(), baseRequest(), callsOnly)
	assert.ErrorIs(t, err, ErrNoContracts)
}

func TestSelectEmptyLookup(t *testing.T) {
	s := newSelector(&stubQuotes{err: errors.New("down")}, 9, 30)
	_, err := s.Select(context.Background(), baseRequest(), universe())
	assert.ErrorIs(t, err, ErrNoMatch)

	s = newSelector(&stubQuotes{prices: map[string]float64{}}, 9, 30)
	req := baseRequest()
	req.CallPremium, req.PutPremium = 30, 30
	_, err = s.Select(context.Background(), req, universe())
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestSelectNoStrikeInRange(t *testing.T) {
	q := &stubQuotes{prices: map[string]float64{"NSE:NIFTY 50": 18290}}
	s := newSelector(q, 9, 30)

	_, err := s.Select(context.Background(), baseRequest(), universe())
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestStrikeHelpers(t *testing.T) {
	calls, puts := Split(universe(), "NIFTY", expiry)
	assert.Len(t, calls, 11)
	assert.Len(t, puts, 11)

	tests := []struct {
		spot, dist, step float64
		call, put        float64
	}{
		{18050, 50, 100, 18100, 18000},
		{18050, 0, 50, 18050, 18050},
		{18020, 100, 100, 18200, 17900},
		{18000, 0, 0, 18000, 18000},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.0f_%.0f_%.0f", tt.spot, tt.dist, tt.step), func(t *testing.T) {
			c := CallStrike(calls, tt.spot, tt.dist, tt.step)
			p := PutStrike(puts, tt.spot, tt.dist, tt.step)
			require.NotNil(t, c)
			require.NotNil(t, p)
			assert.Equal(t, tt.call, c.Strike)
			assert.Equal(t, tt.put, p.Strike)
		})
	}
}

func TestDerivativeName(t *testing.T) {
	assert.Equal(t, "NIFTY", DerivativeName("NIFTY 50"))
	assert.Equal(t, "BANKNIFTY", DerivativeName("NIFTY BANK"))
	assert.Equal(t, "FINNIFTY", DerivativeName("NIFTY FIN SERVICE"))
	assert.Equal(t, "RELIANCE", DerivativeName("RELIANCE"))
}
