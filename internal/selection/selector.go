package selection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/pkg/logger"
)

var (
	// ErrNotYet means the start time has not been reached; try again later
	ErrNotYet = errors.New("selection: start time not reached")
	// ErrNoContracts means the universe holds no calls or no puts for the underlying/expiry
	ErrNoContracts = errors.New("selection: no option contracts for expiry")
	// ErrNoMatch means no contract satisfied the rule or the price lookup was empty
	ErrNoMatch = errors.New("selection: no matching strike")
)

// OptionType selects which side(s) to trade
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
	OptionBoth OptionType = "BOTH"
)

// Valid reports a known option type
func (o OptionType) Valid() bool {
	return o == OptionCall || o == OptionPut || o == OptionBoth
}

func (o OptionType) wantsCall() bool { return o == OptionCall || o == OptionBoth }
func (o OptionType) wantsPut() bool  { return o == OptionPut || o == OptionBoth }

// Request describes one selection (one strategy batch)
type Request struct {
	Symbol      string // underlying, e.g. "NIFTY 50"
	Exchange    string // underlying quote exchange, e.g. NSE
	Expiry      time.Time
	StartTime   contracts.TimeOfDay
	EndTime     contracts.TimeOfDay
	Lots        int
	OptType     OptionType
	CallPremium float64
	PutPremium  float64
	StrikeDist  float64
	StrikeDiff  float64

	Direction       contracts.Direction
	StopLossPercent float64
	TrailSL         bool
}

// ByPremium reports whether premium targets drive the selection
func (r Request) ByPremium() bool {
	return r.CallPremium > 0 || r.PutPremium > 0
}

// Candidate is a selected contract plus the parameters to trade it with
type Candidate struct {
	Instrument      contracts.Instrument `json:"instrument"`
	Underlying      string               `json:"underlying"`
	Lots            int                  `json:"lots"`
	EndTime         contracts.TimeOfDay  `json:"end_time"`
	Direction       contracts.Direction  `json:"direction"`
	StopLossPercent float64              `json:"stop_loss_percent"`
	TrailSL         bool                 `json:"trail_sl"`
}

// QuoteSource returns last traded prices keyed by "exchange:tradingsymbol"
type QuoteSource interface {
	LTP(ctx context.Context, keys ...string) (map[string]float64, error)
}

// Selector resolves option contracts for a request
// ⭐ SSOT: 행사가 선택 로직은 여기서만
type Selector struct {
	quotes QuoteSource
	logger *logger.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewSelector creates a selector; now may be nil for time.Now
func NewSelector(quotes QuoteSource, loc *time.Location, log *logger.Logger, now func() time.Time) *Selector {
	if now == nil {
		now = time.Now
	}
	return &Selector{
		quotes: quotes,
		logger: log.Component("selection"),
		loc:    loc,
		now:    now,
	}
}

// indexNames maps index quote names to their derivative names
var indexNames = map[string]string{
	"NIFTY 50":          "NIFTY",
	"NIFTY BANK":        "BANKNIFTY",
	"NIFTY FIN SERVICE": "FINNIFTY",
}

// DerivativeName returns the instrument-master name of an underlying
func DerivativeName(symbol string) string {
	if name, ok := indexNames[symbol]; ok {
		return name
	}
	return symbol
}

// Select picks one call, one put or both for req from universe
func (s *Selector) Select(ctx context.Context, req Request, universe []contracts.Instrument) ([]Candidate, error) {
	log := s.logger.WithFields(map[string]interface{}{
		"symbol": req.Symbol,
		"expiry": req.Expiry.Format("2006-01-02"),
	})

	calls, puts := Split(universe, DerivativeName(req.Symbol), req.Expiry)
	if len(calls) == 0 || len(puts) == 0 {
		log.Warn("No option contracts found for expiry, check parameters")
		return nil, ErrNoContracts
	}

	// 시작 시각 전에는 대기
	if contracts.TimeOfDayOf(s.now(), s.loc).Compare(req.StartTime) < 0 {
		return nil, ErrNotYet
	}

	var call, put *contracts.Instrument
	var err error
	if req.ByPremium() {
		call, put, err = s.byPremium(ctx, req, calls, puts)
	} else {
		call, put, err = s.byDistance(ctx, req, calls, puts)
	}
	if err != nil {
		log.WithError(err).Warn("Strike selection failed")
		return nil, err
	}

	var out []Candidate
	if req.OptType.wantsCall() {
		out = append(out, s.candidate(req, *call))
	}
	if req.OptType.wantsPut() {
		out = append(out, s.candidate(req, *put))
	}

	for _, c := range out {
		log.WithFields(map[string]interface{}{
			"tradingsymbol": c.Instrument.TradingSymbol,
			"strike":        c.Instrument.Strike,
			"lots":          c.Lots,
		}).Info("Contract selected")
	}
	return out, nil
}

func (s *Selector) candidate(req Request, inst contracts.Instrument) Candidate {
	return Candidate{
		Instrument:      inst,
		Underlying:      req.Symbol,
		Lots:            req.Lots,
		EndTime:         req.EndTime,
		Direction:       req.Direction,
		StopLossPercent: req.StopLossPercent,
		TrailSL:         req.TrailSL,
	}
}

// Split filters NFO options of name/expiry into calls and puts
func Split(universe []contracts.Instrument, name string, expiry time.Time) (calls, puts []contracts.Instrument) {
	for _, inst := range universe {
		if inst.Name != name || inst.Segment != contracts.SegmentNFOOpt || !contracts.SameDay(inst.Expiry, expiry) {
			continue
		}
		switch inst.InstrumentType {
		case contracts.InstrumentCall:
			calls = append(calls, inst)
		case contracts.InstrumentPut:
			puts = append(puts, inst)
		}
	}
	return calls, puts
}

// byPremium looks up every candidate of the requested sides in one call
func (s *Selector) byPremium(ctx context.Context, req Request, calls, puts []contracts.Instrument) (*contracts.Instrument, *contracts.Instrument, error) {
	var pool []contracts.Instrument
	if req.OptType.wantsCall() {
		pool = append(pool, calls...)
	}
	if req.OptType.wantsPut() {
		pool = append(pool, puts...)
	}

	keys := make([]string, 0, len(pool))
	for _, inst := range pool {
		keys = append(keys, inst.QuoteKey())
	}

	prices, err := s.quotes.LTP(ctx, keys...)
	if err != nil || len(prices) == 0 {
		return nil, nil, fmt.Errorf("%w: premium lookup empty", ErrNoMatch)
	}

	var call, put *contracts.Instrument
	if req.OptType.wantsCall() {
		if call = closestPremium(calls, prices, req.CallPremium); call == nil {
			return nil, nil, fmt.Errorf("%w: no call priced", ErrNoMatch)
		}
	}
	if req.OptType.wantsPut() {
		if put = closestPremium(puts, prices, req.PutPremium); put == nil {
			return nil, nil, fmt.Errorf("%w: no put priced", ErrNoMatch)
		}
	}
	return call, put, nil
}

func closestPremium(opts []contracts.Instrument, prices map[string]float64, premium float64) *contracts.Instrument {
	var best *contracts.Instrument
	diff := math.Inf(1)

	for i := range opts {
		ltp, ok := prices[opts[i].QuoteKey()]
		if !ok {
			continue
		}
		if d := math.Abs(ltp - premium); d < diff {
			diff = d
			best = &opts[i]
		}
	}
	return best
}

// byDistance picks strikes around the underlying spot price
func (s *Selector) byDistance(ctx context.Context, req Request, calls, puts []contracts.Instrument) (*contracts.Instrument, *contracts.Instrument, error) {
	key := contracts.QuoteKey(req.Exchange, req.Symbol)

	prices, err := s.quotes.LTP(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: spot lookup for %s: %v", ErrNoMatch, key, err)
	}
	spot, ok := prices[key]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no spot price for %s", ErrNoMatch, key)
	}

	var call, put *contracts.Instrument
	if req.OptType.wantsCall() {
		if call = CallStrike(calls, spot, req.StrikeDist, req.StrikeDiff); call == nil {
			return nil, nil, fmt.Errorf("%w: no call strike >= %.2f", ErrNoMatch, spot+req.StrikeDist)
		}
	}
	if req.OptType.wantsPut() {
		if put = PutStrike(puts, spot, req.StrikeDist, req.StrikeDiff); put == nil {
			return nil, nil, fmt.Errorf("%w: no put strike <= %.2f", ErrNoMatch, spot-req.StrikeDist)
		}
	}
	return call, put, nil
}

// CallStrike returns the lowest call strike >= spot+dist that is a multiple of step
func CallStrike(calls []contracts.Instrument, spot, dist, step float64) *contracts.Instrument {
	var best *contracts.Instrument
	for i := range calls {
		k := calls[i].Strike
		if k < spot+dist || !multipleOf(k, step) {
			continue
		}
		if best == nil || k < best.Strike {
			best = &calls[i]
		}
	}
	return best
}

// PutStrike returns the highest put strike <= spot-dist that is a multiple of step
func PutStrike(puts []contracts.Instrument, spot, dist, step float64) *contracts.Instrument {
	var best *contracts.Instrument
	for i := range puts {
		k := puts[i].Strike
		if k > spot-dist || !multipleOf(k, step) {
			continue
		}
		if best == nil || k > best.Strike {
			best = &puts[i]
		}
	}
	return best
}

func multipleOf(strike, step float64) bool {
	if step <= 0 {
		return true
	}
	return decimal.NewFromFloat(strike).Mod(decimal.NewFromFloat(step)).IsZero()
}
