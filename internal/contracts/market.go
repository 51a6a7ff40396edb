package contracts

import (
	"fmt"
	"time"
)

// Tick is one market-data price update for an instrument
type Tick struct {
	InstrumentToken uint32    `json:"instrument_token"`
	LastPrice       float64   `json:"last_price"`
	LastTradeTime   time.Time `json:"last_trade_time"`
}

// Valid reports whether the tick carries a price and a time
func (t Tick) Valid() bool {
	return t.LastPrice > 0 && !t.LastTradeTime.IsZero()
}

// Instrument is one row of the venue instrument master
type Instrument struct {
	InstrumentToken uint32    `json:"instrument_token"`
	ExchangeToken   uint32    `json:"exchange_token"`
	TradingSymbol   string    `json:"tradingsymbol"`
	Name            string    `json:"name"`
	Expiry          time.Time `json:"expiry"`
	Strike          float64   `json:"strike"`
	TickSize        float64   `json:"tick_size"`
	LotSize         int       `json:"lot_size"`
	InstrumentType  string    `json:"instrument_type"` // CE, PE, FUT, EQ
	Segment         string    `json:"segment"`         // NFO-OPT, INDICES ...
	Exchange        string    `json:"exchange"`
}

// Instrument types and segments used by option selection
const (
	InstrumentCall = "CE"
	InstrumentPut  = "PE"
	SegmentNFOOpt  = "NFO-OPT"
	SegmentIndices = "INDICES"
	ExchangeNFO    = "NFO"
	ExchangeNSE    = "NSE"
)

// QuoteKey is the "exchange:tradingsymbol" key used by quote lookups
func (i Instrument) QuoteKey() string {
	return QuoteKey(i.Exchange, i.TradingSymbol)
}

// QuoteKey builds an "exchange:tradingsymbol" key
func QuoteKey(exchange, symbol string) string {
	return exchange + ":" + symbol
}

// SameDay compares calendar dates ignoring clock and zone
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// TimeOfDay is a wall-clock time in the exchange time zone
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// MarketClose is the last time a lifecycle may keep an exit working
var MarketClose = TimeOfDay{Hour: 15, Minute: 20}

// ParseTimeOfDay accepts "15:04" or "15:04:05"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q (expected HH:MM or HH:MM:SS)", s)
}

// TimeOfDayOf extracts the wall clock of t in loc
func TimeOfDayOf(t time.Time, loc *time.Location) TimeOfDay {
	t = t.In(loc)
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// IsZero reports whether t is midnight (used as "unset")
func (t TimeOfDay) IsZero() bool {
	return t == TimeOfDay{}
}

func (t TimeOfDay) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// Compare returns -1, 0 or 1
func (t TimeOfDay) Compare(o TimeOfDay) int {
	switch a, b := t.seconds(), o.seconds(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Add shifts t by d, saturating at 23:59:59
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	s := t.seconds() + int(d/time.Second)
	if s < 0 {
		s = 0
	}
	if s > 86399 {
		s = 86399
	}
	return TimeOfDay{Hour: s / 3600, Minute: s % 3600 / 60, Second: s % 60}
}

// Min returns the earlier of t and o
func (t TimeOfDay) Min(o TimeOfDay) TimeOfDay {
	if o.Compare(t) < 0 {
		return o
	}
	return t
}

// PassedAt reports whether now (in loc) is strictly after t on now's day
func (t TimeOfDay) PassedAt(now time.Time, loc *time.Location) bool {
	return TimeOfDayOf(now, loc).Compare(t) > 0
}

// On returns t on the calendar day of day (in loc)
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, t.Second, 0, loc)
}

// MarshalText implements encoding.TextMarshaler
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler (yaml, json)
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
