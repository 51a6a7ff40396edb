package kite

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wonny/optrader/internal/contracts"
)

// Decoder turns Kite ticker websocket frames into ticks and order updates
type Decoder struct {
	loc *time.Location
}

// NewDecoder creates a frame decoder; loc is used for order timestamps
func NewDecoder(loc *time.Location) *Decoder {
	return &Decoder{loc: loc}
}

// Segment ids carried in the low byte of an instrument token
const (
	segmentCDS = 3
	segmentBCD = 6
)

// Packet lengths
const (
	packetLTP        = 8
	packetIndexQuote = 28
	packetIndexFull  = 32
	packetQuote      = 44
	packetFull       = 184
)

// DecodeTicks decodes one binary frame into ticks in packet order
// 1바이트 프레임은 heartbeat
func (d *Decoder) DecodeTicks(frame []byte) ([]contracts.Tick, error) {
	if len(frame) < 2 {
		return nil, nil
	}

	count := int(binary.BigEndian.Uint16(frame[0:2]))
	ticks := make([]contracts.Tick, 0, count)

	offset := 2
	for i := 0; i < count; i++ {
		if offset+2 > len(frame) {
			return ticks, fmt.Errorf("truncated frame at packet %d", i)
		}
		size := int(binary.BigEndian.Uint16(frame[offset : offset+2]))
		offset += 2
		if offset+size > len(frame) {
			return ticks, fmt.Errorf("truncated packet %d (len %d)", i, size)
		}

		if tick, ok := decodePacket(frame[offset : offset+size]); ok {
			ticks = append(ticks, tick)
		}
		offset += size
	}

	return ticks, nil
}

func decodePacket(p []byte) (contracts.Tick, bool) {
	if len(p) < packetLTP {
		return contracts.Tick{}, false
	}

	token := binary.BigEndian.Uint32(p[0:4])
	divisor := priceDivisor(token)

	tick := contracts.Tick{
		InstrumentToken: token,
		LastPrice:       float64(int32(binary.BigEndian.Uint32(p[4:8]))) / divisor,
	}

	switch {
	case len(p) == packetIndexFull:
		tick.LastTradeTime = unixAt(p, 28)
	case len(p) == packetFull:
		tick.LastTradeTime = unixAt(p, 44)
		if tick.LastTradeTime.IsZero() {
			tick.LastTradeTime = unixAt(p, 60)
		}
	}

	// LTP/quote 모드는 시각이 없으므로 수신 시각 사용
	if tick.LastTradeTime.IsZero() {
		tick.LastTradeTime = time.Now()
	}

	return tick, true
}

func unixAt(p []byte, at int) time.Time {
	if len(p) < at+4 {
		return time.Time{}
	}
	sec := binary.BigEndian.Uint32(p[at : at+4])
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0)
}

func priceDivisor(token uint32) float64 {
	switch token & 0xff {
	case segmentCDS:
		return 10_000_000
	case segmentBCD:
		return 10_000
	default:
		return 100
	}
}

// DecodeOrderUpdate decodes a text frame; ok is false for non-order messages
func (d *Decoder) DecodeOrderUpdate(frame []byte) (contracts.OrderUpdate, bool) {
	if !gjson.ValidBytes(frame) {
		return contracts.OrderUpdate{}, false
	}

	msg := gjson.ParseBytes(frame)

	payload := msg
	if msg.Get("type").String() == "order" {
		payload = msg.Get("data")
	}
	if !payload.Get("tradingsymbol").Exists() || !payload.Get("order_id").Exists() {
		return contracts.OrderUpdate{}, false
	}

	return parseOrder(payload, d.loc), true
}
