package kite

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/pkg/redis"
)

// Instruments downloads the instrument master of the given exchanges
// 거래일 단위로 redis 캐시 사용 (비활성 시 매번 다운로드)
func (c *Client) Instruments(ctx context.Context, exchanges ...string) ([]contracts.Instrument, error) {
	var all []contracts.Instrument

	for _, exchange := range exchanges {
		key := redis.InstrumentsKey(exchange, c.now().In(c.loc))
		rows, err := redis.Load(ctx, c.cache, key, redis.TTLDaily, func() ([]contracts.Instrument, error) {
			return c.fetchInstruments(ctx, exchange)
		})
		if err != nil {
			return nil, err
		}

		c.logger.WithFields(map[string]interface{}{
			"exchange": exchange,
			"count":    len(rows),
		}).Debug("Instruments loaded")

		all = append(all, rows...)
	}

	return all, nil
}

func (c *Client) fetchInstruments(ctx context.Context, exchange string) ([]contracts.Instrument, error) {
	resp, err := c.data.Get(ctx, c.cfg.InstrumentsURL+"/"+exchange)
	if err != nil {
		return nil, fmt.Errorf("download instruments %s: %w", exchange, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "instrument dump " + exchange}
	}

	rows, err := ParseInstruments(resp.Body, c.loc)
	if err != nil {
		return nil, fmt.Errorf("parse instruments %s: %w", exchange, err)
	}
	return rows, nil
}

// ParseInstruments decodes the venue instrument CSV dump
func ParseInstruments(r io.Reader, loc *time.Location) ([]contracts.Instrument, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range []string{"instrument_token", "tradingsymbol", "instrument_type", "segment", "exchange"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	field := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var out []contracts.Instrument
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		token, err := strconv.ParseUint(field(rec, "instrument_token"), 10, 32)
		if err != nil {
			continue
		}

		inst := contracts.Instrument{
			InstrumentToken: uint32(token),
			TradingSymbol:   field(rec, "tradingsymbol"),
			Name:            field(rec, "name"),
			InstrumentType:  field(rec, "instrument_type"),
			Segment:         field(rec, "segment"),
			Exchange:        field(rec, "exchange"),
		}
		if v, err := strconv.ParseUint(field(rec, "exchange_token"), 10, 32); err == nil {
			inst.ExchangeToken = uint32(v)
		}
		if v, err := strconv.ParseFloat(field(rec, "strike"), 64); err == nil {
			inst.Strike = v
		}
		if v, err := strconv.ParseFloat(field(rec, "tick_size"), 64); err == nil {
			inst.TickSize = v
		}
		if v, err := strconv.Atoi(field(rec, "lot_size")); err == nil {
			inst.LotSize = v
		}
		if s := field(rec, "expiry"); s != "" {
			if v, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
				inst.Expiry = v
			}
		}

		out = append(out, inst)
	}

	return out, nil
}
