package kite

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// maxQuoteKeys is the venue limit of instruments per quote request
const maxQuoteKeys = 500

// LTP returns last traded prices keyed by "exchange:tradingsymbol"
func (c *Client) LTP(ctx context.Context, keys ...string) (map[string]float64, error) {
	prices := make(map[string]float64, len(keys))

	for start := 0; start < len(keys); start += maxQuoteKeys {
		end := min(start+maxQuoteKeys, len(keys))

		result, err := c.request(ctx, http.MethodGet, "/quote/ltp", url.Values{"i": keys[start:end]})
		if err != nil {
			return nil, fmt.Errorf("get ltp: %w", err)
		}

		result.Get("data").ForEach(func(key, value gjson.Result) bool {
			if p := value.Get("last_price"); p.Exists() {
				prices[key.String()] = p.Float()
			}
			return true
		})
	}

	if len(prices) == 0 {
		return nil, ErrEmptyQuote
	}

	return prices, nil
}
