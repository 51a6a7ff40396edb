package kite

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wonny/optrader/internal/contracts"
)

// Positions returns today's (day) net positions
func (c *Client) Positions(ctx context.Context) ([]contracts.Position, error) {
	result, err := c.request(ctx, http.MethodGet, "/portfolio/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}

	rows := result.Get("data.day").Array()
	positions := make([]contracts.Position, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, contracts.Position{
			TradingSymbol: row.Get("tradingsymbol").String(),
			Exchange:      row.Get("exchange").String(),
			Product:       row.Get("product").String(),
			Quantity:      int(row.Get("quantity").Int()),
			AveragePrice:  row.Get("average_price").Float(),
			LastPrice:     row.Get("last_price").Float(),
		})
	}

	return positions, nil
}
