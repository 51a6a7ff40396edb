package kite

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wonny/optrader/internal/contracts"
)

// ============================================================================
// Order Management
// ============================================================================

// PlaceOrder submits a new order and returns the venue order id
func (c *Client) PlaceOrder(ctx context.Context, req contracts.OrderRequest) (string, error) {
	variety := req.Variety
	if variety == "" {
		variety = contracts.VarietyRegular
	}

	form := url.Values{
		"exchange":         {req.Exchange},
		"tradingsymbol":    {req.Symbol},
		"transaction_type": {string(req.Side)},
		"quantity":         {strconv.Itoa(req.Quantity)},
		"order_type":       {string(req.OrderType)},
		"product":          {req.Product},
		"validity":         {"DAY"},
	}
	if req.OrderType != contracts.OrderTypeMarket {
		form.Set("price", formatPrice(req.Price))
	}
	if req.OrderType == contracts.OrderTypeStopLoss {
		form.Set("trigger_price", formatPrice(req.TriggerPrice))
	}
	if req.Tag != "" {
		form.Set("tag", req.Tag)
	}

	result, err := c.request(ctx, http.MethodPost, "/orders/"+variety, form)
	if err != nil {
		return "", fmt.Errorf("place order %s %s: %w", req.Side, req.Symbol, err)
	}

	orderID := result.Get("data.order_id").String()
	if orderID == "" {
		return "", fmt.Errorf("place order %s %s: empty order id", req.Side, req.Symbol)
	}

	c.logger.WithFields(map[string]interface{}{
		"order_id":   orderID,
		"symbol":     req.Symbol,
		"side":       req.Side,
		"quantity":   req.Quantity,
		"order_type": req.OrderType,
		"price":      req.Price,
	}).Info("Order placed")

	return orderID, nil
}

// ModifyOrder changes type/price/trigger of a working order
func (c *Client) ModifyOrder(ctx context.Context, req contracts.ModifyRequest) (string, error) {
	variety := req.Variety
	if variety == "" {
		variety = contracts.VarietyRegular
	}

	form := url.Values{}
	if req.OrderType != "" {
		form.Set("order_type", string(req.OrderType))
	}
	if req.Price != nil {
		form.Set("price", formatPrice(*req.Price))
	}
	if req.TriggerPrice != nil {
		form.Set("trigger_price", formatPrice(*req.TriggerPrice))
	}

	result, err := c.request(ctx, http.MethodPut, "/orders/"+variety+"/"+req.OrderID, form)
	if err != nil {
		return "", fmt.Errorf("modify order %s: %w", req.OrderID, err)
	}

	return result.Get("data.order_id").String(), nil
}

// CancelOrder cancels a working order
func (c *Client) CancelOrder(ctx context.Context, orderID string) (string, error) {
	result, err := c.request(ctx, http.MethodDelete, "/orders/"+contracts.VarietyRegular+"/"+orderID, nil)
	if err != nil {
		return "", fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	return result.Get("data.order_id").String(), nil
}

// Orders returns today's order book
func (c *Client) Orders(ctx context.Context) ([]contracts.OrderUpdate, error) {
	result, err := c.request(ctx, http.MethodGet, "/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}

	rows := result.Get("data").Array()
	orders := make([]contracts.OrderUpdate, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, parseOrder(row, c.loc))
	}

	return orders, nil
}

// parseOrder maps one venue order object (REST row or stream payload)
func parseOrder(row gjson.Result, loc *time.Location) contracts.OrderUpdate {
	return contracts.OrderUpdate{
		OrderID:         row.Get("order_id").String(),
		TradingSymbol:   row.Get("tradingsymbol").String(),
		Status:          contracts.OrderStatus(row.Get("status").String()),
		AveragePrice:    row.Get("average_price").Float(),
		OrderTimestamp:  parseTimestamp(row.Get("order_timestamp").String(), loc),
		StatusMessage:   row.Get("status_message").String(),
		TransactionType: contracts.Side(row.Get("transaction_type").String()),
	}
}

const timestampLayout = "2006-01-02 15:04:05"

func parseTimestamp(s string, loc *time.Location) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.ParseInLocation(timestampLayout, s, loc); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
