package rest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gridbot/internal/broker"
	"gridbot/internal/models"
)

type orderItem struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	AvgPrice    string `json:"avgPrice"`
	CumExecQty  string `json:"cumExecQty"`
	OrderStatus string `json:"orderStatus"`
}

type orderList struct {
	List []orderItem `json:"list"`
}

func (c *Client) PlaceOrder(ctx context.Context, symbol string, side models.OrderSide, qty, price float64, linkID string) (string, error) {
	rules, err := c.rules(ctx, symbol)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"category":    "spot",
		"symbol":      symbol,
		"side":        wireSide(side),
		"orderType":   "Limit",
		"qty":         formatStep(qty, rules.LotSize),
		"price":       formatStep(price, rules.TickSize),
		"timeInForce": "GTC",
		"orderLinkId": linkID,
	}

	result, err := doRequest[struct {
		OrderID string `json:"orderId"`
	}](ctx, c, http.MethodPost, "/v5/order/create", nil, body, true)
	if err != nil {
		return "", err
	}

	c.logEntry().WithFields(map[string]interface{}{
		"symbol":   symbol,
		"side":     side,
		"qty":      qty,
		"price":    price,
		"link_id":  linkID,
		"order_id": result.OrderID,
	}).Debug("order placed")

	return result.OrderID, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	body := map[string]any{
		"category": "spot",
		"symbol":   symbol,
		"orderId":  orderID,
	}

	_, err := doRequest[struct{}](ctx, c, http.MethodPost, "/v5/order/cancel", nil, body, true)
	if err != nil {
		if IsOrderNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) OrderStatus(ctx context.Context, symbol, orderID string) (*broker.OrderState, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	result, err := doRequest[orderList](ctx, c, http.MethodGet, "/v5/order/realtime", params, nil, true)
	if err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		// Filled and cancelled orders fall out of the realtime view.
		result, err = doRequest[orderList](ctx, c, http.MethodGet, "/v5/order/history", params, nil, true)
		if err != nil {
			return nil, err
		}
	}
	if len(result.List) == 0 {
		return nil, nil
	}

	item := result.List[0]
	filledPrice, _ := strconv.ParseFloat(item.AvgPrice, 64)
	filledQty, _ := strconv.ParseFloat(item.CumExecQty, 64)
	if filledPrice == 0 {
		filledPrice, _ = strconv.ParseFloat(item.Price, 64)
	}

	return &broker.OrderState{
		Status:      parseStatus(item.OrderStatus),
		FilledPrice: filledPrice,
		FilledQty:   filledQty,
	}, nil
}

func (c *Client) FindOrderByLink(ctx context.Context, symbol, linkID string) (string, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)

	result, err := doRequest[orderList](ctx, c, http.MethodGet, "/v5/order/realtime", params, nil, true)
	if err != nil {
		return "", err
	}
	for _, item := range result.List {
		if item.OrderLinkID == linkID {
			return item.OrderID, nil
		}
	}
	return "", nil
}

func wireSide(side models.OrderSide) string {
	if side == models.OrderSideBuy {
		return "Buy"
	}
	return "Sell"
}

func parseStatus(raw string) models.OrderStatus {
	switch strings.ToUpper(raw) {
	case "NEW", "OPEN", "UNTRIGGERED":
		return models.OrderStatusOpen
	case "PARTIALLYFILLED", "PARTIAL":
		return models.OrderStatusPartial
	case "FILLED", "COMPLETE":
		return models.OrderStatusComplete
	case "CANCELLED", "CANCELED", "DEACTIVATED":
		return models.OrderStatusCancelled
	case "REJECTED":
		return models.OrderStatusRejected
	default:
		return models.OrderStatusOpen
	}
}
