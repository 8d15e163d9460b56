package models

import "time"

type OrderSide string
type OrderStatus string
type Group string
type Phase string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"

	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusComplete  OrderStatus = "COMPLETE"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"

	GroupUpside   Group = "upside"
	GroupDownside Group = "downside"

	PhaseEntry  Phase = "entry"
	PhaseTarget Phase = "target"
)

func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Terminal reports whether the order can no longer fill.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRejected
}

type TradeRecord struct {
	LevelID     string     `json:"levelId"`
	Group       Group      `json:"group"`
	Side        OrderSide  `json:"side"`
	EntryPrice  float64    `json:"entryPrice"`
	Qty         float64    `json:"qty"`
	TargetPrice float64    `json:"targetPrice"`
	HedgePrice  float64    `json:"hedgePrice,omitempty"`
	FilledPrice float64    `json:"filledPrice,omitempty"`
	Outcome     string     `json:"outcome"`
	OpenedAt    time.Time  `json:"openedAt"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
}

const (
	OutcomeOpen   = "open"
	OutcomeTarget = "target"
	OutcomeHedge  = "hedge"
)
