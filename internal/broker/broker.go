package broker

import (
	"context"

	"gridbot/internal/models"
)

// Instrument carries the price/qty increments the engine rounds against.
type Instrument struct {
	TickSize float64
	LotSize  float64
}

// OrderState is the broker's view of a single order. A nil *OrderState from
// OrderStatus means the broker does not know the id.
type OrderState struct {
	Status      models.OrderStatus
	FilledPrice float64
	FilledQty   float64
}

// Session is one authenticated broker connection. The engine runs three of
// them: trade, upside hedge and downside hedge; the two hedge sessions may
// resolve to the same underlying client.
type Session interface {
	PlaceOrder(ctx context.Context, symbol string, side models.OrderSide, qty, price float64, linkID string) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)
	OrderStatus(ctx context.Context, symbol, orderID string) (*OrderState, error)
	// FindOrderByLink returns the broker id of an open order carrying the
	// given client link id, or "" when none exists. Placement uses it to stay
	// idempotent across network-error retries.
	FindOrderByLink(ctx context.Context, symbol, linkID string) (string, error)
}

// MarketData is the unauthenticated metadata surface of a session.
type MarketData interface {
	InstrumentRules(ctx context.Context, symbol string) (Instrument, error)
}

// SessionSet resolves which session owns which order flow.
type SessionSet struct {
	Trade         Session
	UpsideHedge   Session
	DownsideHedge Session
}

func (s SessionSet) HedgeFor(group models.Group) Session {
	if group == models.GroupUpside {
		return s.UpsideHedge
	}
	return s.DownsideHedge
}

// SharedHedgeAccount reports whether both hedge groups trade through the same
// account. The termination rules branch on this.
func (s SessionSet) SharedHedgeAccount() bool {
	return s.UpsideHedge == s.DownsideHedge
}
