package engine

import (
	"context"

	"gridbot/internal/models"
	"gridbot/internal/monitoring"
)

// rebracket keeps, per hedge direction, only the two hedge orders nearest the
// current hedge price resting: the closest level at or below it and the
// closest one above. Everything else is cancelled, the two keepers are placed
// if missing. Running it twice with no fills and no price change does
// nothing.
func (e *Engine) rebracket(ctx context.Context, hedgePrice float64) {
	for _, dir := range []models.OrderSide{models.OrderSideBuy, models.OrderSideSell} {
		below, above := e.nearestHedgeLevels(dir, hedgePrice)

		for _, lvl := range e.state.Levels {
			if lvl.Closed || lvl.Phase != models.PhaseTarget || lvl.HedgeSide != dir {
				continue
			}
			if lvl == below || lvl == above {
				continue
			}
			if lvl.HedgeOrderID == "" {
				continue
			}
			e.dropHedgeOrder(ctx, lvl)
		}

		for _, lvl := range []*GridLevel{below, above} {
			if lvl == nil || lvl.HedgeOrderID != "" {
				continue
			}
			e.placeHedgeOrder(ctx, lvl)
		}
	}
}

// nearestHedgeLevels finds, among non-closed target-phase rungs hedging in
// the given direction, the rung with the largest hedge price at or below the
// current price and the one with the smallest hedge price above it.
func (e *Engine) nearestHedgeLevels(dir models.OrderSide, price float64) (below, above *GridLevel) {
	for _, lvl := range e.state.Levels {
		if lvl.Closed || lvl.Phase != models.PhaseTarget || lvl.HedgeSide != dir || lvl.HedgePrice <= 0 {
			continue
		}
		if lvl.HedgePrice <= price {
			if below == nil || lvl.HedgePrice > below.HedgePrice {
				below = lvl
			}
		} else {
			if above == nil || lvl.HedgePrice < above.HedgePrice {
				above = lvl
			}
		}
	}
	return below, above
}

func (e *Engine) dropHedgeOrder(ctx context.Context, lvl *GridLevel) {
	if err := e.cancelOrder(ctx, e.sessions.HedgeFor(lvl.Group), e.cfg.Grid.HedgeSymbol, lvl.HedgeOrderID); err != nil {
		e.logEntry().WithError(err).WithFields(map[string]interface{}{
			"level_id": lvl.ID,
			"order_id": lvl.HedgeOrderID,
		}).Warn("hedge cancel failed, will retry next cycle")
		monitoring.RecordError("cancel")
		return
	}

	e.logEntry().WithFields(map[string]interface{}{
		"level_id":    lvl.ID,
		"order_id":    lvl.HedgeOrderID,
		"hedge_price": lvl.HedgePrice,
	}).Debug("hedge order slid out of bracket, cancelled")

	lvl.HedgeOrderID = ""
	e.markDirty()
	monitoring.OrderCancelled("hedge")
}

func (e *Engine) placeHedgeOrder(ctx context.Context, lvl *GridLevel) {
	sess := e.sessions.HedgeFor(lvl.Group)
	orderID, err := e.placeOrderIdempotent(ctx, sess, e.cfg.Grid.HedgeSymbol, lvl.HedgeSide, lvl.QtyHedge, lvl.HedgePrice, lvl.hedgeLinkID())
	if err != nil {
		e.logEntry().WithError(err).WithFields(map[string]interface{}{
			"level_id":    lvl.ID,
			"hedge_price": lvl.HedgePrice,
		}).Warn("hedge placement failed, will retry next cycle")
		monitoring.RecordError("place")
		return
	}

	lvl.HedgeOrderID = orderID
	e.markDirty()
	monitoring.OrderPlaced("hedge")

	e.log.WithOrderID(orderID).WithFields(map[string]interface{}{
		"component":   "engine",
		"symbol":      e.cfg.Grid.HedgeSymbol,
		"level_id":    lvl.ID,
		"group":       lvl.Group,
		"side":        lvl.HedgeSide,
		"hedge_price": lvl.HedgePrice,
		"qty":         lvl.QtyHedge,
	}).Info("hedge order placed")
}
