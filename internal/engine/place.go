package engine

import (
	"context"

	"gridbot/internal/models"
	"gridbot/internal/monitoring"
)

// placementPass keeps the grid armed: every target-phase rung without a live
// main order gets its target re-placed (targets are never gated), and each
// group gets at most one new entry order per cycle, nearest rung first.
func (e *Engine) placementPass(ctx context.Context) {
	for _, group := range e.activeGroups() {
		e.armTargets(ctx, group)
		e.placeNextEntry(ctx, group)
	}
}

func (e *Engine) armTargets(ctx context.Context, group models.Group) {
	for _, lvl := range e.state.Levels {
		if lvl.Group != group || lvl.Closed || lvl.Phase != models.PhaseTarget || lvl.EntryOrderID != "" {
			continue
		}
		e.placeMainOrder(ctx, lvl)
	}
}

func (e *Engine) placeNextEntry(ctx context.Context, group models.Group) {
	if e.state.paused(group) {
		return
	}

	var candidate *GridLevel
	for _, lvl := range e.state.Levels {
		if lvl.Group != group || lvl.Closed || lvl.Phase != models.PhaseEntry {
			continue
		}
		if lvl.EntryOrderID != "" {
			// One live entry per group.
			return
		}
		if candidate == nil || nearerEntry(lvl, candidate) {
			candidate = lvl
		}
	}
	if candidate == nil {
		return
	}

	e.placeMainOrder(ctx, candidate)
}

// nearerEntry orders entry candidates: BUY rungs by price descending, SELL
// ascending, so the rung closest to the center is armed first.
func nearerEntry(a, b *GridLevel) bool {
	if a.Side == models.OrderSideBuy {
		return a.Price > b.Price
	}
	return a.Price < b.Price
}

func (e *Engine) placeMainOrder(ctx context.Context, lvl *GridLevel) {
	kind := lvl.mainKind()
	orderID, err := e.placeOrderIdempotent(ctx, e.sessions.Trade, e.cfg.Grid.Symbol, lvl.Side, lvl.QtyMain, lvl.Price, lvl.mainLinkID())
	if err != nil {
		e.logEntry().WithError(err).WithFields(map[string]interface{}{
			"level_id": lvl.ID,
			"kind":     kind,
			"price":    lvl.Price,
		}).Warn("order placement failed, will retry next cycle")
		monitoring.RecordError("place")
		return
	}

	lvl.EntryOrderID = orderID
	e.markDirty()
	monitoring.OrderPlaced(kind)

	e.log.WithOrderID(orderID).WithFields(map[string]interface{}{
		"component": "engine",
		"symbol":    e.cfg.Grid.Symbol,
		"level_id":  lvl.ID,
		"group":     lvl.Group,
		"kind":      kind,
		"side":      lvl.Side,
		"price":     lvl.Price,
		"qty":       lvl.QtyMain,
	}).Info("order placed")
}

// gateTripped latches the max-exposure pause for a group once its net
// exposure reaches the configured ceiling. Only a target fill clears it.
func (e *Engine) gateTripped(group models.Group) bool {
	limit := float64(e.cfg.Grid.Steps) * e.cfg.Grid.QtyMain
	return e.state.GroupQty(group) >= limit-1e-9
}
