package engine

import (
	"context"
	"time"

	"gridbot/internal/models"
	"gridbot/internal/monitoring"
)

// pollOrders queries the broker for every referenced order id and feeds
// terminal findings through the fill handlers. Each handler consumes the id it
// reacted to, so running this again over the same state is a no-op; startup
// reconciliation reuses it unchanged.
func (e *Engine) pollOrders(ctx context.Context) {
	for _, lvl := range e.state.Levels {
		if lvl.Closed {
			continue
		}
		if lvl.EntryOrderID != "" {
			e.pollMainOrder(ctx, lvl)
		}
		if lvl.HedgeOrderID != "" {
			e.pollHedgeOrder(ctx, lvl)
		}
	}
}

func (e *Engine) pollMainOrder(ctx context.Context, lvl *GridLevel) {
	st, err := e.sessions.Trade.OrderStatus(ctx, e.cfg.Grid.Symbol, lvl.EntryOrderID)
	if err != nil {
		e.logEntry().WithError(err).WithField("order_id", lvl.EntryOrderID).Warn("order status query failed")
		monitoring.RecordError("status")
		return
	}
	if st == nil {
		return
	}

	switch {
	case st.Status == models.OrderStatusComplete:
		filledPrice := st.FilledPrice
		if filledPrice == 0 {
			filledPrice = lvl.Price
		}
		if lvl.Phase == models.PhaseEntry {
			e.onEntryFill(ctx, lvl, filledPrice)
		} else {
			e.onTargetFill(ctx, lvl, filledPrice)
		}
	case st.Status.Terminal():
		e.logEntry().WithFields(map[string]interface{}{
			"level_id": lvl.ID,
			"order_id": lvl.EntryOrderID,
			"status":   st.Status,
			"kind":     lvl.mainKind(),
		}).Warn("resting order gone, rung re-enters placement")
		lvl.EntryOrderID = ""
		e.markDirty()
	}
}

func (e *Engine) pollHedgeOrder(ctx context.Context, lvl *GridLevel) {
	sess := e.sessions.HedgeFor(lvl.Group)
	st, err := sess.OrderStatus(ctx, e.cfg.Grid.HedgeSymbol, lvl.HedgeOrderID)
	if err != nil {
		e.logEntry().WithError(err).WithField("order_id", lvl.HedgeOrderID).Warn("hedge status query failed")
		monitoring.RecordError("status")
		return
	}
	if st == nil {
		return
	}

	switch {
	case st.Status == models.OrderStatusComplete:
		filledPrice := st.FilledPrice
		if filledPrice == 0 {
			filledPrice = lvl.HedgePrice
		}
		e.onHedgeFill(ctx, lvl, filledPrice)
	case st.Status.Terminal():
		// Next bracketing pass repairs the missing protection.
		e.logEntry().WithFields(map[string]interface{}{
			"level_id": lvl.ID,
			"order_id": lvl.HedgeOrderID,
			"status":   st.Status,
		}).Warn("hedge order gone, rung temporarily unprotected")
		lvl.HedgeOrderID = ""
		e.markDirty()
	}
}

// onEntryFill transforms the rung into its target phase. The hedge order is
// computed here but not placed; the bracketing pass owns hedge placement.
func (e *Engine) onEntryFill(ctx context.Context, lvl *GridLevel, filledPrice float64) {
	_ = ctx

	entryPrice := lvl.Price
	entrySide := lvl.Side

	targetPrice := entryPrice + e.cfg.Grid.TargetSpread
	if entrySide == models.OrderSideSell {
		targetPrice = entryPrice - e.cfg.Grid.TargetSpread
	}
	targetPrice = roundToTick(targetPrice, e.mainRules.TickSize)

	var hedgeSide models.OrderSide
	var hedgePrice, hedgeRef float64
	if e.cfg.Grid.Hedge {
		hedgeRef = e.lastHedgePrice
		hedgeSide = entrySide.Opposite()
		if entrySide == models.OrderSideBuy {
			hedgePrice = hedgeRef - e.cfg.Grid.HedgeSpread
		} else {
			hedgePrice = hedgeRef + e.cfg.Grid.HedgeSpread
		}
		hedgePrice = roundToTick(hedgePrice, e.hedgeRules.TickSize)
		if hedgeRef == 0 {
			e.logEntry().WithField("level_id", lvl.ID).Warn("no hedge price seen yet, hedge levels will be unusable until the feed recovers")
		}
	}

	e.state.appendHistory(models.TradeRecord{
		LevelID:     lvl.ID,
		Group:       lvl.Group,
		Side:        entrySide,
		EntryPrice:  filledPrice,
		Qty:         lvl.QtyMain,
		TargetPrice: targetPrice,
		HedgePrice:  hedgePrice,
		Outcome:     models.OutcomeOpen,
		OpenedAt:    time.Now(),
	}, e.cfg.Grid.HistoryLimit)

	e.state.addGroupQty(lvl.Group, lvl.QtyMain)
	if e.gateTripped(lvl.Group) {
		e.state.setPaused(lvl.Group, true)
		e.logEntry().WithField("group", lvl.Group).Warn("max exposure reached, pausing new entries for group")
	}

	lvl.Phase = models.PhaseTarget
	lvl.Side = entrySide.Opposite()
	lvl.Price = targetPrice
	lvl.HedgeSide = hedgeSide
	lvl.HedgePrice = hedgePrice
	lvl.HedgeRefPrice = hedgeRef
	lvl.EntryOrderID = ""
	e.markDirty()

	monitoring.Fill("entry", string(lvl.Group))
	monitoring.SetGroupExposure(string(lvl.Group), e.state.GroupQty(lvl.Group))

	e.logEntry().WithFields(map[string]interface{}{
		"level_id":     lvl.ID,
		"group":        lvl.Group,
		"entry_price":  filledPrice,
		"target_price": targetPrice,
		"hedge_price":  hedgePrice,
		"hedge_ref":    hedgeRef,
		"group_qty":    e.state.GroupQty(lvl.Group),
	}).Info("entry filled, rung armed for target")
}

// onTargetFill resets the rung back to its original ladder definition under a
// fresh id. A failed hedge cancel aborts the reset; the fill is observed again
// next cycle because the target order id is still set.
func (e *Engine) onTargetFill(ctx context.Context, lvl *GridLevel, filledPrice float64) {
	if lvl.HedgeOrderID != "" {
		if err := e.cancelOrder(ctx, e.sessions.HedgeFor(lvl.Group), e.cfg.Grid.HedgeSymbol, lvl.HedgeOrderID); err != nil {
			e.logEntry().WithError(err).WithField("level_id", lvl.ID).Warn("hedge cancel failed, retrying target fill next cycle")
			monitoring.RecordError("cancel")
			return
		}
		lvl.HedgeOrderID = ""
		monitoring.OrderCancelled("hedge")
	}

	oldID := lvl.ID

	e.state.addGroupQty(lvl.Group, -lvl.QtyMain)
	e.state.closeHistory(oldID, models.OutcomeTarget, filledPrice)
	e.state.setPaused(lvl.Group, false)

	lvl.ID = newLevelID()
	lvl.Phase = models.PhaseEntry
	lvl.Side = lvl.LadderSide
	lvl.Price = lvl.LadderPrice
	lvl.HedgeSide = ""
	lvl.HedgePrice = 0
	lvl.HedgeRefPrice = 0
	lvl.EntryOrderID = ""
	lvl.Closed = false
	e.markDirty()

	monitoring.Fill("target", string(lvl.Group))
	monitoring.SetGroupExposure(string(lvl.Group), e.state.GroupQty(lvl.Group))

	e.logEntry().WithFields(map[string]interface{}{
		"old_level_id": oldID,
		"level_id":     lvl.ID,
		"group":        lvl.Group,
		"filled_price": filledPrice,
		"ladder_price": lvl.LadderPrice,
		"group_qty":    e.state.GroupQty(lvl.Group),
	}).Info("target filled, rung recycled")
}

// onHedgeFill retires the rung permanently: the hedge neutralized the
// position, so the still-open target is cancelled and the rung never places
// again.
func (e *Engine) onHedgeFill(ctx context.Context, lvl *GridLevel, filledPrice float64) {
	if lvl.EntryOrderID != "" {
		if err := e.cancelOrder(ctx, e.sessions.Trade, e.cfg.Grid.Symbol, lvl.EntryOrderID); err != nil {
			e.logEntry().WithError(err).WithField("level_id", lvl.ID).Warn("target cancel failed, retrying hedge fill next cycle")
			monitoring.RecordError("cancel")
			return
		}
		lvl.EntryOrderID = ""
		monitoring.OrderCancelled("target")
	}

	e.state.incHedgeFills(lvl.Group)
	e.state.addGroupQty(lvl.Group, -lvl.QtyMain)
	e.state.closeHistory(lvl.ID, models.OutcomeHedge, filledPrice)

	lvl.HedgeOrderID = ""
	lvl.HedgeRefPrice = 0
	lvl.Closed = true
	e.markDirty()

	monitoring.Fill("hedge", string(lvl.Group))
	monitoring.SetGroupExposure(string(lvl.Group), e.state.GroupQty(lvl.Group))
	monitoring.SetHedgeFills(string(lvl.Group), e.state.hedgeFills(lvl.Group))

	e.logEntry().WithFields(map[string]interface{}{
		"level_id":     lvl.ID,
		"group":        lvl.Group,
		"filled_price": filledPrice,
		"hedge_fills":  e.state.hedgeFills(lvl.Group),
		"group_qty":    e.state.GroupQty(lvl.Group),
	}).Warn("hedge filled, rung permanently closed")
}
