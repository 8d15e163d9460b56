package engine

import (
	"context"

	"github.com/sirupsen/logrus"
)

// reconcile runs after state is loaded from disk. Every fill handler consumes
// the order id it acted on, so replaying one poll pass over the saved ids is
// safe: fills that were handled before the crash see an empty id and do
// nothing, fills that landed while the process was down get handled now.
func (e *Engine) reconcile(ctx context.Context) {
	// Fill handlers replayed below hedge off the cached hedge price; pull it
	// from the feed first so a fill that landed while the process was down
	// does not compute its hedge from an empty cache.
	e.hedgePrice()

	live := 0
	for _, lvl := range e.state.Levels {
		if lvl.Closed {
			continue
		}
		entry := e.logEntry().WithFields(logrus.Fields{
			"level_id": lvl.ID,
			"group":    string(lvl.Group),
			"phase":    string(lvl.Phase),
			"price":    lvl.Price,
		})
		if lvl.EntryOrderID != "" {
			entry = entry.WithField("order_id", lvl.EntryOrderID)
			live++
		}
		if lvl.HedgeOrderID != "" {
			entry = entry.WithField("hedge_order_id", lvl.HedgeOrderID)
			live++
		}
		entry.Debug("restored level")
	}

	e.logEntry().WithFields(logrus.Fields{
		"levels":       len(e.state.Levels),
		"live_orders":  live,
		"upside_qty":   e.state.UpsideQty,
		"downside_qty": e.state.DownsideQty,
	}).Info("state restored, replaying order poll")

	e.pollOrders(ctx)
}
