package engine

import (
	"context"
	"fmt"
	"sync"

	"gridbot/internal/broker"
	"gridbot/internal/models"
	"gridbot/internal/monitoring"
)

// checkTermination runs first every cycle and short-circuits the rest of the
// cycle when a structural invariant breaks. Tripping it is permanent until an
// operator resets the state file.
func (e *Engine) checkTermination(ctx context.Context, hedgePrice float64, fresh bool) bool {
	if !e.cfg.Grid.Hedge {
		return false
	}

	steps := e.cfg.Grid.Steps
	up := e.state.UpsideHedgeFills
	down := e.state.DownsideHedgeFills

	if e.sessions.SharedHedgeAccount() {
		if absInt(up-down) >= steps {
			e.terminate(ctx, fmt.Sprintf("hedge imbalance |%d-%d| reached %d", up, down, steps))
			return true
		}
	} else {
		if up >= steps || down >= steps {
			e.terminate(ctx, fmt.Sprintf("hedge fills reached %d (upside=%d downside=%d)", steps, up, down))
			return true
		}
	}

	// A resting hedge order on the wrong side of the current price should
	// have filled already; too many of them means the feed and the broker
	// disagree about reality. Needs a fresh price to judge.
	if fresh {
		buyStale, sellStale := 0, 0
		for _, lvl := range e.state.Levels {
			if lvl.Closed || lvl.Phase != models.PhaseTarget || lvl.HedgeOrderID == "" {
				continue
			}
			if lvl.HedgeSide == models.OrderSideBuy && lvl.HedgePrice >= hedgePrice {
				buyStale++
			}
			if lvl.HedgeSide == models.OrderSideSell && lvl.HedgePrice <= hedgePrice {
				sellStale++
			}
		}
		if buyStale >= e.cfg.Grid.HedgeStopCount || sellStale >= e.cfg.Grid.HedgeStopCount {
			e.terminate(ctx, fmt.Sprintf("untriggered hedge buildup (buy=%d sell=%d, limit %d)", buyStale, sellStale, e.cfg.Grid.HedgeStopCount))
			return true
		}
	}

	return false
}

func (e *Engine) terminate(ctx context.Context, reason string) {
	e.mu.Lock()
	e.state.Status = terminatedPrefix + reason
	e.mu.Unlock()

	monitoring.SetTerminated()
	e.logEntry().WithField("reason", reason).Error("terminating: structural invariant violated, cancelling all live orders")

	cancelled := e.cancelAllOrders(ctx)
	e.logEntry().WithField("count", cancelled).Warn("engine halted, process keeps serving status and metrics")
	e.persist()
}

type cancelTask struct {
	sess    broker.Session
	symbol  string
	orderID string
	kind    string
	clear   func()
}

// cancelAllOrders best-effort cancels every live order the state references,
// through a small worker pool. Ids that fail to cancel stay in place for
// reconciliation.
func (e *Engine) cancelAllOrders(ctx context.Context) int {
	var tasks []cancelTask
	for _, lvl := range e.state.Levels {
		lvl := lvl
		if lvl.EntryOrderID != "" {
			tasks = append(tasks, cancelTask{
				sess:    e.sessions.Trade,
				symbol:  e.cfg.Grid.Symbol,
				orderID: lvl.EntryOrderID,
				kind:    lvl.mainKind(),
				clear:   func() { lvl.EntryOrderID = "" },
			})
		}
		if lvl.HedgeOrderID != "" {
			tasks = append(tasks, cancelTask{
				sess:    e.sessions.HedgeFor(lvl.Group),
				symbol:  e.cfg.Grid.HedgeSymbol,
				orderID: lvl.HedgeOrderID,
				kind:    "hedge",
				clear:   func() { lvl.HedgeOrderID = "" },
			})
		}
	}
	if len(tasks) == 0 {
		return 0
	}

	const workers = 3
	jobs := make(chan int, len(tasks))
	done := make([]bool, len(tasks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for i := range jobs {
			if ctx.Err() != nil {
				return
			}
			task := tasks[i]
			if err := e.cancelOrder(ctx, task.sess, task.symbol, task.orderID); err != nil {
				e.logEntry().WithError(err).WithField("order_id", task.orderID).Warn("cancel failed during cancel-all")
				monitoring.RecordError("cancel")
				continue
			}
			mu.Lock()
			done[i] = true
			mu.Unlock()
			monitoring.OrderCancelled(task.kind)
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}
	for i := range tasks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	cancelled := 0
	for i, ok := range done {
		if ok {
			tasks[i].clear()
			cancelled++
		}
	}
	if cancelled > 0 {
		e.markDirty()
	}
	return cancelled
}

// CancelAll is the operator cancel-all action: load state, cancel every live
// order, persist, done. The grid itself is left intact on disk.
func (e *Engine) CancelAll(ctx context.Context) (int, error) {
	var saved State
	found, err := e.store.Load(&saved)
	if err != nil {
		return 0, err
	}
	if !found {
		e.logEntry().Info("no saved state, nothing to cancel")
		return 0, nil
	}
	e.mu.Lock()
	e.state = &saved
	e.mu.Unlock()

	cancelled := e.cancelAllOrders(ctx)
	e.persist()
	return cancelled, nil
}
