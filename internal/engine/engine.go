package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gridbot/internal/broker"
	"gridbot/internal/config"
	"gridbot/internal/logger"
	"gridbot/internal/monitoring"
	"gridbot/internal/storage"
)

// PriceSource is the read side of the hedge-instrument price feed. The engine
// only ever reads the cached value and never blocks on the connection.
type PriceSource interface {
	LastPrice(symbol string) (float64, time.Time, bool)
}

// Engine drives the grid: one synchronous poll cycle at a fixed interval runs
// termination checks, entry placement, fill polling and hedge bracketing, then
// persists state. Cycles never overlap.
type Engine struct {
	cfg      *config.Config
	sessions broker.SessionSet
	market   broker.MarketData
	prices   PriceSource
	store    *storage.Store
	log      *logger.Logger

	mainRules  broker.Instrument
	hedgeRules broker.Instrument

	mu     sync.Mutex
	state  *State
	dirty  bool
	status []byte

	// last cached hedge price, the staleness fallback for entry fills
	lastHedgePrice float64
}

func New(cfg *config.Config, sessions broker.SessionSet, market broker.MarketData, prices PriceSource, store *storage.Store, log *logger.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		sessions: sessions,
		market:   market,
		prices:   prices,
		store:    store,
		log:      log,
	}
}

func (e *Engine) Start(ctx context.Context) error {
	if err := e.loadRules(ctx); err != nil {
		return err
	}

	resumed, err := e.loadOrBuildState(ctx)
	if err != nil {
		return err
	}
	if resumed && !e.state.Terminated() {
		e.reconcile(ctx)
	}
	e.persist()

	if e.state.Terminated() {
		e.logEntry().WithField("status", e.state.Status).Warn("engine is halted, waiting for operator reset")
	}

	ticker := time.NewTicker(e.cfg.Grid.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.persist()
			e.logEntry().Info("engine stopped, resting orders left for reconciliation")
			return nil
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

func (e *Engine) loadRules(ctx context.Context) error {
	var err error
	e.mainRules, err = e.withRetryRules(ctx, e.cfg.Grid.Symbol)
	if err != nil {
		return fmt.Errorf("instrument rules for %s: %w", e.cfg.Grid.Symbol, err)
	}
	if e.cfg.Grid.Hedge {
		e.hedgeRules, err = e.withRetryRules(ctx, e.cfg.Grid.HedgeSymbol)
		if err != nil {
			return fmt.Errorf("instrument rules for %s: %w", e.cfg.Grid.HedgeSymbol, err)
		}
	}
	e.logEntry().WithFields(map[string]interface{}{
		"main_tick":  e.mainRules.TickSize,
		"hedge_tick": e.hedgeRules.TickSize,
	}).Info("instrument rules loaded")
	return nil
}

func (e *Engine) loadOrBuildState(ctx context.Context) (bool, error) {
	var saved State
	found, err := e.store.Load(&saved)
	if err != nil {
		return false, err
	}
	if found {
		e.mu.Lock()
		e.state = &saved
		e.mu.Unlock()
		e.logEntry().WithFields(map[string]interface{}{
			"levels":  len(saved.Levels),
			"history": len(saved.History),
			"status":  saved.Status,
		}).Info("resuming from saved state")
		return true, nil
	}

	levels := BuildLevels(e.cfg.Grid, e.mainRules.TickSize)
	e.mu.Lock()
	e.state = newState(levels)
	e.mu.Unlock()
	e.logEntry().WithFields(map[string]interface{}{
		"levels": len(levels),
		"center": e.cfg.Grid.CenterPrice,
		"steps":  e.cfg.Grid.Steps,
	}).Info("built fresh grid")
	return false, nil
}

func (e *Engine) runCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		monitoring.ObserveCycle(time.Since(start))
	}()

	if e.state.Terminated() {
		return
	}

	hedgePrice, fresh := e.hedgePrice()

	if e.checkTermination(ctx, hedgePrice, fresh) {
		return
	}

	e.placementPass(ctx)
	e.pollOrders(ctx)

	if e.cfg.Grid.Hedge {
		if fresh {
			e.rebracket(ctx, hedgePrice)
		} else {
			e.logEntry().Debug("hedge price stale, skipping bracketing this cycle")
		}
	}

	if e.dirty {
		e.persist()
	}
}

// hedgePrice returns the current hedge-instrument price and whether it is
// fresh enough to act on. A stale cache still updates the entry-fill fallback.
func (e *Engine) hedgePrice() (float64, bool) {
	if !e.cfg.Grid.Hedge {
		return 0, false
	}
	price, at, ok := e.prices.LastPrice(e.cfg.Grid.HedgeSymbol)
	if !ok {
		return e.lastHedgePrice, false
	}
	e.lastHedgePrice = price
	monitoring.SetLastPrice(e.cfg.Grid.HedgeSymbol, price)
	return price, time.Since(at) <= e.cfg.Grid.FeedStaleAfter
}

func (e *Engine) markDirty() {
	e.dirty = true
}

func (e *Engine) persist() {
	e.mu.Lock()
	e.state.LastUpdated = time.Now()
	e.mu.Unlock()

	if data, err := json.Marshal(e.state); err == nil {
		e.mu.Lock()
		e.status = data
		e.mu.Unlock()
	}

	if err := e.store.Save(e.state); err != nil {
		// In-memory state is authoritative, the next cycle retries the write.
		e.logEntry().WithError(err).Error("state save failed")
		monitoring.RecordError("persist")
		return
	}
	e.dirty = false
}

// Status returns the state snapshot taken at the last persist, as JSON. Nil
// until the first persist lands.
func (e *Engine) Status() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// StatusHandler serves the engine status for the monitoring endpoint. The
// cycle goroutine owns the live state, so the handler only ever reads the
// published snapshot.
func (e *Engine) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		data := e.Status()
		if data == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})
}
