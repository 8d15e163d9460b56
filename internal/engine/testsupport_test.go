package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gridbot/internal/broker"
	"gridbot/internal/config"
	"gridbot/internal/logger"
	"gridbot/internal/models"
	"gridbot/internal/storage"
)

type placedOrder struct {
	symbol string
	side   models.OrderSide
	qty    float64
	price  float64
	linkID string
	id     string
}

// fakeSession is an in-memory broker session. Statuses are scripted per
// broker order id; everything else behaves like a well-behaved exchange.
type fakeSession struct {
	mu        sync.Mutex
	seq       int
	placed    []placedOrder
	cancelled []string
	links     map[string]string
	statuses  map[string]*broker.OrderState

	placeErr  error
	cancelErr error
	statusErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		links:    make(map[string]string),
		statuses: make(map[string]*broker.OrderState),
	}
}

func (f *fakeSession) PlaceOrder(_ context.Context, symbol string, side models.OrderSide, qty, price float64, linkID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.seq++
	id := fmt.Sprintf("o-%d", f.seq)
	f.links[linkID] = id
	f.placed = append(f.placed, placedOrder{symbol: symbol, side: side, qty: qty, price: price, linkID: linkID, id: id})
	return id, nil
}

func (f *fakeSession) CancelOrder(_ context.Context, _, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return false, f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return true, nil
}

func (f *fakeSession) OrderStatus(_ context.Context, _, orderID string) (*broker.OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.statuses[orderID], nil
}

func (f *fakeSession) FindOrderByLink(_ context.Context, _, linkID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.links[linkID]
	if id == "" {
		return "", nil
	}
	// Only open orders are findable by link id, same as the realtime query.
	if st := f.statuses[id]; st != nil && (st.Status == models.OrderStatusComplete || st.Status.Terminal()) {
		return "", nil
	}
	return id, nil
}

func (f *fakeSession) InstrumentRules(_ context.Context, _ string) (broker.Instrument, error) {
	return broker.Instrument{TickSize: 0.01, LotSize: 0.0001}, nil
}

func (f *fakeSession) setComplete(orderID string, filledPrice float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[orderID] = &broker.OrderState{Status: models.OrderStatusComplete, FilledPrice: filledPrice}
}

func (f *fakeSession) setStatus(orderID string, status models.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[orderID] = &broker.OrderState{Status: status}
}

func (f *fakeSession) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

type fakePrices struct {
	price float64
	at    time.Time
}

func (p *fakePrices) LastPrice(string) (float64, time.Time, bool) {
	return p.price, p.at, p.price > 0
}

type testRig struct {
	eng       *Engine
	trade     *fakeSession
	upHedge   *fakeSession
	downHedge *fakeSession
	prices    *fakePrices
}

func testConfig() *config.Config {
	return &config.Config{
		Grid: config.GridConfig{
			Symbol:         "SOLUSDT",
			HedgeSymbol:    "ETHUSDT",
			CenterPrice:    50.0,
			Steps:          2,
			Spacing:        1.0,
			TargetSpread:   0.5,
			HedgeSpread:    2.0,
			QtyMain:        100,
			QtyHedge:       1,
			Mode:           "both",
			Hedge:          true,
			HedgeStopCount: 3,
			PollInterval:   time.Second,
			FeedStaleAfter: 5 * time.Second,
			HistoryLimit:   200,
		},
	}
}

// newTestRig builds an engine over fake sessions with a fresh grid already in
// place, skipping Start. sharedHedge routes both hedge groups through one
// session.
func newTestRig(t *testing.T, cfg *config.Config, sharedHedge bool) *testRig {
	t.Helper()

	trade := newFakeSession()
	upHedge := newFakeSession()
	downHedge := newFakeSession()
	if sharedHedge {
		downHedge = upHedge
	}
	prices := &fakePrices{price: 200.0, at: time.Now()}

	cfg.Grid.StateFile = filepath.Join(t.TempDir(), "state.json")
	store := storage.New(cfg.Grid.StateFile)
	log := logger.New(logger.Config{Level: "panic"})

	sessions := broker.SessionSet{Trade: trade, UpsideHedge: upHedge, DownsideHedge: downHedge}
	eng := New(cfg, sessions, trade, prices, store, log)
	eng.mainRules = broker.Instrument{TickSize: 0.01}
	eng.hedgeRules = broker.Instrument{TickSize: 0.01}
	eng.state = newState(BuildLevels(cfg.Grid, eng.mainRules.TickSize))
	eng.lastHedgePrice = prices.price

	return &testRig{eng: eng, trade: trade, upHedge: upHedge, downHedge: downHedge, prices: prices}
}

func (r *testRig) levelAt(t *testing.T, price float64) *GridLevel {
	t.Helper()
	for _, lvl := range r.eng.state.Levels {
		if lvl.LadderPrice == price {
			return lvl
		}
	}
	t.Fatalf("no level with ladder price %v", price)
	return nil
}
