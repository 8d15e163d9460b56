package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gridbot/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Feed keeps a last-price cache for subscribed instruments, updated by a
// background websocket read loop. Readers never block on the connection.
type Feed struct {
	url string
	log *logger.Logger

	conn     *websocket.Conn
	stopCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	symbols []string
	last    map[string]pricePoint

	reconnectMin time.Duration
	reconnectMax time.Duration
}

type pricePoint struct {
	price float64
	at    time.Time
}

type message struct {
	Topic string          `json:"topic"`
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

type tickerData struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

type subscribeMessage struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

func New(url string, log *logger.Logger) *Feed {
	return &Feed{
		url:          url,
		log:          log,
		stopCh:       make(chan struct{}),
		last:         map[string]pricePoint{},
		reconnectMin: 1 * time.Second,
		reconnectMax: 30 * time.Second,
	}
}

// Connect dials the feed, subscribes to tickers for the given symbols and
// starts the read loop. Subscriptions are established once and restored on
// reconnect.
func (f *Feed) Connect(ctx context.Context, symbols ...string) error {
	f.logEntry().WithField("url", f.url).Info("connecting to price feed")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial price feed: %w", err)
	}

	f.conn = conn
	f.conn.SetReadLimit(2 << 20)

	f.mu.Lock()
	f.symbols = symbols
	f.mu.Unlock()

	if err := f.subscribe(symbols); err != nil {
		conn.Close()
		return err
	}

	f.logEntry().WithField("symbols", symbols).Info("price feed connected")

	go f.readLoop()

	return nil
}

func (f *Feed) subscribe(symbols []string) error {
	args := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		args = append(args, "tickers."+sym)
	}
	return f.conn.WriteJSON(subscribeMessage{Op: "subscribe", Args: args})
}

// LastPrice returns the cached price for symbol, its receive time and whether
// a price has been seen at all.
func (f *Feed) LastPrice(symbol string) (float64, time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	point, ok := f.last[symbol]
	if !ok {
		return 0, time.Time{}, false
	}
	return point.price, point.at, true
}

func (f *Feed) Close() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
		if f.conn != nil {
			_ = f.conn.Close()
		}
	})
}

func (f *Feed) logEntry() *logrus.Entry {
	return f.log.WithComponent("feed")
}
