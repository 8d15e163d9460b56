package feed

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

func (f *Feed) readLoop() {
	f.logEntry().Debug("read loop started")

	for {
		select {
		case <-f.stopCh:
			return
		default:
		}
		_, data, err := f.conn.ReadMessage()
		if err != nil {
			select {
			case <-f.stopCh:
				return
			default:
			}
			f.logEntry().WithError(err).Warn("feed read error")

			if !f.reconnect() {
				return
			}
			continue
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logEntry().WithError(err).Warn("unparseable feed message")
			continue
		}

		if strings.HasPrefix(msg.Topic, "tickers.") {
			f.handleTicker(msg)
		}
	}
}

func (f *Feed) handleTicker(msg message) {
	var data tickerData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		f.logEntry().WithError(err).Warn("unparseable ticker payload")
		return
	}
	price, err := strconv.ParseFloat(data.LastPrice, 64)
	if err != nil || price <= 0 {
		return
	}

	at := time.Now()
	if msg.TS > 0 {
		at = time.UnixMilli(msg.TS)
	}

	f.mu.Lock()
	f.last[data.Symbol] = pricePoint{price: price, at: at}
	f.mu.Unlock()
}

func (f *Feed) reconnect() bool {
	backoff := f.reconnectMin

	for {
		select {
		case <-f.stopCh:
			return false
		default:
		}

		f.logEntry().Info("reconnecting price feed")

		time.Sleep(backoff)

		conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
		if err != nil {
			f.logEntry().WithError(err).Warn("feed reconnect failed")
			backoff = f.nextBackoff(backoff)
			continue
		}

		if f.conn != nil {
			_ = f.conn.Close()
		}

		f.conn = conn
		f.conn.SetReadLimit(2 << 20)

		f.mu.Lock()
		symbols := f.symbols
		f.mu.Unlock()

		if err := f.subscribe(symbols); err != nil {
			f.logEntry().WithError(err).Warn("feed resubscribe failed")
			backoff = f.nextBackoff(backoff)
			continue
		}

		f.logEntry().Info("price feed reconnected")
		return true
	}
}

func (f *Feed) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > f.reconnectMax {
		return f.reconnectMax
	}
	return next
}
