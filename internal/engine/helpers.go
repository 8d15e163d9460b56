package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gridbot/internal/broker"
	"gridbot/internal/models"

	"github.com/google/uuid"
)

func (e *Engine) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	var backoff time.Duration = 1 * time.Second
	for i := 0; i < 5; i++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		wait := backoff
		if isRateLimitError(lastErr) {
			wait = backoff * 4
		}
		if wait > 30*time.Second {
			wait = 30 * time.Second
		}
		e.logEntry().WithError(lastErr).Warn("request failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
	}
	return lastErr
}

func (e *Engine) withRetryRules(ctx context.Context, symbol string) (broker.Instrument, error) {
	var rules broker.Instrument
	err := e.withRetry(ctx, func() error {
		var err error
		rules, err = e.market.InstrumentRules(ctx, symbol)
		return err
	})
	return rules, err
}

// placeOrderIdempotent places a limit order under a client link id, checking
// for an existing open order with that id first so a retry after a network
// error can never double-place. The broker is authoritative on duplicates.
func (e *Engine) placeOrderIdempotent(ctx context.Context, sess broker.Session, symbol string, side models.OrderSide, qty, price float64, linkID string) (string, error) {
	if linkID == "" {
		return "", fmt.Errorf("empty order link id")
	}

	if existing, err := sess.FindOrderByLink(ctx, symbol, linkID); err == nil && existing != "" {
		e.logEntry().WithField("link_id", linkID).Info("order already open for link id, skipping placement")
		return existing, nil
	}

	var orderID string
	err := e.withRetry(ctx, func() error {
		var err error
		orderID, err = sess.PlaceOrder(ctx, symbol, side, qty, price, linkID)
		return err
	})
	if err == nil {
		return orderID, nil
	}
	if isDuplicateLinkError(err) {
		if existing, ok := e.findOrderAfterDuplicate(ctx, sess, symbol, linkID); ok {
			return existing, nil
		}
	}

	return "", err
}

func (e *Engine) findOrderAfterDuplicate(ctx context.Context, sess broker.Session, symbol, linkID string) (string, bool) {
	const attempts = 3
	const delay = 300 * time.Millisecond
	for i := 0; i < attempts; i++ {
		existing, err := sess.FindOrderByLink(ctx, symbol, linkID)
		if err == nil && existing != "" {
			e.logEntry().WithField("link_id", linkID).Debug("found order after duplicate link id")
			return existing, true
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return "", false
			case <-time.After(delay):
			}
		}
	}
	return "", false
}

// cancelOrder tolerates an order that is already gone; any other failure is
// returned for the caller to retry next cycle.
func (e *Engine) cancelOrder(ctx context.Context, sess broker.Session, symbol, orderID string) error {
	return e.withRetry(ctx, func() error {
		_, err := sess.CancelOrder(ctx, symbol, orderID)
		if err != nil && isOrderNotExistError(err) {
			return nil
		}
		return err
	})
}

func newLevelID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	if len(raw) > 12 {
		return raw[:12]
	}
	return raw
}

func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Floor((price/tick)+1e-9) * tick
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "10006") || strings.Contains(msg, "Too many visits")
}

func isOrderNotExistError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "170213") || strings.Contains(msg, "Order does not exist")
}

func isDuplicateLinkError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "170141") || strings.Contains(msg, "Duplicate clientOrderId")
}
