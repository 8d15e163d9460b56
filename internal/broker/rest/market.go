package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"gridbot/internal/broker"
)

type instrumentInfo struct {
	List []struct {
		Symbol      string `json:"symbol"`
		PriceFilter struct {
			TickSize string `json:"tickSize"`
		} `json:"priceFilter"`
		LotSizeFilter struct {
			QtyStep       string `json:"qtyStep"`
			BasePrecision string `json:"basePrecision"`
		} `json:"lotSizeFilter"`
	} `json:"list"`
}

func (c *Client) InstrumentRules(ctx context.Context, symbol string) (broker.Instrument, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)

	result, err := doRequest[instrumentInfo](ctx, c, http.MethodGet, "/v5/market/instruments-info", params, nil, false)
	if err != nil {
		return broker.Instrument{}, err
	}

	if len(result.List) == 0 {
		return broker.Instrument{}, fmt.Errorf("instrument not found: %s", symbol)
	}

	info := result.List[0]

	tick, err := strconv.ParseFloat(info.PriceFilter.TickSize, 64)
	if err != nil {
		return broker.Instrument{}, fmt.Errorf("bad tickSize %q: %w", info.PriceFilter.TickSize, err)
	}

	lot, _ := strconv.ParseFloat(info.LotSizeFilter.QtyStep, 64)
	if lot == 0 {
		lot, _ = strconv.ParseFloat(info.LotSizeFilter.BasePrecision, 64)
	}
	if lot == 0 {
		return broker.Instrument{}, fmt.Errorf("no lot size for instrument: %s", symbol)
	}

	return broker.Instrument{TickSize: tick, LotSize: lot}, nil
}

var (
	rulesMu    sync.Mutex
	rulesCache = map[string]broker.Instrument{}
)

// rules returns instrument increments for order formatting, cached across all
// sessions since the metadata is account independent.
func (c *Client) rules(ctx context.Context, symbol string) (broker.Instrument, error) {
	rulesMu.Lock()
	cached, ok := rulesCache[symbol]
	rulesMu.Unlock()
	if ok {
		return cached, nil
	}

	rules, err := c.InstrumentRules(ctx, symbol)
	if err != nil {
		return broker.Instrument{}, err
	}

	rulesMu.Lock()
	rulesCache[symbol] = rules
	rulesMu.Unlock()
	return rules, nil
}
