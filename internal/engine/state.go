package engine

import (
	"strings"
	"time"

	"gridbot/internal/models"
)

// GridLevel is one ladder rung. Its id is regenerated every time the rung
// completes a full entry->target cycle, so client link ids never repeat.
type GridLevel struct {
	ID    string       `json:"id"`
	Group models.Group `json:"group"`
	Phase models.Phase `json:"phase"`

	// Side and Price describe the next (or currently resting) main-instrument
	// order: the entry order while phase=entry, the target order after the
	// entry fills. LadderSide/LadderPrice keep the original rung definition a
	// target fill resets back to.
	Side        models.OrderSide `json:"side"`
	Price       float64          `json:"price"`
	LadderSide  models.OrderSide `json:"ladderSide"`
	LadderPrice float64          `json:"ladderPrice"`

	QtyMain  float64 `json:"qtyMain"`
	QtyHedge float64 `json:"qtyHedge"`

	HedgeSide     models.OrderSide `json:"hedgeSide,omitempty"`
	HedgePrice    float64          `json:"hedgePrice,omitempty"`
	HedgeRefPrice float64          `json:"hedgeRefPrice,omitempty"`

	EntryOrderID string `json:"entryOrderId,omitempty"`
	HedgeOrderID string `json:"hedgeOrderId,omitempty"`

	Closed bool `json:"closed"`
}

func (l *GridLevel) mainLinkID() string {
	if l.Phase == models.PhaseTarget {
		return l.ID + "-tgt"
	}
	return l.ID + "-entry"
}

func (l *GridLevel) mainKind() string {
	if l.Phase == models.PhaseTarget {
		return "target"
	}
	return "entry"
}

func (l *GridLevel) hedgeLinkID() string {
	return l.ID + "-hdg"
}

const statusActive = "Active"
const terminatedPrefix = "Terminated:"

// State is everything the bot persists between cycles and across restarts.
type State struct {
	Levels  []*GridLevel         `json:"openOrders"`
	History []models.TradeRecord `json:"orderHistory"`

	UpsideQty   float64 `json:"upsideQty"`
	DownsideQty float64 `json:"downsideQty"`

	UpsideHedgeFills   int `json:"upsideHedgeFills"`
	DownsideHedgeFills int `json:"downsideHedgeFills"`

	UpsidePaused   bool `json:"upsidePaused"`
	DownsidePaused bool `json:"downsidePaused"`

	Status      string    `json:"status"`
	LastUpdated time.Time `json:"lastUpdated"`
}

func newState(levels []*GridLevel) *State {
	return &State{
		Levels:      levels,
		Status:      statusActive,
		LastUpdated: time.Now(),
	}
}

func (s *State) Terminated() bool {
	return strings.HasPrefix(s.Status, terminatedPrefix)
}

func (s *State) GroupQty(group models.Group) float64 {
	if group == models.GroupUpside {
		return s.UpsideQty
	}
	return s.DownsideQty
}

func (s *State) addGroupQty(group models.Group, delta float64) {
	if group == models.GroupUpside {
		s.UpsideQty += delta
	} else {
		s.DownsideQty += delta
	}
}

func (s *State) hedgeFills(group models.Group) int {
	if group == models.GroupUpside {
		return s.UpsideHedgeFills
	}
	return s.DownsideHedgeFills
}

func (s *State) incHedgeFills(group models.Group) {
	if group == models.GroupUpside {
		s.UpsideHedgeFills++
	} else {
		s.DownsideHedgeFills++
	}
}

func (s *State) paused(group models.Group) bool {
	if group == models.GroupUpside {
		return s.UpsidePaused
	}
	return s.DownsidePaused
}

func (s *State) setPaused(group models.Group, v bool) {
	if group == models.GroupUpside {
		s.UpsidePaused = v
	} else {
		s.DownsidePaused = v
	}
}

func (s *State) appendHistory(rec models.TradeRecord, limit int) {
	s.History = append(s.History, rec)
	if limit > 0 && len(s.History) > limit {
		s.History = s.History[len(s.History)-limit:]
	}
}

// closeHistory finalizes the open record for a rung. Replayed handlers may
// call it for a record that is already closed; that is a no-op.
func (s *State) closeHistory(levelID, outcome string, filledPrice float64) {
	for i := len(s.History) - 1; i >= 0; i-- {
		rec := &s.History[i]
		if rec.LevelID != levelID || rec.Outcome != models.OutcomeOpen {
			continue
		}
		now := time.Now()
		rec.Outcome = outcome
		rec.FilledPrice = filledPrice
		rec.ClosedAt = &now
		return
	}
}
