package engine

import (
	"context"
	"testing"

	"gridbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hedgedRung(group models.Group, hedgeSide models.OrderSide, hedgePrice float64) *GridLevel {
	return &GridLevel{
		ID:         newLevelID(),
		Group:      group,
		Phase:      models.PhaseTarget,
		Side:       hedgeSide, // target side mirrors the hedge in these fixtures
		Price:      hedgePrice / 4,
		QtyMain:    100,
		QtyHedge:   1,
		HedgeSide:  hedgeSide,
		HedgePrice: hedgePrice,
	}
}

func liveHedges(levels []*GridLevel, dir models.OrderSide) []float64 {
	var prices []float64
	for _, lvl := range levels {
		if lvl.HedgeSide == dir && lvl.HedgeOrderID != "" {
			prices = append(prices, lvl.HedgePrice)
		}
	}
	return prices
}

func TestRebracketKeepsNearestPair(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)
	ctx := context.Background()

	rig.eng.state.Levels = []*GridLevel{
		hedgedRung(models.GroupDownside, models.OrderSideSell, 197.0),
		hedgedRung(models.GroupDownside, models.OrderSideSell, 199.0),
		hedgedRung(models.GroupDownside, models.OrderSideSell, 150.0),
	}

	rig.eng.rebracket(ctx, 198.0)

	live := liveHedges(rig.eng.state.Levels, models.OrderSideSell)
	assert.ElementsMatch(t, []float64{197.0, 199.0}, live)
	assert.Equal(t, 2, rig.downHedge.placedCount())
	assert.Empty(t, rig.downHedge.cancelled)
}

func TestRebracketIdempotent(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)
	ctx := context.Background()

	rig.eng.state.Levels = []*GridLevel{
		hedgedRung(models.GroupDownside, models.OrderSideSell, 197.0),
		hedgedRung(models.GroupDownside, models.OrderSideSell, 199.0),
		hedgedRung(models.GroupDownside, models.OrderSideSell, 150.0),
	}

	rig.eng.rebracket(ctx, 198.0)
	placed := rig.downHedge.placedCount()

	rig.eng.rebracket(ctx, 198.0)
	rig.eng.rebracket(ctx, 198.0)

	assert.Equal(t, placed, rig.downHedge.placedCount(), "stable price places nothing new")
	assert.Empty(t, rig.downHedge.cancelled)
}

func TestRebracketSlidesWithPrice(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)
	ctx := context.Background()

	rig.eng.state.Levels = []*GridLevel{
		hedgedRung(models.GroupDownside, models.OrderSideSell, 197.0),
		hedgedRung(models.GroupDownside, models.OrderSideSell, 199.0),
		hedgedRung(models.GroupDownside, models.OrderSideSell, 150.0),
	}

	rig.eng.rebracket(ctx, 198.0)
	var farID string
	for _, lvl := range rig.eng.state.Levels {
		if lvl.HedgePrice == 199.0 {
			farID = lvl.HedgeOrderID
		}
	}
	require.NotEmpty(t, farID)

	// Price drops between the old pair: 199 is now two slots away, 150 moves
	// into the bracket.
	rig.eng.rebracket(ctx, 150.5)

	live := liveHedges(rig.eng.state.Levels, models.OrderSideSell)
	assert.ElementsMatch(t, []float64{150.0, 197.0}, live)
	assert.Contains(t, rig.downHedge.cancelled, farID)
}

func TestRebracketDirectionsIndependent(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)
	ctx := context.Background()

	rig.eng.state.Levels = []*GridLevel{
		hedgedRung(models.GroupDownside, models.OrderSideSell, 197.0),
		hedgedRung(models.GroupDownside, models.OrderSideSell, 199.0),
		hedgedRung(models.GroupDownside, models.OrderSideSell, 150.0),
		hedgedRung(models.GroupUpside, models.OrderSideBuy, 202.0),
		hedgedRung(models.GroupUpside, models.OrderSideBuy, 204.0),
	}

	rig.eng.rebracket(ctx, 198.0)

	assert.Len(t, liveHedges(rig.eng.state.Levels, models.OrderSideSell), 2)
	// Both buy hedges sit above the price, only the nearest one rests.
	assert.ElementsMatch(t, []float64{202.0}, liveHedges(rig.eng.state.Levels, models.OrderSideBuy))
	assert.Equal(t, 1, rig.upHedge.placedCount())
}

func TestRebracketSkipsClosedAndEntryRungs(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)
	ctx := context.Background()

	closed := hedgedRung(models.GroupDownside, models.OrderSideSell, 197.0)
	closed.Closed = true
	entry := hedgedRung(models.GroupDownside, models.OrderSideSell, 198.5)
	entry.Phase = models.PhaseEntry

	rig.eng.state.Levels = []*GridLevel{closed, entry}
	rig.eng.rebracket(ctx, 198.0)

	assert.Zero(t, rig.downHedge.placedCount())
}
