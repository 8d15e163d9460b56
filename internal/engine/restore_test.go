package engine

import (
	"context"
	"testing"

	"gridbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileAppliesFillsMissedWhileDown(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)
	ctx := context.Background()

	lvl := rig.levelAt(t, 49.0)
	lvl.EntryOrderID = "o-1"
	rig.trade.setComplete("o-1", 49.0)

	rig.eng.reconcile(ctx)

	assert.Equal(t, models.PhaseTarget, lvl.Phase)
	assert.InDelta(t, 100.0, rig.eng.state.DownsideQty, 1e-9)
	assert.Len(t, rig.eng.state.History, 1)
}

func TestReconcileHedgesOffLiveFeedPrice(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)

	// A fresh process has never run a cycle, so the hedge price cache is
	// empty even though the feed already carries a price.
	rig.eng.lastHedgePrice = 0
	rig.prices.price = 200.0

	lvl := rig.levelAt(t, 49.0)
	lvl.EntryOrderID = "o-1"
	rig.trade.setComplete("o-1", 49.0)

	rig.eng.reconcile(context.Background())

	assert.Equal(t, models.PhaseTarget, lvl.Phase)
	assert.InDelta(t, 200.0, lvl.HedgeRefPrice, 1e-9)
	assert.InDelta(t, 198.0, lvl.HedgePrice, 1e-9)
}

func TestReconcileLeavesRestingOrdersAlone(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)
	ctx := context.Background()

	rig.eng.placementPass(ctx)
	lvl := rig.levelAt(t, 49.0)
	orderID := lvl.EntryOrderID
	require.NotEmpty(t, orderID)

	rig.eng.reconcile(ctx)

	assert.Equal(t, orderID, lvl.EntryOrderID)
	assert.Equal(t, models.PhaseEntry, lvl.Phase)
	assert.Zero(t, rig.eng.state.DownsideQty)
}

func TestStateSurvivesSaveLoad(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)
	ctx := context.Background()

	lvl := rig.levelAt(t, 49.0)
	lvl.EntryOrderID = "o-1"
	rig.eng.onEntryFill(ctx, lvl, 49.0)
	require.NoError(t, rig.eng.store.Save(rig.eng.state))

	var loaded State
	found, err := rig.eng.store.Load(&loaded)
	require.NoError(t, err)
	require.True(t, found)

	require.Len(t, loaded.Levels, 4)
	assert.InDelta(t, 100.0, loaded.DownsideQty, 1e-9)
	require.Len(t, loaded.History, 1)

	var restored *GridLevel
	for _, l := range loaded.Levels {
		if l.ID == lvl.ID {
			restored = l
		}
	}
	require.NotNil(t, restored)
	assert.Equal(t, models.PhaseTarget, restored.Phase)
	assert.InDelta(t, lvl.HedgePrice, restored.HedgePrice, 1e-9)
	assert.InDelta(t, lvl.LadderPrice, restored.LadderPrice, 1e-9)
}
