package engine

import (
	"context"
	"testing"

	"gridbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollDispatchesEntryFill(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)
	ctx := context.Background()

	rig.eng.placementPass(ctx)
	lvl := rig.levelAt(t, 49.0)
	require.NotEmpty(t, lvl.EntryOrderID)

	rig.trade.setComplete(lvl.EntryOrderID, 49.0)
	rig.eng.pollOrders(ctx)

	assert.Equal(t, models.PhaseTarget, lvl.Phase)
	assert.InDelta(t, 49.50, lvl.Price, 1e-9)
	assert.InDelta(t, 100.0, rig.eng.state.DownsideQty, 1e-9)
}

func TestPollReplayIsNoOp(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)
	ctx := context.Background()

	rig.eng.placementPass(ctx)
	lvl := rig.levelAt(t, 49.0)
	rig.trade.setComplete(lvl.EntryOrderID, 49.0)
	rig.eng.pollOrders(ctx)

	// The handler consumed the order id, so the broker still reporting the
	// fill changes nothing on replay.
	rig.eng.pollOrders(ctx)
	rig.eng.pollOrders(ctx)

	assert.InDelta(t, 100.0, rig.eng.state.DownsideQty, 1e-9)
	assert.Len(t, rig.eng.state.History, 1)
}

func TestPollCancelledEntryReleasesRung(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)
	ctx := context.Background()

	rig.eng.placementPass(ctx)
	lvl := rig.levelAt(t, 49.0)
	rig.trade.setStatus(lvl.EntryOrderID, models.OrderStatusCancelled)

	rig.eng.pollOrders(ctx)

	assert.Empty(t, lvl.EntryOrderID)
	assert.Equal(t, models.PhaseEntry, lvl.Phase)
	assert.InDelta(t, 0.0, rig.eng.state.DownsideQty, 1e-9)

	// Next pass re-places the freed rung.
	before := rig.trade.placedCount()
	rig.eng.placementPass(ctx)
	assert.Equal(t, before+1, rig.trade.placedCount())
}

func TestPollKeepsOrderWhenBrokerSilent(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)
	ctx := context.Background()

	rig.eng.placementPass(ctx)
	lvl := rig.levelAt(t, 49.0)
	orderID := lvl.EntryOrderID

	// No scripted status: the broker does not know the id yet.
	rig.eng.pollOrders(ctx)
	assert.Equal(t, orderID, lvl.EntryOrderID)

	rig.trade.statusErr = assert.AnError
	rig.eng.pollOrders(ctx)
	assert.Equal(t, orderID, lvl.EntryOrderID)
}

func TestPollDispatchesHedgeFill(t *testing.T) {
	rig := newTestRig(t, testConfig(), false)
	ctx := context.Background()

	lvl := rig.levelAt(t, 49.0)
	lvl.EntryOrderID = "o-entry"
	rig.eng.onEntryFill(ctx, lvl, 49.0)

	rig.eng.rebracket(ctx, 200.0)
	require.NotEmpty(t, lvl.HedgeOrderID)

	rig.downHedge.setComplete(lvl.HedgeOrderID, 198.0)
	rig.eng.pollOrders(ctx)

	assert.True(t, lvl.Closed)
	assert.Equal(t, 1, rig.eng.state.DownsideHedgeFills)
}
