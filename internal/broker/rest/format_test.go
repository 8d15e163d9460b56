package rest

import (
	"errors"
	"testing"

	"gridbot/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestFormatStep(t *testing.T) {
	assert.Equal(t, "49.50", formatStep(49.504, 0.01))
	assert.Equal(t, "49.50", formatStep(49.5, 0.01))
	assert.Equal(t, "198.0", formatStep(198.0, 0.5))
	assert.Equal(t, "100", formatStep(100.0, 1))
	assert.Equal(t, "0.0001", formatStep(0.00015, 0.0001))
	// no step: raw value passes through
	assert.Equal(t, "49.1234", formatStep(49.1234, 0))
}

func TestDecimalsOf(t *testing.T) {
	assert.Equal(t, 2, decimalsOf(0.01))
	assert.Equal(t, 1, decimalsOf(0.5))
	assert.Equal(t, 0, decimalsOf(1))
	assert.Equal(t, 4, decimalsOf(0.0001))
	assert.Equal(t, 8, decimalsOf(1e-8))
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, models.OrderStatusOpen, parseStatus("New"))
	assert.Equal(t, models.OrderStatusPartial, parseStatus("PartiallyFilled"))
	assert.Equal(t, models.OrderStatusComplete, parseStatus("Filled"))
	assert.Equal(t, models.OrderStatusCancelled, parseStatus("Cancelled"))
	assert.Equal(t, models.OrderStatusCancelled, parseStatus("Deactivated"))
	assert.Equal(t, models.OrderStatusRejected, parseStatus("Rejected"))
	// unknown statuses stay open rather than triggering fill handling
	assert.Equal(t, models.OrderStatusOpen, parseStatus("Untriggered"))
	assert.Equal(t, models.OrderStatusOpen, parseStatus("something-new"))
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsRateLimit(errors.New("broker error 10006: Too many visits")))
	assert.True(t, IsOrderNotExist(errors.New("broker error 170213: Order does not exist")))
	assert.True(t, IsDuplicateLinkID(errors.New("broker error 170141: Duplicate clientOrderId")))

	err := errors.New("broker error 170130: price too low")
	assert.False(t, IsRateLimit(err))
	assert.False(t, IsOrderNotExist(err))
	assert.False(t, IsDuplicateLinkID(err))
	assert.False(t, IsRateLimit(nil))
}
