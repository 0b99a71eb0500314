package llmprovider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallax/internal/schemas"
)

func TestRetryableClassification(t *testing.T) {
	assert.True(t, retryable(ErrTimeout))
	assert.True(t, retryable(ErrRateLimit))
	assert.True(t, retryable(newStatusError(503, "unavailable")))
	assert.False(t, retryable(newStatusError(400, "bad request")))
	assert.False(t, retryable(errors.New("some other error")))
}

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	plan, err := withRetry(context.Background(), "test", func(ctx context.Context) (schemas.Plan, error) {
		attempts++
		if attempts < 2 {
			return schemas.Plan{}, ErrTimeout
		}
		return schemas.Plan{Steps: []schemas.PlanStep{{Action: schemas.ActionNavigate}}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, plan.Steps, 1)
}

func TestWithRetryFatalErrorStopsImmediately(t *testing.T) {
	attempts := 0
	_, err := withRetry(context.Background(), "test", func(ctx context.Context) (schemas.Plan, error) {
		attempts++
		return schemas.Plan{}, newStatusError(400, "bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestBackoffDelaySchedule(t *testing.T) {
	b := defaultBackoff()
	assert.Equal(t, b.min, b.delay(0))
	assert.Equal(t, 2*b.min, b.delay(1))
	assert.Equal(t, b.max, b.delay(10))
}
