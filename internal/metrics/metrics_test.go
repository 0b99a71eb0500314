package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentsCacheReuse(t *testing.T) {
	in := NewInstruments()
	ctx := context.Background()

	in.Count(ctx, "test.counter")
	in.Count(ctx, "test.counter")

	_, ok := in.counters["test.counter"]
	assert.True(t, ok)
}

func TestInstrumentsRecordVariants(t *testing.T) {
	in := NewInstruments()
	ctx := context.Background()

	in.Add(ctx, MetricExecutorActions, 5)
	in.AddCost(ctx, MetricPlannerCostUSD, 0.0032)
	in.Observe(ctx, MetricObserverDuration, 123.4)

	_, ok := in.counters[MetricExecutorActions]
	assert.True(t, ok)
	_, ok = in.floats[MetricPlannerCostUSD]
	assert.True(t, ok)
	_, ok = in.histograms[MetricObserverDuration]
	assert.True(t, ok)
}

func TestInitIsIdempotent(t *testing.T) {
	p1, err := Init(0)
	require.NoError(t, err)
	require.NotNil(t, p1)

	p2, err := Init(0)
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	require.NoError(t, p1.Shutdown(context.Background()))
}
