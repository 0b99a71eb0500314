package llmprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCostTrackerKnownPricing(t *testing.T) {
	tracker := NewCostTracker(nil)
	cost := tracker.TrackCall(context.Background(), "openai", "gpt-4o-mini", 1_000_000, 1_000_000)
	assert.InDelta(t, 0.15+0.60, cost, 1e-9)
	assert.InDelta(t, cost, tracker.TotalCost(), 1e-9)
}

func TestCostTrackerLocalIsFree(t *testing.T) {
	tracker := NewCostTracker(nil)
	cost := tracker.TrackCall(context.Background(), "local", "default", 500, 500)
	assert.Equal(t, 0.0, cost)
}

func TestCostTrackerUnknownModelUsesDefault(t *testing.T) {
	tracker := NewCostTracker(nil)
	cost := tracker.TrackCall(context.Background(), "openai", "some-future-model", 1_000_000, 1_000_000)
	assert.InDelta(t, 1.0+3.0, cost, 1e-9)
}

func TestCostTrackerSummaryAndReset(t *testing.T) {
	tracker := NewCostTracker(nil)
	tracker.TrackCall(context.Background(), "openai", "gpt-4o", 1000, 1000)
	tracker.TrackCall(context.Background(), "anthropic", "claude-3-haiku", 1000, 1000)

	summary := tracker.Summary()
	assert.Contains(t, summary, "openai")
	assert.Contains(t, summary, "anthropic")
	assert.Greater(t, tracker.TotalCost(), 0.0)

	tracker.Reset()
	assert.Equal(t, 0.0, tracker.TotalCost())
	assert.Empty(t, tracker.Summary())
}
