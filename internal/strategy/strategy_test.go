package strategy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallax/internal/schemas"
)

func TestGenerateSeedsSearchStrategiesFirst(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "strategies.json"))
	strategies := store.Generate("Search box", "example.com", nil)
	require.NotEmpty(t, strategies)
	assert.Equal(t, schemas.StrategyPlaceholder, strategies[0].StrategyKind)
}

func TestGenerateIsCachedAcrossCalls(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "strategies.json"))
	first := store.Generate("Submit button", "", nil)
	second := store.Generate("Submit button", "", nil)
	assert.Equal(t, len(first), len(second))
}

func TestRecordResultUpdatesEMA(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "strategies.json"))
	strategies := store.Generate("Submit button", "", nil)
	kind := strategies[0].StrategyKind

	store.RecordResult(kind, "Submit button", "", nil, true)
	updated := store.Best("Submit button", "", len(strategies), nil)

	var found bool
	for _, s := range updated {
		if s.StrategyKind == kind {
			found = true
			assert.InDelta(t, 0.1, s.SuccessRate, 1e-9)
			assert.Equal(t, 1, s.UsageCount)
		}
	}
	assert.True(t, found)
}

func TestRecordResultFailureDecaysTowardZero(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "strategies.json"))
	strategies := store.Generate("Submit button", "", nil)
	kind := strategies[0].StrategyKind

	store.RecordResult(kind, "Submit button", "", nil, true)
	store.RecordResult(kind, "Submit button", "", nil, false)

	updated := store.Best("Submit button", "", len(strategies), nil)
	for _, s := range updated {
		if s.StrategyKind == kind {
			assert.InDelta(t, 0.9*0.1, s.SuccessRate, 1e-9)
		}
	}
}

func TestSuggestImprovedStepDataTestID(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "strategies.json"))
	failed := schemas.PlanStep{Action: schemas.ActionClick, Name: "Add to Cart"}

	// force data-testid to rank highest
	store.Generate(failed.Name, "", &failed)
	store.RecordResult(schemas.StrategyDataTestID, failed.Name, "", &failed, true)
	store.RecordResult(schemas.StrategyDataTestID, failed.Name, "", &failed, true)

	improved, ok := store.SuggestImprovedStep(failed, "")
	require.True(t, ok)
	assert.Equal(t, `[data-testid="add-to-cart"]`, improved.Selector)
}

func TestSuggestImprovedStepNoHintReturnsFalse(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "strategies.json"))
	_, ok := store.SuggestImprovedStep(schemas.PlanStep{Action: schemas.ActionWait}, "")
	assert.False(t, ok)
}

func TestFailurePatternsBucketsByRuleName(t *testing.T) {
	reports := []schemas.ConstitutionReport{
		{
			Failures: []schemas.ValidationFailure{
				{RuleName: "locator_resolution", Reason: "no match"},
				{RuleName: "no_auth_redirects", Reason: "landed on /login"},
			},
		},
	}
	patterns := FailurePatterns(reports)
	require.Len(t, patterns, 2)
	assert.Contains(t, patterns[0], "selector failure")
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.json")
	store1 := NewStore(path)
	store1.Generate("Search input", "", nil)

	store2 := NewStore(path)
	strategies := store2.Best("Search input", "", 10, nil)
	assert.NotEmpty(t, strategies)
}
