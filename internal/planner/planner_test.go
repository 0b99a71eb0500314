package planner

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallax/internal/constitution"
	"parallax/internal/schemas"
	"parallax/internal/strategy"
)

type fakeProvider struct {
	plan       schemas.Plan
	err        error
	lastCtx    map[string]any
	lastTask   string
}

func (f *fakeProvider) GeneratePlan(_ context.Context, task string, planCtx map[string]any) (schemas.Plan, error) {
	f.lastTask = task
	f.lastCtx = planCtx
	if f.err != nil {
		return schemas.Plan{}, f.err
	}
	return f.plan, nil
}
func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func validPlan() schemas.Plan {
	return schemas.Plan{Steps: []schemas.PlanStep{
		{Action: schemas.ActionNavigate, Selector: "https://example.com"},
		{Action: schemas.ActionClick, Role: "button", Name: "Sign in"},
	}}
}

func TestPlanHappyPath(t *testing.T) {
	provider := &fakeProvider{plan: validPlan()}
	p := New(provider, nil, nil)

	plan, report, err := p.Plan(context.Background(), "sign in", map[string]any{"start_url": "https://example.com"})
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Len(t, plan.Steps, 2)
}

func TestPlanAppliesGoogleOverride(t *testing.T) {
	plan := schemas.Plan{Steps: []schemas.PlanStep{
		{Action: schemas.ActionFill, Value: "golang"},
	}}
	provider := &fakeProvider{plan: plan}
	p := New(provider, nil, nil)

	result, _, err := p.Plan(context.Background(), "search golang", map[string]any{"start_url": "https://www.google.com"})
	require.NoError(t, err)
	assert.Equal(t, ":is(input,textarea)[name='q']", result.Steps[0].Selector)
}

func TestPlanFailsConstitutionOnEmptyPlan(t *testing.T) {
	provider := &fakeProvider{plan: schemas.Plan{}}
	store := constitution.NewFailureStore(t.TempDir())
	p := New(provider, store, nil)

	_, report, err := p.Plan(context.Background(), "do nothing", nil)
	require.Error(t, err)
	assert.False(t, report.Passed)
}

func TestPlanEnrichesContextWithFailurePatterns(t *testing.T) {
	base := t.TempDir()
	store := constitution.NewFailureStore(base)
	store.Append(schemas.ConstitutionReport{
		Agent:  "executor",
		Passed: false,
		Failures: []schemas.ValidationFailure{
			{RuleName: "locator_resolution", Reason: "no match", Level: schemas.LevelCritical},
		},
	})

	provider := &fakeProvider{plan: validPlan()}
	strategies := strategy.NewStore(filepath.Join(base, "strategies.json"))
	p := New(provider, store, strategies)

	_, _, err := p.Plan(context.Background(), "task", map[string]any{"start_url": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, true, provider.lastCtx["use_strategies"])
	assert.NotEmpty(t, provider.lastCtx["failure_patterns"])
}

func TestPlanPropagatesProviderError(t *testing.T) {
	provider := &fakeProvider{err: assertError{"boom"}}
	p := New(provider, nil, nil)

	_, _, err := p.Plan(context.Background(), "task", nil)
	assert.Error(t, err)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
