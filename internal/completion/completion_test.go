package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallax/internal/schemas"
)

func TestSlugifyIdempotence(t *testing.T) {
	inputs := []string{
		"Hello, World!",
		"  Create   Account  ",
		"a-b-c-d-e-f",
		"ab",
		"",
		"Softlight.com",
	}
	for _, in := range inputs {
		once := Slugify(in)
		twice := Slugify(once)
		assert.Equal(t, once, twice, "slugify not idempotent for %q", in)
	}
}

func TestSlugifyRejectsShortResults(t *testing.T) {
	assert.Equal(t, "", Slugify("a"))
	assert.Equal(t, "", Slugify("--"))
	assert.Equal(t, "", Slugify("ab"))
}

func TestSlugifyCollapsesManyDashesToFirstSegment(t *testing.T) {
	slug := Slugify("one-two-three-four-five")
	assert.Equal(t, "one", slug)
}

func TestClassifyInteractiveVsExplore(t *testing.T) {
	interactive := schemas.Plan{Steps: []schemas.PlanStep{
		{Action: schemas.ActionNavigate, Target: "https://example.com"},
		{Action: schemas.ActionFill, Selector: "#q", Value: "hello"},
	}}
	assert.Equal(t, ClassificationInteractive, Classify(interactive))

	explore := schemas.Plan{Steps: []schemas.PlanStep{
		{Action: schemas.ActionNavigate, Target: "https://example.com"},
		{Action: schemas.ActionClick, Role: "link", Name: "About"},
	}}
	assert.Equal(t, ClassificationExplore, Classify(explore))
}

func TestValidateExploreRequiresSlugMatch(t *testing.T) {
	plan := schemas.Plan{Steps: []schemas.PlanStep{
		{Action: schemas.ActionClick, Role: "link", Name: "softlight"},
	}}
	passingStates := []schemas.UIState{{URL: "https://example.com/softlight/page"}}
	res := Validate(plan, passingStates, 1)
	assert.True(t, res.Passed)

	failingStates := []schemas.UIState{{URL: "https://example.com/other"}}
	res2 := Validate(plan, failingStates, 1)
	assert.False(t, res2.Passed)
}

func TestValidateInteractiveRequiresCompletionSignal(t *testing.T) {
	plan := schemas.Plan{Steps: []schemas.PlanStep{
		{Action: schemas.ActionFill, Selector: "#q", Value: "x"},
	}}

	noSignal := []schemas.UIState{{Action: "fill(#q)"}}
	res := Validate(plan, noSignal, 1)
	assert.False(t, res.Passed)

	withSignal := []schemas.UIState{{
		Action:   "submit(button)",
		Metadata: map[string]any{"form_validity": true},
	}}
	res2 := Validate(plan, withSignal, 1)
	assert.True(t, res2.Passed)
}

func TestVerifyCriteriaReturnsTypedErrorOnFailure(t *testing.T) {
	plan := schemas.Plan{Steps: []schemas.PlanStep{
		{Action: schemas.ActionClick, Role: "link", Name: "unreachable"},
	}}
	_, err := VerifyCriteria(plan, nil, 1)
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ClassificationExplore, cerr.Classification)
}
