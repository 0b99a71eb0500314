package llmprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallax/internal/schemas"
)

func TestParsePlanJSONPlain(t *testing.T) {
	plan, err := parsePlanJSON(`{"steps":[{"action":"navigate","selector":"https://example.com"}]}`)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, schemas.ActionNavigate, plan.Steps[0].Action)
}

func TestParsePlanJSONCodeFenced(t *testing.T) {
	raw := "```json\n{\"steps\":[{\"action\":\"click\",\"role\":\"button\",\"name\":\"Submit\"}]}\n```"
	plan, err := parsePlanJSON(raw)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, schemas.ActionClick, plan.Steps[0].Action)
	assert.Equal(t, "Submit", plan.Steps[0].Name)
}

func TestParsePlanJSONInvalid(t *testing.T) {
	_, err := parsePlanJSON("not json at all")
	assert.ErrorIs(t, err, ErrParse)
}

func TestFallbackPlan(t *testing.T) {
	plan := FallbackPlan("https://example.com/start")
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, schemas.ActionNavigate, plan.Steps[0].Action)
	assert.Equal(t, "https://example.com/start", plan.Steps[0].Target)
}

func TestFallbackPlanEmptyStartURL(t *testing.T) {
	plan := FallbackPlan("")
	assert.Equal(t, "about:blank", plan.Steps[0].Target)
}
