package constitution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallax/internal/schemas"
)

func TestValidatePassesWhenAllRulesHold(t *testing.T) {
	c := NewAgentConstitution("test-agent", []Rule{
		{Name: "always_ok", Level: schemas.LevelCritical, Enabled: true, Validate: func(i, o, ctx map[string]any) (bool, string, map[string]any) {
			return true, "", nil
		}},
	})
	report := c.Validate(nil, nil, nil)
	assert.True(t, report.Passed)
	assert.Empty(t, report.Failures)
}

func TestValidateCriticalFailureFailsReport(t *testing.T) {
	c := NewAgentConstitution("test-agent", []Rule{
		{Name: "always_fails", Level: schemas.LevelCritical, Enabled: true, Validate: func(i, o, ctx map[string]any) (bool, string, map[string]any) {
			return false, "nope", nil
		}},
	})
	report := c.Validate(nil, nil, nil)
	assert.False(t, report.Passed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "always_fails", report.Failures[0].RuleName)
}

func TestValidateWarningDoesNotFailReport(t *testing.T) {
	c := NewAgentConstitution("test-agent", []Rule{
		{Name: "soft_fail", Level: schemas.LevelWarning, Enabled: true, Validate: func(i, o, ctx map[string]any) (bool, string, map[string]any) {
			return false, "meh", nil
		}},
	})
	report := c.Validate(nil, nil, nil)
	assert.True(t, report.Passed)
	assert.Empty(t, report.Failures)
	require.Len(t, report.Warnings, 1)
}

func TestValidateDisabledRuleIsSkipped(t *testing.T) {
	c := NewAgentConstitution("test-agent", []Rule{
		{Name: "disabled", Level: schemas.LevelCritical, Enabled: false, Validate: func(i, o, ctx map[string]any) (bool, string, map[string]any) {
			return false, "should never run", nil
		}},
	})
	report := c.Validate(nil, nil, nil)
	assert.True(t, report.Passed)
	assert.Empty(t, c.Rules)
}

func TestValidatorPanicBecomesWarning(t *testing.T) {
	c := NewAgentConstitution("test-agent", []Rule{
		{Name: "panics", Level: schemas.LevelCritical, Enabled: true, Validate: func(i, o, ctx map[string]any) (bool, string, map[string]any) {
			panic("boom")
		}},
	})
	report := c.Validate(nil, nil, nil)
	assert.True(t, report.Passed, "panicking validator should downgrade to warning, not fail the report")
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0].Reason, "boom")
}

func TestMustPassReturnsTypedViolation(t *testing.T) {
	c := NewAgentConstitution("test-agent", []Rule{
		{Name: "always_fails", Level: schemas.LevelCritical, Enabled: true, Validate: func(i, o, ctx map[string]any) (bool, string, map[string]any) {
			return false, "nope", nil
		}},
	})
	_, err := c.MustPass(nil, nil, nil)
	require.Error(t, err)
	var violation *Violation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "test-agent", violation.Agent)
	require.Len(t, violation.Failures, 1)
}

func TestMustPassNoErrorWhenPassing(t *testing.T) {
	c := NewAgentConstitution("test-agent", nil)
	_, err := c.MustPass(nil, nil, nil)
	assert.NoError(t, err)
}
