package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallax/internal/schemas"
)

func TestPlannerConstitutionRejectsEmptyPlan(t *testing.T) {
	c := PlannerConstitution()
	report := c.Validate(nil, map[string]any{"plan": schemas.Plan{}}, nil)
	assert.False(t, report.Passed)
	require.NotEmpty(t, report.Failures)
	assert.Equal(t, "plan_non_empty", report.Failures[0].RuleName)
}

func TestPlannerConstitutionPassesWellFormedPlan(t *testing.T) {
	c := PlannerConstitution()
	plan := schemas.Plan{Steps: []schemas.PlanStep{
		{Action: schemas.ActionNavigate, Target: "https://example.com"},
		{Action: schemas.ActionClick, Role: "button", Name: "Submit"},
	}}
	report := c.Validate(nil, map[string]any{"plan": plan}, nil)
	assert.True(t, report.Passed)
	assert.Empty(t, report.Failures)
}

func TestPlannerConstitutionRejectsMissingElementHint(t *testing.T) {
	c := PlannerConstitution()
	plan := schemas.Plan{Steps: []schemas.PlanStep{
		{Action: schemas.ActionClick},
	}}
	report := c.Validate(nil, map[string]any{"plan": plan}, nil)
	assert.False(t, report.Passed)
	require.NotEmpty(t, report.Failures)
	assert.Equal(t, "plan_step_validity", report.Failures[0].RuleName)
}

func TestExecutorConstitutionFlagsEmptyFinalURL(t *testing.T) {
	c := ExecutorConstitution()
	report := c.Validate(nil, map[string]any{"final_url": ""}, nil)
	assert.False(t, report.Passed)
	assert.Equal(t, "navigation_success", report.Failures[0].RuleName)
}

func TestExecutorConstitutionToleratesBlankWithoutNavigate(t *testing.T) {
	c := ExecutorConstitution()
	report := c.Validate(nil, map[string]any{
		"final_url":          "about:blank",
		"had_navigate_step":  false,
		"actions_taken":      0,
	}, nil)
	assert.True(t, report.Passed)
}

func TestExecutorConstitutionWarnsOnAuthRedirect(t *testing.T) {
	c := ExecutorConstitution()
	report := c.Validate(nil, map[string]any{
		"final_url":     "https://example.com/login",
		"actions_taken": 1,
	}, nil)
	assert.True(t, report.Passed) // warning, not critical
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "no_auth_redirects", report.Warnings[0].RuleName)
}

func TestExecutorConstitutionWarnsOverBudget(t *testing.T) {
	c := ExecutorConstitution()
	report := c.Validate(nil, map[string]any{
		"final_url":     "https://example.com/",
		"actions_taken": 10,
	}, map[string]any{"action_budget": 5})
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "action_budget", report.Warnings[0].RuleName)
}

func TestObserverConstitutionRequiresSignature(t *testing.T) {
	c := ObserverConstitution()
	report := c.Validate(nil, map[string]any{"state": schemas.UIState{}}, nil)
	assert.False(t, report.Passed)
	assert.Equal(t, "state_captured", report.Failures[0].RuleName)
}

func TestObserverConstitutionPassesWithScreenshot(t *testing.T) {
	c := ObserverConstitution()
	state := schemas.UIState{
		StateSignature: "abc123",
		Description:    "landing page loaded",
		Screenshots:    map[string]string{"desktop": "/tmp/a.png"},
	}
	report := c.Validate(nil, map[string]any{"state": state}, nil)
	assert.True(t, report.Passed)
	assert.Empty(t, report.Warnings)
}

func TestArchivistConstitutionRequiresBothFiles(t *testing.T) {
	c := ArchivistConstitution()
	report := c.Validate(nil, map[string]any{
		"dataset_created": true,
		"files_written":   []string{"steps.jsonl"},
		"state_count":     3,
	}, nil)
	assert.False(t, report.Passed)
	assert.Equal(t, "dataset_files", report.Failures[0].RuleName)
}

func TestArchivistConstitutionMinimumStates(t *testing.T) {
	c := ArchivistConstitution()
	report := c.Validate(nil, map[string]any{
		"dataset_created": true,
		"files_written":   []string{"steps.jsonl", "dataset.db"},
		"state_count":     0,
	}, map[string]any{"min_states": 2})
	assert.False(t, report.Passed)
	assert.Equal(t, "minimum_states", report.Failures[0].RuleName)
}

func TestArchivistConstitutionDataIntegrityWarning(t *testing.T) {
	c := ArchivistConstitution()
	report := c.Validate(nil, map[string]any{
		"dataset_created":   true,
		"files_written":     []string{"steps.jsonl", "dataset.db"},
		"state_count":       3,
		"steps_jsonl_lines": 2,
	}, nil)
	assert.True(t, report.Passed)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "dataset_data_integrity", report.Warnings[0].RuleName)
}
