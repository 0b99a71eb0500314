// Package rules holds the concrete per-agent constitutions: the closed rule
// catalogs each agent validates against, wired to concrete
// constitution.Validator functions over the conventions each agent passes
// in its input/output/context maps.
//
// The closed-enum-of-check-kinds shape mirrors the teacher's
// verification.QualityViolation catalog, generalized from code-quality
// checks to UI-automation checks.
package rules

import (
	"fmt"
	"strings"

	"parallax/internal/constitution"
	"parallax/internal/schemas"
)

// mapInt extracts an int from a map, tolerating the common numeric shapes a
// caller might stash there (int, int64, float64).
func mapInt(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func mapString(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func mapBool(m map[string]any, key string) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// =============================================================================
// A1 Planner — all rules critical (spec.md §4.6).
// =============================================================================

// PlannerConstitution validates a generated Plan before the orchestrator
// lets the executor touch it. Expects output["plan"] to be a schemas.Plan.
func PlannerConstitution() *constitution.AgentConstitution {
	return constitution.NewAgentConstitution("planner", []constitution.Rule{
		{
			Name:        "plan_structure",
			Description: "output must contain a well-formed Plan value",
			Level:       schemas.LevelCritical,
			Enabled:     true,
			Validate: func(_, output, _ map[string]any) (bool, string, map[string]any) {
				plan, ok := output["plan"].(schemas.Plan)
				if !ok {
					return false, "output missing a schemas.Plan under \"plan\"", nil
				}
				for i, step := range plan.Steps {
					if step.Action == "" {
						return false, fmt.Sprintf("step %d has an empty action", i), map[string]any{"index": i}
					}
					if !schemas.KnownActions[step.Action] {
						return false, fmt.Sprintf("step %d has unknown action %q", i, step.Action),
							map[string]any{"index": i, "action": string(step.Action)}
					}
				}
				return true, "", nil
			},
		},
		{
			Name:        "plan_non_empty",
			Description: "a plan must contain at least one step",
			Level:       schemas.LevelCritical,
			Enabled:     true,
			Validate: func(_, output, _ map[string]any) (bool, string, map[string]any) {
				plan, ok := output["plan"].(schemas.Plan)
				if !ok || len(plan.Steps) == 0 {
					return false, "plan has zero steps", nil
				}
				return true, "", nil
			},
		},
		{
			Name:        "plan_step_validity",
			Description: "every interactive step must carry an element hint",
			Level:       schemas.LevelCritical,
			Enabled:     true,
			Validate: func(_, output, _ map[string]any) (bool, string, map[string]any) {
				plan, ok := output["plan"].(schemas.Plan)
				if !ok {
					return false, "output missing a schemas.Plan under \"plan\"", nil
				}
				for i, step := range plan.Steps {
					if step.Action == schemas.ActionNavigate || step.Action == schemas.ActionWait ||
						step.Action == schemas.ActionGoBack || step.Action == schemas.ActionGoForward ||
						step.Action == schemas.ActionReload || step.Action == schemas.ActionScreenshot {
						continue
					}
					if !step.HasElementHint() {
						return false, fmt.Sprintf("step %d (%s) has no selector, role+name, or name hint", i, step.Action),
							map[string]any{"index": i, "action": string(step.Action)}
					}
				}
				return true, "", nil
			},
		},
	})
}

// =============================================================================
// A2 Executor (spec.md §4.6).
// =============================================================================

// ExecutorConstitution validates the outcome of executing a plan. Expects
// output["final_url"] (string), output["had_navigate_step"] (bool),
// output["actions_taken"] (int), and context["action_budget"] (int),
// context["auth_redirect_fatal"] (bool).
func ExecutorConstitution() *constitution.AgentConstitution {
	return constitution.NewAgentConstitution("executor", []constitution.Rule{
		{
			Name:        "navigation_success",
			Description: "final URL must be populated unless the plan never navigated",
			Level:       schemas.LevelCritical,
			Enabled:     true,
			Validate: func(_, output, _ map[string]any) (bool, string, map[string]any) {
				finalURL, _ := mapString(output, "final_url")
				hadNavigate, _ := mapBool(output, "had_navigate_step")
				if finalURL == "" {
					return false, "final URL is empty", nil
				}
				if finalURL == "about:blank" && hadNavigate {
					return false, "final URL is about:blank but the plan contained a navigate step",
						map[string]any{"final_url": finalURL}
				}
				return true, "", nil
			},
		},
		{
			Name:        "action_budget",
			Description: "actions taken should not exceed the configured budget",
			Level:       schemas.LevelWarning,
			Enabled:     true,
			Validate: func(_, output, context map[string]any) (bool, string, map[string]any) {
				taken, _ := mapInt(output, "actions_taken")
				budget, hasBudget := mapInt(context, "action_budget")
				if !hasBudget || budget <= 0 {
					return true, "", nil
				}
				if taken > budget {
					return false, fmt.Sprintf("took %d actions against a budget of %d", taken, budget),
						map[string]any{"actions_taken": taken, "action_budget": budget}
				}
				return true, "", nil
			},
		},
		{
			Name:        "no_auth_redirects",
			Description: "final URL should not land on a login/auth/signin path",
			Level:       schemas.LevelWarning,
			Enabled:     true,
			Validate: func(_, output, _ map[string]any) (bool, string, map[string]any) {
				finalURL, _ := mapString(output, "final_url")
				lower := strings.ToLower(finalURL)
				for _, frag := range []string{"/login", "/auth", "/signin"} {
					if strings.Contains(lower, frag) {
						return false, fmt.Sprintf("final URL %q looks like an auth redirect", finalURL),
							map[string]any{"final_url": finalURL, "fragment": frag}
					}
				}
				return true, "", nil
			},
		},
	})
}

// =============================================================================
// A3 Observer (spec.md §4.6).
// =============================================================================

// ObserverConstitution validates one captured UIState. Expects
// output["state"] (schemas.UIState), optionally output["screenshot_sizes"]
// (map[string]int), and context["min_screenshot_bytes"] (int, default 256).
func ObserverConstitution() *constitution.AgentConstitution {
	return constitution.NewAgentConstitution("observer", []constitution.Rule{
		{
			Name:        "state_captured",
			Description: "a UIState with a non-empty signature must be produced",
			Level:       schemas.LevelCritical,
			Enabled:     true,
			Validate: func(_, output, _ map[string]any) (bool, string, map[string]any) {
				state, ok := output["state"].(schemas.UIState)
				if !ok {
					return false, "output missing a schemas.UIState under \"state\"", nil
				}
				if state.StateSignature == "" {
					return false, "captured state has no state signature", nil
				}
				return true, "", nil
			},
		},
		{
			Name:        "screenshot_quality",
			Description: "at least one viewport screenshot must be non-trivially sized",
			Level:       schemas.LevelCritical,
			Enabled:     true,
			Validate: func(_, output, context map[string]any) (bool, string, map[string]any) {
				state, ok := output["state"].(schemas.UIState)
				if !ok {
					return false, "output missing a schemas.UIState under \"state\"", nil
				}
				if len(state.Screenshots) == 0 {
					return false, "no screenshots captured", nil
				}
				minBytes, has := mapInt(context, "min_screenshot_bytes")
				if !has || minBytes <= 0 {
					minBytes = 256
				}
				sizes, _ := output["screenshot_sizes"].(map[string]int)
				for viewport, path := range state.Screenshots {
					if path == "" {
						continue
					}
					if sizes != nil {
						if sizes[viewport] >= minBytes {
							return true, "", nil
						}
					} else {
						return true, "", nil
					}
				}
				return false, "no screenshot met the minimum byte size", map[string]any{"min_bytes": minBytes}
			},
		},
		{
			Name:        "state_description",
			Description: "captured state should carry a human-readable description",
			Level:       schemas.LevelWarning,
			Enabled:     true,
			Validate: func(_, output, _ map[string]any) (bool, string, map[string]any) {
				state, ok := output["state"].(schemas.UIState)
				if !ok || strings.TrimSpace(state.Description) == "" {
					return false, "captured state has no description", nil
				}
				return true, "", nil
			},
		},
	})
}

// =============================================================================
// A4 Archivist (spec.md §4.6).
// =============================================================================

// ArchivistConstitution validates a finished dataset write. Expects
// output["dataset_created"] (bool), output["files_written"] ([]string),
// output["state_count"] (int), context["min_states"] (int, default 1).
func ArchivistConstitution() *constitution.AgentConstitution {
	return constitution.NewAgentConstitution("archivist", []constitution.Rule{
		{
			Name:        "dataset_created",
			Description: "the dataset directory/database must have been created",
			Level:       schemas.LevelCritical,
			Enabled:     true,
			Validate: func(_, output, _ map[string]any) (bool, string, map[string]any) {
				created, _ := mapBool(output, "dataset_created")
				if !created {
					return false, "dataset was not created", nil
				}
				return true, "", nil
			},
		},
		{
			Name:        "dataset_files",
			Description: "at least steps.jsonl and dataset.db must be written",
			Level:       schemas.LevelCritical,
			Enabled:     true,
			Validate: func(_, output, _ map[string]any) (bool, string, map[string]any) {
				files, _ := output["files_written"].([]string)
				want := map[string]bool{"steps.jsonl": false, "dataset.db": false}
				for _, f := range files {
					if _, ok := want[f]; ok {
						want[f] = true
					}
				}
				for name, found := range want {
					if !found {
						return false, fmt.Sprintf("missing expected file %q", name), map[string]any{"files_written": files}
					}
				}
				return true, "", nil
			},
		},
		{
			Name:        "minimum_states",
			Description: "the dataset must contain at least the configured minimum states",
			Level:       schemas.LevelCritical,
			Enabled:     true,
			Validate: func(_, output, context map[string]any) (bool, string, map[string]any) {
				count, _ := mapInt(output, "state_count")
				minStates, has := mapInt(context, "min_states")
				if !has || minStates <= 0 {
					minStates = 1
				}
				if count < minStates {
					return false, fmt.Sprintf("dataset has %d states, need at least %d", count, minStates),
						map[string]any{"state_count": count, "min_states": minStates}
				}
				return true, "", nil
			},
		},
		{
			Name:        "dataset_data_integrity",
			Description: "steps.jsonl line count should match the recorded state count",
			Level:       schemas.LevelWarning,
			Enabled:     true,
			Validate: func(_, output, _ map[string]any) (bool, string, map[string]any) {
				count, _ := mapInt(output, "state_count")
				lines, has := mapInt(output, "steps_jsonl_lines")
				if !has {
					return true, "", nil
				}
				if lines != count {
					return false, fmt.Sprintf("steps.jsonl has %d lines, expected %d", lines, count),
						map[string]any{"lines": lines, "state_count": count}
				}
				return true, "", nil
			},
		},
	})
}
