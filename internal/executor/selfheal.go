package executor

import (
	"strings"

	"parallax/internal/schemas"
	"parallax/internal/strategy"
)

// Adjustments is what Heal recommends the orchestrator change before
// retrying a failed attempt (spec.md §4.3.3's rule → adjustment table,
// grounded on runner/cli.py's adjustments dict handling of start_url/
// plan_context/action_budget keys).
type Adjustments struct {
	RetryStartURL       string
	ActionBudgetDelta   int
	RequiresAuth        bool
	AbortFurtherRetries bool
	ImprovedSteps       []schemas.PlanStep
}

// Heal inspects a failed executor constitution report and proposes
// Adjustments for the next attempt. websitePattern scopes strategy lookups
// (empty falls back to the store's "generic" bucket).
func Heal(report schemas.ConstitutionReport, failedSteps []schemas.PlanStep, startURL, websitePattern string, store *strategy.Store, authRedirectFatal bool) Adjustments {
	var adj Adjustments

	for _, f := range append(append([]schemas.ValidationFailure{}, report.Failures...), report.Warnings...) {
		switch f.RuleName {
		case "navigation_success":
			adj.RetryStartURL = startURL
		case "action_budget":
			adj.ActionBudgetDelta += 5
		case "no_auth_redirects":
			adj.RequiresAuth = true
			if authRedirectFatal {
				adj.AbortFurtherRetries = true
			}
		}
	}

	if store != nil {
		for _, step := range failedSteps {
			if improved, ok := store.SuggestImprovedStep(step, websitePattern); ok {
				adj.ImprovedSteps = append(adj.ImprovedSteps, improved)
			}
		}
	}

	return adj
}

// ApplyAdjustments splices Heal's improved steps into plan in place of the
// original failing steps they were derived from, matched by accessible name
// (spec.md §4.3.3 "splice into the next plan").
func ApplyAdjustments(plan schemas.Plan, adj Adjustments) schemas.Plan {
	if len(adj.ImprovedSteps) == 0 {
		return plan
	}
	out := plan.Clone()
	for i := range out.Steps {
		for _, improved := range adj.ImprovedSteps {
			if out.Steps[i].Name != "" && strings.EqualFold(out.Steps[i].Name, improved.Name) {
				out.Steps[i] = improved
			}
		}
	}
	return out
}
