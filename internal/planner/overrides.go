package planner

import (
	"fmt"
	"strings"

	"parallax/internal/schemas"
)

// googleSearchInputSelector and googleResultsScope are grounded on the
// original source's plan_overrides.py constants.
const (
	googleSearchInputSelector = ":is(input,textarea)[name='q']"
	googleResultsScope        = "#search"
)

// ApplySiteOverrides mutates plan in place to account for known site quirks
// (spec.md §9 supplemented feature: "plan override table"), grounded on
// plan_overrides.py's apply_site_overrides.
func ApplySiteOverrides(plan *schemas.Plan, startURL string) {
	if startURL == "" {
		return
	}
	lower := strings.ToLower(startURL)
	switch {
	case strings.Contains(lower, "google."):
		tuneGooglePlan(plan)
	case strings.Contains(lower, "wikipedia.org"):
		tuneWikipediaPlan(plan)
	}
}

func tuneGooglePlan(plan *schemas.Plan) {
	for i := range plan.Steps {
		step := &plan.Steps[i]
		switch step.Action {
		case schemas.ActionType, schemas.ActionFill:
			if step.Selector == "" {
				step.Selector = googleSearchInputSelector
				step.Role = ""
			}
		case schemas.ActionClick:
			if step.Selector == "" && step.Name != "" {
				if sel := googleResultSelector(step.Name); sel != "" {
					step.Selector = sel
					step.Role = ""
				}
			}
		}
	}
}

func googleResultSelector(label string) string {
	text := strings.TrimSpace(label)
	if text == "" {
		return ""
	}
	if looksLikeDomain(text) {
		if fragment := domainFragment(text); fragment != "" {
			return fmt.Sprintf(`%s a[href*="%s"]`, googleResultsScope, escapeAttrValue(fragment))
		}
	}
	return fmt.Sprintf(`%s a:has-text("%s")`, googleResultsScope, escapeAttrValue(text))
}

func looksLikeDomain(text string) bool {
	return strings.Contains(text, ".") && !strings.Contains(text, " ")
}

func domainFragment(text string) string {
	fragment := strings.ToLower(text)
	fragment = strings.TrimPrefix(fragment, "https://")
	fragment = strings.TrimPrefix(fragment, "http://")
	fragment = strings.Trim(fragment, "/ ")
	if fragment == "" {
		return ""
	}
	return strings.SplitN(fragment, "/", 2)[0]
}

func escapeAttrValue(text string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return replacer.Replace(text)
}

func tuneWikipediaPlan(plan *schemas.Plan) {
	const searchSelector = "input[name='search']"
	const submitSelector = "button#searchButton"

	for i := range plan.Steps {
		step := &plan.Steps[i]
		switch step.Action {
		case schemas.ActionType, schemas.ActionFill:
			if step.Selector == "" || strings.Contains(step.Selector, "search") {
				step.Selector = searchSelector
			}
		case schemas.ActionFocus:
			if step.Selector == "" || strings.Contains(step.Selector, "search") {
				step.Selector = searchSelector
			}
		case schemas.ActionClick, schemas.ActionSubmit:
			name := strings.ToLower(step.Name)
			selector := strings.ToLower(step.Selector)
			if strings.Contains(name, "search") || strings.Contains(selector, "search") {
				step.Selector = submitSelector
				step.Name = ""
				step.Role = ""
			}
		}
	}
}
