// Package completion implements the end-of-run completion validator
// (spec.md §4.9): it classifies a plan as interactive or explore, then
// checks the captured states against the destinations/signals the plan
// should have produced. Grounded on the original source's
// verify_criteria.py (VerifyCriteria wrapper) and navigator_pro.py's
// post-execution completeness check.
package completion

import (
	"fmt"
	"net/url"
	"strings"

	"parallax/internal/logging"
	"parallax/internal/schemas"
)

// Classification is the closed plan-shape enum spec.md §4.9 defines.
type Classification string

const (
	ClassificationInteractive Classification = "interactive"
	ClassificationExplore     Classification = "explore"
)

// interactiveActionWords is the set of actions that mark a plan
// "interactive" (spec.md §4.9).
var interactiveActionWords = map[schemas.Action]bool{
	schemas.ActionType:     true,
	schemas.ActionFill:     true,
	schemas.ActionSubmit:   true,
	schemas.ActionSelect:   true,
	schemas.ActionUpload:   true,
	schemas.ActionCheck:    true,
	schemas.ActionUncheck:  true,
	schemas.ActionPressKey: true,
	schemas.ActionKeyPress: true,
}

// Classify reports whether plan is interactive (contains any
// type/fill/submit/select/upload/check/uncheck/press_key step) or explore.
func Classify(plan schemas.Plan) Classification {
	for _, step := range plan.Steps {
		if interactiveActionWords[step.Action] {
			return ClassificationInteractive
		}
	}
	return ClassificationExplore
}

// Error is the typed completion failure the orchestrator raises when a
// successfully-executed run still didn't reach its required destinations or
// signals (spec.md §7 "Completion errors ... the run is considered failed").
type Error struct {
	Classification Classification
	Missing        []string
	Reason         string
}

func (e *Error) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("completion validation failed (%s): %s", e.Classification, e.Reason)
	}
	return fmt.Sprintf("completion validation failed (%s): %s (missing: %s)",
		e.Classification, e.Reason, strings.Join(e.Missing, ", "))
}

// Result is the outcome Validate returns; Passed mirrors
// ConstitutionReport's "passed iff no critical misses" convention.
type Result struct {
	Classification Classification
	Passed         bool
	ExpectedSlugs  []string
	FoundSlugs     []string
	Reason         string
}

// Validate runs the completion check for plan against the states an attempt
// captured, applying minTargets (spec.md §6 Completion.MinTargets, default
// 1) to the explore branch.
func Validate(plan schemas.Plan, states []schemas.UIState, minTargets int) Result {
	if minTargets <= 0 {
		minTargets = 1
	}
	class := Classify(plan)
	if class == ClassificationInteractive {
		return validateInteractive(states)
	}
	return validateExplore(plan, states, minTargets)
}

// validateInteractive requires at least one captured state whose action
// mentions a completion-shaped verb and whose metadata shows a toast, a
// valid form, or a critical-significance form event (spec.md §4.9).
func validateInteractive(states []schemas.UIState) Result {
	const reasonVerbs = "submit|type|fill|upload|check|form|save"
	verbs := []string{"submit", "type", "fill", "upload", "check", "form", "save"}

	for _, s := range states {
		action := strings.ToLower(s.Action)
		mentionsVerb := false
		for _, v := range verbs {
			if strings.Contains(action, v) {
				mentionsVerb = true
				break
			}
		}
		if !mentionsVerb {
			continue
		}
		if hasCompletionSignal(s) {
			return Result{Classification: ClassificationInteractive, Passed: true}
		}
	}

	return Result{
		Classification: ClassificationInteractive,
		Passed:         false,
		Reason:         fmt.Sprintf("no captured state combined a %s action with a toast, valid form, or critical form event", reasonVerbs),
	}
}

func hasCompletionSignal(s schemas.UIState) bool {
	if s.Metadata == nil {
		return false
	}
	if toast, ok := s.Metadata["has_toast"].(bool); ok && toast {
		return true
	}
	if valid, ok := s.Metadata["form_validity"].(bool); ok && valid {
		return true
	}
	if sig, ok := s.Metadata["significance"]; ok {
		if sig == schemas.SignificanceCritical || sig == string(schemas.SignificanceCritical) {
			return true
		}
	}
	return false
}

// validateExplore derives expected destination slugs from the plan and
// requires at least min(|expected|, max(1, minTargets)) of them to appear as
// path slugs in any captured state's URL (spec.md §4.9).
func validateExplore(plan schemas.Plan, states []schemas.UIState, minTargets int) Result {
	expected := expectedSlugs(plan)
	found := foundSlugs(states)

	required := len(expected)
	if required > minTargets {
		required = minTargets
	}
	if required < 1 {
		required = 1
	}
	if len(expected) == 0 {
		return Result{Classification: ClassificationExplore, Passed: true, ExpectedSlugs: expected, FoundSlugs: slugKeys(found)}
	}

	hits := 0
	var missing []string
	for _, want := range expected {
		if found[want] {
			hits++
		} else {
			missing = append(missing, want)
		}
	}

	if hits >= required {
		return Result{Classification: ClassificationExplore, Passed: true, ExpectedSlugs: expected, FoundSlugs: slugKeys(found)}
	}

	return Result{
		Classification: ClassificationExplore,
		Passed:         false,
		ExpectedSlugs:  expected,
		FoundSlugs:     slugKeys(found),
		Reason:         fmt.Sprintf("expected at least %d of %v, found %v missing", required, expected, missing),
	}
}

// expectedSlugs collects destination slugs from every step's target first
// path segment, plus short (≤3-word) click steps on link/button roles
// (spec.md §4.9).
func expectedSlugs(plan schemas.Plan) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	for _, step := range plan.Steps {
		if step.Target != "" {
			if slug := Slugify(firstPathSegment(step.Target)); slug != "" {
				add(slug)
			}
		}
		if step.Action == schemas.ActionClick {
			role := strings.ToLower(step.Role)
			if (role == "link" || role == "button") && step.Name != "" {
				if len(strings.Fields(step.Name)) <= 3 {
					if slug := Slugify(step.Name); slug != "" {
						add(slug)
					}
				}
			}
		}
	}
	return out
}

// foundSlugs derives a set of path slugs present in every captured state's
// URL, by path segment, so expectedSlugs's "appear as path slugs in
// captured URLs" check can be a plain membership test.
func foundSlugs(states []schemas.UIState) map[string]bool {
	found := map[string]bool{}
	for _, s := range states {
		for _, seg := range pathSegments(s.URL) {
			if slug := Slugify(seg); slug != "" {
				found[slug] = true
			}
		}
	}
	return found
}

func slugKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func firstPathSegment(rawURL string) string {
	segs := pathSegments(rawURL)
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}

func pathSegments(rawURL string) []string {
	u, err := url.Parse(rawURL)
	path := rawURL
	if err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// isAlnum reports whether r is a lowercase ASCII letter or a digit; Slugify
// turns every run of other runes into a single dash.
func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// Slugify lowercases s, replaces non-alphanumeric runs with a single dash,
// trims leading/trailing dashes, rejects results shorter than 3 chars, and
// collapses to the first segment when the slug has 3 or more dashes
// (spec.md §4.9, §8 "slugify(slugify(s)) == slugify(s)").
func Slugify(s string) string {
	lower := strings.ToLower(s)
	var b strings.Builder
	prevDash := false
	for _, r := range lower {
		if isAlnum(r) {
			b.WriteRune(r)
			prevDash = false
			continue
		}
		if !prevDash && b.Len() > 0 {
			b.WriteByte('-')
			prevDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) < 3 {
		return ""
	}
	parts := strings.Split(slug, "-")
	if len(parts) >= 4 {
		slug = parts[0]
	}
	if len(slug) < 3 {
		return ""
	}
	return slug
}

// VerifyCriteria wraps Validate into the human-readable pass/fail line the
// original source's verify_criteria.py produced for CLI/test output,
// logging the outcome to the completion category.
func VerifyCriteria(plan schemas.Plan, states []schemas.UIState, minTargets int) (Result, error) {
	result := Validate(plan, states, minTargets)
	if result.Passed {
		logging.Completion("completion check passed: classification=%s", result.Classification)
		return result, nil
	}
	logging.CompletionWarn("completion check failed: classification=%s reason=%s", result.Classification, result.Reason)
	return result, &Error{Classification: result.Classification, Missing: missingSlugs(result), Reason: result.Reason}
}

func missingSlugs(r Result) []string {
	if r.Classification != ClassificationExplore {
		return nil
	}
	found := map[string]bool{}
	for _, s := range r.FoundSlugs {
		found[s] = true
	}
	var missing []string
	for _, want := range r.ExpectedSlugs {
		if !found[want] {
			missing = append(missing, want)
		}
	}
	return missing
}
