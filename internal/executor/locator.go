package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"parallax/internal/browserdrv"
	"parallax/internal/logging"
	"parallax/internal/schemas"
)

// perCandidateTimeout is the visibility wait spec.md §4.3.1 specifies for
// each cascade candidate ("wait_for(state=visible, timeout=2000ms)").
const perCandidateTimeout = 2000 * time.Millisecond

// cascadeBudget is the ≤15s total spec.md §4.3.1 allows across every
// strategy attempted for one step's locator resolution.
const cascadeBudget = 15 * time.Second

// candidate pairs a locator recipe with the strategy kind it belongs to, so
// a successful resolution can feed strategy.Store.RecordResult.
type candidate struct {
	kind schemas.StrategyKind
	loc  browserdrv.Locator
}

// resolveLocator walks the ordered cascade from spec.md §4.3.1: role, then
// data-testid, then literal selector, then text fallbacks, then xpath
// fallbacks. It returns the first candidate whose visibility check passes
// within the shared 15s budget. Grounded on navigator_pro.py's
// _resolve_locator_with_retry.
func resolveLocator(ctx context.Context, cap browserdrv.Capability, step schemas.PlanStep) (browserdrv.Locator, schemas.StrategyKind, error) {
	deadline := time.Now().Add(cascadeBudget)

	for _, c := range buildCandidates(cap, step) {
		if time.Now().After(deadline) {
			break
		}
		remaining := time.Until(deadline)
		timeout := perCandidateTimeout
		if remaining < timeout {
			timeout = remaining
		}
		if timeout <= 0 {
			break
		}

		n, err := c.loc.Count(ctx)
		if err != nil || n == 0 {
			continue
		}
		target := c.loc
		if n > 1 {
			target = c.loc.First()
		}
		if err := target.WaitFor(ctx, timeout); err != nil {
			continue
		}
		logging.ExecutorDebug("locator resolved via %s for step %q", c.kind, step.Name)
		return target, c.kind, nil
	}

	return nil, "", fmt.Errorf("locator cascade exhausted for step %+v within %s", step, cascadeBudget)
}

// buildCandidates enumerates every candidate in cascade order without
// resolving any of them (resolution happens lazily by the caller).
func buildCandidates(cap browserdrv.Capability, step schemas.PlanStep) []candidate {
	var out []candidate
	out = append(out, roleCandidates(cap, step)...)
	out = append(out, dataTestIDLocatorCandidates(cap, step)...)
	out = append(out, literalSelectorCandidates(cap, step)...)
	out = append(out, textFallbackCandidates(cap, step)...)
	out = append(out, xpathFallbackCandidates(cap, step)...)
	return out
}

// roleCandidates covers cascade step 1: exact-name, non-exact-name, then
// filtered-by-text over both the role element and its CSS equivalents.
func roleCandidates(cap browserdrv.Capability, step schemas.PlanStep) []candidate {
	if step.Role == "" {
		return nil
	}
	var out []candidate
	names := nameVariants(step.Name)
	if len(names) == 0 {
		names = []string{""}
	}

	for _, name := range names {
		if name != "" {
			out = append(out, candidate{schemas.StrategyRole, cap.GetByRole(step.Role, name, true)})
			out = append(out, candidate{schemas.StrategyRole, cap.GetByRole(step.Role, name, false)})
		}
	}
	if step.Name != "" {
		out = append(out, candidate{schemas.StrategyRole, regexTextLocator{Locator: cap.GetByRole(step.Role, "", false), pattern: step.Name}})
		out = append(out, candidate{schemas.StrategyRole, cap.GetByRole(step.Role, "", false).Filter(step.Name)})
		for _, css := range roleCSSCandidates(step.Role) {
			out = append(out, candidate{schemas.StrategyRole, cap.Locator(css).Filter(step.Name)})
		}
	} else {
		out = append(out, candidate{schemas.StrategyRole, cap.GetByRole(step.Role, "", false)})
	}
	return out
}

// dataTestIDLocatorCandidates covers cascade step 2.
func dataTestIDLocatorCandidates(cap browserdrv.Capability, step schemas.PlanStep) []candidate {
	if step.Name == "" {
		return nil
	}
	var out []candidate
	for _, form := range dataTestIDCandidates(step.Name) {
		out = append(out, candidate{schemas.StrategyDataTestID, cap.Locator(fmt.Sprintf(`[data-testid="%s"]`, form))})
		out = append(out, candidate{schemas.StrategyDataTestID, cap.Locator(fmt.Sprintf(`[data-testid*="%s"]`, form))})
	}
	return out
}

// literalSelectorCandidates covers cascade step 3.
func literalSelectorCandidates(cap browserdrv.Capability, step schemas.PlanStep) []candidate {
	if step.Selector == "" {
		return nil
	}
	return []candidate{{schemas.StrategyCSS, cap.Locator(step.Selector)}}
}

// textFallbackCandidates covers cascade step 4: exact/substring text,
// aria-label and title attribute matches, and filtered link/role candidates.
func textFallbackCandidates(cap browserdrv.Capability, step schemas.PlanStep) []candidate {
	if step.Name == "" {
		return nil
	}
	var out []candidate
	out = append(out, candidate{schemas.StrategyText, regexTextLocator{Locator: cap.Locator("a, button, [role], label, span"), pattern: step.Name}})
	for _, name := range nameVariants(step.Name) {
		out = append(out, candidate{schemas.StrategyText, cap.GetByText(name, true)})
		out = append(out, candidate{schemas.StrategyText, cap.GetByText(name, false)})
		out = append(out, candidate{schemas.StrategyText, cap.Locator(fmt.Sprintf(`[aria-label="%s"]`, escapeSelectorValue(name)))})
		out = append(out, candidate{schemas.StrategyText, cap.Locator(fmt.Sprintf(`[aria-label*="%s"]`, escapeSelectorValue(name)))})
		out = append(out, candidate{schemas.StrategyText, cap.Locator(fmt.Sprintf(`[title="%s"]`, escapeSelectorValue(name)))})
		out = append(out, candidate{schemas.StrategyText, cap.Locator(fmt.Sprintf(`[title*="%s"]`, escapeSelectorValue(name)))})
	}
	out = append(out, candidate{schemas.StrategyText, cap.Locator("a").Filter(step.Name)})
	out = append(out, candidate{schemas.StrategyText, cap.Locator(`[role="link"]`).Filter(step.Name)})
	return out
}

// xpathFallbackCandidates covers cascade step 5: normalize-space() equals,
// then contains(normalize-space(), …), optionally role-scoped.
func xpathFallbackCandidates(cap browserdrv.Capability, step schemas.PlanStep) []candidate {
	if step.Name == "" {
		return nil
	}
	name := escapeXPathLiteral(step.Name)
	var out []candidate
	out = append(out, candidate{schemas.StrategyXPath, cap.Locator(fmt.Sprintf(`xpath=//*[normalize-space(text())=%s]`, name))})
	out = append(out, candidate{schemas.StrategyXPath, cap.Locator(fmt.Sprintf(`xpath=//*[contains(normalize-space(text()),%s)]`, name))})
	if step.Role != "" {
		out = append(out, candidate{
			schemas.StrategyXPath,
			cap.Locator(fmt.Sprintf(`xpath=//*[@role=%q and contains(normalize-space(text()),%s)]`, step.Role, name)),
		})
	}
	return out
}

var selectorValueEscaper = strings.NewReplacer(`"`, `\"`, `\`, `\\`)

func escapeSelectorValue(s string) string {
	return selectorValueEscaper.Replace(s)
}

// escapeXPathLiteral quotes s as an XPath string literal: double quotes by
// default, single quotes when s contains a double quote, and concat() only
// when s contains both (XPath 1.0 has no escape for embedded quote
// characters inside a single literal).
func escapeXPathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, '"', `)
		}
		b.WriteString(`"` + p + `"`)
	}
	b.WriteString(")")
	return b.String()
}

// regexTextLocator narrows an underlying locator to the "case-insensitive
// regex" cascade variant spec.md §4.3.1 names, which the Locator interface
// has no direct primitive for. Count reports a single resolved match when
// any of the underlying locator's current inner texts satisfies the
// case-insensitive pattern; every other method delegates unchanged, so
// once Count confirms a hit the cascade's existing First/WaitFor/Click
// flow proceeds against the underlying locator as normal.
type regexTextLocator struct {
	browserdrv.Locator
	pattern string
}

func (r regexTextLocator) Count(ctx context.Context) (int, error) {
	texts, err := r.Locator.AllInnerTexts(ctx)
	if err != nil {
		return 0, err
	}
	if caseInsensitiveTextMatch(texts, r.pattern) {
		return 1, nil
	}
	return 0, nil
}

// caseInsensitiveTextMatch reports whether any of texts matches pattern
// case-insensitively, used by regexTextLocator to implement the
// "case-insensitive regex" variant spec.md §4.3.1 names but that the
// Locator interface itself does not expose directly.
func caseInsensitiveTextMatch(texts []string, pattern string) bool {
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(pattern))
	if err != nil {
		return false
	}
	for _, t := range texts {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}
