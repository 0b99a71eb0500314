package executor

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// nameVariants derives the candidate forms spec.md §4.3.1's "name
// normalization" step tries in order: original, NFKC-normalized, curly↔
// straight quote, lowercased, casefolded, title-cased, whitespace-collapsed.
// Grounded on navigator_pro.py's _name_variants, adapted to Go's norm/strings
// packages in place of Python's unicodedata.
func nameVariants(name string) []string {
	if name == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(name)
	add(norm.NFKC.String(name))
	add(swapQuotes(name, true))
	add(swapQuotes(name, false))
	add(strings.ToLower(name))
	add(strings.ToLower(strings.TrimSpace(name)))
	add(strings.Map(unicode.ToLower, name))
	add(strings.Title(strings.ToLower(name))) //nolint:staticcheck // matches Python's str.title() cascade, not locale-aware casing
	add(collapseWhitespace(name))

	return out
}

var quoteReplacer = strings.NewReplacer(
	"‘", "'", "’", "'", "“", `"`, "”", `"`,
)

var straightToCurlyReplacer = strings.NewReplacer(
	"'", "’", `"`, "”",
)

// swapQuotes converts curly quotes to straight (toStraight=true) or straight
// to curly, matching spec.md's "curly-quote ↔ straight-quote" variant pair.
func swapQuotes(s string, toStraight bool) string {
	if toStraight {
		return quoteReplacer.Replace(s)
	}
	return straightToCurlyReplacer.Replace(s)
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// dataTestIDCandidates generates the lowercased dash/underscore/substring
// forms spec.md §4.3.1 point 2 describes for a step's name.
func dataTestIDCandidates(name string) []string {
	if name == "" {
		return nil
	}
	lower := strings.ToLower(strings.TrimSpace(name))
	dash := strings.Join(strings.Fields(lower), "-")
	underscore := strings.Join(strings.Fields(lower), "_")

	seen := map[string]bool{}
	var out []string
	for _, c := range []string{dash, underscore} {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// roleCSSCandidates maps an ARIA role to the CSS selectors the role-cascade
// also tries as filtered-by-text candidates (spec.md §4.3.1 point 1 examples).
func roleCSSCandidates(role string) []string {
	switch strings.ToLower(role) {
	case "link":
		return []string{"a", `[role="link"]`}
	case "button":
		return []string{"button", `[role="button"]`, "input[type=button]", "input[type=submit]"}
	case "textbox":
		return []string{"input[type=text]", "textarea", `[role="textbox"]`}
	case "checkbox":
		return []string{"input[type=checkbox]", `[role="checkbox"]`}
	case "searchbox":
		return []string{"input[type=search]", `[role="searchbox"]`}
	default:
		return nil
	}
}
