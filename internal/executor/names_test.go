package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameVariantsIncludesOriginalAndCollapsedWhitespace(t *testing.T) {
	variants := nameVariants("Join   waitlist")
	assert.Contains(t, variants, "Join   waitlist")
	assert.Contains(t, variants, "Join waitlist")
}

func TestNameVariantsIncludesLowercased(t *testing.T) {
	variants := nameVariants("Sign Up")
	assert.Contains(t, variants, "sign up")
}

func TestNameVariantsEmptyNameYieldsNoVariants(t *testing.T) {
	assert.Empty(t, nameVariants(""))
}

func TestNameVariantsDeduplicates(t *testing.T) {
	variants := nameVariants("submit")
	seen := map[string]bool{}
	for _, v := range variants {
		assert.False(t, seen[v], "duplicate variant %q", v)
		seen[v] = true
	}
}

func TestDataTestIDCandidatesDashAndUnderscoreForms(t *testing.T) {
	candidates := dataTestIDCandidates("Add To Cart")
	assert.Contains(t, candidates, "add-to-cart")
	assert.Contains(t, candidates, "add_to_cart")
}

func TestRoleCSSCandidatesKnownRoles(t *testing.T) {
	assert.Contains(t, roleCSSCandidates("button"), "button")
	assert.Contains(t, roleCSSCandidates("link"), "a")
	assert.Nil(t, roleCSSCandidates("unknown-role"))
}
