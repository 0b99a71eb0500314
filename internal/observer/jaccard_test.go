package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"parallax/internal/browserdrv"
)

func TestJaccardSimilarityIdenticalSetsIsOne(t *testing.T) {
	nodes := []browserdrv.RoleTreeNode{
		{Role: "button", Name: "Submit"},
		{Role: "link", Name: "Home"},
	}
	assert.Equal(t, 1.0, jaccardSimilarity(nodes, nodes))
}

func TestJaccardSimilarityBothEmptyIsOne(t *testing.T) {
	assert.Equal(t, 1.0, jaccardSimilarity(nil, nil))
}

func TestJaccardSimilarityDisjointIsZero(t *testing.T) {
	a := []browserdrv.RoleTreeNode{{Role: "button", Name: "Submit"}}
	b := []browserdrv.RoleTreeNode{{Role: "link", Name: "Home"}}
	assert.Equal(t, 0.0, jaccardSimilarity(a, b))
}

func TestJaccardSimilarityWithinBounds(t *testing.T) {
	a := []browserdrv.RoleTreeNode{
		{Role: "button", Name: "Submit"},
		{Role: "link", Name: "Home"},
		{Role: "heading", Name: "Welcome"},
	}
	b := []browserdrv.RoleTreeNode{
		{Role: "button", Name: "Submit"},
		{Role: "link", Name: "About"},
	}
	sim := jaccardSimilarity(a, b)
	assert.GreaterOrEqual(t, sim, 0.0)
	assert.LessOrEqual(t, sim, 1.0)
	assert.InDelta(t, 1.0/4.0, sim, 1e-9)
}
