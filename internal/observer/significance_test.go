package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"parallax/internal/schemas"
)

func TestDetermineSignificanceModalIsCritical(t *testing.T) {
	res := determineSignificance(significanceInput{
		url: "https://example.com", previousURL: "https://example.com",
		hasModal: true,
	})
	assert.Equal(t, schemas.SignificanceCritical, res.Significance)
	assert.Contains(t, res.Reasoning, "Modal")
}

func TestDetermineSignificanceToastIsCritical(t *testing.T) {
	res := determineSignificance(significanceInput{hasToast: true})
	assert.Equal(t, schemas.SignificanceCritical, res.Significance)
}

func TestDetermineSignificanceValidFormNoLoaderIsSupporting(t *testing.T) {
	res := determineSignificance(significanceInput{
		formValid: schemas.FormValidityTrue,
	})
	assert.Equal(t, schemas.SignificanceSupporting, res.Significance)
}

func TestDetermineSignificanceLoaderIsSupporting(t *testing.T) {
	res := determineSignificance(significanceInput{hasLoader: true})
	assert.Equal(t, schemas.SignificanceSupporting, res.Significance)
}

func TestDetermineSignificanceRoleDiffUpgradesButNotOverCritical(t *testing.T) {
	diff := 0.5
	res := determineSignificance(significanceInput{hasModal: true, roleDiff: &diff})
	assert.Equal(t, schemas.SignificanceCritical, res.Significance)

	res2 := determineSignificance(significanceInput{roleDiff: &diff})
	assert.Equal(t, schemas.SignificanceSupporting, res2.Significance)
}

func TestDetermineSignificanceDefaultIsOptional(t *testing.T) {
	res := determineSignificance(significanceInput{url: "https://example.com", previousURL: "https://example.com"})
	assert.Equal(t, schemas.SignificanceOptional, res.Significance)
	assert.Equal(t, "Stable navigation state", res.Reasoning)
}

func TestDetermineSignificanceConfidenceWithinBounds(t *testing.T) {
	cases := []significanceInput{
		{hasModal: true},
		{formValid: schemas.FormValidityTrue},
		{hasLoader: true},
		{},
	}
	for _, in := range cases {
		res := determineSignificance(in)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
	}
}
