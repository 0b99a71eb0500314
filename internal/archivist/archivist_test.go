package archivist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallax/internal/schemas"
)

func sampleStates(t *testing.T, dir string) []schemas.UIState {
	t.Helper()
	shot := filepath.Join(dir, "00_desktop.png")
	require.NoError(t, os.WriteFile(shot, []byte("fake-png-bytes"), 0644))

	return []schemas.UIState{
		{
			ID:             "abc123",
			URL:            "https://example.com/search",
			Description:    "Search results for Python",
			HasModal:       false,
			Action:         "submit(button#searchButton)",
			Screenshots:    map[string]string{"desktop": "00_desktop.png"},
			Metadata:       map[string]any{"significance": "supporting"},
			StateSignature: "deadbeef",
			CreatedAt:      time.Now(),
		},
	}
}

func TestWriteStatesThenReadStatesRoundTrips(t *testing.T) {
	base := t.TempDir()
	a := New(base, nil)

	dir := a.DatasetDir("example", "search-python")
	require.NoError(t, os.MkdirAll(dir, 0755))
	states := sampleStates(t, dir)

	datasetDir, err := a.WriteStates("example", "search-python", states, "trace.zip")
	require.NoError(t, err)
	assert.Equal(t, dir, datasetDir)

	assert.FileExists(t, filepath.Join(dir, "steps.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "dataset.db"))

	read, err := a.ReadStates("example", "search-python")
	require.NoError(t, err)
	require.Len(t, read, len(states))
	assert.Equal(t, states[0].ID, read[0].ID)
	assert.Equal(t, states[0].URL, read[0].URL)
	assert.Equal(t, states[0].StateSignature, read[0].StateSignature)
	assert.Equal(t, states[0].Screenshots, read[0].Screenshots)
}

func TestWriteStatesIsIdempotentOverwrite(t *testing.T) {
	base := t.TempDir()
	a := New(base, nil)
	dir := a.DatasetDir("example", "slug")
	require.NoError(t, os.MkdirAll(dir, 0755))
	states := sampleStates(t, dir)

	_, err := a.WriteStates("example", "slug", states, "")
	require.NoError(t, err)
	_, err = a.WriteStates("example", "slug", states, "")
	require.NoError(t, err)

	read, err := a.ReadStates("example", "slug")
	require.NoError(t, err)
	assert.Len(t, read, len(states))
}

func TestWriteStatesFailsConstitutionWithNoStates(t *testing.T) {
	base := t.TempDir()
	a := New(base, nil)
	dir := a.DatasetDir("example", "empty")
	require.NoError(t, os.MkdirAll(dir, 0755))

	_, err := a.WriteStates("example", "empty", nil, "")
	require.Error(t, err)
}
