// Package archivist implements Agent A4: it persists one attempt's captured
// UIStates to line-delimited JSON plus an embedded SQLite relational store,
// then validates the write against the archivist constitution (spec.md
// §4.5, §4.6). SQLite bootstrap (pragmas, directory-creation-then-open
// sequence) grounded on the teacher's internal/store/local_core.go
// (NewLocalStore).
package archivist

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"parallax/internal/constitution"
	"parallax/internal/logging"
	"parallax/internal/rules"
	"parallax/internal/schemas"
)

// Archivist is Agent A4. New databases are opened and closed per write:
// WriteStates is meant to run once per attempt, at the end, not held open
// across an attempt's lifetime.
type Archivist struct {
	baseDir      string
	failureStore *constitution.FailureStore
	agent        *constitution.AgentConstitution
}

// New wires an Archivist rooted at baseDir (spec.md §6 Output.BaseDir).
// failureStore may be nil: persistence of constitution warnings is skipped.
func New(baseDir string, failureStore *constitution.FailureStore) *Archivist {
	return &Archivist{
		baseDir:      baseDir,
		failureStore: failureStore,
		agent:        rules.ArchivistConstitution(),
	}
}

// DatasetDir returns the directory WriteStates will use for (app, taskSlug),
// the same directory the Observer should be configured to save screenshots
// into before the attempt runs (spec.md §4.5 "{base}/{app}/{slug}/").
func (a *Archivist) DatasetDir(app, taskSlug string) string {
	return filepath.Join(a.baseDir, app, taskSlug)
}

// WriteStates persists states (already captured with their screenshots on
// disk under DatasetDir(app, taskSlug)) to steps.jsonl and dataset.db,
// referencing traceFilename without copying it (spec.md §4.5 "trace.zip —
// opaque browser trace, filename referenced only"). Idempotent: a second
// call for the same (app, taskSlug) overwrites.
func (a *Archivist) WriteStates(app, taskSlug string, states []schemas.UIState, traceFilename string) (string, error) {
	timer := logging.StartTimer(logging.CategoryArchivist, "WriteStates")
	defer timer.Stop()

	datasetDir := a.DatasetDir(app, taskSlug)
	if err := os.MkdirAll(datasetDir, 0755); err != nil {
		return "", fmt.Errorf("mkdir dataset dir: %w", err)
	}

	jsonlLines, err := writeStepsJSONL(datasetDir, states)
	if err != nil {
		return "", fmt.Errorf("write steps.jsonl: %w", err)
	}

	if err := writeDatasetDB(datasetDir, states); err != nil {
		return "", fmt.Errorf("write dataset.db: %w", err)
	}

	filesWritten := []string{"steps.jsonl", "dataset.db"}
	if traceFilename != "" {
		filesWritten = append(filesWritten, traceFilename)
	}

	output := map[string]any{
		"dataset_created":  true,
		"files_written":    filesWritten,
		"state_count":      len(states),
		"steps_jsonl_lines": jsonlLines,
	}
	valCtx := map[string]any{"min_states": 1}
	report, verr := a.agent.MustPass(map[string]any{"app": app, "task_slug": taskSlug}, output, valCtx)
	if !report.Passed {
		a.persistReport(report)
		return datasetDir, fmt.Errorf("archivist constitution failed: %w", verr)
	}
	if len(report.Warnings) > 0 {
		a.persistReport(report)
	}

	logging.Archivist("wrote dataset %s/%s: %d states", app, taskSlug, len(states))
	return datasetDir, nil
}

func (a *Archivist) persistReport(report schemas.ConstitutionReport) {
	if a.failureStore == nil {
		return
	}
	if err := a.failureStore.Append(report); err != nil {
		logging.ArchivistWarn("failed to persist constitution report: %v", err)
	}
}

// writeStepsJSONL writes one UIState per line to {dir}/steps.jsonl, UTF-8,
// no trailing comma, overwriting any existing file (spec.md §4.5).
func writeStepsJSONL(dir string, states []schemas.UIState) (int, error) {
	path := filepath.Join(dir, "steps.jsonl")
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	lines := 0
	for _, s := range states {
		data, err := json.Marshal(s)
		if err != nil {
			return lines, fmt.Errorf("marshal state %s: %w", s.ID, err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return lines, fmt.Errorf("write state %s: %w", s.ID, err)
		}
		lines++
	}
	return lines, nil
}

// writeDatasetDB (re)creates {dir}/dataset.db with the states/screenshots
// schema (spec.md §4.5) and inserts every captured state, grounded on
// local_core.go's sql.Open+pragma sequence. The file is removed first so a
// re-run of the same attempt starts from a clean schema (WriteStates is
// documented idempotent: "overwrites").
func writeDatasetDB(dir string, states []schemas.UIState) error {
	path := filepath.Join(dir, "dataset.db")
	_ = os.Remove(path)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.ArchivistWarn("set busy_timeout failed: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.ArchivistWarn("set journal_mode=WAL failed: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.ArchivistWarn("set synchronous=NORMAL failed: %v", err)
	}

	if err := createSchema(db); err != nil {
		return err
	}

	for _, s := range states {
		if err := insertState(db, s); err != nil {
			return err
		}
	}
	return nil
}

func createSchema(db *sql.DB) error {
	const statesTable = `CREATE TABLE IF NOT EXISTS states (
		id TEXT PRIMARY KEY,
		url TEXT,
		description TEXT,
		has_modal INTEGER,
		action TEXT,
		state_signature TEXT,
		metadata TEXT,
		created_at TEXT
	)`
	const screenshotsTable = `CREATE TABLE IF NOT EXISTS screenshots (
		state_id TEXT,
		viewport TEXT,
		filename TEXT,
		FOREIGN KEY(state_id) REFERENCES states(id)
	)`
	if _, err := db.Exec(statesTable); err != nil {
		return fmt.Errorf("create states table: %w", err)
	}
	if _, err := db.Exec(screenshotsTable); err != nil {
		return fmt.Errorf("create screenshots table: %w", err)
	}
	return nil
}

func insertState(db *sql.DB, s schemas.UIState) error {
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata for state %s: %w", s.ID, err)
	}

	hasModal := 0
	if s.HasModal {
		hasModal = 1
	}

	_, err = db.Exec(
		`INSERT INTO states (id, url, description, has_modal, action, state_signature, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.URL, s.Description, hasModal, s.Action, s.StateSignature, string(metadata), s.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("insert state %s: %w", s.ID, err)
	}

	for viewport, filename := range s.Screenshots {
		if _, err := db.Exec(
			`INSERT INTO screenshots (state_id, viewport, filename) VALUES (?, ?, ?)`,
			s.ID, viewport, filename,
		); err != nil {
			return fmt.Errorf("insert screenshot %s/%s: %w", s.ID, viewport, err)
		}
	}
	return nil
}

// ReadStates reads back steps.jsonl for (app, taskSlug), for round-trip
// verification (spec.md §8 "Write then read steps.jsonl: states are
// structurally equal").
func (a *Archivist) ReadStates(app, taskSlug string) ([]schemas.UIState, error) {
	path := filepath.Join(a.DatasetDir(app, taskSlug), "steps.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var states []schemas.UIState
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var s schemas.UIState
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, fmt.Errorf("unmarshal steps.jsonl line: %w", err)
		}
		states = append(states, s)
	}
	return states, nil
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			out = append(out, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		out = append(out, data[start:])
	}
	return out
}
