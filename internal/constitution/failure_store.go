package constitution

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"parallax/internal/logging"
	"parallax/internal/schemas"
)

// FailureStore appends each non-empty constitution report as one JSON
// object per line to {base}/_constitution_failures/constitution_failures.jsonl.
// Writers use line-granular writes so concurrent appenders never interleave
// partial lines (spec.md §5). Write errors are logged, never fatal.
type FailureStore struct {
	mu   sync.Mutex
	path string
}

// NewFailureStore returns a store rooted at base, creating the containing
// directory lazily on first append.
func NewFailureStore(base string) *FailureStore {
	return &FailureStore{path: filepath.Join(base, "_constitution_failures", "constitution_failures.jsonl")}
}

// Append writes the report as one JSON line, coercing any non-JSON-safe
// value in Context/Details to its repr() via toSafeValue. A report with no
// failures and no warnings is skipped (spec.md: "each non-empty report").
func (s *FailureStore) Append(report schemas.ConstitutionReport) error {
	if len(report.Failures) == 0 && len(report.Warnings) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		logging.Get(logging.CategoryConstitution).Error("failure store mkdir: %v", err)
		return fmt.Errorf("failure store mkdir: %w", err)
	}

	safe := toSafeReport(report)
	data, err := json.Marshal(safe)
	if err != nil {
		logging.Get(logging.CategoryConstitution).Error("failure store marshal: %v", err)
		return fmt.Errorf("failure store marshal: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logging.Get(logging.CategoryConstitution).Error("failure store open: %v", err)
		return fmt.Errorf("failure store open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		logging.Get(logging.CategoryConstitution).Error("failure store write: %v", err)
		return fmt.Errorf("failure store write: %w", err)
	}
	return nil
}

// ReadAll reads every persisted report, skipping (not failing on)
// malformed lines, per spec.md §4.6 "readers tolerate malformed lines".
func (s *FailureStore) ReadAll() []schemas.ConstitutionReport {
	f, err := os.Open(s.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var reports []schemas.ConstitutionReport
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var report schemas.ConstitutionReport
		if err := json.Unmarshal(line, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports
}

// Last returns up to n most recent reports, for threading into failure
// history / failure_patterns (spec.md §4.2, §5 "bounded to last 20/10").
func (s *FailureStore) Last(n int) []schemas.ConstitutionReport {
	all := s.ReadAll()
	if len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

// toSafeReport coerces context/details maps to JSON-safe forms, replacing
// values json.Marshal would reject (channels, funcs) with their repr().
func toSafeReport(r schemas.ConstitutionReport) schemas.ConstitutionReport {
	r.Context = toSafeMap(r.Context)
	for i := range r.Failures {
		r.Failures[i].Details = toSafeMap(r.Failures[i].Details)
		r.Failures[i].Context = toSafeMap(r.Failures[i].Context)
	}
	for i := range r.Warnings {
		r.Warnings[i].Details = toSafeMap(r.Warnings[i].Details)
		r.Warnings[i].Context = toSafeMap(r.Warnings[i].Context)
	}
	return r
}

func toSafeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = toSafeValue(v)
	}
	return out
}

func toSafeValue(v any) any {
	switch v.(type) {
	case string, bool, nil, int, int32, int64, float32, float64:
		return v
	}
	if _, err := json.Marshal(v); err == nil {
		return v
	}
	return fmt.Sprintf("%v", v)
}
