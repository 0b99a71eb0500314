// Package strategy learns selector strategies from locator failures and
// suggests improved plan steps, grounded on the original source's
// agents/strategy_generator.py (StrategyGenerator class).
package strategy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"parallax/internal/logging"
	"parallax/internal/schemas"
)

// Store persists selector strategies keyed by
// "{website_pattern|generic}:{description}:{step-identity}" as a single JSON
// map (spec.md §9's strategy persistence format).
type Store struct {
	mu         sync.Mutex
	path       string
	strategies map[string][]schemas.SelectorStrategy
}

// NewStore creates a store rooted at path, loading any existing strategies.
func NewStore(path string) *Store {
	s := &Store{path: path, strategies: make(map[string][]schemas.SelectorStrategy)}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var loaded map[string][]schemas.SelectorStrategy
	if err := json.Unmarshal(data, &loaded); err != nil {
		logging.StrategyWarn("strategies load failed: %v", err)
		return
	}
	s.strategies = loaded
	count := 0
	for _, v := range loaded {
		count += len(v)
	}
	logging.Strategy("strategies loaded: %d", count)
}

func (s *Store) saveLocked() {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		logging.StrategyWarn("strategies save mkdir failed: %v", err)
		return
	}
	data, err := json.MarshalIndent(s.strategies, "", "  ")
	if err != nil {
		logging.StrategyWarn("strategies marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		logging.StrategyWarn("strategies save failed: %v", err)
	}
}

// cacheKey builds the persisted lookup key for a (website, description, step)
// triple.
func cacheKey(websitePattern, description string, step *schemas.PlanStep) string {
	pattern := websitePattern
	if pattern == "" {
		pattern = "generic"
	}
	stepKey := ""
	if step != nil {
		if step.Selector != "" {
			stepKey = step.Selector
		} else {
			stepKey = step.Name
		}
	}
	return fmt.Sprintf("%s:%s:%s", pattern, strings.ToLower(description), stepKey)
}

var searchTokens = []string{"search", "lookup", "find"}

// searchStrategies returns the search-specific strategies spec.md §9
// prioritizes for search/lookup/find-shaped descriptions, ahead of the base
// cascade (original source: "Strategy 6: Search-specific heuristics").
func searchStrategies(description string, step *schemas.PlanStep) []schemas.SelectorStrategy {
	lower := strings.ToLower(description)
	stepSelector := ""
	if step != nil {
		stepSelector = strings.ToLower(step.Selector)
	}
	matches := strings.Contains(stepSelector, "search")
	for _, tok := range searchTokens {
		if strings.Contains(lower, tok) {
			matches = true
			break
		}
	}
	if !matches {
		return nil
	}
	return []schemas.SelectorStrategy{
		{Pattern: description, StrategyKind: schemas.StrategyPlaceholder, Context: "attribute=placeholder"},
		{Pattern: description, StrategyKind: schemas.StrategyRoleSearchbox},
		{Pattern: description, StrategyKind: schemas.StrategyCSSSearch, Context: "input[type='search'],input[role='searchbox'],form input[type='text']"},
		{Pattern: description, StrategyKind: schemas.StrategyAriaLabel, Context: "attribute=aria-label"},
	}
}

// baseStrategies returns the five-strategy cascade every description seeds
// with (role, data-testid, text, css, xpath).
func baseStrategies(description string) []schemas.SelectorStrategy {
	return []schemas.SelectorStrategy{
		{Pattern: description, StrategyKind: schemas.StrategyRole, Context: "use_name_variants"},
		{Pattern: description, StrategyKind: schemas.StrategyDataTestID, Context: "use_dash_underscore"},
		{Pattern: description, StrategyKind: schemas.StrategyText, Context: "use_regex,case_insensitive"},
		{Pattern: description, StrategyKind: schemas.StrategyCSS, Context: "use_common_patterns"},
		{Pattern: description, StrategyKind: schemas.StrategyXPath, Context: "use_text_matching"},
	}
}

// Generate returns the ordered strategy list for an element description,
// seeding it from cache if present, else building and persisting a new
// cascade (search-specific strategies first, base cascade after).
func (s *Store) Generate(description, websitePattern string, step *schemas.PlanStep) []schemas.SelectorStrategy {
	key := cacheKey(websitePattern, description, step)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.strategies[key]; ok {
		sorted := append([]schemas.SelectorStrategy(nil), existing...)
		sortBySuccessRate(sorted)
		return sorted
	}

	strategies := append(searchStrategies(description, step), baseStrategies(description)...)
	s.strategies[key] = strategies
	s.saveLocked()
	return strategies
}

func sortBySuccessRate(strategies []schemas.SelectorStrategy) {
	sort.SliceStable(strategies, func(i, j int) bool {
		return strategies[i].SuccessRate > strategies[j].SuccessRate
	})
}

// RecordResult updates a strategy's EMA success rate and usage count after
// an attempt (spec.md §9's "rate = 0.9*rate + 0.1*(success?1:0)").
func (s *Store) RecordResult(kind schemas.StrategyKind, description, websitePattern string, step *schemas.PlanStep, success bool) {
	key := cacheKey(websitePattern, description, step)

	s.mu.Lock()
	defer s.mu.Unlock()

	strategies, ok := s.strategies[key]
	if !ok {
		return
	}
	for i := range strategies {
		if strategies[i].StrategyKind != kind {
			continue
		}
		strategies[i].UsageCount++
		target := 0.0
		if success {
			target = 1.0
		}
		strategies[i].SuccessRate = 0.9*strategies[i].SuccessRate + 0.1*target
		break
	}
	s.strategies[key] = strategies
	s.saveLocked()
}

// Best returns the top `limit` strategies for a description, by success rate.
func (s *Store) Best(description, websitePattern string, limit int, step *schemas.PlanStep) []schemas.SelectorStrategy {
	strategies := s.Generate(description, websitePattern, step)
	sortBySuccessRate(strategies)
	if limit > 0 && len(strategies) > limit {
		strategies = strategies[:limit]
	}
	return strategies
}

// SuggestImprovedStep proposes a revised PlanStep after failedStep's locator
// cascade exhausted its budget, applying the top-ranked strategy's selector
// transform (original source: StrategyGenerator.suggest_improved_step).
// Returns ok=false when no improvement can be suggested.
func (s *Store) SuggestImprovedStep(failedStep schemas.PlanStep, websitePattern string) (schemas.PlanStep, bool) {
	if failedStep.Name == "" && failedStep.Selector == "" {
		return schemas.PlanStep{}, false
	}
	description := failedStep.Name
	if description == "" {
		description = failedStep.Selector
	}

	best := s.Best(description, websitePattern, 1, &failedStep)
	if len(best) == 0 {
		return schemas.PlanStep{}, false
	}

	originalSelector := failedStep.Selector
	originalRole := failedStep.Role

	for _, st := range best {
		improved := failedStep
		switch st.StrategyKind {
		case schemas.StrategyRole:
			if failedStep.Name != "" {
				if improved.Role == "" {
					improved.Role = "button"
				}
			}
		case schemas.StrategyDataTestID:
			if failedStep.Name != "" {
				improved.Selector = fmt.Sprintf(`[data-testid="%s"]`, slugifyName(failedStep.Name))
			}
		case schemas.StrategyText:
			if failedStep.Name != "" {
				improved.Selector = ""
			}
		case schemas.StrategyCSS:
			if failedStep.Name != "" {
				base := slugifyName(failedStep.Name)
				improved.Selector = fmt.Sprintf(`button[data-testid="%s"], [data-testid="%s"]`, base, base)
			}
		case schemas.StrategyPlaceholder:
			improved.Selector = "input[placeholder*='search' i], input[placeholder*='find' i], input[placeholder*='wiki' i]"
		case schemas.StrategyRoleSearchbox:
			improved.Role = "searchbox"
			improved.Selector = ""
		case schemas.StrategyCSSSearch:
			improved.Selector = "input[type='search'], input[role='searchbox'], form input[type='text'], input#searchInput, form input[name='search']"
		case schemas.StrategyAriaLabel:
			improved.Selector = "input[aria-label*='search' i], input[aria-label*='find' i], input[aria-label*='wiki' i]"
		}

		if improved.Selector != originalSelector || improved.Role != originalRole {
			return improved, true
		}
	}
	return schemas.PlanStep{}, false
}

func slugifyName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}

// FailurePatterns buckets recent constitution reports by rule-name keyword
// (selector/locator, action, navigation, auth), the same categories the
// original source's analyze_failures produces, formatted as short
// human-readable strings suitable for a planner prompt.
func FailurePatterns(reports []schemas.ConstitutionReport) []string {
	var patterns []string
	for _, report := range reports {
		for _, f := range append(append([]schemas.ValidationFailure{}, report.Failures...), report.Warnings...) {
			lower := strings.ToLower(f.RuleName)
			switch {
			case strings.Contains(lower, "selector") || strings.Contains(lower, "locator"):
				patterns = append(patterns, fmt.Sprintf("selector failure: %s (%s)", f.RuleName, f.Reason))
			case strings.Contains(lower, "action"):
				patterns = append(patterns, fmt.Sprintf("action failure: %s (%s)", f.RuleName, f.Reason))
			case strings.Contains(lower, "navigation") || strings.Contains(lower, "auth_redirect"):
				patterns = append(patterns, fmt.Sprintf("navigation failure: %s (%s)", f.RuleName, f.Reason))
			case strings.Contains(lower, "auth"):
				patterns = append(patterns, fmt.Sprintf("auth failure: %s (%s)", f.RuleName, f.Reason))
			}
		}
	}
	return patterns
}
