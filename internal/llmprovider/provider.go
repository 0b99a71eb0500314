// Package llmprovider defines the planner's LLM capability (spec.md §6 "LLM
// planner capability") and its concrete providers: a Google GenAI-backed
// cloud provider and a local fallback that degrades to a single-step plan.
//
// Client bootstrap grounded on the teacher's internal/embedding/genai.go
// (NewGenAIEngine's apiKey/model validation and genai.NewClient(ctx,
// &genai.ClientConfig{APIKey}) call), adapted from EmbedContent to
// GenerateContent since the planner needs chat completions, not embeddings.
package llmprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"parallax/internal/logging"
	"parallax/internal/schemas"
)

// Typed planner error taxonomy (spec.md §4.2, §7 "Planner errors: timeout,
// rate-limit, API, parse").
var (
	ErrTimeout   = errors.New("llmprovider: timeout")
	ErrRateLimit = errors.New("llmprovider: rate limited")
	ErrAPI       = errors.New("llmprovider: api error")
	ErrParse     = errors.New("llmprovider: parse error")
)

// Provider is the LLM planner capability: GeneratePlan(task, context) → Plan.
// Context keys recognized: start_url, retry, failure_history,
// failure_patterns, use_strategies (spec.md §6).
type Provider interface {
	GeneratePlan(ctx context.Context, task string, planCtx map[string]any) (schemas.Plan, error)
	// Name identifies the provider for cost tracking and logs (openai,
	// anthropic, local).
	Name() string
	// Model identifies the concrete model in use, for cost tracking.
	Model() string
}

// rawPlan is the wire shape an LLM is prompted to emit: a JSON object with a
// "steps" array, each matching schemas.PlanStep's JSON tags.
type rawPlan struct {
	Steps []schemas.PlanStep `json:"steps"`
}

// parsePlanJSON parses a model's raw text completion into a schemas.Plan,
// tolerating a leading/trailing code fence the way most chat models wrap
// JSON answers in.
func parsePlanJSON(text string) (schemas.Plan, error) {
	cleaned := stripCodeFence(text)
	var raw rawPlan
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return schemas.Plan{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return schemas.Plan{Steps: raw.Steps}, nil
}

// stripCodeFence drops a leading/trailing ``` or ```json fence that chat
// models commonly wrap JSON answers in.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```") {
		if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		if end := strings.LastIndex(trimmed, "```"); end >= 0 {
			trimmed = trimmed[:end]
		}
	}
	return strings.TrimSpace(trimmed)
}

// FallbackPlan builds the local-provider degraded plan (spec.md §4.2 "Local
// (self-hosted) providers degrade to a fallback single-step plan (navigate
// start_url) on parse failure").
func FallbackPlan(startURL string) schemas.Plan {
	if startURL == "" {
		startURL = "about:blank"
	}
	logging.PlannerWarn("falling back to single-step navigate plan for %s", startURL)
	return schemas.Plan{
		Steps: []schemas.PlanStep{
			{Action: schemas.ActionNavigate, Target: startURL},
		},
	}
}
