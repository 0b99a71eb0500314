package llmprovider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"parallax/internal/logging"
	"parallax/internal/schemas"
)

// GenAIProvider generates plans via Google's Gemini API. Client bootstrap
// grounded on the teacher's embedding.NewGenAIEngine (apiKey validation,
// genai.NewClient(ctx, &genai.ClientConfig{APIKey})), adapted from
// EmbedContent to GenerateContent for chat-style plan generation.
type GenAIProvider struct {
	client *genai.Client
	model  string

	name    string
	limiter *rate.Limiter
	timeout time.Duration
	cost    *CostTracker
}

// NewGenAIProvider creates a cloud planner provider. providerName is the
// cost-tracking label (openai/anthropic/gemini) since google.golang.org/genai
// also fronts Vertex-hosted OpenAI/Anthropic-compatible models in some
// deployments; ratePerMinute matches spec.md §5's 50/min cloud budget.
func NewGenAIProvider(ctx context.Context, apiKey, providerName, model string, ratePerMinute int, timeoutMs int, cost *CostTracker) (*GenAIProvider, error) {
	timer := logging.StartTimer(logging.CategoryLLM, "NewGenAIProvider")
	defer timer.Stop()

	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrAPI)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if providerName == "" {
		providerName = "gemini"
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 50
	}
	timeout := 30 * time.Second
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}

	logging.LLM("initializing genai provider: provider=%s model=%s rate=%d/min", providerName, model, ratePerMinute)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAIProvider{
		client:  client,
		model:   model,
		name:    providerName,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), ratePerMinute),
		timeout: timeout,
		cost:    cost,
	}, nil
}

func (p *GenAIProvider) Name() string  { return p.name }
func (p *GenAIProvider) Model() string { return p.model }

// GeneratePlan asks the model to produce a JSON plan for task, threading
// context keys recognized by the prompt builder (start_url, retry,
// failure_history, failure_patterns, use_strategies — spec.md §6).
func (p *GenAIProvider) GeneratePlan(ctx context.Context, task string, planCtx map[string]any) (schemas.Plan, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return schemas.Plan{}, fmt.Errorf("%w: %v", ErrRateLimit, err)
	}

	prompt := BuildPlannerPrompt(task, planCtx)

	return withRetry(ctx, "genai.GeneratePlan", func(ctx context.Context) (schemas.Plan, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
		start := time.Now()
		resp, err := p.client.Models.GenerateContent(callCtx, p.model, contents, nil)
		latency := time.Since(start)

		if err != nil {
			if callCtx.Err() != nil {
				return schemas.Plan{}, fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			return schemas.Plan{}, classifyGenAIError(err)
		}

		text := extractText(resp)
		logging.LLMDebug("genai response in %s: %d chars", latency, len(text))

		if resp != nil && resp.UsageMetadata != nil && p.cost != nil {
			p.cost.TrackCall(ctx, p.name, p.model,
				int(resp.UsageMetadata.PromptTokenCount),
				int(resp.UsageMetadata.CandidatesTokenCount))
		}

		plan, perr := parsePlanJSON(text)
		if perr != nil {
			return schemas.Plan{}, perr
		}
		return plan, nil
	})
}

// extractText pulls the first text part out of a GenerateContent response.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

// classifyGenAIError maps a genai client error to the planner's taxonomy.
// Without the SDK's concrete error types available to inspect, this falls
// back to substring sniffing on the error text — the same defensive posture
// the teacher's HTTP-backed clients use when a vendor SDK's error surface is
// not fully typed.
func classifyGenAIError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate") && strings.Contains(msg, "limit"):
		return fmt.Errorf("%w: %v", ErrRateLimit, err)
	case strings.Contains(msg, "429"):
		return fmt.Errorf("%w: %v", ErrRateLimit, err)
	case strings.Contains(msg, "deadline") || strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return newStatusError(503, err.Error())
	case strings.Contains(msg, "400") || strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return newStatusError(400, err.Error())
	default:
		return fmt.Errorf("%w: %v", ErrAPI, err)
	}
}
