package llmprovider

import (
	"context"

	"golang.org/x/time/rate"

	"parallax/internal/schemas"
)

// LocalProvider fronts a self-hosted model reachable only through a
// caller-supplied completion function, degrading to FallbackPlan on any
// parse failure (spec.md §4.2 "Local (self-hosted) providers degrade to a
// fallback single-step plan on parse failure").
type LocalProvider struct {
	complete func(ctx context.Context, prompt string) (string, error)
	model    string
	limiter  *rate.Limiter
}

// NewLocalProvider wraps a completion function behind the Provider
// interface. ratePerMinute matches spec.md §5's 30/min local budget.
func NewLocalProvider(model string, ratePerMinute int, complete func(ctx context.Context, prompt string) (string, error)) *LocalProvider {
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	if model == "" {
		model = "local-default"
	}
	return &LocalProvider{
		complete: complete,
		model:    model,
		limiter:  rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), ratePerMinute),
	}
}

func (p *LocalProvider) Name() string  { return "local" }
func (p *LocalProvider) Model() string { return p.model }

func (p *LocalProvider) GeneratePlan(ctx context.Context, task string, planCtx map[string]any) (schemas.Plan, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return schemas.Plan{}, err
	}

	prompt := BuildPlannerPrompt(task, planCtx)
	text, err := p.complete(ctx, prompt)
	if err != nil {
		startURL, _ := planCtx["start_url"].(string)
		return FallbackPlan(startURL), nil
	}

	plan, perr := parsePlanJSON(text)
	if perr != nil {
		startURL, _ := planCtx["start_url"].(string)
		return FallbackPlan(startURL), nil
	}
	if len(plan.Steps) == 0 {
		startURL, _ := planCtx["start_url"].(string)
		return FallbackPlan(startURL), nil
	}
	return plan, nil
}
