package llmprovider

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"parallax/internal/logging"
	"parallax/internal/metrics"
)

// modelPricing is USD per 1M tokens, grounded on the original source's
// PRICING table (cost_tracker.py), trimmed to the providers Parallax wires.
type modelPricing struct {
	input  float64
	output float64
}

var pricingTable = map[string]map[string]modelPricing{
	"openai": {
		"gpt-4.1-mini": {input: 0.15, output: 0.60},
		"gpt-4o-mini":  {input: 0.15, output: 0.60},
		"gpt-4o":       {input: 2.50, output: 10.00},
	},
	"anthropic": {
		"claude-3-5-sonnet-latest": {input: 3.00, output: 15.00},
		"claude-3-haiku":           {input: 0.25, output: 1.25},
	},
	"gemini": {
		"gemini-2.0-flash": {input: 0.10, output: 0.40},
		"gemini-1.5-flash": {input: 0.075, output: 0.30},
	},
	"local": {
		"default": {input: 0, output: 0},
	},
}

var defaultPricing = modelPricing{input: 1.0, output: 3.0}

// CostTracker accumulates per-provider, per-model USD spend for the
// lifetime of a process, forwarding each call to the shared metrics
// instruments (spec.md §6 Metrics; original source's CostTracker class).
type CostTracker struct {
	mu         sync.Mutex
	byProvider map[string]map[string]float64
	total      float64

	instruments *metrics.Instruments
}

// NewCostTracker creates a tracker that also records to instruments, if
// non-nil.
func NewCostTracker(instruments *metrics.Instruments) *CostTracker {
	return &CostTracker{
		byProvider:  make(map[string]map[string]float64),
		instruments: instruments,
	}
}

// TrackCall records one LLM call's token usage and returns its cost in USD.
func (t *CostTracker) TrackCall(ctx context.Context, provider, model string, inputTokens, outputTokens int) float64 {
	pricing := lookupPricing(provider, model)

	inputCost := (float64(inputTokens) / 1_000_000) * pricing.input
	outputCost := (float64(outputTokens) / 1_000_000) * pricing.output
	cost := inputCost + outputCost

	t.mu.Lock()
	if t.byProvider[provider] == nil {
		t.byProvider[provider] = make(map[string]float64)
	}
	t.byProvider[provider][model] += cost
	t.total += cost
	t.mu.Unlock()

	logging.LLM("tracked llm call: provider=%s model=%s input=%d output=%d cost_usd=%.6f",
		provider, model, inputTokens, outputTokens, cost)

	if t.instruments != nil {
		attrs := []attribute.KeyValue{
			attribute.String("provider", provider),
			attribute.String("model", model),
		}
		t.instruments.AddCost(ctx, metrics.MetricPlannerCostUSD, cost, attrs...)
		t.instruments.Add(ctx, metrics.MetricPlannerTokens, int64(inputTokens+outputTokens), attrs...)
	}

	return cost
}

// TotalCost returns the cumulative USD cost tracked so far.
func (t *CostTracker) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Summary returns a per-provider/per-model cost breakdown.
func (t *CostTracker) Summary() map[string]map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]map[string]float64, len(t.byProvider))
	for provider, models := range t.byProvider {
		copied := make(map[string]float64, len(models))
		for model, cost := range models {
			copied[model] = cost
		}
		out[provider] = copied
	}
	return out
}

// Reset clears all tracked costs.
func (t *CostTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byProvider = make(map[string]map[string]float64)
	t.total = 0
}

func lookupPricing(provider, model string) modelPricing {
	models, ok := pricingTable[provider]
	if !ok {
		logging.LLMWarn("unknown pricing provider %q, using default estimate", provider)
		return defaultPricing
	}
	if p, ok := models[model]; ok {
		return p
	}
	if provider == "local" {
		return models["default"]
	}
	logging.LLMWarn("unknown pricing model %q for provider %q, using default estimate", model, provider)
	return defaultPricing
}
