// Package planner implements Agent A1: it turns a natural-language task
// into a validated schemas.Plan, grounded on the original source's
// agents/interpreter.py (Interpreter.plan).
package planner

import (
	"context"
	"fmt"

	"parallax/internal/constitution"
	"parallax/internal/llmprovider"
	"parallax/internal/logging"
	"parallax/internal/rules"
	"parallax/internal/schemas"
	"parallax/internal/strategy"
)

// Planner is Agent A1. It threads strategy-generator failure context into
// the LLM prompt, applies per-site overrides, and gates the result behind
// the planner constitution.
type Planner struct {
	provider      llmprovider.Provider
	failureStore  *constitution.FailureStore
	strategyStore *strategy.Store
	agent         *constitution.AgentConstitution
}

// New wires a Planner. failureStore and strategyStore may be nil: the
// failure-pattern enrichment and persistence steps are skipped when absent.
func New(provider llmprovider.Provider, failureStore *constitution.FailureStore, strategyStore *strategy.Store) *Planner {
	return &Planner{
		provider:      provider,
		failureStore:  failureStore,
		strategyStore: strategyStore,
		agent:         rules.PlannerConstitution(),
	}
}

// Plan generates and validates an execution plan for task. planCtx is
// merged with failure_patterns/use_strategies when a failure store and
// strategy store are both present (spec.md §6 context keys).
func (p *Planner) Plan(ctx context.Context, task string, planCtx map[string]any) (schemas.Plan, schemas.ConstitutionReport, error) {
	timer := logging.StartTimer(logging.CategoryPlanner, "Plan")
	defer timer.Stop()

	if planCtx == nil {
		planCtx = map[string]any{}
	}
	enriched := p.enrichWithFailurePatterns(planCtx)

	plan, err := p.provider.GeneratePlan(ctx, task, enriched)
	if err != nil {
		logging.PlannerError("plan generation failed: %v", err)
		return schemas.Plan{}, schemas.ConstitutionReport{}, fmt.Errorf("generate plan: %w", err)
	}

	startURL, _ := planCtx["start_url"].(string)
	ApplySiteOverrides(&plan, startURL)

	validationCtx := map[string]any{"task": task}
	for k, v := range planCtx {
		validationCtx[k] = v
	}
	output := map[string]any{"plan": plan}
	report, verr := p.agent.MustPass(map[string]any{"task": task}, output, validationCtx)

	if !report.Passed {
		logging.PlannerError("planner constitution failed: %d critical failures", len(report.Failures))
		p.persistReport(report)
		return schemas.Plan{}, report, verr
	}
	if len(report.Warnings) > 0 {
		logging.PlannerWarn("planner constitution warnings: %d", len(report.Warnings))
		p.persistReport(report)
	}

	return plan, report, nil
}

// enrichWithFailurePatterns adds failure_patterns/use_strategies to planCtx
// when both a failure store and strategy store are configured (original
// source: Interpreter.plan's strategy_generator.analyze_failures call).
func (p *Planner) enrichWithFailurePatterns(planCtx map[string]any) map[string]any {
	if p.failureStore == nil || p.strategyStore == nil {
		return planCtx
	}
	reports := p.failureStore.Last(20)
	patterns := strategy.FailurePatterns(reports)
	if len(patterns) == 0 {
		return planCtx
	}
	out := make(map[string]any, len(planCtx)+2)
	for k, v := range planCtx {
		out[k] = v
	}
	out["failure_patterns"] = patterns
	out["use_strategies"] = true
	return out
}

func (p *Planner) persistReport(report schemas.ConstitutionReport) {
	if p.failureStore == nil {
		return
	}
	if err := p.failureStore.Append(report); err != nil {
		logging.PlannerWarn("failed to persist constitution report: %v", err)
	}
}
