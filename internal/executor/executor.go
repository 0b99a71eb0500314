// Package executor implements Agent A2: it drives a schemas.Plan against a
// browserdrv.Capability step by step, resolving each step's target element
// through the locator cascade, and hands every attempted action (success or
// failure) to an Observer for capture. Grounded on the original source's
// agents/navigator.py and navigator_pro.py Navigator.execute/_run_step.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"parallax/internal/browserdrv"
	"parallax/internal/constitution"
	"parallax/internal/logging"
	"parallax/internal/metrics"
	"parallax/internal/rules"
	"parallax/internal/schemas"
	"parallax/internal/strategy"
)

// Observer is the capture contract Execute drives after every attempted
// step. Kept as a narrow interface here (rather than importing the observer
// package) so executor and observer stay mutually independent.
type Observer interface {
	Observe(ctx context.Context, actionDescription string) (schemas.UIState, error)
}

// ProgressFunc is invoked before each step is attempted, matching the
// original source's Navigator(progress_callback=...) hook.
type ProgressFunc func(index, total int, step schemas.PlanStep)

// Result is what one Execute call produced, the shape the executor
// constitution and the orchestrator's heal logic both inspect.
type Result struct {
	FinalURL        string
	ActionsTaken    int
	HadNavigateStep bool
	States          []schemas.UIState
	FailedSteps     []schemas.PlanStep
}

// Executor is Agent A2.
type Executor struct {
	cap           browserdrv.Capability
	observer      Observer
	strategyStore *strategy.Store
	instruments   *metrics.Instruments
	agent         *constitution.AgentConstitution
	cfg           dispatchConfig
}

// Config carries the navigation knobs Execute needs from config.NavigationConfig
// without importing the config package (kept decoupled the way schemas/
// browserdrv already are).
type Config struct {
	DefaultWaitMs     int
	ScrollMarginPx    int
	AuthRedirectFatal bool
}

// New wires an Executor. strategyStore and instruments may be nil: strategy
// feedback and metrics emission are skipped when absent.
func New(cap browserdrv.Capability, observer Observer, strategyStore *strategy.Store, instruments *metrics.Instruments, cfg Config) *Executor {
	waitMs := cfg.DefaultWaitMs
	if waitMs <= 0 {
		waitMs = 1000
	}
	marginPx := cfg.ScrollMarginPx
	if marginPx <= 0 {
		marginPx = 64
	}
	return &Executor{
		cap:           cap,
		observer:      observer,
		strategyStore: strategyStore,
		instruments:   instruments,
		agent:         rules.ExecutorConstitution(),
		cfg: dispatchConfig{
			defaultWait:    time.Duration(waitMs) * time.Millisecond,
			scrollMarginPx: marginPx,
		},
	}
}

// Execute runs plan's steps in order, stopping once actionBudget steps have
// been attempted, the context is cancelled, or the plan is exhausted
// (spec.md §4.3). Locator/dispatch failures do not abort the run: they are
// recorded as "[FAILED] ..." observations and execution continues, matching
// the original source's per-step try/except around _run_step.
func (e *Executor) Execute(ctx context.Context, plan schemas.Plan, actionBudget int, progress ProgressFunc) (Result, schemas.ConstitutionReport, error) {
	timer := logging.StartTimer(logging.CategoryExecutor, "Execute")
	defer timer.Stop()

	var result Result
	total := len(plan.Steps)

	for i, step := range plan.Steps {
		if actionBudget >= 0 && result.ActionsTaken >= actionBudget {
			logging.ExecutorWarn("action budget %d exhausted at step %d/%d", actionBudget, i, total)
			break
		}
		if err := ctx.Err(); err != nil {
			logging.ExecutorWarn("execution cancelled at step %d/%d: %v", i, total, err)
			break
		}
		if progress != nil {
			progress(i, total, step)
		}

		desc, kind, err := dispatch(ctx, e.cap, step, e.cfg)
		result.ActionsTaken++
		if step.Action == schemas.ActionNavigate {
			result.HadNavigateStep = true
		}

		outcome := "ok"
		if err != nil {
			outcome = "failed"
			desc = "[FAILED] " + desc
			result.FailedSteps = append(result.FailedSteps, step)
			logging.ExecutorWarn("step %d (%s) failed: %v", i, step.Action, err)
		} else {
			logging.ExecutorDebug("step %d (%s) ok", i, step.Action)
		}
		if kind != "" && e.strategyStore != nil {
			e.strategyStore.Generate(step.Name, "", &step)
			e.strategyStore.RecordResult(kind, step.Name, "", &step, err == nil)
		}
		if e.instruments != nil {
			e.instruments.Count(ctx, metrics.MetricExecutorActions,
				attribute.String("action", string(step.Action)),
				attribute.String("outcome", outcome),
			)
		}

		if e.observer != nil {
			state, oerr := e.observer.Observe(ctx, desc)
			if oerr != nil {
				logging.ExecutorWarn("observer capture failed after step %d: %v", i, oerr)
			} else {
				result.States = append(result.States, state)
			}
		}

		if ctx.Err() == nil {
			result.FinalURL = e.cap.CurrentURL()
		}
	}

	if result.FinalURL == "" {
		result.FinalURL = e.cap.CurrentURL()
	}

	output := map[string]any{
		"final_url":         result.FinalURL,
		"had_navigate_step": result.HadNavigateStep,
		"actions_taken":     result.ActionsTaken,
	}
	valCtx := map[string]any{
		"action_budget": actionBudget,
	}
	report, verr := e.agent.MustPass(map[string]any{"plan": plan}, output, valCtx)
	if !report.Passed {
		return result, report, fmt.Errorf("executor constitution failed: %w", verr)
	}
	return result, report, nil
}
