// Package orchestrator drives one task end to end: plan, execute, observe,
// validate completion, archive, self-heal and retry on executor constitution
// violations (spec.md §4.8). The attempt loop (execute, verify, on failure
// store the violation and retry with an adjusted context, give up after a
// bounded number of attempts) is grounded on the teacher's
// internal/verification/verifier.go (VerifyWithRetry): this orchestrator
// plays the same role one layer up, healing a UI-automation attempt instead
// of retrying a single code-quality check.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"parallax/internal/archivist"
	"parallax/internal/browserdrv"
	"parallax/internal/completion"
	"parallax/internal/config"
	"parallax/internal/constitution"
	"parallax/internal/executor"
	"parallax/internal/logging"
	"parallax/internal/metrics"
	"parallax/internal/observer"
	"parallax/internal/planner"
	"parallax/internal/schemas"
	"parallax/internal/strategy"
)

// ErrAborted is returned when a heal adjustment marks the failure
// unrecoverable (spec.md §4.3.3 "no_auth_redirects ... abort further
// retries" under AuthRedirectFatal) before the attempt budget is exhausted.
var ErrAborted = errors.New("orchestrator: aborted after unrecoverable failure")

// ErrAttemptsExhausted is returned when every attempt up to
// Navigation.SelfHealAttempts+1 failed (planning, browser launch, executor
// constitution, completion validation, or archiving), mirroring the
// teacher's ErrMaxRetriesExceeded.
var ErrAttemptsExhausted = errors.New("orchestrator: self-heal attempts exhausted")

// DriverFactory opens one fresh browser capability per attempt. Orchestrator
// never constructs a browserdrv.RodDriver itself so it stays testable
// against a fake Capability.
type DriverFactory func(ctx context.Context) (browserdrv.Capability, error)

// Result is what one Run call produced on success.
type Result struct {
	DatasetPath string
	Attempts    int
	FinalURL    string
	Plan        schemas.Plan
	Completion  completion.Result
	States      []schemas.UIState
}

// Orchestrator coordinates Agents A1-A4 for one task.
type Orchestrator struct {
	cfg           *config.Config
	planner       *planner.Planner
	strategyStore *strategy.Store
	failureStore  *constitution.FailureStore
	archivist     *archivist.Archivist
	instruments   *metrics.Instruments
	newDriver     DriverFactory
	vision        observer.VisionAnalyzer
}

// New wires an Orchestrator. strategyStore, failureStore, instruments, and
// vision may all be nil; each dependent feature degrades the way its own
// package already documents when its collaborator is absent.
func New(cfg *config.Config, pl *planner.Planner, strategyStore *strategy.Store, failureStore *constitution.FailureStore, arch *archivist.Archivist, instruments *metrics.Instruments, newDriver DriverFactory, vision observer.VisionAnalyzer) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		planner:       pl,
		strategyStore: strategyStore,
		failureStore:  failureStore,
		archivist:     arch,
		instruments:   instruments,
		newDriver:     newDriver,
		vision:        vision,
	}
}

// Run plans, executes, observes, and archives task starting from startURL,
// self-healing up to Navigation.SelfHealAttempts additional times when the
// executor constitution fails (spec.md §4.8).
func (o *Orchestrator) Run(ctx context.Context, task, startURL string) (Result, error) {
	timer := logging.StartTimer(logging.CategoryOrchestrator, "Run")
	defer timer.Stop()

	app := appName(startURL)
	taskSlug := completion.Slugify(task)
	if taskSlug == "" {
		taskSlug = "task"
	}

	maxAttempts := o.cfg.Navigation.SelfHealAttempts + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	// A literal 0 is a valid, deliberately configured budget (spec.md §8:
	// "Action budget = 0 -> no actions executed, navigation critical
	// failure raised") and must reach Execute unchanged; only a negative,
	// never-configured value falls back to the documented default of 30.
	actionBudget := o.cfg.Navigation.ActionBudget
	if actionBudget < 0 {
		actionBudget = 30
	}

	currentStartURL := startURL
	var adj executor.Adjustments
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("run cancelled: %w", err)
		}
		logging.Orchestrator("task=%q attempt=%d/%d start_url=%s", task, attempt+1, maxAttempts, currentStartURL)

		result, completionResult, datasetPath, plan, err := o.attempt(ctx, app, taskSlug, task, currentStartURL, actionBudget, &adj)
		if err == nil {
			return Result{
				DatasetPath: datasetPath,
				Attempts:    attempt + 1,
				FinalURL:    result.FinalURL,
				Plan:        plan,
				Completion:  completionResult,
				States:      result.States,
			}, nil
		}

		lastErr = err
		if errors.Is(err, ErrAborted) {
			return Result{}, err
		}
		if o.instruments != nil {
			o.instruments.Count(ctx, metrics.MetricOrchestratorRetries, attribute.String("task_slug", taskSlug))
		}
		if adj.RetryStartURL != "" {
			currentStartURL = adj.RetryStartURL
		}
		actionBudget += adj.ActionBudgetDelta
		logging.OrchestratorWarn("attempt %d/%d failed: %v", attempt+1, maxAttempts, err)
	}

	if o.instruments != nil {
		o.instruments.Count(ctx, metrics.MetricRunOutcome, attribute.String("outcome", "exhausted"))
	}
	return Result{}, fmt.Errorf("%w: %v", ErrAttemptsExhausted, lastErr)
}

// attempt runs one plan→execute→observe→validate→archive cycle. adj is
// mutated in place with the next attempt's heal adjustments whenever this
// attempt's executor constitution fails.
func (o *Orchestrator) attempt(ctx context.Context, app, taskSlug, task, startURL string, actionBudget int, adj *executor.Adjustments) (executor.Result, completion.Result, string, schemas.Plan, error) {
	planCtx := map[string]any{"start_url": startURL}
	if o.failureStore != nil {
		planCtx["failure_history"] = o.failureStore.Last(10)
	}
	if adj.RequiresAuth {
		planCtx["requires_auth"] = true
	}

	plan, _, err := o.planner.Plan(ctx, task, planCtx)
	if err != nil {
		return executor.Result{}, completion.Result{}, "", schemas.Plan{}, fmt.Errorf("plan: %w", err)
	}
	plan = executor.ApplyAdjustments(plan, *adj)

	cap, err := o.newDriver(ctx)
	if err != nil {
		return executor.Result{}, completion.Result{}, "", schemas.Plan{}, fmt.Errorf("open browser: %w", err)
	}
	defer cap.Close(ctx)

	if err := cap.StartTracing(ctx); err != nil {
		logging.OrchestratorWarn("start tracing failed: %v", err)
	}

	datasetDir := o.archivist.DatasetDir(app, taskSlug)
	obs := observer.New(cap, o.observerConfig(), datasetDir, o.failureStore, o.instruments, o.vision, task)
	exec := executor.New(cap, obs, o.strategyStore, o.instruments, o.executorConfig())

	progress := func(index, total int, step schemas.PlanStep) {
		logging.OrchestratorDebug("step %d/%d: %s", index+1, total, step.Action)
	}

	result, execReport, err := exec.Execute(ctx, plan, actionBudget, progress)
	if err != nil {
		*adj = executor.Heal(execReport, result.FailedSteps, startURL, app, o.strategyStore, o.cfg.Navigation.AuthRedirectFatal)
		_ = cap.StopTracing(ctx, "")
		if o.instruments != nil {
			o.instruments.Count(ctx, metrics.MetricExecutorHeals)
		}
		if adj.AbortFurtherRetries {
			return result, completion.Result{}, "", plan, fmt.Errorf("%w: %v", ErrAborted, err)
		}
		return result, completion.Result{}, "", plan, err
	}

	states := obs.States()
	completionResult, cerr := completion.VerifyCriteria(plan, states, o.cfg.Completion.MinTargets)
	if cerr != nil {
		_ = cap.StopTracing(ctx, "")
		return result, completionResult, "", plan, fmt.Errorf("completion validation: %w", cerr)
	}

	tracePath := filepath.Join(datasetDir, "trace.zip")
	if err := cap.StopTracing(ctx, tracePath); err != nil {
		logging.OrchestratorWarn("stop tracing failed: %v", err)
	}

	datasetPath, werr := o.archivist.WriteStates(app, taskSlug, states, "trace.zip")
	if werr != nil {
		return result, completionResult, "", plan, fmt.Errorf("archive states: %w", werr)
	}

	if o.instruments != nil {
		o.instruments.Count(ctx, metrics.MetricRunOutcome, attribute.String("outcome", "success"))
	}
	return result, completionResult, datasetPath, plan, nil
}

func (o *Orchestrator) observerConfig() observer.Config {
	c := o.cfg.Capture
	return observer.Config{
		MultiViewport:      c.MultiViewport,
		DesktopViewport:    browserdrv.Viewport{Width: c.DesktopViewport.Width, Height: c.DesktopViewport.Height},
		TabletViewport:     browserdrv.Viewport{Width: c.TabletViewport.Width, Height: c.TabletViewport.Height},
		MobileViewport:     browserdrv.Viewport{Width: c.MobileViewport.Width, Height: c.MobileViewport.Height},
		CropFocusPaddingPx: c.CropFocusPaddingPx,
		RedactEnabled:      c.Redact.Enabled,
		RedactSelectors:    c.Redact.Selectors,
		RoleDiffThreshold:  o.cfg.Observer.RoleDiffThreshold,
		MinScreenshotBytes: 256,
	}
}

func (o *Orchestrator) executorConfig() executor.Config {
	return executor.Config{
		DefaultWaitMs:     o.cfg.Navigation.DefaultWaitMs,
		ScrollMarginPx:    o.cfg.Navigation.ScrollMarginPx,
		AuthRedirectFatal: o.cfg.Navigation.AuthRedirectFatal,
	}
}

// appName derives the archivist "app" bucket from a start URL's host,
// stripping a leading www. (spec.md §4.5 "{base}/{app}/{slug}/").
func appName(startURL string) string {
	u, err := url.Parse(startURL)
	if err != nil || u.Host == "" {
		return "app"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.SplitN(host, ":", 2)[0]
	if host == "" {
		return "app"
	}
	return host
}
