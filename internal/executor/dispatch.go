package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"parallax/internal/browserdrv"
	"parallax/internal/schemas"
)

// parseWaitDuration parses a wait step's value as a Go duration string like
// "1.5s" or "1000ms", or as a bare number of milliseconds, returning fallback
// when value is empty or unparseable.
func parseWaitDuration(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(n * float64(time.Millisecond))
	}
	return fallback
}

// dispatch performs one plan step against cap and returns a short
// human-readable description of what happened, for the observer to log
// alongside its capture (spec.md §4.4's "action" field).
func dispatch(ctx context.Context, cap browserdrv.Capability, step schemas.PlanStep, cfg dispatchConfig) (string, schemas.StrategyKind, error) {
	desc := describeStep(step)

	switch step.Action {
	case schemas.ActionNavigate:
		url := step.Target
		if url == "" {
			url = step.Value
		}
		if url == "" {
			return desc, "", fmt.Errorf("navigate step has no target url")
		}
		if url == "#"+strings.TrimPrefix(cap.CurrentURL(), "#") {
			return desc, "", nil
		}
		if err := cap.Goto(ctx, url); err != nil {
			return desc, "", fmt.Errorf("navigate to %s: %w", url, err)
		}
		return desc, "", cap.WaitForLoadState(ctx)

	case schemas.ActionGoBack:
		return desc, "", cap.GoBack(ctx)
	case schemas.ActionGoForward:
		return desc, "", cap.GoForward(ctx)
	case schemas.ActionReload:
		return desc, "", cap.Reload(ctx)

	case schemas.ActionWait:
		d := parseWaitDuration(step.Value, cfg.defaultWait)
		select {
		case <-ctx.Done():
			return desc, "", ctx.Err()
		case <-time.After(d):
			return desc, "", nil
		}

	case schemas.ActionScroll:
		if step.HasElementHint() {
			loc, kind, err := resolveLocator(ctx, cap, step)
			if err != nil {
				return desc, "", err
			}
			return desc, kind, loc.ScrollIntoViewIfNeeded(ctx, perCandidateTimeout)
		}
		dy := cfg.scrollMarginPx
		if strings.EqualFold(step.Value, "up") {
			_, err := cap.Evaluate(ctx, `(margin) => window.scrollBy(0, -(window.innerHeight - margin))`, dy)
			return desc, "", err
		}
		_, err := cap.Evaluate(ctx, `(margin) => window.scrollBy(0, window.innerHeight - margin)`, dy)
		return desc, "", err

	case schemas.ActionScreenshot:
		_, err := cap.Screenshot(ctx, "", true, nil)
		return desc, "", err

	case schemas.ActionEvaluate:
		_, err := cap.Evaluate(ctx, step.Value)
		return desc, "", err

	case schemas.ActionBlur:
		_, err := cap.Evaluate(ctx, `() => document.activeElement && document.activeElement.blur()`)
		return desc, "", err

	case schemas.ActionPressKey, schemas.ActionKeyPress:
		if step.HasElementHint() {
			loc, kind, err := resolveLocator(ctx, cap, step)
			if err == nil {
				if ferr := loc.Focus(ctx); ferr == nil {
					return desc, kind, cap.PressKey(ctx, step.Value)
				}
			}
		}
		return desc, "", cap.PressKey(ctx, step.Value)

	case schemas.ActionDrag:
		if step.StartSelector == "" || step.EndSelector == "" {
			return desc, "", fmt.Errorf("drag step requires start_selector and end_selector")
		}
		return desc, "", cap.Drag(ctx, step.StartSelector, step.EndSelector)
	}

	// Every remaining action resolves a single element locator first.
	loc, kind, err := resolveLocator(ctx, cap, step)
	if err != nil {
		return desc, "", err
	}

	switch step.Action {
	case schemas.ActionClick:
		return desc, kind, loc.Click(ctx)
	case schemas.ActionDoubleClick:
		return desc, kind, loc.DoubleClick(ctx)
	case schemas.ActionRightClick:
		return desc, kind, loc.RightClick(ctx)
	case schemas.ActionHover:
		return desc, kind, loc.Hover(ctx)
	case schemas.ActionFocus:
		return desc, kind, loc.Focus(ctx)
	case schemas.ActionFill:
		return desc, kind, loc.Fill(ctx, step.Value)
	case schemas.ActionType:
		return desc, kind, loc.Type(ctx, step.Value)
	case schemas.ActionSubmit:
		if err := loc.Click(ctx); err == nil {
			return desc, kind, nil
		}
		return desc, kind, cap.PressKey(ctx, "enter")
	case schemas.ActionSelect:
		value := step.OptionValue
		if value == "" {
			value = step.Value
		}
		return desc, kind, loc.SelectOption(ctx, value)
	case schemas.ActionUpload:
		path := step.FilePath
		if path == "" {
			path = step.Value
		}
		if path == "" {
			return desc, kind, fmt.Errorf("upload step has no file_path")
		}
		return desc, kind, loc.SetFiles(ctx, []string{path})
	case schemas.ActionCheck:
		return desc, kind, loc.SetChecked(ctx, true)
	case schemas.ActionUncheck:
		return desc, kind, loc.SetChecked(ctx, false)
	}

	return desc, kind, fmt.Errorf("unhandled action %q", step.Action)
}

// dispatchConfig carries the navigation-tuning knobs dispatch needs without
// pulling the whole config package into the executor's unit-test surface.
type dispatchConfig struct {
	defaultWait    time.Duration
	scrollMarginPx int
}

// describeStep renders the "action(args)" form spec.md §4.4 logs alongside
// every observed state.
func describeStep(step schemas.PlanStep) string {
	arg := step.Name
	if arg == "" {
		arg = step.Selector
	}
	if arg == "" {
		arg = step.Target
	}
	if arg == "" {
		arg = step.Value
	}
	if arg == "" {
		return string(step.Action)
	}
	return fmt.Sprintf("%s(%s)", step.Action, arg)
}
