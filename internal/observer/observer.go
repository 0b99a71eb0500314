// Package observer implements Agent A3: after every attempted action it
// captures the page's current accessibility state, screenshots, and a
// significance classification, gated behind the observer constitution.
// Grounded on the original source's agents/observer.py (Observer class) and
// observer/detectors.py (Detectors.capture_state).
package observer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"parallax/internal/browserdrv"
	"parallax/internal/constitution"
	"parallax/internal/logging"
	"parallax/internal/metrics"
	"parallax/internal/rules"
	"parallax/internal/schemas"
)

// VisionAnalyzer is the optional override hook spec.md §4.4 step 6 allows: a
// vision-capable model inspecting the raw screenshot can override the
// heuristic significance classification.
type VisionAnalyzer interface {
	AnalyzeSignificance(ctx context.Context, screenshot []byte, taskContext string, currentState, previousState map[string]any) (schemas.SignificanceResult, error)
}

// Config mirrors the slice of config.Config that Observer needs, kept as its
// own type so observer does not import the config package directly.
type Config struct {
	MultiViewport      bool
	DesktopViewport    browserdrv.Viewport
	TabletViewport     browserdrv.Viewport
	MobileViewport     browserdrv.Viewport
	CropFocusPaddingPx int
	RedactEnabled      bool
	RedactSelectors    []string
	RoleDiffThreshold  float64
	MinScreenshotBytes int
}

// Observer is Agent A3.
type Observer struct {
	cap          browserdrv.Capability
	cfg          Config
	saveDir      string
	failureStore *constitution.FailureStore
	instruments  *metrics.Instruments
	vision       VisionAnalyzer
	taskContext  string
	agent        *constitution.AgentConstitution

	mu            sync.Mutex
	idx           int
	previousRoles []browserdrv.RoleTreeNode
	previousValid *bool
	previousState map[string]any
	states        []schemas.UIState
}

// New wires an Observer. failureStore, instruments, and vision may all be
// nil: persistence, metrics emission, and the vision override are each
// skipped when absent.
func New(cap browserdrv.Capability, cfg Config, saveDir string, failureStore *constitution.FailureStore, instruments *metrics.Instruments, vision VisionAnalyzer, taskContext string) *Observer {
	return &Observer{
		cap:          cap,
		cfg:          cfg,
		saveDir:      saveDir,
		failureStore: failureStore,
		instruments:  instruments,
		vision:       vision,
		taskContext:  taskContext,
		agent:        rules.ObserverConstitution(),
	}
}

// States returns a copy of every state captured so far.
func (o *Observer) States() []schemas.UIState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]schemas.UIState(nil), o.states...)
}

// Observe runs the full capture sequence (spec.md §4.4's 9 ordered steps)
// and validates the result against the observer constitution before
// returning it.
func (o *Observer) Observe(ctx context.Context, actionDescription string) (schemas.UIState, error) {
	timer := logging.StartTimer(logging.CategoryObserver, "Observe")
	defer timer.Stop()

	o.mu.Lock()
	index := o.idx
	o.idx++
	o.mu.Unlock()

	url := o.cap.CurrentURL()

	roles, err := o.cap.ExtractRoleTree(ctx, 200)
	if err != nil {
		logging.ObserverWarn("role tree extraction failed: %v", err)
	}

	hasModal := false
	for _, r := range roles {
		if r.Role == "dialog" {
			hasModal = true
			break
		}
	}
	hasToast := o.detectToast(ctx)
	hasLoader := o.detectLoader(ctx)
	formValidity := o.formValidity(ctx)
	roleDiff := o.computeRoleDiff(roles)

	signature := hashSignature(url, roles)
	description := describeState(url, roles, hasToast, formValidity, hasLoader, roleDiff)

	screenshots, sizes := o.captureScreenshots(ctx, index, hasModal)

	significance := determineSignificance(significanceInput{
		url:         url,
		previousURL: o.previousURLLocked(),
		hasModal:    hasModal,
		hasToast:    hasToast,
		formValid:   formValidity,
		hasLoader:   hasLoader,
		roleDiff:    roleDiff,
	})

	if o.vision != nil {
		current := map[string]any{"url": url, "has_modal": hasModal, "has_toast": hasToast, "form_validity": formValidityJSON(formValidity)}
		if raw, serr := o.cap.Screenshot(ctx, "", false, nil); serr == nil {
			if visionResult, verr := o.vision.AnalyzeSignificance(ctx, raw, o.taskContext, current, o.previousState); verr != nil {
				logging.ObserverWarn("vision significance analysis failed: %v", verr)
			} else {
				significance = visionResult
				significance.FromVision = true
			}
		}
	}

	metadata := map[string]any{
		"roles":                   roleMetadata(roles),
		"has_toast":               hasToast,
		"form_validity":           formValidityJSON(formValidity),
		"has_loader":              hasLoader,
		"role_diff":               roleDiffJSON(roleDiff),
		"significance":            significance.Significance,
		"significance_confidence": significance.Confidence,
		"significance_reasoning":  significance.Reasoning,
	}
	if significance.FromVision {
		metadata["vision_analysis"] = true
	}

	state := schemas.UIState{
		// Prefixed with the monotonic capture index, not just the signature
		// prefix: two states can share a signature (an identical URL plus
		// role-name snapshot, e.g. a no-op click), and archivist.go's
		// states.id is a primary key that a bare signature-prefix collision
		// would fail to INSERT (spec.md §8 "rows == input states").
		ID:             fmt.Sprintf("state_%04d_%s", index, signature[:8]),
		URL:            url,
		Description:    description,
		HasModal:       hasModal,
		Action:         actionDescription,
		Screenshots:    screenshots,
		Metadata:       metadata,
		StateSignature: signature,
		CreatedAt:      time.Now(),
	}

	o.mu.Lock()
	o.previousState = map[string]any{"url": url, "has_modal": hasModal, "has_toast": hasToast, "form_validity": formValidityJSON(formValidity)}
	o.states = append(o.states, state)
	o.mu.Unlock()

	if o.instruments != nil {
		o.instruments.Count(ctx, metrics.MetricObserverCaptures)
	}

	output := map[string]any{
		"state":            state,
		"screenshot_sizes": sizes,
	}
	valCtx := map[string]any{"min_screenshot_bytes": o.cfg.MinScreenshotBytes}
	report, verr := o.agent.MustPass(map[string]any{"action": actionDescription}, output, valCtx)
	if !report.Passed {
		if o.failureStore != nil {
			if perr := o.failureStore.Append(report); perr != nil {
				logging.ObserverWarn("failed to persist constitution report: %v", perr)
			}
		}
		return state, fmt.Errorf("observer constitution failed: %w", verr)
	}
	if len(report.Warnings) > 0 && o.failureStore != nil {
		_ = o.failureStore.Append(report)
	}
	return state, nil
}

func (o *Observer) previousURLLocked() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.previousState == nil {
		return ""
	}
	s, _ := o.previousState["url"].(string)
	return s
}

func (o *Observer) formValidity(ctx context.Context) schemas.FormValidity {
	result := o.checkFormValidity(ctx)
	o.mu.Lock()
	defer o.mu.Unlock()
	if result == nil {
		return schemas.FormValidityUnknown
	}
	o.previousValid = result
	if *result {
		return schemas.FormValidityTrue
	}
	return schemas.FormValidityFalse
}

// computeRoleDiff reports 1-similarity against the last captured role tree,
// only once it exceeds the configured threshold (spec.md §4.4 step 5,
// grounded on detectors.py's _compute_role_diff).
func (o *Observer) computeRoleDiff(roles []browserdrv.RoleTreeNode) *float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.previousRoles == nil {
		o.previousRoles = roles
		return nil
	}
	threshold := o.cfg.RoleDiffThreshold
	if threshold <= 0 {
		threshold = 0.2
	}
	similarity := jaccardSimilarity(o.previousRoles, roles)
	diff := 1.0 - similarity
	o.previousRoles = roles
	if diff > threshold {
		return &diff
	}
	return nil
}

// captureScreenshots runs the multi-viewport save/restore sequence spec.md
// §4.4 step 4-5 describes, returning the filename and byte-size per
// viewport key.
func (o *Observer) captureScreenshots(ctx context.Context, index int, hasModal bool) (map[string]string, map[string]int) {
	screenshots := map[string]string{}
	sizes := map[string]int{}

	if filename, n, err := o.captureViewportScreenshot(ctx, "full"); err != nil {
		logging.ObserverWarn("desktop screenshot failed: %v", err)
	} else {
		screenshots["desktop"] = filename
		sizes["desktop"] = n
	}

	if o.cfg.MultiViewport {
		original := o.cap.ViewportSize()
		if filename, n, err := o.captureViewportVariant(ctx, "tablet", o.cfg.TabletViewport, original, o.cfg.DesktopViewport); err != nil {
			logging.ObserverWarn("tablet screenshot failed: %v", err)
		} else {
			screenshots["tablet"] = filename
			sizes["tablet"] = n
		}
		if filename, n, err := o.captureViewportVariant(ctx, "mobile", o.cfg.MobileViewport, original, o.cfg.DesktopViewport); err != nil {
			logging.ObserverWarn("mobile screenshot failed: %v", err)
		} else {
			screenshots["mobile"] = filename
			sizes["mobile"] = n
		}
	}

	if hasModal {
		if filename, n, err := o.captureFocusScreenshot(ctx); err != nil {
			logging.ObserverWarn("focus screenshot failed: %v", err)
		} else if filename != "" {
			screenshots["focus"] = filename
			sizes["focus"] = n
		}
	}

	return screenshots, sizes
}

// hashSignature hashes the URL plus the first 50 (role, name) pairs,
// sorted for stability across two structurally-identical captures,
// grounded on detectors.py's _hash_signature.
func hashSignature(url string, roles []browserdrv.RoleTreeNode) string {
	capped := roles
	if len(capped) > 50 {
		capped = capped[:50]
	}
	pairs := make([][2]string, 0, len(capped))
	for _, r := range capped {
		pairs = append(pairs, [2]string{r.Role, r.Name})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})

	payload, _ := json.Marshal(map[string]any{"url": url, "roles": pairs})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func roleMetadata(roles []browserdrv.RoleTreeNode) []schemas.RoleNode {
	capped := roles
	if len(capped) > 200 {
		capped = capped[:200]
	}
	out := make([]schemas.RoleNode, 0, len(capped))
	for _, r := range capped {
		out = append(out, schemas.RoleNode{Role: r.Role, Name: r.Name})
	}
	return out
}

func formValidityJSON(v schemas.FormValidity) any {
	switch v {
	case schemas.FormValidityTrue:
		return true
	case schemas.FormValidityFalse:
		return false
	default:
		return nil
	}
}

func roleDiffJSON(diff *float64) any {
	if diff == nil {
		return nil
	}
	return *diff
}
