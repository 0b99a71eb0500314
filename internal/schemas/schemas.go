// Package schemas defines the data model shared across Parallax's agents:
// plans, UI-state captures, role-tree nodes, and the records the
// constitution and strategy layers persist.
package schemas

import "time"

// Action is the closed set of dispatcher actions the executor recognizes.
type Action string

const (
	ActionNavigate    Action = "navigate"
	ActionClick       Action = "click"
	ActionDoubleClick Action = "double_click"
	ActionRightClick  Action = "right_click"
	ActionHover       Action = "hover"
	ActionType        Action = "type"
	ActionFill        Action = "fill"
	ActionSubmit      Action = "submit"
	ActionSelect      Action = "select"
	ActionDrag        Action = "drag"
	ActionUpload      Action = "upload"
	ActionCheck       Action = "check"
	ActionUncheck     Action = "uncheck"
	ActionFocus       Action = "focus"
	ActionBlur        Action = "blur"
	ActionKeyPress    Action = "key_press"
	ActionPressKey    Action = "press_key"
	ActionScroll      Action = "scroll"
	ActionWait        Action = "wait"
	ActionGoBack      Action = "go_back"
	ActionGoForward   Action = "go_forward"
	ActionReload      Action = "reload"
	ActionScreenshot  Action = "screenshot"
	ActionEvaluate    Action = "evaluate"
)

// KnownActions is the closed set recognized by the dispatcher (spec.md §4.1).
var KnownActions = map[Action]bool{
	ActionNavigate: true, ActionClick: true, ActionDoubleClick: true, ActionRightClick: true,
	ActionHover: true, ActionType: true, ActionFill: true, ActionSubmit: true,
	ActionSelect: true, ActionDrag: true, ActionUpload: true, ActionCheck: true,
	ActionUncheck: true, ActionFocus: true, ActionBlur: true, ActionKeyPress: true,
	ActionPressKey: true, ActionScroll: true, ActionWait: true, ActionGoBack: true,
	ActionGoForward: true, ActionReload: true, ActionScreenshot: true, ActionEvaluate: true,
}

// InteractiveActions are the actions the completion validator treats as
// evidence of an "interactive" plan (spec.md §4.9).
var InteractiveActions = map[Action]bool{
	ActionType: true, ActionFill: true, ActionSubmit: true, ActionSelect: true,
	ActionUpload: true, ActionCheck: true, ActionUncheck: true,
	ActionPressKey: true, ActionKeyPress: true,
}

// PlanStep is a single ordered action record. It is immutable once
// validated by the planner constitution (spec.md §3).
type PlanStep struct {
	Action Action `json:"action"`

	Target string `json:"target,omitempty"`
	Role   string `json:"role,omitempty"`
	Name   string `json:"name,omitempty"`

	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`

	StartSelector string `json:"start_selector,omitempty"`
	EndSelector   string `json:"end_selector,omitempty"`
	FilePath      string `json:"file_path,omitempty"`
	OptionValue   string `json:"option_value,omitempty"`
}

// HasElementHint reports whether the step carries one of the three element
// hint forms: selector, role+name, or name-only text fallback.
func (s PlanStep) HasElementHint() bool {
	if s.Selector != "" {
		return true
	}
	if s.Role != "" && s.Name != "" {
		return true
	}
	return s.Name != ""
}

// Plan is an ordered sequence of PlanSteps produced once per attempt.
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// Clone returns a deep copy so override/self-heal passes never mutate a
// plan shared with another attempt.
func (p Plan) Clone() Plan {
	out := Plan{Steps: make([]PlanStep, len(p.Steps))}
	copy(out.Steps, p.Steps)
	return out
}

// RoleNode is a triple captured from the accessibility tree, used for
// similarity scoring (role-diff, Jaccard).
type RoleNode struct {
	Role     string `json:"role"`
	Name     string `json:"name,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// FormValidity is the observer's tri-state form-validity reading.
type FormValidity int

const (
	FormValidityUnknown FormValidity = iota
	FormValidityTrue
	FormValidityFalse
)

// Significance is the closed classification enum for a captured UI state.
type Significance string

const (
	SignificanceCritical   Significance = "critical"
	SignificanceSupporting Significance = "supporting"
	SignificanceOptional   Significance = "optional"
)

// SignificanceResult carries the classification, its confidence, and the
// reasoning behind it (heuristic or vision-overridden).
type SignificanceResult struct {
	Significance Significance `json:"significance"`
	Confidence   float64      `json:"confidence"`
	Reasoning    string       `json:"reasoning"`
	FromVision   bool         `json:"from_vision"`
}

// UIState is a captured observation after an attempted action.
type UIState struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Description     string            `json:"description"`
	HasModal        bool              `json:"has_modal"`
	Action          string            `json:"action"`
	Screenshots     map[string]string `json:"screenshots"`
	Metadata        map[string]any    `json:"metadata"`
	StateSignature  string            `json:"state_signature"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Level is a validation-rule severity.
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelWarning  Level = "WARNING"
	LevelInfo     Level = "INFO"
)

// ValidationFailure records one rule miss.
type ValidationFailure struct {
	RuleName  string         `json:"rule_name"`
	Level     Level          `json:"level"`
	Reason    string         `json:"reason"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Agent     string         `json:"agent"`
	Context   map[string]any `json:"context,omitempty"`
}

// ConstitutionReport is the outcome of validating one agent's constitution.
type ConstitutionReport struct {
	Agent     string              `json:"agent"`
	Passed    bool                `json:"passed"`
	Failures  []ValidationFailure `json:"failures"`
	Warnings  []ValidationFailure `json:"warnings"`
	Timestamp time.Time           `json:"timestamp"`
	Context   map[string]any      `json:"context,omitempty"`
}

// StrategyKind is the closed set of locator strategies the strategy
// generator can propose.
type StrategyKind string

const (
	StrategyRole         StrategyKind = "role"
	StrategyDataTestID   StrategyKind = "data-testid"
	StrategyText         StrategyKind = "text"
	StrategyCSS          StrategyKind = "css"
	StrategyXPath        StrategyKind = "xpath"
	StrategyPlaceholder  StrategyKind = "placeholder"
	StrategyRoleSearchbox StrategyKind = "role_searchbox"
	StrategyCSSSearch    StrategyKind = "css_search"
	StrategyAriaLabel    StrategyKind = "aria_label"
)

// SelectorStrategy is a ranked recipe for resolving an element description
// to a locator, keyed by (website_pattern, normalized-description,
// step-identity) in the persisted store.
type SelectorStrategy struct {
	Pattern      string       `json:"pattern"`
	StrategyKind StrategyKind `json:"strategy_kind"`
	SuccessRate  float64      `json:"success_rate"`
	UsageCount   int          `json:"usage_count"`
	Context      string       `json:"context,omitempty"`
}
