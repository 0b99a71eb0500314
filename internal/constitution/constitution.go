// Package constitution implements Parallax's gated validation framework:
// per-agent rule registries, severity classification, and append-only
// persistence of failures for the strategy generator's feedback loop.
//
// The shape is adapted from the teacher's quality-enforcing verification
// loop (internal/verification/verifier.go's QualityViolation/
// VerificationResult vocabulary), generalized from code-quality checks to
// UI-automation checks per spec.md §4.6.
package constitution

import (
	"fmt"
	"time"

	"parallax/internal/logging"
	"parallax/internal/schemas"
)

// Validator inspects an operation's input/output/context and reports
// whether the rule held. A validator that panics is recovered by Validate
// and downgraded to a WARNING failure with a synthetic reason.
type Validator func(input, output, context map[string]any) (ok bool, reason string, details map[string]any)

// Rule is one named, leveled check attached to an agent's constitution.
type Rule struct {
	Name        string
	Description string
	Level       schemas.Level
	Validate    Validator
	Enabled     bool
}

// AgentConstitution is the ordered set of enabled rules for one agent.
type AgentConstitution struct {
	Agent string
	Rules []Rule
}

// NewAgentConstitution builds a constitution from a rule set, keeping only
// enabled rules in registration order.
func NewAgentConstitution(agent string, rules []Rule) *AgentConstitution {
	enabled := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	return &AgentConstitution{Agent: agent, Rules: enabled}
}

// Violation is the typed error MustPass raises, carrying every critical
// failure so the caller can report all of them at once.
type Violation struct {
	Agent    string
	Failures []schemas.ValidationFailure
}

func (v *Violation) Error() string {
	if len(v.Failures) == 0 {
		return fmt.Sprintf("%s: constitution violated", v.Agent)
	}
	return fmt.Sprintf("%s: constitution violated (%s: %s)", v.Agent, v.Failures[0].RuleName, v.Failures[0].Reason)
}

// Validate runs every rule and returns a report without throwing. Agent
// passes iff no critical failures were recorded.
func (c *AgentConstitution) Validate(input, output, context map[string]any) schemas.ConstitutionReport {
	report := schemas.ConstitutionReport{
		Agent:     c.Agent,
		Passed:    true,
		Timestamp: time.Now(),
		Context:   context,
	}

	for _, rule := range c.Rules {
		ok, reason, details, panicked := c.runOne(rule, input, output, context)
		if ok {
			continue
		}
		level := rule.Level
		if panicked {
			level = schemas.LevelWarning
		}
		failure := schemas.ValidationFailure{
			RuleName:  rule.Name,
			Level:     level,
			Reason:    reason,
			Details:   details,
			Timestamp: time.Now(),
			Agent:     c.Agent,
			Context:   context,
		}
		if level == schemas.LevelCritical {
			report.Failures = append(report.Failures, failure)
			report.Passed = false
		} else {
			report.Warnings = append(report.Warnings, failure)
		}
	}

	logging.Get(logging.CategoryConstitution).Debug(
		"constitution %s validated: passed=%v failures=%d warnings=%d",
		c.Agent, report.Passed, len(report.Failures), len(report.Warnings))

	return report
}

// runOne invokes a single validator, recovering panics into a synthetic
// failure and signaling panicked=true so Validate can force it to WARNING
// regardless of the rule's own level (spec.md §4.6: "exceptions inside
// validators become WARNING-level failures with a synthetic reason").
func (c *AgentConstitution) runOne(rule Rule, input, output, context map[string]any) (ok bool, reason string, details map[string]any, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			panicked = true
			reason = fmt.Sprintf("validator panicked: %v", r)
			details = map[string]any{"panic": fmt.Sprintf("%v", r)}
		}
	}()
	ok, reason, details = rule.Validate(input, output, context)
	return ok, reason, details, false
}

// MustPass runs Validate and returns a typed *Violation carrying all
// critical failures when the agent does not pass.
func (c *AgentConstitution) MustPass(input, output, context map[string]any) (schemas.ConstitutionReport, error) {
	report := c.Validate(input, output, context)
	if !report.Passed {
		return report, &Violation{Agent: c.Agent, Failures: report.Failures}
	}
	return report, nil
}
