package llmprovider

import (
	"fmt"
	"strings"
)

// BuildPlannerPrompt assembles the planner's prompt from task and the
// context keys spec.md §6 recognizes: start_url, retry, failure_history,
// failure_patterns, use_strategies.
func BuildPlannerPrompt(task string, planCtx map[string]any) string {
	var b strings.Builder
	b.WriteString("You control a web browser through a fixed action vocabulary. ")
	b.WriteString("Given a task, respond with ONLY a JSON object of the form ")
	b.WriteString(`{"steps":[{"action":"...", "selector":"...", "role":"...", "name":"...", "value":"..."}]}. `)
	b.WriteString("Do not include any prose outside the JSON object.\n\n")

	fmt.Fprintf(&b, "Task: %s\n", task)

	if startURL, ok := planCtx["start_url"].(string); ok && startURL != "" {
		fmt.Fprintf(&b, "Start URL: %s\n", startURL)
	}
	if retry, ok := planCtx["retry"].(bool); ok && retry {
		b.WriteString("This is a retry after a previous attempt failed partway through.\n")
	}
	if patterns, ok := planCtx["failure_patterns"].([]string); ok && len(patterns) > 0 {
		b.WriteString("Known failure patterns to avoid:\n")
		for _, p := range patterns {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if history, ok := planCtx["failure_history"].([]string); ok && len(history) > 0 {
		b.WriteString("Recent failures (most recent last, up to 10):\n")
		for _, h := range history {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	if useStrategies, ok := planCtx["use_strategies"].(bool); ok && useStrategies {
		b.WriteString("Prefer steps whose selectors have a proven successful strategy.\n")
	}

	return b.String()
}
