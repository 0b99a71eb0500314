package observer

import (
	"fmt"
	"net/url"
	"strings"

	"parallax/internal/browserdrv"
	"parallax/internal/schemas"
)

// urlPath returns rawURL's path component, defaulting to "/" for an
// unparseable or empty URL.
func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// describeState builds the human-readable "Home page | Dialog open | ..."
// summary spec.md §4.4 attaches to every captured state, grounded on
// detectors.py's _describe.
func describeState(rawURL string, roles []browserdrv.RoleTreeNode, hasToast bool, formValid schemas.FormValidity, hasLoader bool, roleDiff *float64) string {
	pageLabel := strings.Trim(urlPath(rawURL), "/")
	if pageLabel == "" {
		pageLabel = "home"
	}
	parts := []string{capitalize(pageLabel) + " page"}

	for _, r := range roles {
		if r.Role == "dialog" {
			parts = append(parts, "Dialog open")
			break
		}
	}
	if hasToast {
		parts = append(parts, "Toast visible")
	}
	switch formValid {
	case schemas.FormValidityFalse:
		parts = append(parts, "Form invalid")
	case schemas.FormValidityTrue:
		parts = append(parts, "Form valid")
	}
	if hasLoader {
		parts = append(parts, "Loading")
	}
	if roleDiff != nil {
		parts = append(parts, fmt.Sprintf("Structure changed (%.2f)", *roleDiff))
	}

	return strings.Join(parts, " | ")
}
