// Package browserdrv defines the opaque browser-driver capability the
// executor and observer depend on (spec.md §6), plus a go-rod-backed
// implementation. Neither Executor nor Observer may import go-rod or proto
// directly; they see only Capability and Locator.
package browserdrv

import (
	"context"
	"time"
)

// Viewport is a width/height pair in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// Rect is a clip region for a partial screenshot, in page coordinates.
type Rect struct {
	X, Y, Width, Height float64
}

// Locator is a deferred element query: resolving it happens lazily, at the
// point an action is performed, matching the cascade's "resolve, check
// count/visibility, then act" discipline (spec.md §4.3.1).
type Locator interface {
	// Count returns the number of elements currently matching.
	Count(ctx context.Context) (int, error)
	// First narrows the locator to its first match.
	First() Locator
	// Filter narrows the locator to matches whose visible text contains hasText.
	Filter(hasText string) Locator
	// WaitFor blocks until at least one visible match exists or timeout elapses.
	WaitFor(ctx context.Context, timeout time.Duration) error
	// ScrollIntoViewIfNeeded scrolls the first match into the viewport.
	ScrollIntoViewIfNeeded(ctx context.Context, timeout time.Duration) error
	// Click clicks the first match.
	Click(ctx context.Context) error
	// DoubleClick double-clicks the first match.
	DoubleClick(ctx context.Context) error
	// RightClick right-clicks the first match.
	RightClick(ctx context.Context) error
	// Hover moves the pointer over the first match without clicking.
	Hover(ctx context.Context) error
	// Fill clears and sets value directly on the first match.
	Fill(ctx context.Context, value string) error
	// Type simulates keystrokes into the first match, focusing it first.
	Type(ctx context.Context, value string) error
	// Focus focuses the first match.
	Focus(ctx context.Context) error
	// SetChecked sets a checkbox/radio's checked state, clicking only if
	// the current state differs from checked.
	SetChecked(ctx context.Context, checked bool) error
	// SelectOption chooses a dropdown option by value or visible text.
	SelectOption(ctx context.Context, value string) error
	// SetFiles sets a file input's selected files.
	SetFiles(ctx context.Context, paths []string) error
	// Bounds returns the first match's bounding rect in page coordinates.
	Bounds(ctx context.Context) (Rect, error)
	// AllInnerTexts returns the visible text of every current match.
	AllInnerTexts(ctx context.Context) ([]string, error)
}

// RoleTreeNode is one accessibility-tree entry as extracted by
// ExtractRoleTree, matching schemas.RoleNode's shape one layer below the
// core so browserdrv need not import schemas.
type RoleTreeNode struct {
	Role string
	Name string
}

// Capability is the opaque browser-driver surface spec.md §6 requires: the
// core may call only these methods, never a particular driver's protocol.
type Capability interface {
	Goto(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	Reload(ctx context.Context) error
	WaitForLoadState(ctx context.Context) error
	Screenshot(ctx context.Context, path string, fullPage bool, clip *Rect) ([]byte, error)

	ViewportSize() Viewport
	SetViewportSize(ctx context.Context, v Viewport) error

	Evaluate(ctx context.Context, script string, args ...any) (any, error)

	Locator(selector string) Locator
	GetByRole(role, name string, exact bool) Locator
	GetByText(text string, exact bool) Locator

	// ExtractRoleTree walks the DOM for elements carrying an explicit role
	// attribute, breadth-first in document order, truncated to maxNodes
	// (spec.md §4.4 step 2).
	ExtractRoleTree(ctx context.Context, maxNodes int) ([]RoleTreeNode, error)

	// Drag drags from the element matching startSelector to the element
	// matching endSelector (spec.md §4.1 "drag").
	Drag(ctx context.Context, startSelector, endSelector string) error

	// PressKey sends a single named key to the currently focused element
	// (spec.md §4.1 "key_press"/"press_key").
	PressKey(ctx context.Context, key string) error

	StartTracing(ctx context.Context) error
	StopTracing(ctx context.Context, path string) error

	CurrentURL() string
	Close(ctx context.Context) error
}
