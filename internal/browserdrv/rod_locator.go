package browserdrv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const rodLeftClick = proto.InputMouseButtonLeft

// rodLocator is a deferred CSS-selector query against one page, optionally
// narrowed by a text filter and/or restricted to its first match. Every
// public method re-resolves the selector, matching Playwright/Rod's
// re-query-on-action semantics (a locator is a recipe, not a snapshot).
type rodLocator struct {
	page       *rod.Page
	selector   string
	textFilter string
	exactText  string
	firstOnly  bool
}

func (l *rodLocator) clone() *rodLocator {
	c := *l
	return &c
}

func (l *rodLocator) resolve(ctx context.Context) ([]*rod.Element, error) {
	elements, err := l.page.Context(ctx).Elements(l.selector)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", l.selector, err)
	}

	var matches []*rod.Element
	for _, el := range elements {
		if l.textFilter == "" && l.exactText == "" {
			matches = append(matches, el)
			continue
		}
		text, terr := el.Text()
		if terr != nil {
			continue
		}
		if l.exactText != "" && strings.TrimSpace(text) == l.exactText {
			matches = append(matches, el)
		} else if l.textFilter != "" && strings.Contains(text, l.textFilter) {
			matches = append(matches, el)
		}
	}

	if l.firstOnly && len(matches) > 1 {
		matches = matches[:1]
	}
	return matches, nil
}

func (l *rodLocator) Count(ctx context.Context) (int, error) {
	matches, err := l.resolve(ctx)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

func (l *rodLocator) First() Locator {
	c := l.clone()
	c.firstOnly = true
	return c
}

func (l *rodLocator) Filter(hasText string) Locator {
	c := l.clone()
	c.textFilter = hasText
	return c
}

// WaitFor polls until at least one visible match exists or timeout elapses,
// per spec.md §4.3.1's "visibility enforced per candidate".
func (l *rodLocator) WaitFor(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		matches, err := l.resolve(ctx)
		if err == nil {
			for _, el := range matches {
				visible, verr := el.Visible()
				if verr == nil && visible {
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("locator %q: no visible match within %v", l.selector, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (l *rodLocator) firstVisible(ctx context.Context) (*rod.Element, error) {
	matches, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("locator %q: no match", l.selector)
	}
	for _, el := range matches {
		visible, verr := el.Visible()
		if verr == nil && visible {
			return el, nil
		}
	}
	return nil, fmt.Errorf("locator %q: %d match(es), none visible", l.selector, len(matches))
}

func (l *rodLocator) ScrollIntoViewIfNeeded(ctx context.Context, timeout time.Duration) error {
	el, err := l.firstVisible(ctx)
	if err != nil {
		return err
	}
	return el.Context(ctx).ScrollIntoView()
}

func (l *rodLocator) Click(ctx context.Context) error {
	el, err := l.firstVisible(ctx)
	if err != nil {
		return err
	}
	if err := el.Context(ctx).ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll before click: %w", err)
	}
	return el.Context(ctx).Click(rodLeftClick, 1)
}

func (l *rodLocator) Fill(ctx context.Context, value string) error {
	el, err := l.firstVisible(ctx)
	if err != nil {
		return err
	}
	if err := el.Context(ctx).SelectAllText(); err == nil {
		_ = el.Context(ctx).Input("")
	}
	return el.Context(ctx).Input(value)
}

func (l *rodLocator) DoubleClick(ctx context.Context) error {
	el, err := l.firstVisible(ctx)
	if err != nil {
		return err
	}
	if err := el.Context(ctx).ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll before double click: %w", err)
	}
	return el.Context(ctx).Click(rodLeftClick, 2)
}

func (l *rodLocator) RightClick(ctx context.Context) error {
	el, err := l.firstVisible(ctx)
	if err != nil {
		return err
	}
	if err := el.Context(ctx).ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll before right click: %w", err)
	}
	return el.Context(ctx).Click(proto.InputMouseButtonRight, 1)
}

func (l *rodLocator) Hover(ctx context.Context) error {
	el, err := l.firstVisible(ctx)
	if err != nil {
		return err
	}
	if err := el.Context(ctx).ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll before hover: %w", err)
	}
	return el.Context(ctx).Hover()
}

// Type focuses the element and simulates keystrokes, as distinct from Fill's
// direct value assignment (spec.md §4.1 "type" vs "fill").
func (l *rodLocator) Type(ctx context.Context, value string) error {
	el, err := l.firstVisible(ctx)
	if err != nil {
		return err
	}
	if err := el.Context(ctx).Focus(); err != nil {
		return fmt.Errorf("focus before type: %w", err)
	}
	return l.page.Context(ctx).InsertText(value)
}

func (l *rodLocator) Focus(ctx context.Context) error {
	el, err := l.firstVisible(ctx)
	if err != nil {
		return err
	}
	return el.Context(ctx).Focus()
}

// SetChecked reads the element's current checked state and clicks only if it
// differs from the requested state, avoiding an accidental double-toggle.
func (l *rodLocator) SetChecked(ctx context.Context, checked bool) error {
	el, err := l.firstVisible(ctx)
	if err != nil {
		return err
	}
	prop, perr := el.Context(ctx).Property("checked")
	current := perr == nil && prop.Bool()
	if current == checked {
		return nil
	}
	if err := el.Context(ctx).ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll before check: %w", err)
	}
	return el.Context(ctx).Click(rodLeftClick, 1)
}

// SelectOption chooses a <select> option by value first, falling back to
// visible text, matching the original source's value-or-label tolerance.
func (l *rodLocator) SelectOption(ctx context.Context, value string) error {
	el, err := l.firstVisible(ctx)
	if err != nil {
		return err
	}
	if err := el.Context(ctx).Select([]string{value}, true, rod.SelectorTypeValue); err == nil {
		return nil
	}
	return el.Context(ctx).Select([]string{value}, true, rod.SelectorTypeText)
}

func (l *rodLocator) SetFiles(ctx context.Context, paths []string) error {
	el, err := l.firstVisible(ctx)
	if err != nil {
		return err
	}
	return el.Context(ctx).SetFiles(paths)
}

func (l *rodLocator) Bounds(ctx context.Context) (Rect, error) {
	el, err := l.firstVisible(ctx)
	if err != nil {
		return Rect{}, err
	}
	shape, err := el.Context(ctx).Shape()
	if err != nil {
		return Rect{}, fmt.Errorf("shape: %w", err)
	}
	box := shape.Box()
	if box == nil {
		return Rect{}, fmt.Errorf("locator %q: no box", l.selector)
	}
	return Rect{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}

func (l *rodLocator) AllInnerTexts(ctx context.Context) ([]string, error) {
	matches, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(matches))
	for _, el := range matches {
		text, err := el.Context(ctx).Text()
		if err != nil {
			continue
		}
		texts = append(texts, text)
	}
	return texts, nil
}
