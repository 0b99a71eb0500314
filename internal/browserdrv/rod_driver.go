package browserdrv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"parallax/internal/logging"
)

// RodConfig configures a RodDriver. Shape mirrors the teacher's
// browser.Config (DebuggerURL/Launch/Headless/viewport/timeout fields).
type RodConfig struct {
	DebuggerURL         string
	Launch              []string
	Headless            bool
	ViewportWidth        int
	ViewportHeight       int
	NavigationTimeoutMs int
}

// DefaultRodConfig mirrors browser.DefaultConfig's desktop defaults.
func DefaultRodConfig() RodConfig {
	return RodConfig{
		Headless:            true,
		ViewportWidth:       1366,
		ViewportHeight:      832,
		NavigationTimeoutMs: 30000,
	}
}

func (c RodConfig) navigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// RodDriver adapts a go-rod browser/page pair to Capability. Grounded on
// internal/browser/session_manager.go's Start/CreateSession/Navigate/Click/
// Type/Screenshot methods, stripped of the Mangle fact-sink and session
// registry (Parallax drives one page per attempt, not a multi-session
// registry of concurrent tabs).
type RodDriver struct {
	cfg     RodConfig
	browser *rod.Browser
	page    *rod.Page

	mu          sync.Mutex
	viewport    Viewport
	tracing     bool
	traceEvents []json.RawMessage
	stopTrace   func()
}

// NewRodDriver launches (or attaches to) a browser and opens one page.
func NewRodDriver(ctx context.Context, cfg RodConfig) (*RodDriver, error) {
	controlURL := cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless)
		if len(cfg.Launch) > 0 {
			l = l.Bin(cfg.Launch[0])
			for _, rawFlag := range cfg.Launch[1:] {
				flagStr := strings.TrimLeft(rawFlag, "-")
				name, val, hasVal := strings.Cut(flagStr, "=")
				if hasVal {
					l = l.Set(flags.Flag(name), val)
				} else {
					l = l.Set(flags.Flag(name))
				}
			}
		}
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	vp := Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight}
	if vp.Width == 0 {
		vp.Width = 1366
	}
	if vp.Height == 0 {
		vp.Height = 832
	}

	d := &RodDriver{cfg: cfg, browser: browser, page: page, viewport: vp}
	if err := d.SetViewportSize(ctx, vp); err != nil {
		logging.BrowserWarn("initial viewport set failed: %v", err)
	}
	return d, nil
}

func (d *RodDriver) Goto(ctx context.Context, url string) error {
	logging.BrowserDebug("goto %s", url)
	return d.page.Context(ctx).Timeout(d.cfg.navigationTimeout()).Navigate(url)
}

func (d *RodDriver) GoBack(ctx context.Context) error {
	logging.BrowserDebug("go back")
	return d.page.Context(ctx).NavigateBack()
}

func (d *RodDriver) GoForward(ctx context.Context) error {
	logging.BrowserDebug("go forward")
	return d.page.Context(ctx).NavigateForward()
}

func (d *RodDriver) Reload(ctx context.Context) error {
	logging.BrowserDebug("reload")
	return d.page.Context(ctx).Reload()
}

// WaitForLoadState gates screenshots and role-tree reads behind a quiescent
// page, per spec.md §5's "page must be quiescent... before screenshots".
func (d *RodDriver) WaitForLoadState(ctx context.Context) error {
	return d.page.Context(ctx).Timeout(d.cfg.navigationTimeout()).WaitLoad()
}

func (d *RodDriver) Screenshot(ctx context.Context, path string, fullPage bool, clip *Rect) ([]byte, error) {
	opts := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	if clip != nil {
		opts.Clip = &proto.PageViewport{
			X: clip.X, Y: clip.Y, Width: clip.Width, Height: clip.Height, Scale: 1,
		}
	}
	data, err := d.page.Context(ctx).Screenshot(fullPage, opts)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	if path != "" {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return data, fmt.Errorf("write screenshot %s: %w", path, err)
		}
	}
	return data, nil
}

func (d *RodDriver) ViewportSize() Viewport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewport
}

func (d *RodDriver) SetViewportSize(ctx context.Context, v Viewport) error {
	err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             v.Width,
		Height:            v.Height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}).Call(d.page.Context(ctx))
	if err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	d.mu.Lock()
	d.viewport = v
	d.mu.Unlock()
	return nil
}

func (d *RodDriver) Evaluate(ctx context.Context, script string, args ...any) (any, error) {
	res, err := d.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           script,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	var out any
	if res != nil && res.Value.Val() != nil {
		_ = json.Unmarshal(res.Value.Val(), &out)
	}
	return out, nil
}

func (d *RodDriver) Locator(selector string) Locator {
	return &rodLocator{page: d.page, selector: selector}
}

// GetByRole maps a handful of common ARIA roles to the HTML tags that imply
// them, unioned with an explicit role attribute selector, then filters by
// accessible name the same way the executor's role cascade does
// (spec.md §4.3.1).
func (d *RodDriver) GetByRole(role, name string, exact bool) Locator {
	css := roleToCSS(role)
	loc := &rodLocator{page: d.page, selector: css}
	if name != "" {
		if exact {
			loc.exactText = name
		} else {
			loc.textFilter = name
		}
	}
	return loc
}

func (d *RodDriver) GetByText(text string, exact bool) Locator {
	loc := &rodLocator{page: d.page, selector: "*"}
	if exact {
		loc.exactText = text
	} else {
		loc.textFilter = text
	}
	return loc
}

// roleTreeScript walks the DOM in document order collecting every element
// carrying an explicit role attribute, truncated to the first maxNodes,
// mirroring the original source's _extract_role_tree TreeWalker.
const roleTreeScript = `(maxNodes) => {
	const out = [];
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_ELEMENT);
	let node = walker.currentNode;
	while (node && out.length < maxNodes) {
		if (node.hasAttribute && node.hasAttribute('role')) {
			const role = node.getAttribute('role');
			let name = node.getAttribute('aria-label') || (node.textContent || '').trim().slice(0, 80);
			out.push({role: role, name: name});
		}
		node = walker.nextNode();
	}
	return out;
}`

// ExtractRoleTree evaluates roleTreeScript and decodes the result into
// RoleTreeNode values (spec.md §4.4 step 2).
func (d *RodDriver) ExtractRoleTree(ctx context.Context, maxNodes int) ([]RoleTreeNode, error) {
	if maxNodes <= 0 {
		maxNodes = 200
	}
	raw, err := d.Evaluate(ctx, roleTreeScript, maxNodes)
	if err != nil {
		return nil, fmt.Errorf("extract role tree: %w", err)
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, nil
	}
	nodes := make([]RoleTreeNode, 0, len(entries))
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		name, _ := m["name"].(string)
		nodes = append(nodes, RoleTreeNode{Role: role, Name: name})
	}
	return nodes, nil
}

// Drag performs a mouse down-move-up sequence from the center of the element
// matching startSelector to the center of the element matching endSelector
// (spec.md §4.1 "drag").
func (d *RodDriver) Drag(ctx context.Context, startSelector, endSelector string) error {
	start, err := d.page.Context(ctx).Element(startSelector)
	if err != nil {
		return fmt.Errorf("drag: resolve start %q: %w", startSelector, err)
	}
	end, err := d.page.Context(ctx).Element(endSelector)
	if err != nil {
		return fmt.Errorf("drag: resolve end %q: %w", endSelector, err)
	}
	startShape, err := start.Context(ctx).Shape()
	if err != nil {
		return fmt.Errorf("drag: start shape: %w", err)
	}
	endShape, err := end.Context(ctx).Shape()
	if err != nil {
		return fmt.Errorf("drag: end shape: %w", err)
	}
	startBox := startShape.Box()
	endBox := endShape.Box()
	if startBox == nil || endBox == nil {
		return fmt.Errorf("drag: missing bounding box")
	}

	page := d.page.Context(ctx)
	startX, startY := startBox.X+startBox.Width/2, startBox.Y+startBox.Height/2
	endX, endY := endBox.X+endBox.Width/2, endBox.Y+endBox.Height/2

	if err := page.Mouse.MoveTo(proto.Point{X: startX, Y: startY}); err != nil {
		return fmt.Errorf("drag: move to start: %w", err)
	}
	if err := page.Mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("drag: mouse down: %w", err)
	}
	if err := page.Mouse.MoveTo(proto.Point{X: endX, Y: endY}); err != nil {
		_ = page.Mouse.Up(proto.InputMouseButtonLeft, 1)
		return fmt.Errorf("drag: move to end: %w", err)
	}
	return page.Mouse.Up(proto.InputMouseButtonLeft, 1)
}

// namedKeys maps the key names spec.md §4.1's "key_press"/"press_key" steps
// carry to go-rod's input.Key constants.
var namedKeys = map[string]input.Key{
	"enter":      input.Enter,
	"return":     input.Enter,
	"tab":        input.Tab,
	"escape":     input.Escape,
	"esc":        input.Escape,
	"backspace":  input.Backspace,
	"delete":     input.Delete,
	"space":      input.Space,
	"arrowdown":  input.ArrowDown,
	"arrowup":    input.ArrowUp,
	"arrowleft":  input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"home":       input.Home,
	"end":        input.End,
	"pageup":     input.PageUp,
	"pagedown":   input.PageDown,
}

// PressKey sends a single named key to whatever element currently holds
// focus, falling back to typing the literal rune(s) for anything not in
// namedKeys (spec.md §4.1 "key_press"/"press_key").
func (d *RodDriver) PressKey(ctx context.Context, key string) error {
	if k, ok := namedKeys[strings.ToLower(strings.TrimSpace(key))]; ok {
		return d.page.Context(ctx).Keyboard.Type(k)
	}
	return d.page.Context(ctx).InsertText(key)
}

// StartTracing begins buffering CDP events, grounded on the teacher's
// page.Context(ctx).EachEvent registration pattern in startEventStream.
func (d *RodDriver) StartTracing(ctx context.Context) error {
	d.mu.Lock()
	if d.tracing {
		d.mu.Unlock()
		return nil
	}
	d.tracing = true
	d.traceEvents = nil
	d.mu.Unlock()

	wait, stop := d.page.Context(ctx).EachEvent(func(ev *proto.PageFrameNavigated) {
		data, _ := json.Marshal(map[string]any{
			"type": "frame_navigated",
			"url":  ev.Frame.URL,
			"ts":   time.Now().UnixMilli(),
		})
		d.mu.Lock()
		d.traceEvents = append(d.traceEvents, data)
		d.mu.Unlock()
	})
	go wait()
	d.stopTrace = stop
	return nil
}

func (d *RodDriver) StopTracing(ctx context.Context, path string) error {
	d.mu.Lock()
	if !d.tracing {
		d.mu.Unlock()
		return nil
	}
	d.tracing = false
	stop := d.stopTrace
	events := d.traceEvents
	d.mu.Unlock()

	if stop != nil {
		stop()
	}
	if path == "" {
		return nil
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write trace %s: %w", path, err)
	}
	return nil
}

func (d *RodDriver) CurrentURL() string {
	info, err := d.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (d *RodDriver) Close(ctx context.Context) error {
	if d.page != nil {
		_ = d.page.Close()
	}
	if d.browser != nil {
		return d.browser.Close()
	}
	return nil
}

// roleToCSS maps an ARIA role to a CSS selector matching either its
// implicit HTML tag or an explicit role attribute.
func roleToCSS(role string) string {
	switch strings.ToLower(role) {
	case "button":
		return `button, [role="button"], input[type="button"], input[type="submit"]`
	case "link":
		return `a[href], [role="link"]`
	case "textbox":
		return `input:not([type]), input[type="text"], input[type="email"], input[type="search"], textarea, [role="textbox"]`
	case "searchbox":
		return `input[type="search"], [role="searchbox"]`
	case "checkbox":
		return `input[type="checkbox"], [role="checkbox"]`
	case "radio":
		return `input[type="radio"], [role="radio"]`
	case "combobox":
		return `select, [role="combobox"]`
	case "heading":
		return `h1, h2, h3, h4, h5, h6, [role="heading"]`
	case "dialog":
		return `dialog, [role="dialog"], [role="alertdialog"]`
	default:
		return fmt.Sprintf(`[role="%s"]`, role)
	}
}
