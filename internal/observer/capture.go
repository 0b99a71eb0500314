package observer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"parallax/internal/browserdrv"
	"parallax/internal/logging"
)

// detectToastScript reports whether a toast or alert region is present.
const detectToastScript = `() => {
	const status = document.querySelector('[role="status"], [role="alert"]');
	const toast = document.querySelector('.toast, [class*="toast"], [class*="Toast"]');
	return !!(status || toast);
}`

// checkFormValidityScript returns null when no form is present, else
// true/false for whether every form currently validates.
const checkFormValidityScript = `() => {
	const forms = document.querySelectorAll('form');
	if (forms.length === 0) return null;
	for (const form of forms) {
		if (form.querySelector(':invalid')) return false;
	}
	return true;
}`

// detectLoaderScript reports whether a busy/progressbar/spinner indicator
// is present.
const detectLoaderScript = `() => {
	const busy = document.querySelector('[aria-busy="true"]');
	const progressbar = document.querySelector('[role="progressbar"]');
	const spinner = document.querySelector('[class*="spinner"], [class*="loading"], [class*="loader"]');
	return !!(busy || progressbar || spinner);
}`

// focusBoundsScript returns the padded bounding rect of the first dialog, or
// null when none is present.
const focusBoundsScript = `(padding) => {
	const dialog = document.querySelector('[role="dialog"]');
	if (!dialog) return null;
	const rect = dialog.getBoundingClientRect();
	return {
		x: Math.max(0, rect.x - padding),
		y: Math.max(0, rect.y - padding),
		width: rect.width + padding * 2,
		height: rect.height + padding * 2
	};
}`

// redactionRegionsScript returns the bounding rects of every element
// matching one of selectors, used to black out sensitive content.
const redactionRegionsScript = `(selectors) => {
	const out = [];
	selectors.forEach((sel) => {
		try {
			document.querySelectorAll(sel).forEach((el) => {
				const rect = el.getBoundingClientRect();
				if (rect.width && rect.height) {
					out.push({x: rect.x, y: rect.y, width: rect.width, height: rect.height});
				}
			});
		} catch (err) {}
	});
	return out;
}`

func (o *Observer) detectToast(ctx context.Context) bool {
	v, err := o.cap.Evaluate(ctx, detectToastScript)
	if err != nil {
		logging.ObserverWarn("toast detection failed: %v", err)
		return false
	}
	b, _ := v.(bool)
	return b
}

func (o *Observer) detectLoader(ctx context.Context) bool {
	v, err := o.cap.Evaluate(ctx, detectLoaderScript)
	if err != nil {
		logging.ObserverWarn("loader detection failed: %v", err)
		return false
	}
	b, _ := v.(bool)
	return b
}

// checkFormValidity returns nil when the page has no forms, else a bool
// pointer for the current aggregate validity.
func (o *Observer) checkFormValidity(ctx context.Context) *bool {
	v, err := o.cap.Evaluate(ctx, checkFormValidityScript)
	if err != nil {
		logging.ObserverWarn("form validity check failed: %v", err)
		return nil
	}
	if v == nil {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

func (o *Observer) redactionRegions(ctx context.Context, selectors []string) []browserdrv.Rect {
	v, err := o.cap.Evaluate(ctx, redactionRegionsScript, selectors)
	if err != nil {
		return nil
	}
	entries, ok := v.([]any)
	if !ok {
		return nil
	}
	var regions []browserdrv.Rect
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		regions = append(regions, browserdrv.Rect{
			X:      asFloat(m["x"]),
			Y:      asFloat(m["y"]),
			Width:  asFloat(m["width"]),
			Height: asFloat(m["height"]),
		})
	}
	return regions
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

// redactViewport paints opaque black rectangles over every configured
// redaction selector's bounding rect in the screenshot already written at
// path (spec.md §4.4 step 7, grounded on detectors.py's _redact_viewport /
// core.capture.redact_screenshot — reimplemented here over image/draw since
// no third-party imaging library appears anywhere in the retrieved corpus).
func (o *Observer) redactViewport(ctx context.Context, path string) {
	if !o.cfg.RedactEnabled || len(o.cfg.RedactSelectors) == 0 {
		return
	}
	regions := o.redactionRegions(ctx, o.cfg.RedactSelectors)
	if len(regions) == 0 {
		return
	}
	if err := paintRegions(path, regions); err != nil {
		logging.ObserverWarn("redaction paint failed for %s: %v", path, err)
	}
}

func paintRegions(path string, regions []browserdrv.Rect) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read screenshot: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode screenshot: %w", err)
	}

	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, image.Point{}, draw.Src)
	black := image.NewUniform(color.Black)
	for _, r := range regions {
		rect := image.Rect(int(r.X), int(r.Y), int(r.X+r.Width), int(r.Y+r.Height)).Intersect(rgba.Bounds())
		if rect.Empty() {
			continue
		}
		draw.Draw(rgba, rect, black, image.Point{}, draw.Src)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return fmt.Errorf("encode redacted screenshot: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// captureViewportScreenshot saves a full-page screenshot to
// {saveDir}/{index:02d}_{suffix}.png, redacts it, and returns the filename
// plus the byte size written (for the screenshot_quality constitution rule).
func (o *Observer) captureViewportScreenshot(ctx context.Context, suffix string) (string, int, error) {
	filename := fmt.Sprintf("%02d_%s.png", o.idx, suffix)
	if o.saveDir == "" {
		return filename, 0, nil
	}
	if err := os.MkdirAll(o.saveDir, 0755); err != nil {
		return "", 0, fmt.Errorf("mkdir %s: %w", o.saveDir, err)
	}
	out := filepath.Join(o.saveDir, filename)
	data, err := o.cap.Screenshot(ctx, out, true, nil)
	if err != nil {
		return "", 0, fmt.Errorf("screenshot %s: %w", suffix, err)
	}
	o.redactViewport(ctx, out)
	return filename, len(data), nil
}

// captureViewportVariant resizes the viewport, captures, then restores it to
// restoreTo (or desktopDefault when restoreTo is zero), matching detectors.py's
// save/resize/screenshot/restore discipline for tablet and mobile captures.
func (o *Observer) captureViewportVariant(ctx context.Context, suffix string, size, restoreTo, desktopDefault browserdrv.Viewport) (string, int, error) {
	if err := o.cap.SetViewportSize(ctx, size); err != nil {
		return "", 0, fmt.Errorf("set %s viewport: %w", suffix, err)
	}
	filename, n, err := o.captureViewportScreenshot(ctx, suffix)

	restore := restoreTo
	if restore.Width == 0 || restore.Height == 0 {
		restore = desktopDefault
	}
	if rerr := o.cap.SetViewportSize(ctx, restore); rerr != nil {
		logging.ObserverWarn("restore viewport after %s capture failed: %v", suffix, rerr)
	}
	return filename, n, err
}

// captureFocusScreenshot crops to the first dialog's padded bounding rect,
// returning ("", 0, nil) when no dialog is present.
func (o *Observer) captureFocusScreenshot(ctx context.Context) (string, int, error) {
	raw, err := o.cap.Evaluate(ctx, focusBoundsScript, o.cfg.CropFocusPaddingPx)
	if err != nil || raw == nil {
		return "", 0, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return "", 0, nil
	}
	clip := browserdrv.Rect{X: asFloat(m["x"]), Y: asFloat(m["y"]), Width: asFloat(m["width"]), Height: asFloat(m["height"])}

	filename := fmt.Sprintf("%02d_focus.png", o.idx)
	if o.saveDir == "" {
		return filename, 0, nil
	}
	if err := os.MkdirAll(o.saveDir, 0755); err != nil {
		return "", 0, fmt.Errorf("mkdir %s: %w", o.saveDir, err)
	}
	out := filepath.Join(o.saveDir, filename)
	data, err := o.cap.Screenshot(ctx, out, false, &clip)
	if err != nil {
		return "", 0, fmt.Errorf("screenshot focus: %w", err)
	}
	o.redactViewport(ctx, out)
	return filename, len(data), nil
}
