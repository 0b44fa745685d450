package pdfexport

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// jpegQuality bounds the size of chunk captures. Lossy compression is an
// accepted tradeoff for a text-and-chart dominated report.
const jpegQuality = 80

// measureViewportHeight is arbitrary: measurement and capture pin only the
// width; captures extend beyond the viewport.
const measureViewportHeight = 1200

// Browser drives a shared headless Chrome instance. Each operation runs in
// its own tab, so concurrent captures are isolated. Close releases the
// browser process.
type Browser struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tabTimeout    time.Duration
}

// NewBrowser starts a headless browser. The caller must Close it.
func NewBrowser(ctx context.Context) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if path := detectChromePath(); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so startup errors surface here rather
	// than on the first export.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("pdfexport: starting browser: %w", err)
	}
	return &Browser{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		tabTimeout:    30 * time.Second,
	}, nil
}

func (b *Browser) Close() {
	b.browserCancel()
	b.allocCancel()
}

func (b *Browser) newTab(ctx context.Context) (context.Context, context.CancelFunc) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	timeoutCtx, timeoutCancel := context.WithTimeout(tabCtx, b.tabTimeout)
	stop := func() {
		timeoutCancel()
		tabCancel()
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-timeoutCtx.Done():
		}
	}()
	return timeoutCtx, stop
}

func dataURL(htmlDoc string) string {
	return "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
}

// MeasureWidths loads the report in a tab pinned to the fixed layout width
// and reads the live rendered width of every annotated element, keyed by
// chunk index. This is the pre-clone measurement the planner packs rows
// with.
func (b *Browser) MeasureWidths(ctx context.Context, htmlDoc string) (map[int]float64, error) {
	tabCtx, cancel := b.newTab(ctx)
	defer cancel()

	const js = `(() => {
		const out = {};
		for (const el of document.querySelectorAll('[data-chunk-index]')) {
			out[el.getAttribute('data-chunk-index')] = el.getBoundingClientRect().width;
		}
		return out;
	})()`

	raw := map[string]float64{}
	err := chromedp.Run(tabCtx,
		emulation.SetDeviceMetricsOverride(int64(PageWidth), measureViewportHeight, 1, false),
		chromedp.Navigate(dataURL(htmlDoc)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(js, &raw),
	)
	if err != nil {
		return nil, fmt.Errorf("measure widths: %w", err)
	}
	widths := make(map[int]float64, len(raw))
	for k, v := range raw {
		idx, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		widths[idx] = v
	}
	return widths, nil
}

// ResolveColor computes a color expression on an offscreen 1x1 element. An
// expression the engine rejects outright returns an empty string, which the
// caller treats as unresolvable.
func (b *Browser) ResolveColor(ctx context.Context, color string) (string, error) {
	tabCtx, cancel := b.newTab(ctx)
	defer cancel()

	js := fmt.Sprintf(`(() => {
		const el = document.createElement('div');
		el.style.cssText = 'position:absolute;width:1px;height:1px;';
		document.body.appendChild(el);
		el.style.color = %q;
		const out = el.style.color !== '' ? getComputedStyle(el).color : '';
		el.remove();
		return out;
	})()`, color)

	var resolved string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.Evaluate(js, &resolved),
	)
	if err != nil {
		return "", fmt.Errorf("resolve color: %w", err)
	}
	return resolved, nil
}

// CaptureElement loads a sanitized chunk document in a fresh tab, with the
// logical viewport pinned to the fixed layout width, and screenshots the
// element matching selector as a lossy JPEG at the given scale.
func (b *Browser) CaptureElement(ctx context.Context, htmlDoc, selector string, scale float64) (Capture, error) {
	tabCtx, cancel := b.newTab(ctx)
	defer cancel()

	if scale <= 0 {
		scale = 1
	}

	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return null;
		const r = el.getBoundingClientRect();
		return {x: r.x, y: r.y, w: r.width, h: r.height};
	})()`, selector)

	var box *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		W float64 `json:"w"`
		H float64 `json:"h"`
	}
	var shot []byte
	err := chromedp.Run(tabCtx,
		emulation.SetDeviceMetricsOverride(int64(PageWidth), measureViewportHeight, 1, false),
		chromedp.Navigate(dataURL(htmlDoc)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(js, &box),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if box == nil || box.W <= 0 || box.H <= 0 {
				return fmt.Errorf("capture target %q not found or empty", selector)
			}
			var err error
			shot, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(jpegQuality).
				WithClip(&page.Viewport{
					X:      box.X,
					Y:      box.Y,
					Width:  box.W,
					Height: box.H,
					Scale:  scale,
				}).
				WithCaptureBeyondViewport(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return Capture{}, fmt.Errorf("capture element: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(shot))
	if err != nil {
		return Capture{}, fmt.Errorf("decode capture: %w", err)
	}
	return Capture{Image: shot, PixelW: cfg.Width, PixelH: cfg.Height, Scale: scale}, nil
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
