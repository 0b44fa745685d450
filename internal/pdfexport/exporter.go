// Package pdfexport turns the dashboard's annotated HTML report into a
// multi-page PDF. The pipeline is strictly one-directional: report DOM →
// chunk plan → parallel rasterization → page assembly → file bytes. No
// state survives between exports; every call is an independent run.
package pdfexport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/html"
)

// AppName prefixes every exported filename.
const AppName = "FinSurf"

// ErrNoChunks is returned when not a single chunk could be captured; no
// document is produced in that case.
var ErrNoChunks = errors.New("pdfexport: no report chunks could be captured")

// BrowserDriver is the headless-browser capability the exporter needs:
// a live-width measurement pass, offscreen color resolution, and per-chunk
// element capture. *Browser implements it; tests substitute fakes.
type BrowserDriver interface {
	MeasureWidths(ctx context.Context, htmlDoc string) (map[int]float64, error)
	ResolveColor(ctx context.Context, color string) (string, error)
	CaptureElement(ctx context.Context, htmlDoc, selector string, scale float64) (Capture, error)
}

// Options is the configuration surface one export consumes.
type Options struct {
	Ticker   string
	Theme    Theme
	Density  Density
	Scale    float64 // rasterization quality multiplier; 0 means 2x
	PrintCSS string  // print-specific overrides injected into every clone
	Retry    RetryPolicy
}

func (o Options) normalized() Options {
	if o.Scale <= 0 {
		o.Scale = 2
	}
	if o.Retry.Attempts == 0 {
		o.Retry = DefaultRetry
	}
	return o
}

// Result is one finished export.
type Result struct {
	Filename string
	PDF      []byte
	Pages    int
	Chunks   int
	Dropped  int // chunks that failed capture and were skipped
}

// Exporter runs the export pipeline against a browser driver. It holds no
// per-export state and is safe for concurrent use if the driver is.
type Exporter struct {
	driver BrowserDriver
}

func NewExporter(driver BrowserDriver) *Exporter {
	return &Exporter{driver: driver}
}

var tracer = otel.Tracer("finsurf/pdfexport")

// Export runs one full pipeline pass over the report HTML.
//
// A missing report root is not an error: there is nothing to export and
// (nil, nil) is returned. If some chunks fail capture the document is still
// produced from the survivors; only a total capture failure is an error.
func (e *Exporter) Export(ctx context.Context, reportHTML string, opts Options) (res *Result, err error) {
	defer func() {
		// The pipeline must never surface a raw panic to the dashboard.
		if r := recover(); r != nil {
			log.Printf("pdfexport: pipeline panic: %v", r)
			res, err = nil, fmt.Errorf("report generation failed")
		}
	}()

	opts = opts.normalized()
	ctx, span := tracer.Start(ctx, "pdfexport.Export")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticker", opts.Ticker),
		attribute.String("theme", opts.Theme.String()),
		attribute.String("density", opts.Density.String()),
		attribute.Float64("scale", opts.Scale),
	)

	doc, err := parseReport(reportHTML)
	if err != nil {
		return nil, err
	}
	root := findByID(doc, ReportRootID)
	if root == nil {
		// Nothing to export.
		return nil, nil
	}

	nodes := collectNodes(root)
	chunks := e.plan(ctx, doc, nodes, opts)
	span.SetAttributes(attribute.Int("chunks.planned", len(chunks)))

	cc := newColorContext(e.driver, opts.Theme)
	docs := make([]chunkDoc, 0, len(chunks))
	for _, ch := range chunks {
		clone := cloneTree(doc)
		selector, sErr := sanitizeClone(ctx, clone, ch, cc, opts.Density, opts.PrintCSS)
		if sErr != nil {
			log.Printf("pdfexport: sanitize chunk failed: %v", sErr)
			continue
		}
		serialized, rErr := renderHTML(clone)
		if rErr != nil {
			log.Printf("pdfexport: serialize chunk failed: %v", rErr)
			continue
		}
		docs = append(docs, chunkDoc{Chunk: ch, HTML: serialized, Selector: selector})
	}

	results := rasterizeAll(ctx, e.driver, docs, opts.Scale, opts.Retry, span)
	if len(results) == 0 {
		span.SetStatus(codes.Error, "no chunks captured")
		return nil, ErrNoChunks
	}

	pageDoc := assemblePages(results, opts.Density)
	pdf, err := renderPDF(pageDoc, opts.Theme)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("chunks.captured", len(results)),
		attribute.Int("pages", len(pageDoc.Pages)),
	)
	return &Result{
		Filename: Filename(opts.Ticker),
		PDF:      pdf,
		Pages:    len(pageDoc.Pages),
		Chunks:   len(results),
		Dropped:  len(docs) - len(results),
	}, nil
}

// plan measures live widths and partitions the annotated nodes into the
// chunk sequence. When the report carries no annotations at all, the whole
// root is treated as one chunk.
func (e *Exporter) plan(ctx context.Context, doc *html.Node, nodes []ReportNode, opts Options) []Chunk {
	if len(nodes) == 0 {
		return []Chunk{{}}
	}

	serialized, err := renderHTML(doc)
	if err == nil {
		widths, mErr := e.driver.MeasureWidths(ctx, serialized)
		if mErr != nil {
			// Degrade to full-width cards: one card per row.
			log.Printf("pdfexport: width measurement failed, using full-width fallback: %v", mErr)
		} else {
			for i := range nodes {
				if w, ok := widths[nodes[i].Index]; ok && w > 0 {
					nodes[i].Width = w
				}
			}
		}
	}
	return PlanChunks(nodes, opts.Density)
}

// Filename derives the download name from the active ticker, falling back
// to a generic name when no ticker is set.
func Filename(ticker string) string {
	t := sanitizeTicker(ticker)
	if t == "" {
		t = "Analysis"
	}
	return fmt.Sprintf("%s-Report-%s.pdf", AppName, t)
}

func sanitizeTicker(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return -1
		}
	}, v)
}
