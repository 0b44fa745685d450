package pdfexport

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Capture is one rasterized image and its physical pixel dimensions.
type Capture struct {
	Image  []byte // JPEG bytes
	PixelW int
	PixelH int
	Scale  float64
}

// RasterResult pairs a chunk with its capture. Layout dimensions divide the
// pixel dimensions by the rasterization scale.
type RasterResult struct {
	Chunk Chunk
	Capture
}

func (r RasterResult) LayoutWidth() float64  { return float64(r.PixelW) / r.Scale }
func (r RasterResult) LayoutHeight() float64 { return float64(r.PixelH) / r.Scale }

// RetryPolicy parameterizes capture retries for transient browser failures.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetry is the capture retry policy used when the caller does not
// supply one.
var DefaultRetry = RetryPolicy{Attempts: 3, Delay: 500 * time.Millisecond}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	return p
}

// run invokes fn until it succeeds or attempts are exhausted, sleeping the
// fixed delay between attempts. The context cancels the wait.
func (p RetryPolicy) run(ctx context.Context, fn func() error) error {
	p = p.normalized()
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == p.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	return err
}

// chunkCapturer is the slice of the browser driver the rasterization stage
// needs. htmlDoc is the chunk's private sanitized clone, so concurrent
// captures can never observe each other's mutations.
type chunkCapturer interface {
	CaptureElement(ctx context.Context, htmlDoc, selector string, scale float64) (Capture, error)
}

// chunkDoc is a sanitized, serialized clone ready for capture.
type chunkDoc struct {
	Chunk    Chunk
	HTML     string
	Selector string
}

// rasterizeAll captures every chunk concurrently and returns the successful
// results in original chunk order. A chunk whose capture fails after all
// retries is logged and dropped; it never aborts the export. Wall-clock
// time is therefore bounded by the slowest chunk, not the sum.
func rasterizeAll(ctx context.Context, capturer chunkCapturer, docs []chunkDoc, scale float64, retry RetryPolicy, span trace.Span) []RasterResult {
	results := make([]*RasterResult, len(docs))

	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		go func(i int, doc chunkDoc) {
			defer wg.Done()
			var c Capture
			err := retry.run(ctx, func() error {
				var capErr error
				c, capErr = capturer.CaptureElement(ctx, doc.HTML, doc.Selector, scale)
				return capErr
			})
			if err != nil {
				log.Printf("pdfexport: chunk %d capture failed after %d attempts: %v", i, retry.normalized().Attempts, err)
				span.AddEvent("chunk capture dropped", trace.WithAttributes(
					attribute.Int("chunk", i),
					attribute.String("error", err.Error()),
				))
				return
			}
			results[i] = &RasterResult{Chunk: doc.Chunk, Capture: c}
		}(i, doc)
	}
	wg.Wait()

	out := make([]RasterResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
