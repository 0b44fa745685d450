package pdfexport

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// Placement positions one captured image on a page, in layout units.
type Placement struct {
	Image []byte
	Y     float64
	W     float64
	H     float64
}

// Page is one output page. Width is always PageWidth; Height is computed
// per page. Occupied height never exceeds Height.
type Page struct {
	Width      float64
	Height     float64
	Placements []Placement
}

// PageDocument is the ordered page list produced by the assembler.
type PageDocument struct {
	Pages []Page
}

// effectiveGap is the vertical gap placed before cur: two consecutive card
// rows use the density's card gap, any other adjacency uses the chunk gap.
func effectiveGap(prev, cur RasterResult, d Density) float64 {
	if prev.Chunk.IsCardRow() && cur.Chunk.IsCardRow() {
		return d.CardGap()
	}
	return d.ChunkGap()
}

// assemblePages lays the captured chunks onto pages.
//
// When the whole report fits under the density's single-page threshold
// (inclusive), one page is emitted sized exactly to the content. Otherwise
// pages are at least refPageHeight tall (or the opening chunk's height if
// taller) and a new page starts whenever a chunk carries an explicit break
// or would overflow the remaining space.
func assemblePages(results []RasterResult, d Density) PageDocument {
	if len(results) == 0 {
		return PageDocument{}
	}

	totalHeight := 0.0
	for i, r := range results {
		if i > 0 {
			totalHeight += effectiveGap(results[i-1], r, d)
		}
		totalHeight += r.LayoutHeight()
	}

	if totalHeight <= d.SinglePageThreshold() {
		pg := Page{Width: PageWidth, Height: totalHeight}
		y := 0.0
		for i, r := range results {
			if i > 0 {
				y += effectiveGap(results[i-1], r, d)
			}
			pg.Placements = append(pg.Placements, Placement{Image: r.Image, Y: y, W: r.LayoutWidth(), H: r.LayoutHeight()})
			y += r.LayoutHeight()
		}
		return PageDocument{Pages: []Page{pg}}
	}

	var doc PageDocument
	var cur Page
	cursor := 0.0

	open := func(r RasterResult) {
		h := r.LayoutHeight()
		cur = Page{Width: PageWidth, Height: max(refPageHeight, h)}
		cur.Placements = append(cur.Placements, Placement{Image: r.Image, Y: 0, W: r.LayoutWidth(), H: h})
		cursor = h
	}

	open(results[0])
	for i := 1; i < len(results); i++ {
		r := results[i]
		gap := effectiveGap(results[i-1], r, d)
		h := r.LayoutHeight()
		if r.Chunk.BreakBefore || cursor+gap+h > cur.Height {
			doc.Pages = append(doc.Pages, cur)
			open(r)
			continue
		}
		cur.Placements = append(cur.Placements, Placement{Image: r.Image, Y: cursor + gap, W: r.LayoutWidth(), H: h})
		cursor += gap + h
	}
	doc.Pages = append(doc.Pages, cur)
	return doc
}

// renderPDF serializes the page document. Page sizes are expressed directly
// in layout units (points), portrait by convention for the segmented
// pipeline, with the page background filled per theme before images are
// placed.
func renderPDF(doc PageDocument, theme Theme) ([]byte, error) {
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("render pdf: empty page document")
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: doc.Pages[0].Width, Ht: doc.Pages[0].Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	r, g, b := theme.Background()
	opts := fpdf.ImageOptions{ImageType: "JPEG"}
	for i, page := range doc.Pages {
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: page.Width, Ht: page.Height})
		pdf.SetFillColor(r, g, b)
		pdf.Rect(0, 0, page.Width, page.Height, "F")
		for j, pl := range page.Placements {
			name := fmt.Sprintf("chunk-%d-%d", i, j)
			pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(pl.Image))
			pdf.ImageOptions(name, 0, pl.Y, pl.W, pl.H, false, opts, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
