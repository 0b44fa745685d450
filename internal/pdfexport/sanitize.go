package pdfexport

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// captureOverridesCSS neutralizes live-page behavior that corrupts a static
// capture: animations mid-flight, sticky headers captured outside their
// scrolling viewport, scrollable card bodies clipping their content, and
// custom letter/word spacing the rasterizer misrenders.
const captureOverridesCSS = `
* { animation: none !important; transition: none !important; letter-spacing: normal !important; word-spacing: normal !important; }
[data-chunk-role] { height: auto !important; overflow: visible !important; }
`

// sanitizeClone applies the corrective mutations that turn a cloned report
// document into a static, fully expanded snapshot of one chunk, and returns
// the CSS selector of the element to capture.
//
// The clone is private to one capture; nothing here touches the shared
// parsed tree, which is what makes concurrent chunk captures safe without
// locking.
func sanitizeClone(ctx context.Context, clone *html.Node, chunk Chunk, cc *colorContext, d Density, printCSS string) (string, error) {
	root := findByID(clone, ReportRootID)
	if root == nil {
		return "", fmt.Errorf("sanitize: report root %q missing from clone", ReportRootID)
	}

	walkElements(clone, func(el *html.Node) {
		if _, ok := getAttr(el, "style"); ok {
			fixInlineStyle(el)
		}
		if _, isChunk := getAttr(el, attrChunkRole); isChunk {
			setStyleProps(el,
				[2]string{"height", "auto"},
				[2]string{"overflow", "visible"},
			)
		}
	})

	// Pin the layout width so wrapping is identical on every exporting
	// device, whatever viewport triggered the export.
	setStyleProps(root,
		[2]string{"width", fmt.Sprintf("%dpx", int(PageWidth))},
		[2]string{"max-width", "none"},
	)

	injectStyle(clone, printCSS)
	injectStyle(clone, captureOverridesCSS)

	target := retargetChunk(clone, chunk, root, d)
	if target == nil {
		return "", fmt.Errorf("sanitize: chunk element missing from clone")
	}
	setAttr(target, attrCaptureTag, "true")

	cc.normalizeColors(ctx, clone)

	return fmt.Sprintf("[%s=%q]", attrCaptureTag, "true"), nil
}

// fixInlineStyle rewrites a single element's inline declarations: elements
// frozen mid fade-in get full opacity, transform/transition/animation are
// nulled, and sticky positioning becomes relative so headers capture at
// their in-flow offset.
func fixInlineStyle(el *html.Node) {
	dropStyleProps(el, "transform", "transition", "animation")
	for _, d := range styleDecls(getAttr2(el, "style")) {
		switch {
		case strings.EqualFold(d[0], "opacity") && d[1] == "0":
			setStyleProps(el, [2]string{"opacity", "1"})
		case strings.EqualFold(d[0], "position") && d[1] == "sticky":
			setStyleProps(el,
				[2]string{"position", "relative"},
				[2]string{"top", "0"},
			)
		}
	}
}

// retargetChunk prepares the clone for capturing exactly one chunk and
// returns the element to screenshot.
//
// For a card row whose cards live in the known grid container, the capture
// target is the container itself: siblings outside the row are hidden and
// the survivors are laid out as an explicit flex row with the density gap,
// so row members render edge to edge with correct flex layout. Everything
// else captures the element directly. An empty chunk captures the whole
// report root.
func retargetChunk(clone *html.Node, chunk Chunk, root *html.Node, d Density) *html.Node {
	if len(chunk.Nodes) == 0 {
		return root
	}

	first := findByAttr(clone, attrChunkIndex, strconv.Itoa(chunk.Nodes[0].Index))
	if first == nil {
		return nil
	}
	if !chunk.IsCardRow() {
		return first
	}

	grid := findByID(clone, GridContainerID)
	if grid == nil || !contains(grid, first) {
		return first
	}

	keep := make(map[string]bool, len(chunk.Nodes))
	for _, n := range chunk.Nodes {
		keep[strconv.Itoa(n.Index)] = true
	}
	walkElements(grid, func(el *html.Node) {
		if getAttr2(el, attrChunkRole) != "card" {
			return
		}
		if !keep[getAttr2(el, attrChunkIndex)] {
			setStyleProps(el, [2]string{"display", "none"})
		}
	})
	setStyleProps(grid,
		[2]string{"display", "flex"},
		[2]string{"flex-direction", "row"},
		[2]string{"align-items", "flex-start"},
		[2]string{"gap", fmt.Sprintf("%dpx", int(d.CardGap()))},
	)
	return grid
}

func contains(parent, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == parent {
			return true
		}
	}
	return false
}

func injectStyle(doc *html.Node, css string) {
	if css == "" {
		return
	}
	style := &html.Node{Type: html.ElementNode, Data: "style"}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: css})

	if head := findElement(doc, "head"); head != nil {
		head.AppendChild(style)
		return
	}
	doc.AppendChild(style)
}

func findElement(n *html.Node, name string) *html.Node {
	var found *html.Node
	walkElements(n, func(el *html.Node) {
		if found == nil && el.Data == name {
			found = el
		}
	})
	return found
}
