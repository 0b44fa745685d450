package pdfexport

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// DOM annotation contract owned by the report builder. Sanitization
// mutations are applied to per-capture clones, never to the parsed input
// tree shared across chunks.
const (
	ReportRootID    = "report-root"
	GridContainerID = "analysis-grid"

	attrChunkRole   = "data-chunk-role"
	attrChunkTitle  = "data-chunk-title"
	attrBreakBefore = "data-break-before"
	attrChunkIndex  = "data-chunk-index"
	attrCaptureTag  = "data-capture-target"

	// populatedClass marks a card body that holds rendered agent content.
	// Cards without it are still in their loading state and are skipped.
	populatedClass = "ai-content"
)

// ChunkRole classifies an annotated report element. The role is decided once
// while collecting nodes; downstream stages switch on the variant instead of
// re-inspecting attributes.
type ChunkRole int

const (
	RoleGeneric ChunkRole = iota
	RoleCard
	RoleHeader
)

func (r ChunkRole) String() string {
	switch r {
	case RoleCard:
		return "card"
	case RoleHeader:
		return "header"
	default:
		return "generic"
	}
}

func parseChunkRole(s string) ChunkRole {
	switch s {
	case "card":
		return RoleCard
	case "header":
		return RoleHeader
	default:
		return RoleGeneric
	}
}

// ReportNode is one annotated element of the report tree, read during a
// single export pass. Width is filled in by the measurement pass before
// planning.
type ReportNode struct {
	Index       int
	Role        ChunkRole
	Title       string
	BreakBefore bool
	Populated   bool
	Width       float64
}

func parseReport(reportHTML string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(reportHTML))
	if err != nil {
		return nil, fmt.Errorf("parse report html: %w", err)
	}
	return doc, nil
}

func renderHTML(doc *html.Node) (string, error) {
	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return "", fmt.Errorf("render report html: %w", err)
	}
	return sb.String(), nil
}

// collectNodes walks the report root in document order and gathers every
// element carrying a chunk annotation. As a side effect each collected
// element is tagged with its ordinal index so the measurement pass can key
// widths back to nodes.
func collectNodes(root *html.Node) []ReportNode {
	var nodes []ReportNode
	walkElements(root, func(el *html.Node) {
		if el == root {
			return
		}
		role, hasRole := getAttr(el, attrChunkRole)
		brk := getAttr2(el, attrBreakBefore) == "true"
		if !hasRole && !brk {
			return
		}
		idx := len(nodes)
		setAttr(el, attrChunkIndex, fmt.Sprintf("%d", idx))
		n := ReportNode{
			Index:       idx,
			Role:        parseChunkRole(role),
			Title:       getAttr2(el, attrChunkTitle),
			BreakBefore: brk,
			Populated:   true,
		}
		if n.Role == RoleCard {
			n.Populated = hasClassDescendant(el, populatedClass)
			n.Width = PageWidth // replaced by the measurement pass
		}
		nodes = append(nodes, n)
	})
	return nodes
}

// walkElements visits every element node under n in document order,
// including n itself when it is an element.
func walkElements(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkElements(c, visit)
	}
}

func findByID(n *html.Node, id string) *html.Node {
	var found *html.Node
	walkElements(n, func(el *html.Node) {
		if found == nil && getAttr2(el, "id") == id {
			found = el
		}
	})
	return found
}

func findByAttr(n *html.Node, key, value string) *html.Node {
	var found *html.Node
	walkElements(n, func(el *html.Node) {
		if found == nil && getAttr2(el, key) == value {
			found = el
		}
	})
	return found
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func getAttr2(n *html.Node, key string) string {
	v, _ := getAttr(n, key)
	return v
}

func setAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr2(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func hasClassDescendant(n *html.Node, class string) bool {
	found := false
	walkElements(n, func(el *html.Node) {
		if hasClass(el, class) {
			found = true
		}
	})
	return found
}

// cloneTree deep-copies a node and its subtree. Every capture operates on
// its own clone; the parsed input tree is never mutated after collection.
func cloneTree(n *html.Node) *html.Node {
	cp := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		cp.Attr = make([]html.Attribute, len(n.Attr))
		copy(cp.Attr, n.Attr)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cp.AppendChild(cloneTree(c))
	}
	return cp
}

// inline style helpers

func styleDecls(style string) [][2]string {
	var decls [][2]string
	for _, part := range strings.Split(style, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		decls = append(decls, [2]string{strings.TrimSpace(k), strings.TrimSpace(v)})
	}
	return decls
}

func joinDecls(decls [][2]string) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d[0]+": "+d[1])
	}
	return strings.Join(parts, "; ")
}

// setStyleProps rewrites the inline style attribute, overriding the given
// properties in order and preserving the rest.
func setStyleProps(n *html.Node, props ...[2]string) {
	decls := styleDecls(getAttr2(n, "style"))
	for _, p := range props {
		replaced := false
		for i, d := range decls {
			if strings.EqualFold(d[0], p[0]) {
				decls[i][1] = p[1]
				replaced = true
			}
		}
		if !replaced {
			decls = append(decls, p)
		}
	}
	setAttr(n, "style", joinDecls(decls))
}

// dropStyleProps removes the given properties from the inline style
// attribute, leaving others untouched.
func dropStyleProps(n *html.Node, props ...string) {
	decls := styleDecls(getAttr2(n, "style"))
	if len(decls) == 0 {
		return
	}
	kept := decls[:0]
	for _, d := range decls {
		drop := false
		for _, p := range props {
			if strings.EqualFold(d[0], p) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, d)
		}
	}
	setAttr(n, "style", joinDecls(kept))
}
