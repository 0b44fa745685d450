package pdfexport

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// modernColorRe matches the color functions the rasterizer cannot render.
// Up to two levels of nested parentheses are tolerated so forms like
// oklch(from var(--accent) l c h) still match as one token.
var modernColorRe = regexp.MustCompile(
	`(?i)\b(?:oklch|oklab|color)\((?:[^()]|\((?:[^()]|\([^()]*\))*\))*\)`)

// ColorResolver resolves a single CSS color expression to a browser-safe
// value, typically by computing it on an offscreen 1x1 element.
type ColorResolver interface {
	ResolveColor(ctx context.Context, color string) (string, error)
}

// colorContext carries the resolver and the per-export resolution cache.
// It lives for exactly one export call; there is no process-wide cache.
type colorContext struct {
	resolver ColorResolver
	fallback string
	cache    map[string]string
}

func newColorContext(r ColorResolver, theme Theme) *colorContext {
	return &colorContext{
		resolver: r,
		fallback: theme.FallbackColor(),
		cache:    make(map[string]string),
	}
}

// normalize rewrites every unsupported color function in s with a safe
// equivalent. Strings without such functions are returned unchanged.
func (cc *colorContext) normalize(ctx context.Context, s string) string {
	if !modernColorRe.MatchString(s) {
		return s
	}
	return modernColorRe.ReplaceAllStringFunc(s, func(m string) string {
		return cc.resolve(ctx, m)
	})
}

// resolve maps one matched color token to a safe color. Resolution errors
// never propagate: any failure yields the theme fallback.
func (cc *colorContext) resolve(ctx context.Context, token string) string {
	if v, ok := cc.cache[token]; ok {
		return v
	}
	out := cc.fallback
	if cc.resolver != nil {
		if resolved, err := cc.resolver.ResolveColor(ctx, token); err == nil && safeColor(resolved) {
			out = strings.TrimSpace(resolved)
		}
	}
	cc.cache[token] = out
	return out
}

// safeColor reports whether a resolved value is usable: non-empty, not
// still a modern color function, and not fully transparent.
func safeColor(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	switch {
	case v == "", v == "transparent", v == "rgba(0, 0, 0, 0)":
		return false
	case strings.Contains(v, "oklch("), strings.Contains(v, "oklab("), strings.HasPrefix(v, "color("):
		return false
	}
	return true
}

// normalizeColors rewrites unsupported color syntax across the three style
// surfaces of a cloned document: <style> tag bodies, inline style
// attributes, and SVG fill/stroke presentation attributes.
func (cc *colorContext) normalizeColors(ctx context.Context, doc *html.Node) {
	walkElements(doc, func(el *html.Node) {
		if el.Data == "style" {
			for c := el.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					c.Data = cc.normalize(ctx, c.Data)
				}
			}
			return
		}
		for i, a := range el.Attr {
			switch a.Key {
			case "style", "fill", "stroke":
				el.Attr[i].Val = cc.normalize(ctx, a.Val)
			}
		}
	})
}
