package report

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/finsurf/finsurf/internal/agents"
)

func sampleResult() agents.Result {
	return agents.Result{
		Ticker: "KO",
		Research: agents.SourcedText{
			Content:   "## Overview\n\nKO pays a **quarterly dividend**.",
			Citations: []string{"https://example.com/ko"},
		},
		Sentiment: agents.SourcedText{Content: "Neutral overall."},
		Tax:       "### Long-Term\n\n- rate applies",
		Dividend:  agents.DividendAnalysis{IsDividendStock: true, Analysis: "| Year | Payout |\n|---|---|\n| 2026 | $18.90 |"},
	}
}

func buildDoc(t *testing.T, res agents.Result, theme string) (string, *html.Node) {
	t.Helper()
	out, err := Build(res, theme)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	doc, err := html.Parse(strings.NewReader(out))
	if err != nil {
		t.Fatalf("report is not parseable HTML: %v", err)
	}
	return out, doc
}

func findAll(n *html.Node, attr, value string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == attr && a.Val == value {
					out = append(out, n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func TestBuildCarriesChunkContract(t *testing.T) {
	out, doc := buildDoc(t, sampleResult(), "light")

	if len(findAll(doc, "id", "report-root")) != 1 {
		t.Fatal("report root missing")
	}
	if len(findAll(doc, "id", "analysis-grid")) != 1 {
		t.Fatal("analysis grid missing")
	}
	if len(findAll(doc, "data-chunk-role", "header")) != 1 {
		t.Fatal("header chunk missing")
	}
	if got := len(findAll(doc, "data-chunk-role", "card")); got != 4 {
		t.Fatalf("got %d cards, want 4", got)
	}
	if len(findAll(doc, "data-break-before", "true")) != 1 {
		t.Fatal("dividend card must force a page break")
	}
	if !strings.Contains(out, `class="ai-content"`) {
		t.Fatal("populated cards must carry the ai-content marker")
	}
}

func TestBuildMarkdownRendering(t *testing.T) {
	out, _ := buildDoc(t, sampleResult(), "light")
	if !strings.Contains(out, "<strong>quarterly dividend</strong>") {
		t.Fatal("markdown emphasis not rendered")
	}
	if !strings.Contains(out, "<table>") {
		t.Fatal("GFM table not rendered")
	}
	if !strings.Contains(out, `href="https://example.com/ko"`) {
		t.Fatal("citations not linked")
	}
}

func TestBuildUnpopulatedCardHasNoContentMarker(t *testing.T) {
	res := sampleResult()
	res.Sentiment = agents.SourcedText{}
	_, doc := buildDoc(t, res, "light")

	for _, c := range findAll(doc, "data-chunk-title", "Social Sentiment") {
		var hasContent func(*html.Node) bool
		hasContent = func(n *html.Node) bool {
			if n.Type == html.ElementNode {
				for _, a := range n.Attr {
					if a.Key == "class" && strings.Contains(a.Val, "ai-content") {
						return true
					}
				}
			}
			for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
				if hasContent(ch) {
					return true
				}
			}
			return false
		}
		if hasContent(c) {
			t.Fatal("empty sentiment card must not be marked populated")
		}
	}
}

func TestBuildThemes(t *testing.T) {
	light, _ := buildDoc(t, sampleResult(), "light")
	if !strings.Contains(light, `class="theme-light"`) {
		t.Fatal("light theme class missing")
	}
	dark, _ := buildDoc(t, sampleResult(), "dark")
	if !strings.Contains(dark, `class="theme-dark"`) {
		t.Fatal("dark theme class missing")
	}
	odd, _ := buildDoc(t, sampleResult(), "solarized")
	if !strings.Contains(odd, `class="theme-light"`) {
		t.Fatal("unknown theme must fall back to light")
	}
}

func TestBuildEscapesTicker(t *testing.T) {
	res := sampleResult()
	res.Ticker = `<script>alert(1)</script>`
	out, _ := buildDoc(t, res, "light")
	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Fatal("ticker must be HTML-escaped")
	}
}

func TestBuildUsesModernColorSyntax(t *testing.T) {
	// The CSS must exercise the exporter's color normalizer.
	out, _ := buildDoc(t, sampleResult(), "dark")
	if !strings.Contains(out, "oklch(") {
		t.Fatal("report styles should use modern color functions")
	}
}
