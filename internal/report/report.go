// Package report renders a finished analysis into the annotated HTML
// document the dashboard shows and the PDF exporter consumes. The chunk
// annotations (data-chunk-role, data-chunk-title, data-break-before, the
// ai-content population marker) are the contract between this producer and
// the export pipeline.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/finsurf/finsurf/internal/agents"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// card is one analysis section destined for the report grid.
type card struct {
	Title       string
	Body        template.HTML
	Populated   bool
	BreakBefore bool
}

type reportData struct {
	Ticker string
	Theme  string
	Style  template.CSS
	Cards  []card
	Cost   string
}

// Build renders the analysis result as a themed, chunk-annotated HTML
// document. theme is "light" or "dark"; anything else falls back to light.
func Build(res agents.Result, theme string) (string, error) {
	if theme != "dark" {
		theme = "light"
	}

	cards := []card{
		sourcedCard("Research", res.Research),
		sourcedCard("Social Sentiment", res.Sentiment),
		markdownCard("Tax Implications", res.Tax),
		dividendCard(res.Dividend),
	}

	data := reportData{
		Ticker: res.Ticker,
		Theme:  theme,
		Style:  template.CSS(reportCSS),
		Cards:  cards,
	}
	if res.Tokens.TotalTokens > 0 {
		data.Cost = fmt.Sprintf("%d tokens · $%.4f", res.Tokens.TotalTokens, res.Tokens.TotalCostUSD)
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

func sourcedCard(title string, src agents.SourcedText) card {
	body := renderMarkdown(src.Content)
	if len(src.Citations) > 0 {
		var sb strings.Builder
		sb.WriteString(`<ol class="citations">`)
		for _, c := range src.Citations {
			sb.WriteString(`<li><a href="` + template.HTMLEscapeString(c) + `">` + template.HTMLEscapeString(c) + `</a></li>`)
		}
		sb.WriteString(`</ol>`)
		body += template.HTML(sb.String())
	}
	return card{Title: title, Body: body, Populated: strings.TrimSpace(src.Content) != ""}
}

func markdownCard(title, content string) card {
	return card{Title: title, Body: renderMarkdown(content), Populated: strings.TrimSpace(content) != ""}
}

func dividendCard(d agents.DividendAnalysis) card {
	c := markdownCard("Dividend Projection", d.Analysis)
	// Projection tables run tall; always open them on a fresh page.
	c.BreakBefore = true
	return c
}

func renderMarkdown(content string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return template.HTML("<p>" + template.HTMLEscapeString(content) + "</p>")
	}
	return template.HTML(buf.String())
}

var reportTmpl = template.Must(template.New("report").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>FinSurf | {{.Ticker}}</title>
<style>{{.Style}}</style>
</head>
<body class="theme-{{.Theme}}">
<div id="report-root">
  <div class="report-header" data-chunk-role="header" data-chunk-title="{{.Ticker}} Analysis">
    <h1>FinSurf <span class="ticker">{{.Ticker}}</span></h1>
    {{if .Cost}}<span class="cost-badge">{{.Cost}}</span>{{end}}
  </div>
  <div id="analysis-grid">
{{range .Cards}}    <div class="card" data-chunk-role="card" data-chunk-title="{{.Title}}"{{if .BreakBefore}} data-break-before="true"{{end}}>
      <h2>{{.Title}}</h2>
      {{if .Populated}}<div class="ai-content">{{.Body}}</div>{{else}}<div class="placeholder">Awaiting analysis…</div>{{end}}
    </div>
{{end}}  </div>
</div>
</body>
</html>
`))
