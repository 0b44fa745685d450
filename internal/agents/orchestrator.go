package agents

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/finsurf/finsurf/internal/telemetry"
)

// Dividend routing keywords, matched against lowercased research prose. The
// dividend agent only runs when a signal phrase appears without a negation,
// which skips roughly two thousand tokens per non-dividend query.
var (
	dividendSignals = []string{
		"dividend yield", "annual dividend", "dividend per share",
		"ex-dividend", "dividend payout", "pays a dividend",
		"quarterly dividend", "dividend growth",
	}
	dividendNegations = []string{
		"does not pay a dividend", "no dividend", "does not pay dividends",
		"non-dividend", "does not currently pay",
	}
)

func signalsDividend(research string) bool {
	lower := strings.ToLower(research)
	signal := false
	for _, kw := range dividendSignals {
		if strings.Contains(lower, kw) {
			signal = true
			break
		}
	}
	if !signal {
		return false
	}
	for _, kw := range dividendNegations {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	return true
}

// Request is one analysis run's input.
type Request struct {
	Ticker        string
	PurchaseDate  string
	SellDate      string
	Shares        float64
	Years         int
	SkipGuardrail bool
}

func (r Request) withDefaults() Request {
	if r.Shares <= 0 {
		r.Shares = 1
	}
	if r.Years <= 0 {
		r.Years = 3
	}
	return r
}

// Result is the merged output of a full analysis run. Every field is always
// populated; agent failures surface as placeholder content plus an entry in
// Errors, never as a missing section.
type Result struct {
	RunID   string            `json:"run_id"`
	Ticker  string            `json:"ticker"`
	Blocked bool              `json:"blocked"`
	Errors  []string          `json:"errors,omitempty"`
	Tokens  telemetry.Summary `json:"token_summary"`

	Research  SourcedText      `json:"research"`
	Tax       string           `json:"tax"`
	Sentiment SourcedText      `json:"sentiment"`
	Dividend  DividendAnalysis `json:"dividend"`
}

// Orchestrator runs the agent pipeline: guardrail, research, then tax and
// sentiment in parallel, with the dividend agent routed in only when the
// research prose signals a dividend payer.
type Orchestrator struct {
	crew  Crew
	store *telemetry.Store
}

// NewOrchestrator wires the crew to a telemetry store. A nil store disables
// persistence but not accounting.
func NewOrchestrator(crew Crew, store *telemetry.Store) *Orchestrator {
	return &Orchestrator{crew: crew, store: store}
}

var agentTracer = otel.Tracer("finsurf/agents")

// Run executes one full analysis. The run always completes: every agent
// traps its own failure into placeholder output and the error list.
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	req = req.withDefaults()
	ctx, span := agentTracer.Start(ctx, "agents.Run",
		trace.WithAttributes(attribute.String("ticker", req.Ticker)))
	defer span.End()

	rec := telemetry.NewRecorder()
	res := Result{RunID: uuid.NewString(), Ticker: req.Ticker}

	var mu sync.Mutex
	addErr := func(format string, args ...any) {
		mu.Lock()
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	safe := true
	if !req.SkipGuardrail {
		var err error
		safe, err = o.crew.Guardrail(ctx, rec, req.Ticker)
		if err != nil {
			safe = false
			addErr("guardrail error: %v", err)
		}
	}
	if !safe {
		res.Blocked = true
		res.Research = SourcedText{
			Content:   "### Blocked\n\nThis request was blocked by the security guardrail.",
			Citations: []string{},
		}
		o.finish(&res, rec, span)
		return res
	}

	isDividend := false
	research, err := o.crew.Research(ctx, rec, req.Ticker)
	if err != nil {
		addErr("research error: %v", err)
		research = SourcedText{Content: fmt.Sprintf("Research failed: %v", err), Citations: []string{}}
	} else {
		isDividend = signalsDividend(research.Content)
	}
	res.Research = research
	span.SetAttributes(attribute.Bool("dividend.routed", isDividend))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tax, err := o.crew.TaxAnalysis(ctx, rec, req.Ticker, req.PurchaseDate, req.SellDate)
		if err != nil {
			addErr("tax error: %v", err)
			tax = fmt.Sprintf("### Tax Analysis Unavailable\n\nReason: %v", err)
		}
		res.Tax = tax

		// Dividend routing follows the tax branch so both web agents
		// keep the search provider to themselves while it runs.
		if isDividend {
			res.Dividend = o.crew.DividendProjection(ctx, rec, req.Ticker, req.Shares, req.Years)
		} else {
			res.Dividend = DividendAnalysis{
				Analysis: fmt.Sprintf("### No Dividend Data\n\n**%s** does not appear to pay dividends.", req.Ticker),
			}
		}
	}()
	go func() {
		defer wg.Done()
		sentiment, err := o.crew.Sentiment(ctx, rec, req.Ticker)
		if err != nil {
			addErr("sentiment error: %v", err)
			sentiment = SourcedText{Content: fmt.Sprintf("Sentiment failed: %v", err), Citations: []string{}}
		}
		res.Sentiment = sentiment
	}()
	wg.Wait()

	o.finish(&res, rec, span)
	return res
}

// finish summarizes token usage and persists the run best-effort.
func (o *Orchestrator) finish(res *Result, rec *telemetry.Recorder, span trace.Span) {
	usages := rec.Usages()
	res.Tokens = telemetry.Summarize(usages)
	span.SetAttributes(
		attribute.Int("tokens.total", res.Tokens.TotalTokens),
		attribute.Float64("cost.usd", res.Tokens.TotalCostUSD),
	)
	for _, e := range res.Errors {
		log.Printf("agents: run %s warning: %s", res.RunID, e)
	}
	if err := o.store.WriteRun(res.RunID, res.Ticker, usages); err != nil {
		log.Printf("agents: telemetry write failed: %v", err)
	}
}
