// Package telemetry accounts for LLM token consumption per analysis run and
// persists it for cost review. It also owns the process-wide trace provider.
package telemetry

import (
	"sync"
	"time"
)

// Usage is one provider call's token consumption.
type Usage struct {
	Provider     string    `db:"provider"` // gemini, anthropic, perplexity
	Agent        string    `db:"agent"`    // guardrail, research, tax, sentiment, dividend
	Model        string    `db:"model"`
	InputTokens  int       `db:"input_tok"`
	OutputTokens int       `db:"output_tok"`
	Latency      float64   `db:"latency_ms"`
	Timestamp    time.Time `db:"ts"`
}

func (u Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

// rates are USD per million tokens, from public provider price sheets.
type rates struct {
	input, output float64
}

var costPer1M = map[string]rates{
	"gemini-1.5-flash":        {input: 0.075, output: 0.30},
	"claude-3-haiku-20240307": {input: 0.25, output: 1.25},
	"sonar":                   {input: 1.0, output: 1.0},
}

// EstimatedCostUSD approximates the call's cost. Unknown models cost zero
// rather than guessing a rate.
func (u Usage) EstimatedCostUSD() float64 {
	r := costPer1M[u.Model]
	return (float64(u.InputTokens)*r.input + float64(u.OutputTokens)*r.output) / 1e6
}

// Recorder accumulates Usage records for one analysis run. Agents record
// concurrently from the fan-out goroutines.
type Recorder struct {
	mu     sync.Mutex
	usages []Usage
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(u Usage) {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now()
	}
	r.mu.Lock()
	r.usages = append(r.usages, u)
	r.mu.Unlock()
}

// Usages returns a snapshot of everything recorded so far, in record order.
func (r *Recorder) Usages() []Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Usage, len(r.usages))
	copy(out, r.usages)
	return out
}

// AgentSummary is the per-agent rollup inside a Summary.
type AgentSummary struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Calls        int     `json:"calls"`
}

// Summary is the run-level token and cost rollup shown on the dashboard.
type Summary struct {
	TotalInputTokens  int                     `json:"total_input_tokens"`
	TotalOutputTokens int                     `json:"total_output_tokens"`
	TotalTokens       int                     `json:"total_tokens"`
	TotalCostUSD      float64                 `json:"total_cost_usd"`
	ByAgent           map[string]AgentSummary `json:"by_agent"`
}

// Summarize rolls a run's usage records up into totals and a per-agent
// breakdown.
func Summarize(usages []Usage) Summary {
	s := Summary{ByAgent: make(map[string]AgentSummary)}
	for _, u := range usages {
		s.TotalInputTokens += u.InputTokens
		s.TotalOutputTokens += u.OutputTokens
		s.TotalCostUSD += u.EstimatedCostUSD()

		a := s.ByAgent[u.Agent]
		a.InputTokens += u.InputTokens
		a.OutputTokens += u.OutputTokens
		a.CostUSD += u.EstimatedCostUSD()
		a.Calls++
		s.ByAgent[u.Agent] = a
	}
	s.TotalTokens = s.TotalInputTokens + s.TotalOutputTokens
	return s
}
