package telemetry

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store persists per-call token events to SQLite so cost can be reviewed
// across runs. A nil *Store is a valid no-op store, used when telemetry
// persistence is disabled.
type Store struct {
	db *sqlx.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS token_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT    NOT NULL,
	ticker     TEXT    NOT NULL,
	agent      TEXT    NOT NULL,
	provider   TEXT    NOT NULL,
	model      TEXT    NOT NULL,
	input_tok  INTEGER NOT NULL DEFAULT 0,
	output_tok INTEGER NOT NULL DEFAULT 0,
	latency_ms REAL    NOT NULL DEFAULT 0,
	cost_usd   REAL    NOT NULL DEFAULT 0,
	ts         TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_token_events_run ON token_events (run_id);
CREATE INDEX IF NOT EXISTS idx_token_events_agent ON token_events (agent);
`

// OpenStore opens or creates the telemetry database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// WriteRun persists every usage record of one analysis run.
func (s *Store) WriteRun(runID, ticker string, usages []Usage) error {
	if s == nil || len(usages) == 0 {
		return nil
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin telemetry write: %w", err)
	}
	for _, u := range usages {
		_, err := tx.Exec(`INSERT INTO token_events
			(run_id, ticker, agent, provider, model, input_tok, output_tok, latency_ms, cost_usd, ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID,
			ticker,
			u.Agent,
			u.Provider,
			u.Model,
			u.InputTokens,
			u.OutputTokens,
			u.Latency,
			u.EstimatedCostUSD(),
			u.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert token event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit telemetry write: %w", err)
	}
	return nil
}

// AgentStats is the cross-run rollup for one agent.
type AgentStats struct {
	Agent        string  `db:"agent"`
	Calls        int     `db:"calls"`
	AvgInput     float64 `db:"avg_input"`
	AvgOutput    float64 `db:"avg_output"`
	TotalCostUSD float64 `db:"total_cost"`
	AvgLatencyMS float64 `db:"avg_latency_ms"`
}

// ByAgent returns per-agent averages across all recorded runs, most
// expensive agent first.
func (s *Store) ByAgent() ([]AgentStats, error) {
	if s == nil {
		return nil, nil
	}
	var stats []AgentStats
	err := s.db.Select(&stats, `
		SELECT agent,
		       COUNT(*)        AS calls,
		       AVG(input_tok)  AS avg_input,
		       AVG(output_tok) AS avg_output,
		       SUM(cost_usd)   AS total_cost,
		       AVG(latency_ms) AS avg_latency_ms
		FROM token_events
		GROUP BY agent
		ORDER BY total_cost DESC`)
	if err != nil {
		return nil, fmt.Errorf("query agent stats: %w", err)
	}
	return stats, nil
}

// WindowCost is total consumption within a recent time window.
type WindowCost struct {
	Window       time.Duration `json:"-"`
	TotalTokens  int           `json:"total_tokens"`
	TotalCostUSD float64       `json:"total_cost_usd"`
}

// TotalCost returns total tokens and spend over the trailing window.
func (s *Store) TotalCost(window time.Duration) (WindowCost, error) {
	if s == nil {
		return WindowCost{Window: window}, nil
	}
	cutoff := time.Now().Add(-window).UTC().Format(time.RFC3339Nano)
	var row struct {
		Tokens *int     `db:"total_tokens"`
		Cost   *float64 `db:"total_cost"`
	}
	err := s.db.Get(&row, `
		SELECT SUM(input_tok + output_tok) AS total_tokens,
		       SUM(cost_usd)               AS total_cost
		FROM token_events WHERE ts >= ?`, cutoff)
	if err != nil {
		return WindowCost{}, fmt.Errorf("query window cost: %w", err)
	}
	out := WindowCost{Window: window}
	if row.Tokens != nil {
		out.TotalTokens = *row.Tokens
	}
	if row.Cost != nil {
		out.TotalCostUSD = *row.Cost
	}
	return out, nil
}
