package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/finsurf/finsurf/internal/agents"
	"github.com/finsurf/finsurf/internal/pdfexport"
	"github.com/finsurf/finsurf/internal/report"
)

// AnalysisRunner runs the agent pipeline; *agents.Orchestrator implements it.
type AnalysisRunner interface {
	Run(ctx context.Context, req agents.Request) agents.Result
}

// ReportExporter turns report HTML into a PDF; *pdfexport.Exporter
// implements it.
type ReportExporter interface {
	Export(ctx context.Context, reportHTML string, opts pdfexport.Options) (*pdfexport.Result, error)
}

type Server struct {
	store     *SessionStore
	runner    AnalysisRunner
	exporter  ReportExporter
	statePath string
	mux       *http.ServeMux
}

// NewServer builds the dashboard handler. statePath is where the session
// snapshot lives; empty disables persistence.
func NewServer(runner AnalysisRunner, exporter ReportExporter, store *SessionStore, statePath string) *Server {
	s := &Server{
		store:     store,
		runner:    runner,
		exporter:  exporter,
		statePath: statePath,
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/status/", s.handleStatus)
	s.mux.HandleFunc("/report/", s.handleReport)
	s.mux.HandleFunc("/export/", s.handleExport)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

type analyzeRequest struct {
	Ticker       string  `json:"ticker"`
	PurchaseDate string  `json:"purchase_date"`
	SellDate     string  `json:"sell_date"`
	Shares       float64 `json:"shares"`
	Years        int     `json:"years"`
	Theme        string  `json:"theme"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid request body")
		return
	}
	req.Ticker = strings.ToUpper(strings.TrimSpace(req.Ticker))
	if req.Ticker == "" {
		writeError(w, 400, "ticker is required")
		return
	}

	sess := s.store.Create(req.Ticker, req.Theme)

	// The run outlives the HTTP request; clients poll /status for progress.
	go s.runAnalysis(sess.Token, req)

	writeJSON(w, 202, map[string]any{
		"token":  sess.Token,
		"status": sess.Status,
	})
}

func (s *Server) runAnalysis(token string, req analyzeRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res := s.runner.Run(ctx, agents.Request{
		Ticker:       req.Ticker,
		PurchaseDate: req.PurchaseDate,
		SellDate:     req.SellDate,
		Shares:       req.Shares,
		Years:        req.Years,
	})

	reportHTML, err := report.Build(res, req.Theme)
	if err != nil {
		log.Printf("dashboard: report build failed token=%s: %v", token, err)
		s.store.Fail(token, "failed to render report")
		return
	}
	s.store.Complete(token, res, reportHTML)
	s.saveState()
}

func (s *Server) saveState() {
	if s.statePath == "" {
		return
	}
	state := PersistedState{Sessions: s.store.Snapshot()}
	if err := SaveState(s.statePath, state); err != nil {
		log.Printf("dashboard: persist state failed: %v", err)
	}
}

// RestoreState reloads sessions from disk and rebuilds their report HTML.
func (s *Server) RestoreState() error {
	if s.statePath == "" {
		return nil
	}
	state, err := LoadState(s.statePath)
	if err != nil {
		return fmt.Errorf("load dashboard state: %w", err)
	}
	for _, sess := range state.Sessions {
		if sess.Result != nil && !sess.Result.Blocked {
			if html, err := report.Build(*sess.Result, sess.Theme); err == nil {
				sess.ReportHTML = html
			}
		}
	}
	s.store.Restore(state.Sessions)
	return nil
}

func pathToken(r *http.Request, prefix string) string {
	token := strings.TrimPrefix(r.URL.Path, prefix)
	return strings.TrimSuffix(token, "/")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	token := pathToken(r, "/status/")
	if token == "" {
		writeError(w, 400, "token is required")
		return
	}
	sess := s.store.Get(token)
	if sess == nil {
		writeError(w, 404, "session not found")
		return
	}
	payload := map[string]any{
		"token":  sess.Token,
		"ticker": sess.Ticker,
		"status": sess.Status,
	}
	if sess.Error != "" {
		payload["error"] = sess.Error
	}
	if sess.Result != nil {
		payload["token_summary"] = sess.Result.Tokens
		if len(sess.Result.Errors) > 0 {
			payload["warnings"] = sess.Result.Errors
		}
	}
	writeJSON(w, 200, payload)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess := s.store.Get(pathToken(r, "/report/"))
	if sess == nil {
		writeError(w, 404, "session not found")
		return
	}
	if sess.Status != StatusCompleted || sess.ReportHTML == "" {
		writeError(w, 404, "report not ready")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(200)
	_, _ = w.Write([]byte(sess.ReportHTML))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.exporter == nil {
		writeError(w, 503, "pdf exporter unavailable")
		return
	}
	token := pathToken(r, "/export/")
	sess := s.store.Get(token)
	if sess == nil {
		writeError(w, 404, "session not found")
		return
	}

	reportHTML, ok, busy := s.store.BeginExport(token)
	if busy {
		writeError(w, 409, "an export is already in progress for this report")
		return
	}
	if !ok {
		writeError(w, 404, "report not ready")
		return
	}
	defer s.store.EndExport(token)

	opts := pdfexport.Options{
		Ticker:  sess.Ticker,
		Theme:   pdfexport.ParseTheme(sess.Theme),
		Density: pdfexport.ParseDensity(r.URL.Query().Get("density")),
	}
	res, err := s.exporter.Export(r.Context(), reportHTML, opts)
	if err != nil {
		if errors.Is(err, pdfexport.ErrNoChunks) {
			writeError(w, 500, "no report content could be captured; try again")
			return
		}
		log.Printf("dashboard: export failed token=%s: %v", token, err)
		writeError(w, 500, "report generation failed")
		return
	}
	if res == nil {
		writeError(w, 404, "nothing to export")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.WriteHeader(200)
	_, _ = w.Write(res.PDF)
}
