// Package dashboard is the HTTP surface of FinSurf: it accepts analysis
// requests, tracks their sessions, serves the rendered report, and hands out
// PDF exports.
package dashboard

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/finsurf/finsurf/internal/agents"
)

type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusBlocked   SessionStatus = "blocked"
	StatusError     SessionStatus = "error"
)

// Session is one analysis run tracked from submission to export.
type Session struct {
	Token      string         `json:"token"`
	Ticker     string         `json:"ticker"`
	Theme      string         `json:"theme"`
	CreatedAt  time.Time      `json:"created_at"`
	Status     SessionStatus  `json:"status"`
	Error      string         `json:"error,omitempty"`
	Result     *agents.Result `json:"result,omitempty"`
	ReportHTML string         `json:"-"`

	// generating guards the export endpoint against concurrent triggers
	// for the same session.
	generating bool
}

// SessionStore is the in-memory session registry.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

func generateToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SessionStore) Create(ticker, theme string) *Session {
	sess := &Session{
		Token:     generateToken(),
		Ticker:    ticker,
		Theme:     theme,
		CreatedAt: time.Now(),
		Status:    StatusRunning,
	}
	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()
	return sess
}

func (s *SessionStore) Get(token string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[token]
}

// Complete stores the finished analysis and its rendered report.
func (s *SessionStore) Complete(token string, res agents.Result, reportHTML string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return
	}
	sess.Result = &res
	sess.ReportHTML = reportHTML
	if res.Blocked {
		sess.Status = StatusBlocked
	} else {
		sess.Status = StatusCompleted
	}
}

func (s *SessionStore) Fail(token, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		sess.Status = StatusError
		sess.Error = reason
	}
}

// BeginExport claims the session's export slot. It reports false when an
// export is already running, or when the session has no report yet.
func (s *SessionStore) BeginExport(token string) (reportHTML string, ok bool, busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, found := s.sessions[token]
	if !found || sess.Status != StatusCompleted {
		return "", false, false
	}
	if sess.generating {
		return "", false, true
	}
	sess.generating = true
	return sess.ReportHTML, true, false
}

// EndExport releases the export slot claimed by BeginExport.
func (s *SessionStore) EndExport(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		sess.generating = false
	}
}

// Snapshot returns a copy of all sessions for persistence.
func (s *SessionStore) Snapshot() map[string]*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Session, len(s.sessions))
	for token, sess := range s.sessions {
		copied := *sess
		copied.generating = false
		out[token] = &copied
	}
	return out
}

// Restore loads previously persisted sessions. Sessions that were mid-run
// when the process died come back as errored; their goroutines are gone.
func (s *SessionStore) Restore(sessions map[string]*Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range sessions {
		if sess.Status == StatusRunning {
			sess.Status = StatusError
			sess.Error = "interrupted by restart"
		}
		s.sessions[token] = sess
	}
}
