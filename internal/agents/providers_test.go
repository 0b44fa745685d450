package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestIsPlaceholder(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{"", true},
		{"INSERT_KEY_HERE", true},
		{"sk-insert_key_here-123", true},
		{"YOUR_API_KEY", true},
		{"sk-real-key-abc123", false},
	}
	for _, tc := range cases {
		if got := isPlaceholder(tc.key); got != tc.want {
			t.Errorf("isPlaceholder(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}
}

func TestValidateKeyStripsQuotes(t *testing.T) {
	got, err := validateKey("Gemini", ` "sk-abc" `)
	if err != nil {
		t.Fatal(err)
	}
	if got != "sk-abc" {
		t.Fatalf("got %q", got)
	}
}

func TestAllowedProvidersDefault(t *testing.T) {
	t.Setenv("ALLOWED_PROVIDERS", "")
	allowed := AllowedProviders()
	for _, p := range []string{"gemini", "perplexity", "anthropic"} {
		if !allowed[p] {
			t.Fatalf("%s should be allowed by default", p)
		}
	}
}

func TestAllowedProvidersExplicit(t *testing.T) {
	t.Setenv("ALLOWED_PROVIDERS", "Gemini, perplexity")
	allowed := AllowedProviders()
	if !allowed["gemini"] || !allowed["perplexity"] {
		t.Fatalf("listed providers missing: %v", allowed)
	}
	if allowed["anthropic"] {
		t.Fatal("unlisted provider should be disallowed")
	}
}

func TestRetryStatus(t *testing.T) {
	for _, code := range []int{429, 502, 503, 504} {
		if !retryStatus(code) {
			t.Errorf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{400, 401, 404, 500} {
		if retryStatus(code) {
			t.Errorf("status %d should not be retryable", code)
		}
	}
}

func TestPostJSONClientErrorDoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	var out map[string]any
	err := postJSON(context.Background(), srv.Client(), srv.URL, nil, map[string]string{}, &out, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1: 4xx must not be retried", calls)
	}
}

func TestGeminiComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-1.5-flash") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "analyst" {
			t.Error("system instruction not forwarded")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "NVDA looks strong"}}}},
			},
			"usageMetadata": map[string]any{"promptTokenCount": 12, "candidatesTokenCount": 34},
		})
	}))
	defer srv.Close()

	g := &GeminiClient{key: "k", baseURL: srv.URL, http: srv.Client()}
	out, err := g.Complete(context.Background(), "analyst", "research NVDA")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Text != "NVDA looks strong" {
		t.Fatalf("text = %q", out.Text)
	}
	if out.InputTokens != 12 || out.OutputTokens != 34 {
		t.Fatalf("usage = %d/%d", out.InputTokens, out.OutputTokens)
	}
}

func TestGeminiNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	g := &GeminiClient{key: "k", baseURL: srv.URL, http: srv.Client()}
	if _, err := g.Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("empty candidate list should error")
	}
}

func TestPerplexityComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer pk" {
			t.Errorf("auth header = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices":   []map[string]any{{"message": map[string]any{"role": "assistant", "content": "bullish"}}},
			"citations": []string{"https://example.com/a"},
			"usage":     map[string]any{"prompt_tokens": 5, "completion_tokens": 9},
		})
	}))
	defer srv.Close()

	p := &PerplexityClient{key: "pk", baseURL: srv.URL, http: srv.Client()}
	out, err := p.Complete(context.Background(), "sys", "sentiment for F")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Text != "bullish" {
		t.Fatalf("text = %q", out.Text)
	}
	if len(out.Citations) != 1 || out.Citations[0] != "https://example.com/a" {
		t.Fatalf("citations = %v", out.Citations)
	}
	if out.InputTokens != 5 || out.OutputTokens != 9 {
		t.Fatalf("usage = %d/%d", out.InputTokens, out.OutputTokens)
	}
}

func TestPostJSONContextCancelStopsRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out map[string]any
	start := time.Now()
	err := postJSON(ctx, srv.Client(), srv.URL, nil, map[string]string{}, &out, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("canceled context should abort the retry backoff")
	}
}
