// Package agents runs the FinSurf analysis crew: a security guardrail plus
// research, tax, sentiment, and dividend agents, fanned out across LLM
// providers and merged into one analysis.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Completion is one provider response plus its token accounting.
type Completion struct {
	Text         string
	Citations    []string
	InputTokens  int
	OutputTokens int
}

// Caller is the provider seam every agent calls through. Tests substitute
// fakes; production wires Gemini, Perplexity, and Anthropic clients.
type Caller interface {
	Complete(ctx context.Context, system, prompt string) (Completion, error)
}

// placeholder tokens that ship in sample .env files; a key containing one
// is treated as absent.
var placeholders = []string{"INSERT_KEY_HERE", "YOUR_API_KEY"}

func isPlaceholder(key string) bool {
	if key == "" {
		return true
	}
	upper := strings.ToUpper(key)
	for _, p := range placeholders {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}

// envKey returns the first non-empty environment variable from names.
func envKey(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func validateKey(provider, key string) (string, error) {
	if isPlaceholder(key) {
		return "", fmt.Errorf("%s API key is missing or a placeholder", provider)
	}
	return strings.Trim(strings.TrimSpace(key), `"'`), nil
}

// AllowedProviders reads the provider allowlist from ALLOWED_PROVIDERS
// (comma-separated). Unset means the default working set.
func AllowedProviders() map[string]bool {
	raw := os.Getenv("ALLOWED_PROVIDERS")
	if raw == "" {
		return map[string]bool{"gemini": true, "perplexity": true, "anthropic": true}
	}
	out := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out[p] = true
		}
	}
	return out
}

// retryStatus reports whether an HTTP status is worth retrying.
func retryStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// postJSON issues one JSON POST with retries on 429/5xx, decoding the
// response into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any, maxRetries int) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		blob, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("status=%d body=%s", resp.StatusCode, string(blob))
			if retryStatus(resp.StatusCode) {
				continue
			}
			return lastErr
		}
		if err := json.Unmarshal(blob, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return lastErr
}

// --- Gemini ---

const geminiModel = "gemini-1.5-flash"

type GeminiClient struct {
	key     string
	baseURL string
	http    *http.Client
}

func NewGeminiClientFromEnv() (*GeminiClient, error) {
	key, err := validateKey("Gemini", envKey("GEMINI_API_KEY", "API_KEY"))
	if err != nil {
		return nil, err
	}
	return &GeminiClient{
		key:     key,
		baseURL: "https://generativelanguage.googleapis.com",
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   any     `json:"responseSchema,omitempty"`
	Temperature      float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (g *GeminiClient) Model() string { return geminiModel }

func (g *GeminiClient) Complete(ctx context.Context, system, prompt string) (Completion, error) {
	return g.generate(ctx, system, prompt, "", nil)
}

// CompleteJSON constrains the response to structured JSON matching schema.
func (g *GeminiClient) CompleteJSON(ctx context.Context, system, prompt string, schema any) (Completion, error) {
	return g.generate(ctx, system, prompt, "application/json", schema)
}

func (g *GeminiClient) generate(ctx context.Context, system, prompt, mimeType string, schema any) (Completion, error) {
	req := geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenConfig{Temperature: 0.1, ResponseMIMEType: mimeType, ResponseSchema: schema},
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, geminiModel, g.key)
	var resp geminiResponse
	if err := postJSON(ctx, g.http, url, nil, req, &resp, 3); err != nil {
		return Completion{}, fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return Completion{}, errors.New("gemini: no candidates in response")
	}
	return Completion{
		Text:         resp.Candidates[0].Content.Parts[0].Text,
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// --- Perplexity ---

const perplexityModel = "sonar"

type PerplexityClient struct {
	key     string
	baseURL string
	http    *http.Client
}

func NewPerplexityClientFromEnv() (*PerplexityClient, error) {
	key, err := validateKey("Perplexity", os.Getenv("PERPLEXITY_API_KEY"))
	if err != nil {
		return nil, err
	}
	return &PerplexityClient{
		key:     key,
		baseURL: "https://api.perplexity.ai",
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type perplexityResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
	Usage     struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *PerplexityClient) Model() string { return perplexityModel }

func (p *PerplexityClient) Complete(ctx context.Context, system, prompt string) (Completion, error) {
	req := perplexityRequest{Model: perplexityModel}
	if system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt})

	headers := map[string]string{"Authorization": "Bearer " + p.key}
	var resp perplexityResponse
	if err := postJSON(ctx, p.http, p.baseURL+"/chat/completions", headers, req, &resp, 2); err != nil {
		return Completion{}, fmt.Errorf("perplexity: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.New("perplexity: no choices in response")
	}
	return Completion{
		Text:         resp.Choices[0].Message.Content,
		Citations:    resp.Citations,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// --- Anthropic ---

const anthropicModel = "claude-3-haiku-20240307"

// AnthropicMessager is the slice of the Anthropic SDK the client uses.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClient struct {
	messages AnthropicMessager
}

func NewAnthropicClientFromEnv() (*AnthropicClient, error) {
	key, err := validateKey("Anthropic", os.Getenv("ANTHROPIC_API_KEY"))
	if err != nil {
		return nil, err
	}
	c := anthropic.NewClient(option.WithAPIKey(key))
	return &AnthropicClient{messages: &c.Messages}, nil
}

func (a *AnthropicClient) Model() string { return anthropicModel }

func (a *AnthropicClient) Complete(ctx context.Context, system, prompt string) (Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(anthropicModel),
		MaxTokens: 1024,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	resp, err := a.messages.New(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("anthropic: %w", err)
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return Completion{
		Text:         sb.String(),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
