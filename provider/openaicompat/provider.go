package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nvasilev/mobpilot"
)

// Compile-time interface checks.
var (
	_ mobpilot.Provider          = (*Provider)(nil)
	_ mobpilot.StreamingProvider = (*Provider)(nil)
)

// Provider implements mobpilot.Provider against any OpenAI-compatible chat
// completions endpoint.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	logger  *slog.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithName overrides the provider name reported by Name.
func WithName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

// WithLogger sets a structured logger for request-level diagnostics.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a Provider for the endpoint at baseURL (e.g.
// "https://api.openai.com/v1"). The model is the default for requests that
// do not set one.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
		name:    "openaicompat",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// Chat sends a chat completion request and returns the full response.
func (p *Provider) Chat(ctx context.Context, req mobpilot.ChatRequest) (mobpilot.ChatResponse, error) {
	body := BuildBody(req, p.model)

	resp, err := p.send(ctx, body)
	if err != nil {
		return mobpilot.ChatResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return mobpilot.ChatResponse{}, fmt.Errorf("read response: %w", err)
	}

	var parsed ChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return mobpilot.ChatResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return ParseResponse(parsed)
}

// ChatStream sends a streaming chat completion request, forwarding text
// deltas to onDelta, and returns the accumulated response.
func (p *Provider) ChatStream(ctx context.Context, req mobpilot.ChatRequest, onDelta func(string)) (mobpilot.ChatResponse, error) {
	body := BuildBody(req, p.model)
	body.Stream = true
	body.StreamOptions = &StreamOptions{IncludeUsage: true}

	resp, err := p.send(ctx, body)
	if err != nil {
		return mobpilot.ChatResponse{}, err
	}
	defer resp.Body.Close()

	return StreamSSE(ctx, resp.Body, onDelta)
}

func (p *Provider) send(ctx context.Context, body ChatRequest) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, httpErr(resp)
	}
	return resp, nil
}

func httpErr(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &mobpilot.ErrHTTP{
		StatusCode: resp.StatusCode,
		Body:       string(raw),
		RetryAfter: mobpilot.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}
