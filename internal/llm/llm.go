package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/enhancer/internal/config"
	"github.com/TobiSchelling/enhancer/internal/metrics"
)

// ErrNoProviderAvailable is returned when no configured provider produced text.
var ErrNoProviderAvailable = errors.New("no text generation provider available")

// Provider is the interface for LLM providers.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
	IsConfigured() bool
}

// GroqProvider talks to Groq's OpenAI-compatible chat completions API.
type GroqProvider struct {
	Model     string
	BaseURL   string
	MaxTokens int
	apiKey    string
	client    *http.Client
}

// NewGroqProvider creates a new Groq provider.
func NewGroqProvider(apiKey, model, baseURL string, maxTokens int) *GroqProvider {
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &GroqProvider{
		Model:     model,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		MaxTokens: maxTokens,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (g *GroqProvider) Name() string { return "groq" }

// IsConfigured checks if the API key is set.
func (g *GroqProvider) IsConfigured() bool {
	return g.apiKey != ""
}

// Generate sends a prompt to Groq and returns the first choice's content.
func (g *GroqProvider) Generate(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model": g.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature":           0.7,
		"max_completion_tokens": g.MaxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("groq API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	// An empty choice list is an accepted (empty) completion.
	if len(result.Choices) == 0 {
		return "", nil
	}
	return result.Choices[0].Message.Content, nil
}

// GeminiProvider talks to the Google Generative Language generateContent API.
type GeminiProvider struct {
	Model   string
	BaseURL string
	apiKey  string
	client  *http.Client
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(apiKey, model, baseURL string) *GeminiProvider {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiProvider{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (g *GeminiProvider) Name() string { return "gemini" }

// IsConfigured checks if the API key is set.
func (g *GeminiProvider) IsConfigured() bool {
	return g.apiKey != ""
}

// Generate sends a prompt to Gemini and concatenates the first candidate's parts.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": prompt}},
			},
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.BaseURL, url.PathEscape(g.Model), url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// The URL carries the key; report only the transport failure.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("gemini API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		PromptFeedback struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if result.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked prompt: %s", result.PromptFeedback.BlockReason)
	}
	if len(result.Candidates) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// Gateway tries an ordered list of providers until one succeeds.
type Gateway struct {
	providers []Provider
	timeout   time.Duration
}

// NewGateway keeps, in order, the providers whose credentials are configured.
// A zero timeout leaves each attempt bounded only by the caller's context.
func NewGateway(timeout time.Duration, providers ...Provider) *Gateway {
	var active []Provider
	for _, p := range providers {
		if p == nil || !p.IsConfigured() {
			continue
		}
		active = append(active, p)
	}
	return &Gateway{providers: active, timeout: timeout}
}

// Providers returns the names of the active providers in priority order.
func (g *Gateway) Providers() []string {
	names := make([]string, len(g.providers))
	for i, p := range g.providers {
		names[i] = p.Name()
	}
	return names
}

// Generate returns the first successful completion. Provider failures are
// logged and fall through to the next provider; there is no retry.
func (g *Gateway) Generate(ctx context.Context, prompt string) (string, error) {
	if len(g.providers) == 0 {
		return "", fmt.Errorf("%w: set GROQ_API_KEY or GEMINI_API_KEY", ErrNoProviderAvailable)
	}

	var lastErr error
	for _, p := range g.providers {
		text, err := g.attempt(ctx, p, prompt)
		if err == nil {
			metrics.ProviderRequestsTotal.WithLabelValues(p.Name(), metrics.ResultOK).Inc()
			return text, nil
		}
		metrics.ProviderRequestsTotal.WithLabelValues(p.Name(), metrics.ResultError).Inc()
		log.Printf("Provider %s failed: %v", p.Name(), err)
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return "", fmt.Errorf("%w (last error: %v)", ErrNoProviderAvailable, lastErr)
}

func (g *Gateway) attempt(ctx context.Context, p Provider, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	log.Printf("Generating with %s...", p.Name())
	return p.Generate(ctx, prompt)
}

// CreateGateway builds the Groq -> Gemini fallback chain from configuration.
func CreateGateway(cfg config.LLM) *Gateway {
	gw := NewGateway(cfg.Timeout,
		NewGroqProvider(cfg.Groq.APIKey(), cfg.Groq.Model, cfg.Groq.BaseURL, cfg.Groq.MaxTokens),
		NewGeminiProvider(cfg.Gemini.APIKey(), cfg.Gemini.Model, cfg.Gemini.BaseURL),
	)
	if names := gw.Providers(); len(names) > 0 {
		log.Printf("LLM providers in priority order: %s", strings.Join(names, " -> "))
	} else {
		log.Println("No LLM provider configured. Set GROQ_API_KEY or GEMINI_API_KEY.")
	}
	return gw
}
