package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// mockProvider implements Provider for testing.
type mockProvider struct {
	name       string
	response   string
	err        error
	configured bool
	calls      int
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Generate(_ context.Context, _ string) (string, error) {
	m.calls++
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return m.configured }

func TestGatewayFallsThroughToSecondProvider(t *testing.T) {
	first := &mockProvider{name: "first", err: errors.New("rate limited"), configured: true}
	second := &mockProvider{name: "second", response: "<p>from second</p>", configured: true}

	gw := NewGateway(0, first, second)
	text, err := gw.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "<p>from second</p>" {
		t.Errorf("expected second provider's text, got %q", text)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("expected one call each, got first=%d second=%d", first.calls, second.calls)
	}
}

func TestGatewayFirstSuccessWins(t *testing.T) {
	first := &mockProvider{name: "first", response: "first", configured: true}
	second := &mockProvider{name: "second", response: "second", configured: true}

	gw := NewGateway(0, first, second)
	text, err := gw.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "first" {
		t.Errorf("expected 'first', got %q", text)
	}
	if second.calls != 0 {
		t.Error("second provider should not be called after a success")
	}
}

func TestGatewayAcceptsEmptyText(t *testing.T) {
	p := &mockProvider{name: "p", response: "", configured: true}
	text, err := NewGateway(0, p).Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("empty completion should be a success, got %v", err)
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
}

func TestGatewayNoProviders(t *testing.T) {
	unconfigured := &mockProvider{name: "groq", response: "x", configured: false}

	gw := NewGateway(0, unconfigured)
	_, err := gw.Generate(context.Background(), "prompt")
	if !errors.Is(err, ErrNoProviderAvailable) {
		t.Fatalf("expected ErrNoProviderAvailable, got %v", err)
	}
	if unconfigured.calls != 0 {
		t.Error("unconfigured provider must not be called")
	}
}

func TestGatewayAllProvidersFail(t *testing.T) {
	first := &mockProvider{name: "first", err: errors.New("boom"), configured: true}
	second := &mockProvider{name: "second", err: errors.New("bang"), configured: true}

	_, err := NewGateway(0, first, second).Generate(context.Background(), "prompt")
	if !errors.Is(err, ErrNoProviderAvailable) {
		t.Fatalf("expected ErrNoProviderAvailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "bang") {
		t.Errorf("expected last provider error in message, got %q", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("each provider should be tried exactly once, got %d and %d", first.calls, second.calls)
	}
}

func TestGatewaySkipsUnconfigured(t *testing.T) {
	skipped := &mockProvider{name: "groq", configured: false}
	used := &mockProvider{name: "gemini", response: "ok", configured: true}

	gw := NewGateway(0, skipped, used)
	if names := gw.Providers(); len(names) != 1 || names[0] != "gemini" {
		t.Fatalf("expected only gemini active, got %v", names)
	}
	if _, err := gw.Generate(context.Background(), "prompt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skipped.calls != 0 {
		t.Error("unconfigured provider was called")
	}
}

func TestGroqGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer groq-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "llama-3.3-70b-versatile" {
			t.Errorf("unexpected model %v", body["model"])
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"<h2>Hi</h2>"}}]}`))
	}))
	defer srv.Close()

	p := NewGroqProvider("groq-key", "llama-3.3-70b-versatile", srv.URL, 0)
	text, err := p.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "<h2>Hi</h2>" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestGroqErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewGroqProvider("k", "m", srv.URL, 0)
	_, err := p.Generate(context.Background(), "prompt")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected 429 error, got %v", err)
	}
}

func TestGeminiGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.0-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "gem-key" {
			t.Errorf("missing key query param")
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"<p>a</p>"},{"text":"<p>b</p>"}]}}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider("gem-key", "gemini-2.0-flash", srv.URL)
	text, err := p.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "<p>a</p><p>b</p>" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestGatewayTimeoutFallsThrough(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	fallback := &mockProvider{name: "gemini", response: "fallback", configured: true}
	gw := NewGateway(50*time.Millisecond, NewGroqProvider("k", "m", slow.URL, 0), fallback)

	text, err := gw.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "fallback" {
		t.Errorf("expected fallback text, got %q", text)
	}
}
