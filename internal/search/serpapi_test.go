package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/enhancer/internal/config"
)

func testConfig(baseURL string) config.Search {
	return config.Search{
		Engine:     "google",
		BaseURL:    baseURL,
		APIKeyEnv:  "TEST_SERPAPI_KEY",
		NumResults: 5,
	}
}

func TestFilterLinks(t *testing.T) {
	links := []string{"https://A.com", "https://beyondchats.com/y", "https://www.Amazon.in/z", "https://B.com"}
	got := FilterLinks(links, DefaultExcludeDomains)
	want := []string{"https://A.com", "https://B.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFilterLinksCaseInsensitive(t *testing.T) {
	got := FilterLinks([]string{"https://BEYONDCHATS.COM/blogs/x", "", "https://ok.org"}, DefaultExcludeDomains)
	if !reflect.DeepEqual(got, []string{"https://ok.org"}) {
		t.Errorf("unexpected result %v", got)
	}
}

func TestSearchWithoutKeyMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	t.Setenv("TEST_SERPAPI_KEY", "")
	c := NewSerpAPIClient(testConfig(srv.URL))
	if c.IsConfigured() {
		t.Fatal("expected client to be unconfigured")
	}
	if got := c.Search(context.Background(), "x"); len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
	if hits.Load() != 0 {
		t.Error("expected no network call without a key")
	}
}

func TestSearchFiltersResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("engine") != "google" || q.Get("q") != "x" || q.Get("api_key") != "secret" || q.Get("num") != "5" {
			t.Errorf("unexpected query %v", q)
		}
		w.Write([]byte(`{"organic_results":[
			{"link":"https://A.com"},
			{"link":"https://beyondchats.com/y"},
			{"link":"https://amazon.in/z"},
			{"link":"https://B.com"}
		]}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_SERPAPI_KEY", "secret")
	c := NewSerpAPIClient(testConfig(srv.URL))
	got := c.Search(context.Background(), "x")
	want := []string{"https://A.com", "https://B.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSearchErrorReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	t.Setenv("TEST_SERPAPI_KEY", "secret")
	c := NewSerpAPIClient(testConfig(srv.URL))
	if got := c.Search(context.Background(), "x"); len(got) != 0 {
		t.Errorf("expected empty result on error, got %v", got)
	}
}

func TestSearchMalformedJSONReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	t.Setenv("TEST_SERPAPI_KEY", "secret")
	c := NewSerpAPIClient(testConfig(srv.URL))
	if got := c.Search(context.Background(), "x"); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func TestSearchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	t.Setenv("TEST_SERPAPI_KEY", "secret")
	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	c := NewSerpAPIClient(cfg)
	if got := c.Search(context.Background(), "x"); len(got) != 0 {
		t.Errorf("expected empty result after timeout, got %v", got)
	}
}

func TestClientTimeoutFromConfig(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Timeout = 3 * time.Second
	if got := NewSerpAPIClient(cfg).client.Timeout; got != 3*time.Second {
		t.Errorf("expected configured timeout 3s, got %v", got)
	}
	cfg.Timeout = 0
	if got := NewSerpAPIClient(cfg).client.Timeout; got != defaultTimeout {
		t.Errorf("expected default timeout %v, got %v", defaultTimeout, got)
	}
}

func TestTransportErrorHidesAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	t.Setenv("TEST_SERPAPI_KEY", "secret")
	_, err := NewSerpAPIClient(testConfig(base)).search(context.Background(), "x")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("error leaks the api key: %v", err)
	}
}
