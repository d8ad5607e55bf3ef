package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/enhancer/internal/config"
	"github.com/TobiSchelling/enhancer/internal/metrics"
)

const (
	serpAPIBaseURL = "https://serpapi.com/search.json"
	defaultTimeout = 15 * time.Second
)

// DefaultExcludeDomains keeps the origin blog and shopping pages out of citations.
var DefaultExcludeDomains = []string{"beyondchats.com", "amazon."}

// Searcher returns candidate source URLs for a topic. An empty result means
// no context is available; it is never an error.
type Searcher interface {
	Search(ctx context.Context, query string) []string
}

// SerpAPIClient queries Google through SerpApi.
type SerpAPIClient struct {
	apiKey     string
	baseURL    string
	engine     string
	numResults int
	exclude    []string
	client     *http.Client
}

// NewSerpAPIClient creates a new SerpApi client.
func NewSerpAPIClient(cfg config.Search) *SerpAPIClient {
	c := &SerpAPIClient{
		apiKey:     cfg.APIKey(),
		baseURL:    cfg.BaseURL,
		engine:     cfg.Engine,
		numResults: cfg.NumResults,
		exclude:    cfg.ExcludeDomains,
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.client = &http.Client{Timeout: timeout}
	if c.baseURL == "" {
		c.baseURL = serpAPIBaseURL
	}
	if c.engine == "" {
		c.engine = "google"
	}
	if c.numResults <= 0 {
		c.numResults = 5
	}
	if c.exclude == nil {
		c.exclude = DefaultExcludeDomains
	}
	return c
}

// IsConfigured returns whether the API key is available.
func (c *SerpAPIClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Search returns the filtered organic result links for query.
func (c *SerpAPIClient) Search(ctx context.Context, query string) []string {
	if c.apiKey == "" {
		log.Println("SERPAPI_KEY is missing, returning no search results")
		metrics.SearchRequestsTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return nil
	}

	links, err := c.search(ctx, query)
	if err != nil {
		log.Printf("SerpApi search failed for %q: %v", query, err)
		metrics.SearchRequestsTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil
	}
	metrics.SearchRequestsTotal.WithLabelValues(metrics.ResultOK).Inc()

	filtered := FilterLinks(links, c.exclude)
	log.Printf("Found %d links for %q (%d after filtering)", len(links), query, len(filtered))
	return filtered
}

func (c *SerpAPIClient) search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{
		"engine":  {c.engine},
		"q":       {query},
		"api_key": {c.apiKey},
		"num":     {strconv.Itoa(c.numResults)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Strip the URL (it carries the api key) from transport errors.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var result struct {
		Error          string `json:"error"`
		OrganicResults []struct {
			Link  string `json:"link"`
			Title string `json:"title"`
		} `json:"organic_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("serpapi: %s", result.Error)
	}

	links := make([]string, 0, len(result.OrganicResults))
	for _, r := range result.OrganicResults {
		links = append(links, r.Link)
	}
	return links, nil
}

// FilterLinks drops empty links and links containing any excluded domain
// (case-insensitive substring match). Order is preserved.
func FilterLinks(links, exclude []string) []string {
	filtered := make([]string, 0, len(links))
	for _, link := range links {
		if link == "" {
			continue
		}
		lower := strings.ToLower(link)
		excluded := false
		for _, domain := range exclude {
			if domain != "" && strings.Contains(lower, strings.ToLower(domain)) {
				excluded = true
				break
			}
		}
		if !excluded {
			filtered = append(filtered, link)
		}
	}
	return filtered
}
