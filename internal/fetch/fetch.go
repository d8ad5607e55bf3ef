package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/enhancer/internal/metrics"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	maxBodyBytes     = 5 << 20
)

// nonContent lists elements dropped before text extraction.
const nonContent = "script, style, noscript, nav, footer, header"

// Fetcher returns the visible text of a page. ok is false on any failure.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (text string, ok bool)
}

// ContentFetcher fetches pages over HTTP and extracts body text with goquery.
type ContentFetcher struct {
	client    *http.Client
	userAgent string
}

// NewContentFetcher creates a new content fetcher.
func NewContentFetcher(timeout time.Duration, userAgent string) *ContentFetcher {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &ContentFetcher{
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Fetch downloads pageURL and returns its visible text. Failures are logged
// and reported through ok; they never surface as errors.
func (f *ContentFetcher) Fetch(ctx context.Context, pageURL string) (string, bool) {
	text, err := f.fetchText(ctx, pageURL)
	if err != nil {
		log.Printf("Failed to scrape %s: %v", pageURL, err)
		metrics.FetchTotal.WithLabelValues(metrics.ResultError).Inc()
		return "", false
	}
	if text == "" {
		log.Printf("No extractable content from: %s", pageURL)
		metrics.FetchTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return "", false
	}
	metrics.FetchTotal.WithLabelValues(metrics.ResultOK).Inc()
	return text, true
}

func (f *ContentFetcher) fetchText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &httpError{code: resp.StatusCode}
	}

	return ExtractText(io.LimitReader(resp.Body, maxBodyBytes))
}

// ExtractText parses an HTML document, drops non-content elements and
// returns the body text with whitespace runs collapsed.
func ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}
	doc.Find(nonContent).Remove()
	return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.code, http.StatusText(e.code))
}
