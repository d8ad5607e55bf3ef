package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Article is the article resource served by the article API.
type Article struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Content         string  `json:"content"`
	EnhancedContent *string `json:"enhanced_content"`
	SourceURL       string  `json:"source_url"`
	ImageURL        *string `json:"image_url"`
	Cite1           *string `json:"cite1"`
	Cite2           *string `json:"cite2"`
	CreatedAt       string  `json:"created_at,omitempty"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

// IsEnhanced reports whether enhanced content has been stored.
func (a Article) IsEnhanced() bool {
	return a.EnhancedContent != nil && *a.EnhancedContent != ""
}

// Enhancement is the PUT body written after a successful generation.
type Enhancement struct {
	EnhancedContent string  `json:"enhanced_content"`
	Cite1           *string `json:"cite1"`
	Cite2           *string `json:"cite2"`
}

// NewEnhancement maps the first two citations onto cite1/cite2; missing
// citations are sent as null.
func NewEnhancement(content string, citations []string) Enhancement {
	e := Enhancement{EnhancedContent: content}
	if len(citations) > 0 {
		e.Cite1 = &citations[0]
	}
	if len(citations) > 1 {
		e.Cite2 = &citations[1]
	}
	return e
}

// Client talks to the article API over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the articles collection at baseURL,
// e.g. http://127.0.0.1:8000/api/articles.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// ListArticles fetches the first page of articles with the given page size.
// Pages beyond the first are not followed.
func (c *Client) ListArticles(ctx context.Context, perPage int) ([]Article, error) {
	var page struct {
		Data []Article `json:"data"`
	}
	url := c.baseURL + "?per_page=" + strconv.Itoa(perPage)
	if err := c.do(ctx, http.MethodGet, url, nil, &page); err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	return page.Data, nil
}

// GetArticle fetches a single article.
func (c *Client) GetArticle(ctx context.Context, id int64) (*Article, error) {
	var a Article
	if err := c.do(ctx, http.MethodGet, c.articleURL(id), nil, &a); err != nil {
		return nil, fmt.Errorf("getting article %d: %w", id, err)
	}
	return &a, nil
}

// UpdateEnhancement stores generated content and citations on an article.
func (c *Client) UpdateEnhancement(ctx context.Context, id int64, e Enhancement) (*Article, error) {
	var a Article
	if err := c.do(ctx, http.MethodPut, c.articleURL(id), e, &a); err != nil {
		return nil, fmt.Errorf("updating article %d: %w", id, err)
	}
	return &a, nil
}

func (c *Client) articleURL(id int64) string {
	return c.baseURL + "/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("article API returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
