package collect

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/TobiSchelling/enhancer/internal/database"
)

const (
	DefaultLimit = 5

	linkSelector    = "div.item-details h3 a, h2 a, h3 a, article a.more-link"
	contentSelector = ".elementor-widget-theme-post-content, .entry-content, .post-content, article .content"
	blogPathMarker  = "/blogs/"
	missingContent  = "Content could not be scraped."
	maxPageBytes    = 5 << 20
)

// contentPolicy keeps the structural tags of a blog post body and drops
// everything else, attributes included.
var contentPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "h2", "h3", "ul", "li", "strong", "em", "br")
	p.AllowImages()
	return p
}()

// Sink stores ingested articles.
type Sink interface {
	HasSourceURL(url string) (bool, error)
	UpsertArticleBySourceURL(a database.NewArticle) (*database.Article, error)
}

// ScrapeResult summarises one scrape of the blog.
type ScrapeResult struct {
	Message  string             `json:"message"`
	LastPage int                `json:"last_page"`
	Articles []database.Article `json:"articles"`
}

// Scraper collects the oldest posts from a paginated blog index.
type Scraper struct {
	blogURL   string
	limit     int
	userAgent string
	client    *http.Client
	sink      Sink
}

// NewScraper creates a scraper for the blog index at blogURL. limit <= 0
// means DefaultLimit.
func NewScraper(blogURL string, limit int, timeout time.Duration, userAgent string, sink Sink) *Scraper {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Scraper{
		blogURL:   blogURL,
		limit:     limit,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		sink:      sink,
	}
}

// Scrape walks the index from its last page backwards and stores up to
// limit articles, oldest first. Only a failure to load the index is an error;
// unreachable listing or article pages are skipped.
func (s *Scraper) Scrape(ctx context.Context) (*ScrapeResult, error) {
	index, err := s.getDocument(ctx, s.blogURL)
	if err != nil {
		return nil, fmt.Errorf("loading blog index: %w", err)
	}

	lastPage := LastPageNumber(index)
	log.Printf("Detected last page: %d", lastPage)

	base := strings.TrimRight(s.blogURL, "/")
	r := &ScrapeResult{LastPage: lastPage, Articles: []database.Article{}}

	for page := lastPage; page >= 1 && len(r.Articles) < s.limit; page-- {
		pageURL := fmt.Sprintf("%s/page/%d/", base, page)
		doc, err := s.getDocument(ctx, pageURL)
		if err != nil {
			log.Printf("Skipping page %d: %v", page, err)
			continue
		}

		for _, link := range ArticleLinks(doc, pageURL) {
			if len(r.Articles) >= s.limit {
				break
			}
			a, err := s.scrapeArticle(ctx, link)
			if err != nil {
				log.Printf("Skipping %s: %v", link.URL, err)
				continue
			}
			r.Articles = append(r.Articles, *a)
		}
	}

	r.Message = fmt.Sprintf("Scraped %d articles starting from page %d", len(r.Articles), lastPage)
	log.Print(r.Message)
	return r, nil
}

// Link is an article link found on a listing page.
type Link struct {
	URL   string
	Title string
}

// LastPageNumber returns the highest numeric .page-numbers entry, or 1.
func LastPageNumber(doc *goquery.Document) int {
	last := 1
	doc.Find(".page-numbers").Each(func(_ int, sel *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(sel.Text()))
		if err == nil && n > last {
			last = n
		}
	})
	return last
}

// ArticleLinks returns the blog post links on a listing page, deduplicated
// and reversed so the bottom (oldest) post comes first. Relative links are
// resolved against pageURL.
func ArticleLinks(doc *goquery.Document, pageURL string) []Link {
	base, _ := url.Parse(pageURL)
	seen := make(map[string]bool)
	var links []Link

	doc.Find(linkSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" || !strings.Contains(href, blogPathMarker) {
			return
		}
		if base != nil {
			if u, err := base.Parse(href); err == nil {
				href = u.String()
			}
		}
		if seen[href] {
			return
		}
		seen[href] = true
		links = append(links, Link{URL: href, Title: strings.TrimSpace(sel.Text())})
	})

	for i, j := 0, len(links)-1; i < j; i, j = i+1, j-1 {
		links[i], links[j] = links[j], links[i]
	}
	return links
}

func (s *Scraper) scrapeArticle(ctx context.Context, link Link) (*database.Article, error) {
	body, err := s.get(ctx, link.URL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing article: %w", err)
	}

	content := ExtractContent(doc)
	if content == "" {
		debugf("No content selector matched %s, trying readability", link.URL)
		content = readableContent(body, link.URL)
	}
	if content == "" {
		content = missingContent
	}

	var image *string
	if src, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && src != "" {
		image = &src
	}

	title := link.Title
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	return s.sink.UpsertArticleBySourceURL(database.NewArticle{
		Title:     title,
		Content:   content,
		SourceURL: link.URL,
		ImageURL:  image,
	})
}

// ExtractContent returns the cleaned HTML of the first post-body element, or
// "" when none is present.
func ExtractContent(doc *goquery.Document) string {
	sel := doc.Find(contentSelector).First()
	if sel.Length() == 0 {
		return ""
	}
	raw, err := sel.Html()
	if err != nil {
		return ""
	}
	return cleanContent(raw)
}

// cleanContent keeps only the allowed tags and collapses whitespace.
func cleanContent(raw string) string {
	return strings.Join(strings.Fields(contentPolicy.Sanitize(raw)), " ")
}

func readableContent(body, pageURL string) string {
	parsed, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(body), parsed)
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return ""
	}
	return "<p>" + cleanContent(text) + "</p>"
}

func (s *Scraper) getDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := s.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(body))
}

func (s *Scraper) get(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
