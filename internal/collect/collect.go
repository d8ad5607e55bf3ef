package collect

import (
	"context"
	"log"

	"github.com/TobiSchelling/enhancer/internal/database"
)

var debug bool

// SetDebug enables per-URL logging.
func SetDebug(on bool) { debug = on }

func debugf(format string, args ...any) {
	if debug {
		log.Printf(format, args...)
	}
}

// Result holds the results of a feed collection run.
type Result struct {
	TotalFound  int
	NewArticles int
	Updated     int
	Failed      int
}

// Collector ingests blog posts from the blog's RSS feed.
type Collector struct {
	sink    Sink
	feedURL string
	parser  *FeedParser
}

// NewCollector creates a collector for feedURL.
func NewCollector(feedURL string, sink Sink) *Collector {
	return &Collector{
		sink:    sink,
		feedURL: feedURL,
		parser:  NewFeedParser(),
	}
}

// Collect parses the feed and upserts every entry by source URL. Entries
// already stored get their title and content refreshed.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	log.Printf("Collecting from %s...", c.feedURL)
	entries, err := c.parser.Parse(ctx, c.feedURL)
	if err != nil {
		return nil, err
	}

	r := &Result{TotalFound: len(entries)}
	for _, entry := range entries {
		known, err := c.sink.HasSourceURL(entry.URL)
		if err != nil {
			log.Printf("Checking %s: %v", entry.URL, err)
			r.Failed++
			continue
		}

		_, err = c.sink.UpsertArticleBySourceURL(database.NewArticle{
			Title:     entry.Title,
			Content:   entry.Content,
			SourceURL: entry.URL,
			ImageURL:  entry.ImageURL,
		})
		if err != nil {
			log.Printf("Storing %s: %v", entry.URL, err)
			r.Failed++
			continue
		}
		debugf("Stored %s", entry.URL)

		if known {
			r.Updated++
		} else {
			r.NewArticles++
		}
	}

	log.Printf("Collection complete: %d found, %d new, %d updated, %d failed",
		r.TotalFound, r.NewArticles, r.Updated, r.Failed)
	return r, nil
}
