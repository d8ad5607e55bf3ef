package collect

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

const maxPerFeed = 50

// FeedEntry represents a parsed feed entry.
type FeedEntry struct {
	URL      string
	Title    string
	Content  string
	ImageURL *string
}

// FeedParser parses RSS/Atom feeds.
type FeedParser struct {
	parser *gofeed.Parser
}

// NewFeedParser creates a new FeedParser.
func NewFeedParser() *FeedParser {
	return &FeedParser{parser: gofeed.NewParser()}
}

// Parse fetches and parses a feed. Entries without a link or title are dropped.
func (fp *FeedParser) Parse(ctx context.Context, feedURL string) ([]FeedEntry, error) {
	feed, err := fp.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}
	return entriesFromFeed(feed), nil
}

// ParseString parses feed XML already in memory.
func (fp *FeedParser) ParseString(data string) ([]FeedEntry, error) {
	feed, err := fp.parser.ParseString(data)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}
	return entriesFromFeed(feed), nil
}

func entriesFromFeed(feed *gofeed.Feed) []FeedEntry {
	var entries []FeedEntry
	for _, item := range feed.Items {
		if len(entries) >= maxPerFeed {
			break
		}
		if entry := parseItem(item); entry != nil {
			entries = append(entries, *entry)
		}
	}
	return entries
}

func parseItem(item *gofeed.Item) *FeedEntry {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	raw := item.Content
	if raw == "" {
		raw = item.Description
	}
	content := cleanContent(raw)
	if content == "" {
		content = missingContent
	}

	entry := &FeedEntry{URL: itemURL, Title: title, Content: content}
	if item.Image != nil && item.Image.URL != "" {
		img := item.Image.URL
		entry.ImageURL = &img
	}
	return entry
}
