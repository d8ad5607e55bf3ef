package enhance

import (
	"context"
	"log"
	"strings"

	"github.com/TobiSchelling/enhancer/internal/fetch"
	"github.com/TobiSchelling/enhancer/internal/llm"
	"github.com/TobiSchelling/enhancer/internal/metrics"
	"github.com/TobiSchelling/enhancer/internal/search"
	"github.com/TobiSchelling/enhancer/internal/store"
)

const (
	maxSourceChars   = 2000
	maxOriginalChars = 1000
	defaultSources   = 2

	// ReasonNoContext marks an article skipped because no source page could be fetched.
	ReasonNoContext = "no context found"
	// ReasonAlreadyEnhanced marks an article skipped because it already has enhanced content.
	ReasonAlreadyEnhanced = "already enhanced"
)

// Status is the result class of one enhancement attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome is the per-article result reported in a batch.
type Outcome struct {
	ID     int64  `json:"id"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Store persists enhancement results.
type Store interface {
	UpdateEnhancement(ctx context.Context, id int64, e store.Enhancement) (*store.Article, error)
}

// Enhancer rewrites a single article with web context.
type Enhancer struct {
	searcher   search.Searcher
	fetcher    fetch.Fetcher
	generator  Generator
	store      Store
	maxSources int
}

// NewEnhancer creates a new article enhancer. maxSources <= 0 means the
// default of two sources.
func NewEnhancer(searcher search.Searcher, fetcher fetch.Fetcher, generator Generator, st Store, maxSources int) *Enhancer {
	if maxSources <= 0 {
		maxSources = defaultSources
	}
	return &Enhancer{
		searcher:   searcher,
		fetcher:    fetcher,
		generator:  generator,
		store:      st,
		maxSources: maxSources,
	}
}

// Enhance runs search -> fetch -> generate -> persist for one article. Every
// failure is reported in the returned Outcome.
func (e *Enhancer) Enhance(ctx context.Context, article store.Article) Outcome {
	out := e.enhance(ctx, article)
	metrics.OutcomesTotal.WithLabelValues(string(out.Status)).Inc()
	return out
}

func (e *Enhancer) enhance(ctx context.Context, article store.Article) Outcome {
	log.Printf("Processing article %d: %s", article.ID, article.Title)

	links := e.searcher.Search(ctx, article.Title)
	if len(links) > e.maxSources {
		links = links[:e.maxSources]
	}

	scrapedContext, citations := e.gatherContext(ctx, links)
	if scrapedContext == "" {
		log.Printf("Skipping article %d - no context found", article.ID)
		return Outcome{ID: article.ID, Status: StatusSkipped, Reason: ReasonNoContext}
	}

	prompt := BuildPrompt(article.Title, article.Content, scrapedContext)

	text, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		log.Printf("Generation failed for article %d: %v", article.ID, err)
		return Outcome{ID: article.ID, Status: StatusFailed, Error: err.Error()}
	}

	if _, err := e.store.UpdateEnhancement(ctx, article.ID, store.NewEnhancement(llm.CleanHTML(text), citations)); err != nil {
		log.Printf("Persisting article %d failed: %v", article.ID, err)
		return Outcome{ID: article.ID, Status: StatusFailed, Error: "persist: " + err.Error()}
	}

	log.Printf("Enhanced article %d with %d source(s)", article.ID, len(citations))
	return Outcome{ID: article.ID, Status: StatusSuccess}
}

// gatherContext fetches links in order. Each success contributes a
// truncated source block and a citation; failures are skipped.
func (e *Enhancer) gatherContext(ctx context.Context, links []string) (string, []string) {
	var sb strings.Builder
	var citations []string
	for _, link := range links {
		text, ok := e.fetcher.Fetch(ctx, link)
		if !ok {
			continue
		}
		sb.WriteString(sourceBlock(link, text))
		citations = append(citations, link)
	}
	return sb.String(), citations
}
