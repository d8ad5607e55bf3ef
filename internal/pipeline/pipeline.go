package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/enhancer/internal/config"
	"github.com/TobiSchelling/enhancer/internal/enhance"
	"github.com/TobiSchelling/enhancer/internal/fetch"
	"github.com/TobiSchelling/enhancer/internal/llm"
	"github.com/TobiSchelling/enhancer/internal/metrics"
	"github.com/TobiSchelling/enhancer/internal/search"
	"github.com/TobiSchelling/enhancer/internal/store"
)

const (
	// StatusSuccess means the batch ran; individual articles may still have failed.
	StatusSuccess = "success"
	// StatusError means the batch could not start.
	StatusError = "error"

	// MessageNoArticles is the report message when the store lists nothing.
	MessageNoArticles = "No articles found"
)

// Report holds the outcome of one batch run.
type Report struct {
	RunID      string            `json:"run_id"`
	Status     string            `json:"status"`
	Message    string            `json:"message,omitempty"`
	Results    []enhance.Outcome `json:"results,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMS int64             `json:"duration_ms"`
}

// Counts tallies outcomes by status.
type Counts struct {
	Success int
	Skipped int
	Failed  int
}

// Counts summarises the per-article results.
func (r *Report) Counts() Counts {
	var c Counts
	for _, o := range r.Results {
		switch o.Status {
		case enhance.StatusSuccess:
			c.Success++
		case enhance.StatusSkipped:
			c.Skipped++
		case enhance.StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Lister lists articles from the article store.
type Lister interface {
	ListArticles(ctx context.Context, perPage int) ([]store.Article, error)
}

// ArticleEnhancer enhances one article.
type ArticleEnhancer interface {
	Enhance(ctx context.Context, article store.Article) enhance.Outcome
}

// Options tune a batch run.
type Options struct {
	Concurrency int
	PageSize    int
	OnlyPending bool
}

// Coordinator runs the enhancer over every listed article.
type Coordinator struct {
	lister   Lister
	enhancer ArticleEnhancer
	opts     Options
}

// NewCoordinator creates a coordinator. Concurrency below 1 is raised to 1.
func NewCoordinator(lister Lister, enhancer ArticleEnhancer, opts Options) *Coordinator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 100
	}
	return &Coordinator{lister: lister, enhancer: enhancer, opts: opts}
}

// New wires the full enhancement pipeline from configuration.
func New(cfg *config.Config) *Coordinator {
	client := store.NewClient(cfg.Store.BaseURL, cfg.Store.Timeout)
	enhancer := enhance.NewEnhancer(
		search.NewSerpAPIClient(cfg.Search),
		fetch.NewContentFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent),
		llm.CreateGateway(cfg.LLM),
		client,
		cfg.Enhance.MaxSources,
	)
	return NewCoordinator(client, enhancer, Options{
		Concurrency: cfg.Enhance.Concurrency,
		PageSize:    cfg.Enhance.PageSize,
		OnlyPending: cfg.Enhance.OnlyPending,
	})
}

// EnhanceAll lists articles and enhances them concurrently. Failures are
// reported in the returned Report, never as an error.
func (c *Coordinator) EnhanceAll(ctx context.Context) *Report {
	start := time.Now()
	r := &Report{RunID: uuid.NewString(), StartedAt: start.UTC()}
	defer func() {
		r.DurationMS = time.Since(start).Milliseconds()
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	log.Printf("Batch %s: fetching articles...", r.RunID)
	articles, err := c.lister.ListArticles(ctx, c.opts.PageSize)
	if err != nil {
		log.Printf("Batch %s: %v", r.RunID, err)
		r.Status = StatusError
		r.Message = err.Error()
		return r
	}
	if len(articles) == 0 {
		r.Status = StatusError
		r.Message = MessageNoArticles
		return r
	}

	log.Printf("Batch %s: enhancing %d articles (concurrency %d)", r.RunID, len(articles), c.opts.Concurrency)
	r.Results = c.run(ctx, articles)
	r.Status = StatusSuccess

	counts := r.Counts()
	log.Printf("Batch %s complete: %d success, %d skipped, %d failed",
		r.RunID, counts.Success, counts.Skipped, counts.Failed)
	return r
}

// run fans out over articles with a bounded number of goroutines. Each
// goroutine owns one result slot, so results keep listing order.
func (c *Coordinator) run(ctx context.Context, articles []store.Article) []enhance.Outcome {
	results := make([]enhance.Outcome, len(articles))

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, article := range articles {
		if c.opts.OnlyPending && article.IsEnhanced() {
			results[i] = enhance.Outcome{ID: article.ID, Status: enhance.StatusSkipped, Reason: enhance.ReasonAlreadyEnhanced}
			continue
		}
		g.Go(func() error {
			results[i] = c.enhanceOne(ctx, article)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Coordinator) enhanceOne(ctx context.Context, article store.Article) (out enhance.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Enhancing article %d panicked: %v", article.ID, rec)
			out = enhance.Outcome{ID: article.ID, Status: enhance.StatusFailed, Error: fmt.Sprintf("panic: %v", rec)}
		}
	}()
	return c.enhancer.Enhance(ctx, article)
}
