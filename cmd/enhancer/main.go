package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/enhancer/internal/collect"
	"github.com/TobiSchelling/enhancer/internal/config"
	"github.com/TobiSchelling/enhancer/internal/database"
	"github.com/TobiSchelling/enhancer/internal/enhance"
	"github.com/TobiSchelling/enhancer/internal/llm"
	"github.com/TobiSchelling/enhancer/internal/pipeline"
	"github.com/TobiSchelling/enhancer/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "enhancer",
	Short:   "Rewrite blog articles with fresh web context",
	Long:    "enhancer scrapes blog articles into a local article API and rewrites them with an LLM, using web search results as context.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		collect.SetDebug(verbose || strings.EqualFold(cfg.Logging.Level, "DEBUG"))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(enhanceCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(articlesCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("enhancer", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/enhancer/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Set GROQ_API_KEY / GEMINI_API_KEY and SERPAPI_KEY, then edit the source blog URL.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and provider status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Articles:")
		fmt.Printf("  Total: %d\n", stats.TotalArticles)
		fmt.Printf("  Enhanced: %d\n", stats.EnhancedArticles)
		fmt.Printf("  Pending: %d\n", stats.PendingArticles)
		fmt.Printf("  With citations: %d\n", stats.WithCitations)
		fmt.Printf("  With images: %d\n", stats.WithImages)

		fmt.Println("\nCredentials:")
		fmt.Printf("  Groq: %s\n", configured(cfg.LLM.Groq.APIKey()))
		fmt.Printf("  Gemini: %s\n", configured(cfg.LLM.Gemini.APIKey()))
		fmt.Printf("  SerpAPI: %s\n", configured(cfg.Search.APIKey()))
		if providers := llm.CreateGateway(cfg.LLM).Providers(); len(providers) > 0 {
			fmt.Printf("  Provider order: %s\n", strings.Join(providers, " -> "))
		}
		return nil
	},
}

func configured(key string) string {
	if key == "" {
		return "not set"
	}
	return "set"
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the article API and enhancement server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if servePort > 0 {
			cfg.SetServerPort(servePort)
		}
		port := cfg.Server.Port

		ctx, stop := signalContext()
		defer stop()

		srv := server.New(db, pipeline.New(cfg), newScraper(db, 0))
		srv.AllowOrigins(cfg.Server.AllowedOrigins)
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Printf("Batch runs use article store %s\n", cfg.Store.BaseURL)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- enhance command ---

var (
	onlyPending bool
	jsonOutput  bool
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Enhance every article in the article API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if onlyPending {
			cfg.Enhance.OnlyPending = true
		}

		ctx, stop := signalContext()
		defer stop()

		report := pipeline.New(cfg).EnhanceAll(ctx)

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			printReport(report)
		}

		if report.Status == pipeline.StatusError {
			return errors.New(report.Message)
		}
		return nil
	},
}

func init() {
	enhanceCmd.Flags().BoolVar(&onlyPending, "only-pending", false, "Skip articles that already have enhanced content")
	enhanceCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the batch report as JSON")
}

func printReport(r *pipeline.Report) {
	fmt.Printf("Run %s (%d ms)\n", r.RunID, r.DurationMS)
	if r.Status == pipeline.StatusError {
		fmt.Printf("  Error: %s\n", r.Message)
		return
	}
	for _, o := range r.Results {
		switch o.Status {
		case enhance.StatusSuccess:
			fmt.Printf("  [%d] success\n", o.ID)
		case enhance.StatusSkipped:
			fmt.Printf("  [%d] skipped: %s\n", o.ID, o.Reason)
		default:
			fmt.Printf("  [%d] failed: %s\n", o.ID, o.Error)
		}
	}
	c := r.Counts()
	fmt.Printf("\n%d enhanced, %d skipped, %d failed\n", c.Success, c.Skipped, c.Failed)
}

// --- scrape / collect commands ---

var scrapeLimit int

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the oldest posts of the source blog into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()

		res, err := newScraper(db, scrapeLimit).Scrape(ctx)
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		for _, a := range res.Articles {
			fmt.Printf("  [%d] %s\n", a.ID, a.Title)
		}
		return nil
	},
}

func init() {
	scrapeCmd.Flags().IntVar(&scrapeLimit, "limit", 0, "Number of articles to scrape (default from config)")
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect articles from the source blog's RSS feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Source.FeedURL == "" {
			return errors.New("source.feed_url is not configured")
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()

		result, err := collect.NewCollector(cfg.Source.FeedURL, db).Collect(ctx)
		if err != nil {
			return err
		}

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  New articles: %d\n", result.NewArticles)
		fmt.Printf("  Updated: %d\n", result.Updated)
		fmt.Printf("  Failed: %d\n", result.Failed)
		return nil
	},
}

// --- articles command ---

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Inspect stored articles",
}

var (
	listPage    int
	listPerPage int
)

var articlesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		page, err := db.ListArticles(listPage, listPerPage)
		if err != nil {
			return err
		}
		if page.Total == 0 {
			fmt.Println("No articles stored. Fetch some with: enhancer scrape")
			return nil
		}

		fmt.Printf("Articles (page %d of %d, %d total):\n\n", page.CurrentPage, page.LastPage, page.Total)
		for _, a := range page.Data {
			mark := " "
			if a.EnhancedContent != nil && *a.EnhancedContent != "" {
				mark = "*"
			}
			fmt.Printf("  [%d] %s %s\n", a.ID, mark, a.Title)
		}
		return nil
	},
}

var articlesShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid article ID: %s", args[0])
		}

		a, err := db.GetArticle(id)
		if err != nil {
			return err
		}

		fmt.Printf("[%d] %s\n", a.ID, a.Title)
		fmt.Printf("Source: %s\n", a.SourceURL)
		for i, c := range []*string{a.Cite1, a.Cite2} {
			if c != nil {
				fmt.Printf("Citation %d: %s\n", i+1, *c)
			}
		}
		fmt.Printf("\n%s\n", a.Content)
		if a.EnhancedContent != nil {
			fmt.Printf("\n--- Enhanced ---\n%s\n", *a.EnhancedContent)
		}
		return nil
	},
}

func init() {
	articlesListCmd.Flags().IntVar(&listPage, "page", 1, "Page number")
	articlesListCmd.Flags().IntVar(&listPerPage, "per-page", 10, "Articles per page")

	articlesCmd.AddCommand(articlesListCmd)
	articlesCmd.AddCommand(articlesShowCmd)
}

func newScraper(db *database.DB, limit int) *collect.Scraper {
	if limit <= 0 {
		limit = cfg.Source.ScrapeLimit
	}
	return collect.NewScraper(cfg.Source.BlogURL, limit, cfg.Store.Timeout, cfg.Fetch.UserAgent, db)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(filepath.Join(dataDir, "enhancer.db"))
}
