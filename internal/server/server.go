package server

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
	"unicode/utf8"

	"github.com/TobiSchelling/enhancer/internal/collect"
	"github.com/TobiSchelling/enhancer/internal/database"
	"github.com/TobiSchelling/enhancer/internal/metrics"
	"github.com/TobiSchelling/enhancer/internal/pipeline"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
	maxTitleLen    = 255
	maxBodyBytes   = 10 << 20
)

// BatchRunner runs one enhancement batch.
type BatchRunner interface {
	EnhanceAll(ctx context.Context) *pipeline.Report
}

// BlogScraper ingests articles from the source blog.
type BlogScraper interface {
	Scrape(ctx context.Context) (*collect.ScrapeResult, error)
}

// Server is the HTTP server for the article API and the enhancement trigger.
type Server struct {
	db      *database.DB
	runner  BatchRunner
	scraper BlogScraper
	mux     *http.ServeMux
	origins []string
}

// New creates a new Server.
func New(db *database.DB, runner BatchRunner, scraper BlogScraper) *Server {
	s := &Server{db: db, runner: runner, scraper: scraper, mux: http.NewServeMux(), origins: []string{"*"}}
	s.routes()
	return s
}

// AllowOrigins sets the origins allowed to call the API from a browser.
// An empty list keeps the wildcard.
func (s *Server) AllowOrigins(origins []string) {
	if len(origins) > 0 {
		s.origins = origins
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.origins, s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/articles", s.handleListArticles)
	s.mux.HandleFunc("POST /api/articles", s.handleCreateArticle)
	s.mux.HandleFunc("GET /api/articles/{id}", s.handleShowArticle)
	s.mux.HandleFunc("PUT /api/articles/{id}", s.handleUpdateArticle)
	s.mux.HandleFunc("PATCH /api/articles/{id}", s.handleUpdateArticle)
	s.mux.HandleFunc("DELETE /api/articles/{id}", s.handleDeleteArticle)

	s.mux.HandleFunc("POST /api/reset", s.handleReset)
	s.mux.HandleFunc("POST /api/reset-db", s.handleReset)
	s.mux.HandleFunc("POST /api/scrape", s.handleScrape)
	s.mux.HandleFunc("POST /api/scrape-beyondchats", s.handleScrape)

	s.mux.HandleFunc("POST /enhance", s.handleEnhance)

	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", defaultPerPage)
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	p, err := s.db.ListArticles(page, perPage)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	var in database.NewArticle
	if !decodeBody(w, r, &in) {
		return
	}

	errs := validationErrors{}
	errs.required("title", in.Title)
	errs.maxLen("title", in.Title)
	errs.required("content", in.Content)
	errs.required("source_url", in.SourceURL)
	errs.url("source_url", &in.SourceURL)
	errs.url("image_url", in.ImageURL)
	if errs.write(w) {
		return
	}

	a, err := s.db.InsertArticle(in)
	if errors.Is(err, database.ErrDuplicate) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleShowArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := s.db.GetArticle(id)
	if s.lookupFailed(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var u database.ArticleUpdate
	if !decodeBody(w, r, &u) {
		return
	}

	errs := validationErrors{}
	for _, f := range []struct {
		name  string
		field database.Field
	}{{"title", u.Title}, {"content", u.Content}, {"source_url", u.SourceURL}} {
		if f.field.Set {
			errs.requiredPtr(f.name, f.field.Value)
		}
	}
	if u.Title.Set && u.Title.Value != nil {
		errs.maxLen("title", *u.Title.Value)
	}
	if u.SourceURL.Set {
		errs.url("source_url", u.SourceURL.Value)
	}
	if u.ImageURL.Set {
		errs.url("image_url", u.ImageURL.Value)
	}
	if errs.write(w) {
		return
	}

	a, err := s.db.UpdateArticle(id, u)
	if errors.Is(err, database.ErrDuplicate) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if s.lookupFailed(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if s.lookupFailed(w, s.db.DeleteArticle(id)) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted successfully"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Reset(); err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Database reset successfully"})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	res, err := s.scraper.Scrape(r.Context())
	if err != nil {
		log.Printf("Scrape failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleEnhance always answers 200; failures are described in the report.
func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.EnhanceAll(r.Context()))
}

func (s *Server) lookupFailed(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return true
	}
	s.internalError(w, err)
	return true
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	log.Printf("Request failed: %v", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusNotFound, database.ErrNotFound.Error())
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// validationErrors collects per-field messages for a 422 response.
type validationErrors map[string][]string

func (e validationErrors) add(field, msg string) {
	e[field] = append(e[field], msg)
}

func (e validationErrors) required(field, v string) {
	if strings.TrimSpace(v) == "" {
		e.add(field, fmt.Sprintf("The %s field is required.", field))
	}
}

func (e validationErrors) requiredPtr(field string, v *string) {
	if v == nil {
		e.add(field, fmt.Sprintf("The %s field is required.", field))
		return
	}
	e.required(field, *v)
}

func (e validationErrors) maxLen(field, v string) {
	if utf8.RuneCountInString(v) > maxTitleLen {
		e.add(field, fmt.Sprintf("The %s field must not be greater than %d characters.", field, maxTitleLen))
	}
}

// url checks an optional URL; nil and empty values are left to required.
func (e validationErrors) url(field string, v *string) {
	if v == nil || *v == "" {
		return
	}
	u, err := url.ParseRequestURI(*v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		e.add(field, fmt.Sprintf("The %s field must be a valid URL.", field))
	}
}

func (e validationErrors) write(w http.ResponseWriter) bool {
	if len(e) == 0 {
		return false
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"message": "The given data was invalid.",
		"errors":  e,
	})
	return true
}

// Serve starts the HTTP server on the given port and shuts it down when ctx
// is cancelled.
func Serve(ctx context.Context, s *Server, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on http://%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Printf("Shutting down server...")
		return srv.Shutdown(shutdownCtx)
	}
}
