package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestListArticles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/articles" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("per_page") != "100" {
			t.Errorf("expected per_page=100, got %q", r.URL.Query().Get("per_page"))
		}
		w.Write([]byte(`{"current_page":1,"data":[{"id":7,"title":"X","content":"body","enhanced_content":null}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/articles/", time.Second)
	articles, err := c.ListArticles(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(articles) != 1 || articles[0].ID != 7 || articles[0].Title != "X" {
		t.Fatalf("unexpected articles %+v", articles)
	}
	if articles[0].IsEnhanced() {
		t.Error("expected article without enhanced content")
	}
}

func TestListArticlesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).ListArticles(context.Background(), 10)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("expected 503 error, got %v", err)
	}
}

func TestUpdateEnhancementSendsNullCitations(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/articles/7" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":7,"title":"X","enhanced_content":"<p>new</p>","cite1":"https://a.com"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/articles", time.Second)
	a, err := c.UpdateEnhancement(context.Background(), 7, NewEnhancement("<p>new</p>", []string{"https://a.com"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["enhanced_content"] != "<p>new</p>" || got["cite1"] != "https://a.com" {
		t.Errorf("unexpected body %v", got)
	}
	if v, ok := got["cite2"]; !ok || v != nil {
		t.Errorf("expected explicit null cite2, got %v (present=%v)", v, ok)
	}
	if !a.IsEnhanced() {
		t.Error("expected returned article to be enhanced")
	}
}

func TestNewEnhancementKeepsFirstTwo(t *testing.T) {
	e := NewEnhancement("c", []string{"u1", "u2", "u3"})
	if e.Cite1 == nil || *e.Cite1 != "u1" || e.Cite2 == nil || *e.Cite2 != "u2" {
		t.Errorf("unexpected citations %+v", e)
	}
}

func TestGetArticleNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second).GetArticle(context.Background(), 1); err == nil {
		t.Error("expected error for missing article")
	}
}
