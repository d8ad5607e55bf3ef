package server

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/enhancer/internal/database"
	"github.com/TobiSchelling/enhancer/internal/enhance"
	"github.com/TobiSchelling/enhancer/internal/pipeline"
	"github.com/TobiSchelling/enhancer/internal/store"
)

const (
	sourceA = "https://source.test/a"
	sourceB = "https://source.test/b"
)

type fixedSearcher struct{}

func (fixedSearcher) Search(_ context.Context, _ string) []string {
	return []string{sourceA, sourceB, "https://source.test/c"}
}

type fixedFetcher struct{}

func (fixedFetcher) Fetch(_ context.Context, pageURL string) (string, bool) {
	return "Background from " + pageURL, true
}

// titleFailGenerator fails for one article title and echoes the rest.
type titleFailGenerator struct {
	failTitle string
}

func (g titleFailGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "Original Article Title: "+g.failTitle+"\n") {
		return "", errors.New("no text generation provider is available")
	}
	return "<p>rewritten</p>", nil
}

// Runs a real batch against this server's own article API and checks that
// every concurrent write lands in the database.
func TestBatchPersistsThroughArticleAPI(t *testing.T) {
	db := openTestDB(t)
	const n = 20
	for i := 1; i <= n; i++ {
		_, err := db.InsertArticle(database.NewArticle{
			Title:     fmt.Sprintf("Article %02d", i),
			Content:   "Original body",
			SourceURL: fmt.Sprintf("https://blog.test/%d", i),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	ts := httptest.NewServer(New(db, &mockRunner{}, &mockScraper{}).Handler())
	defer ts.Close()

	client := store.NewClient(ts.URL+"/api/articles", 5*time.Second)
	enhancer := enhance.NewEnhancer(fixedSearcher{}, fixedFetcher{}, titleFailGenerator{failTitle: "Article 02"}, client, 2)
	r := pipeline.NewCoordinator(client, enhancer, pipeline.Options{Concurrency: 4, PageSize: 100}).
		EnhanceAll(context.Background())

	if r.Status != pipeline.StatusSuccess {
		t.Fatalf("expected success, got %q (%s)", r.Status, r.Message)
	}
	if c := r.Counts(); c.Success != n-1 || c.Failed != 1 {
		t.Fatalf("expected %d success and 1 failed, got %+v (%+v)", n-1, c, r.Results)
	}

	for i := int64(1); i <= n; i++ {
		a, err := db.GetArticle(i)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if i == 2 {
			if a.EnhancedContent != nil {
				t.Errorf("article 2 should not be enhanced, got %q", *a.EnhancedContent)
			}
			continue
		}
		if a.EnhancedContent == nil || *a.EnhancedContent != "<p>rewritten</p>" {
			t.Errorf("article %d: enhancement not persisted: %v", i, a.EnhancedContent)
		}
		if a.Cite1 == nil || *a.Cite1 != sourceA || a.Cite2 == nil || *a.Cite2 != sourceB {
			t.Errorf("article %d: unexpected citations %v %v", i, a.Cite1, a.Cite2)
		}
		if a.Title != fmt.Sprintf("Article %02d", i) {
			t.Errorf("article %d: title changed to %q", i, a.Title)
		}
	}

	for _, o := range r.Results {
		if o.ID == 2 && o.Status != enhance.StatusFailed {
			t.Errorf("expected article 2 failed, got %+v", o)
		}
	}
}
