package database

import (
	"bytes"
	"encoding/json"
)

// Article is a blog article row. The JSON shape matches the article API.
type Article struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Content         string  `json:"content"`
	EnhancedContent *string `json:"enhanced_content"`
	SourceURL       string  `json:"source_url"`
	ImageURL        *string `json:"image_url"`
	Cite1           *string `json:"cite1"`
	Cite2           *string `json:"cite2"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// NewArticle holds the columns required to create an article.
type NewArticle struct {
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	SourceURL string  `json:"source_url"`
	ImageURL  *string `json:"image_url"`
}

// Field is one column of a partial update. Set is true when the key was
// present; a present null leaves Value nil.
type Field struct {
	Set   bool
	Value *string
}

// Value returns a Field that sets the column to s.
func Value(s string) Field {
	return Field{Set: true, Value: &s}
}

// Null returns a Field that clears the column.
func Null() Field {
	return Field{Set: true}
}

func (f *Field) UnmarshalJSON(b []byte) error {
	f.Set = true
	if bytes.Equal(b, []byte("null")) {
		f.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	f.Value = &s
	return nil
}

// ArticleUpdate is a partial update; only fields with Set are written.
type ArticleUpdate struct {
	Title           Field `json:"title"`
	Content         Field `json:"content"`
	EnhancedContent Field `json:"enhanced_content"`
	SourceURL       Field `json:"source_url"`
	ImageURL        Field `json:"image_url"`
	Cite1           Field `json:"cite1"`
	Cite2           Field `json:"cite2"`
}

// Page is one page of articles in the paginated listing.
type Page struct {
	Data        []Article `json:"data"`
	CurrentPage int       `json:"current_page"`
	PerPage     int       `json:"per_page"`
	Total       int       `json:"total"`
	LastPage    int       `json:"last_page"`
	From        *int      `json:"from"`
	To          *int      `json:"to"`
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalArticles    int
	EnhancedArticles int
	PendingArticles  int
	WithCitations    int
	WithImages       int
}
