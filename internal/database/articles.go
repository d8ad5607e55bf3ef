package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	articleColumns = `id, title, content, enhanced_content, source_url, image_url, cite1, cite2, created_at, updated_at`
	nowExpr        = `strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`
)

// InsertArticle creates an article. Returns ErrDuplicate if the source URL exists.
func (db *DB) InsertArticle(a NewArticle) (*Article, error) {
	result, err := db.conn.Exec(
		`INSERT INTO articles (title, content, source_url, image_url) VALUES (?, ?, ?, ?)`,
		a.Title, a.Content, a.SourceURL, a.ImageURL,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("inserting article: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetArticle(id)
}

// UpsertArticleBySourceURL creates the article or refreshes title, content and
// image of the one already stored under the same source URL. Enhancement
// columns are left untouched.
func (db *DB) UpsertArticleBySourceURL(a NewArticle) (*Article, error) {
	var id int64
	err := db.conn.QueryRow(
		`INSERT INTO articles (title, content, source_url, image_url) VALUES (?, ?, ?, ?)
		ON CONFLICT(source_url) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			image_url = excluded.image_url,
			updated_at = `+nowExpr+`
		RETURNING id`,
		a.Title, a.Content, a.SourceURL, a.ImageURL,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("upserting article %s: %w", a.SourceURL, err)
	}
	return db.GetArticle(id)
}

// HasSourceURL reports whether an article with the given source URL exists.
func (db *DB) HasSourceURL(url string) (bool, error) {
	var n int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM articles WHERE source_url = ?", url).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListArticles returns one page of articles in insertion order. page is
// 1-based; values below 1 are treated as 1.
func (db *DB) ListArticles(page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}

	var total int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM articles").Scan(&total); err != nil {
		return nil, fmt.Errorf("counting articles: %w", err)
	}

	rows, err := db.conn.Query(
		`SELECT `+articleColumns+` FROM articles ORDER BY id LIMIT ? OFFSET ?`,
		perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	defer rows.Close()

	data, err := scanArticles(rows)
	if err != nil {
		return nil, err
	}

	p := &Page{
		Data:        data,
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		LastPage:    max(1, (total+perPage-1)/perPage),
	}
	if len(data) > 0 {
		from := (page-1)*perPage + 1
		to := from + len(data) - 1
		p.From, p.To = &from, &to
	}
	return p, nil
}

// GetArticle returns a single article by ID, or ErrNotFound.
func (db *DB) GetArticle(id int64) (*Article, error) {
	row := db.conn.QueryRow(`SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateArticle writes the fields present in u and returns the updated row.
func (db *DB) UpdateArticle(id int64, u ArticleUpdate) (*Article, error) {
	var sets []string
	var args []any
	for _, f := range []struct {
		col   string
		field Field
	}{
		{"title", u.Title},
		{"content", u.Content},
		{"enhanced_content", u.EnhancedContent},
		{"source_url", u.SourceURL},
		{"image_url", u.ImageURL},
		{"cite1", u.Cite1},
		{"cite2", u.Cite2},
	} {
		if !f.field.Set {
			continue
		}
		sets = append(sets, f.col+" = ?")
		args = append(args, f.field.Value)
	}
	sets = append(sets, "updated_at = "+nowExpr)
	args = append(args, id)

	result, err := db.conn.Exec(
		"UPDATE articles SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("updating article %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return db.GetArticle(id)
}

// DeleteArticle removes an article, or returns ErrNotFound.
func (db *DB) DeleteArticle(id int64) error {
	result, err := db.conn.Exec("DELETE FROM articles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting article %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reset deletes every article and restarts ID numbering.
func (db *DB) Reset() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM articles"); err != nil {
		tx.Rollback()
		return fmt.Errorf("truncating articles: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM sqlite_sequence WHERE name = 'articles'"); err != nil {
		tx.Rollback()
		return fmt.Errorf("resetting id sequence: %w", err)
	}
	return tx.Commit()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM articles", &s.TotalArticles},
		{"SELECT COUNT(*) FROM articles WHERE enhanced_content IS NOT NULL AND enhanced_content != ''", &s.EnhancedArticles},
		{"SELECT COUNT(*) FROM articles WHERE enhanced_content IS NULL OR enhanced_content = ''", &s.PendingArticles},
		{"SELECT COUNT(*) FROM articles WHERE cite1 IS NOT NULL", &s.WithCitations},
		{"SELECT COUNT(*) FROM articles WHERE image_url IS NOT NULL", &s.WithImages},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInto(s scanner) (*Article, error) {
	var a Article
	var created, updated sql.NullString
	if err := s.Scan(&a.ID, &a.Title, &a.Content, &a.EnhancedContent, &a.SourceURL,
		&a.ImageURL, &a.Cite1, &a.Cite2, &created, &updated); err != nil {
		return nil, err
	}
	a.CreatedAt, a.UpdatedAt = created.String, updated.String
	return &a, nil
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	articles := []Article{}
	for rows.Next() {
		a, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func scanArticle(row *sql.Row) (*Article, error) {
	return scanInto(row)
}
