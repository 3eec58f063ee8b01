package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/interlink/internal/apperr"
	"github.com/starford/interlink/internal/models"
)

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ReplaceArticles swaps the whole article table for arts within a
// transaction. Order in arts is kept as the listing order.
func (db *DB) ReplaceArticles(arts []models.Article) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM articles`); err != nil {
		return fmt.Errorf("index: clear articles: %w", err)
	}
	if err := ftsClear(tx); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO articles (id, title, url, position, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title      = excluded.title,
			url        = excluded.url,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("index: prepare article insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, a := range arts {
		if _, err := stmt.Exec(a.ID, a.Title, a.URL, i, now); err != nil {
			return fmt.Errorf("index: insert article %s: %w", a.ID, err)
		}
		if err := ftsUpsert(tx, a.ID, a.Title, a.URL); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetArticle returns one article or apperr.ErrNotFound.
func (db *DB) GetArticle(id string) (*models.ArticleMetadata, error) {
	var m models.ArticleMetadata
	err := db.conn.QueryRow(`SELECT id, title, url, updated_at FROM articles WHERE id = ?`, id).
		Scan(&m.ID, &m.Title, &m.URL, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get article: %w", err)
	}
	return &m, nil
}

// ListArticles returns a page of articles in collection order and the
// total count.
func (db *DB) ListArticles(limit, offset int) ([]models.ArticleMetadata, int, error) {
	if limit <= 0 {
		limit = 100
	}
	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM articles`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count articles: %w", err)
	}
	rows, err := db.conn.Query(`
		SELECT id, title, url, updated_at FROM articles
		ORDER BY position, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list articles: %w", err)
	}
	defer rows.Close()

	var out []models.ArticleMetadata
	for rows.Next() {
		var m models.ArticleMetadata
		if err := rows.Scan(&m.ID, &m.Title, &m.URL, &m.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// GetChecksum returns the stored checksum for a snapshot, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM snapshots WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// SetChecksum records the checksum a snapshot was last synced at. An empty
// checksum forgets the snapshot.
func (db *DB) SetChecksum(path, checksum string) error {
	if checksum == "" {
		_, err := db.conn.Exec(`DELETE FROM snapshots WHERE path = ?`, path)
		return err
	}
	_, err := db.conn.Exec(`
		INSERT INTO snapshots (path, checksum, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET checksum = excluded.checksum, updated_at = excluded.updated_at
	`, path, checksum, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index: set checksum: %w", err)
	}
	return nil
}

// AllChecksums returns path → checksum for every synced snapshot.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM snapshots`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
