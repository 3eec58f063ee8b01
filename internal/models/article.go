// Package models defines the domain types for Interlink.
package models

import "time"

// UnknownTitle is shown for document ids missing from the article index.
const UnknownTitle = "unknown"

// Article is a published document as listed in articles.json.
type Article struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Known reports whether the article was resolved from the index.
func (a Article) Known() bool {
	return a.Title != UnknownTitle || a.URL != ""
}

// Placeholder returns the stand-in used when id is not in the index.
func Placeholder(id string) Article {
	return Article{ID: id, Title: UnknownTitle}
}

// ArticleMetadata is a lightweight row returned by index queries.
type ArticleMetadata struct {
	Article
	UpdatedAt time.Time `json:"updated_at"`
}

// SnapshotMeta describes one JSON snapshot in the data directory.
type SnapshotMeta struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
