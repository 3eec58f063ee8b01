package index

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/starford/interlink/internal/checksum"
	"github.com/starford/interlink/internal/models"
	"github.com/starford/interlink/internal/storage"
)

// Sync brings the article table in line with the article snapshot:
//   - a new or changed snapshot is parsed and replaces every row
//   - a snapshot removed from disk empties the table
//
// It reports whether the table changed.
func Sync(db *DB, store storage.Provider, articlesPath string, logger *slog.Logger) (bool, error) {
	metas, err := store.List("")
	if err != nil {
		return false, err
	}
	stored, err := db.GetChecksum(articlesPath)
	if err != nil {
		return false, err
	}

	for _, m := range metas {
		if m.Path != articlesPath {
			continue
		}
		if m.Checksum == stored {
			return false, nil
		}
		data, err := store.Read(m.Path)
		if err != nil {
			return false, err
		}
		if err := indexArticles(db, m.Path, data); err != nil {
			return false, err
		}
		logger.Debug("sync: indexed", slog.String("path", m.Path))
		return true, nil
	}

	// Snapshot gone.
	if stored == "" {
		return false, nil
	}
	if err := db.ReplaceArticles(nil); err != nil {
		return false, err
	}
	logger.Debug("sync: removed stale", slog.String("path", articlesPath))
	return true, db.SetChecksum(articlesPath, "")
}

// indexArticles parses data and replaces the article rows.
func indexArticles(db *DB, path string, data []byte) error {
	var arts []models.Article
	if err := json.Unmarshal(data, &arts); err != nil {
		return fmt.Errorf("index: decode %s: %w", path, err)
	}
	if err := db.ReplaceArticles(arts); err != nil {
		return err
	}
	return db.SetChecksum(path, checksum.Sum(data))
}
