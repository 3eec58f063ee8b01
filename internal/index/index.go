package index

import (
	"github.com/starford/interlink/internal/models"
	"github.com/starford/interlink/internal/reconcile"
)

// ArticleIndex defines the interface for article index and run history
// operations. Consumers should depend on this interface rather than the
// concrete *DB type to facilitate testing with fakes.
type ArticleIndex interface {
	ReplaceArticles(arts []models.Article) error
	GetArticle(id string) (*models.ArticleMetadata, error)
	ListArticles(limit, offset int) ([]models.ArticleMetadata, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	GetChecksum(path string) (string, error)
	SetChecksum(path, checksum string) error
	AllChecksums() (map[string]string, error)
	RecordRun(kind string, rep *reconcile.Report) (int64, error)
	RecentRuns(limit int) ([]RunRow, error)
	RunDocuments(runID int64) ([]reconcile.DocumentResult, error)
	Close() error
}

// Verify *DB satisfies ArticleIndex at compile time.
var _ ArticleIndex = (*DB)(nil)
