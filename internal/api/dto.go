package api

import (
	"github.com/starford/interlink/internal/index"
	"github.com/starford/interlink/internal/linker"
	"github.com/starford/interlink/internal/linkservice"
	"github.com/starford/interlink/internal/models"
	"github.com/starford/interlink/internal/reconcile"
	"github.com/starford/interlink/internal/registry"
)

// AddKeywordRequest is the request body for adding a keyword.
type AddKeywordRequest struct {
	Category string `json:"category" example:"drinks" validate:"required"`
	Keyword  string `json:"keyword" example:"カフェ" validate:"required"`
	URL      string `json:"url" example:"https://example.com/media/column/cafe/" validate:"required"`
}

// UpdateKeywordRequest is the request body for renaming, retargeting or
// moving a keyword. Empty fields are left as they are.
type UpdateKeywordRequest = registry.Change

// ReconcileRequest selects the documents of a reconciliation run.
type ReconcileRequest struct {
	IDs    []string `json:"ids,omitempty" example:"123,456"`
	DryRun bool     `json:"dry_run" example:"false"`
}

// KeywordEntry is one registry keyword (aliased from the domain layer).
type KeywordEntry = registry.Entry

// FlatRegistryResponse wraps the flattened registry.
type FlatRegistryResponse struct {
	Pairs []linker.Pair `json:"pairs" validate:"required"`
}

// ArticleView is an article with its linked keywords (aliased from the
// domain layer).
type ArticleView = linkservice.ArticleView

// ArticleListResponse wraps the article listing.
type ArticleListResponse struct {
	Articles []ArticleView `json:"articles" validate:"required"`
	Total    int           `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// CollectResponse is returned after the article index was rebuilt.
type CollectResponse struct {
	Articles []models.Article `json:"articles" validate:"required"`
	Total    int              `json:"total" example:"42" validate:"required"`
}

// RunReport is the result of a reconciliation or detection run (aliased
// from the domain layer).
type RunReport = reconcile.Report

// RunListResponse wraps the recent runs.
type RunListResponse struct {
	Runs []index.RunRow `json:"runs" validate:"required"`
}

// RunDetailResponse lists the per-document results of one run.
type RunDetailResponse struct {
	ID        int64                      `json:"id" example:"7" validate:"required"`
	Documents []reconcile.DocumentResult `json:"documents" validate:"required"`
}
