// Package collector builds the article index from the posts endpoint.
package collector

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/starford/interlink/internal/apperr"
	"github.com/starford/interlink/internal/models"
	"github.com/starford/interlink/internal/wordpress"
)

// DefaultPathFilter keeps only column articles.
const DefaultPathFilter = "/media/column/"

// PostLister pages through published posts.
type PostLister interface {
	ListPosts(ctx context.Context, page, perPage int) ([]wordpress.Post, int, error)
}

// Options bounds a collection run.
type Options struct {
	PerPage    int
	MaxPages   int
	PathFilter string
}

// Collect pages through the posts endpoint until a page is empty, MaxPages
// is reached or WordPress answers 400 past the last page, and keeps the
// posts whose link contains PathFilter. An empty filter keeps every post.
//
// Any other failure, on any page, fails the whole collection with
// apperr.ErrUpstream so a partial list never replaces the snapshot.
func Collect(ctx context.Context, src PostLister, opts Options, logger *slog.Logger) ([]models.Article, error) {
	if opts.PerPage <= 0 {
		opts.PerPage = 50
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}

	var (
		out     []models.Article
		fetched int
	)
	for page := 1; page <= opts.MaxPages; page++ {
		posts, status, err := src.ListPosts(ctx, page, opts.PerPage)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("collect: page failed", slog.Int("page", page), slog.String("error", err.Error()))
			return nil, fmt.Errorf("collector: page %d: %w: %v", page, apperr.ErrUpstream, err)
		}
		if page > 1 && status == http.StatusBadRequest {
			logger.Debug("collect: end of list", slog.Int("page", page))
			break
		}
		if status != http.StatusOK {
			logger.Warn("collect: page rejected", slog.Int("page", page), slog.Int("status", status))
			return nil, fmt.Errorf("collector: page %d: %w: status %d", page, apperr.ErrUpstream, status)
		}
		if len(posts) == 0 {
			break
		}
		fetched += len(posts)
		for _, p := range posts {
			if opts.PathFilter != "" && !strings.Contains(p.Link, opts.PathFilter) {
				continue
			}
			out = append(out, models.Article{
				ID:    strconv.FormatInt(p.ID, 10),
				Title: html.UnescapeString(p.Title.Rendered),
				URL:   p.Link,
			})
		}
	}

	logger.Info("collect: done", slog.Int("fetched", fetched), slog.Int("kept", len(out)))
	return out, nil
}
