// Package linkservice coordinates the snapshots, the article index and the
// reconciliation driver behind the REST API, the MCP server and the CLI.
package linkservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/interlink/internal/apperr"
	"github.com/starford/interlink/internal/collector"
	"github.com/starford/interlink/internal/datastore"
	"github.com/starford/interlink/internal/index"
	"github.com/starford/interlink/internal/ledger"
	"github.com/starford/interlink/internal/linker"
	"github.com/starford/interlink/internal/models"
	"github.com/starford/interlink/internal/reconcile"
	"github.com/starford/interlink/internal/registry"
	"github.com/starford/interlink/internal/sse"
)

// Run kinds recorded in the index.
const (
	KindReconcile = "reconcile"
	KindDetect    = "detect"
)

// ArticleView is an article with the keywords the ledger links in it.
type ArticleView struct {
	models.Article
	Keywords []string `json:"keywords"`
}

// Publisher receives live events. *sse.Broker implements it.
type Publisher interface {
	Publish(event sse.Event)
}

// Settings are the linking and collection tunables.
type Settings struct {
	Linking reconcile.Config
	Collect collector.Options
}

// Deps are the collaborators of a Service. Content, Pages and Posts may be
// nil when no content store is configured; operations that need them then
// fail with apperr.ErrNotConfigured.
type Deps struct {
	Data      *datastore.Store
	Index     index.ArticleIndex
	Content   reconcile.ContentStore
	Pages     reconcile.PageFetcher
	Posts     collector.PostLister
	Publisher Publisher
	Logger    *slog.Logger
}

// Service serialises every snapshot mutation and run.
type Service struct {
	mu       sync.Mutex
	deps     Deps
	settings Settings
	logger   *slog.Logger
}

// NewService creates a link service.
func NewService(deps Deps, settings Settings) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{deps: deps, settings: settings, logger: logger}
}

// Registry returns the keyword registry.
func (s *Service) Registry(_ context.Context) (*registry.Registry, error) {
	return s.deps.Data.LoadRegistry()
}

// FlatPairs returns the registry flattened into ordered pairs.
func (s *Service) FlatPairs(_ context.Context) ([]linker.Pair, error) {
	r, err := s.deps.Data.LoadRegistry()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(r.Pairs()), nil
}

// AddKeyword appends keyword to category.
func (s *Service) AddKeyword(ctx context.Context, category, keyword, url string) (registry.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.deps.Data.LoadRegistry()
	if err != nil {
		return registry.Entry{}, err
	}
	if err := r.Add(category, keyword, url); err != nil {
		return registry.Entry{}, err
	}
	if err := s.saved(s.deps.Data.SaveRegistry(ctx, r)); err != nil {
		return registry.Entry{}, err
	}
	s.logger.Info("keyword added", slog.String("keyword", keyword), slog.String("category", category))
	return registry.Entry{Category: category, Keyword: keyword, URL: url}, nil
}

// UpdateKeyword renames, retargets or moves a keyword. A rename carries the
// keyword's ledger entry over; a retarget leaves the ledger pointing at the
// old reference so the next reconciliation replaces it.
func (s *Service) UpdateKeyword(ctx context.Context, keyword string, ch registry.Change) (registry.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.deps.Data.LoadRegistry()
	if err != nil {
		return registry.Entry{}, err
	}
	e, err := r.Update(keyword, ch)
	if err != nil {
		return registry.Entry{}, err
	}
	if e.Keyword != keyword {
		l, err := s.deps.Data.LoadLedger()
		if err != nil {
			return registry.Entry{}, err
		}
		l.Rename(keyword, e.Keyword)
		if err := s.saved(s.deps.Data.SaveLedger(ctx, l)); err != nil {
			return registry.Entry{}, err
		}
	}
	if err := s.saved(s.deps.Data.SaveRegistry(ctx, r)); err != nil {
		return registry.Entry{}, err
	}
	s.logger.Info("keyword updated", slog.String("keyword", keyword), slog.String("now", e.Keyword))
	return e, nil
}

// RemoveKeyword drops keyword from the registry. Its ledger entry stays
// behind until a full clean reconciliation has removed its links.
func (s *Service) RemoveKeyword(ctx context.Context, keyword string) (registry.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.deps.Data.LoadRegistry()
	if err != nil {
		return registry.Entry{}, err
	}
	e, err := r.Remove(keyword)
	if err != nil {
		return registry.Entry{}, err
	}
	if err := s.saved(s.deps.Data.SaveRegistry(ctx, r)); err != nil {
		return registry.Entry{}, err
	}
	s.logger.Info("keyword removed", slog.String("keyword", keyword))
	return e, nil
}

// Ledger returns the usage ledger.
func (s *Service) Ledger(_ context.Context) (*ledger.Ledger, error) {
	return s.deps.Data.LoadLedger()
}

// ToggleLink marks keyword as wanted (on) or unwanted in articleID. The
// change reaches the document on the next reconciliation.
func (s *Service) ToggleLink(ctx context.Context, keyword, articleID string, on bool) error {
	if articleID == "" {
		return fmt.Errorf("%w: article id is required", apperr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.deps.Data.LoadRegistry()
	if err != nil {
		return err
	}
	e, ok := r.Lookup(keyword)
	if !ok {
		return fmt.Errorf("linkservice: keyword %q: %w", keyword, apperr.ErrNotFound)
	}
	l, err := s.deps.Data.LoadLedger()
	if err != nil {
		return err
	}
	l.Toggle(e.Keyword, e.URL, articleID, on)
	if err := s.saved(s.deps.Data.SaveLedger(ctx, l)); err != nil {
		return err
	}
	s.logger.Info("link toggled",
		slog.String("keyword", keyword),
		slog.String("article", articleID),
		slog.Bool("on", on),
	)
	return nil
}

// Articles lists the indexed articles with their linked keywords. Ledger
// document ids missing from the index are listed after them as unknown.
func (s *Service) Articles(_ context.Context) ([]ArticleView, error) {
	arts, err := s.indexedArticles()
	if err != nil {
		return nil, err
	}
	l, err := s.deps.Data.LoadLedger()
	if err != nil {
		return nil, err
	}
	out := make([]ArticleView, 0, len(arts))
	for _, a := range withLedgerIDs(arts, l) {
		out = append(out, ArticleView{Article: a, Keywords: nonNilSlice(l.KeywordsFor(a.ID))})
	}
	return out, nil
}

// SearchArticles searches article titles.
func (s *Service) SearchArticles(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", apperr.ErrInvalidInput)
	}
	res, err := s.deps.Index.Search(query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(res), nil
}

// Collect rebuilds the article snapshot from the posts endpoint.
func (s *Service) Collect(ctx context.Context) ([]models.Article, error) {
	if s.deps.Posts == nil {
		return nil, fmt.Errorf("linkservice: collect: %w", apperr.ErrNotConfigured)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	arts, err := collector.Collect(ctx, s.deps.Posts, s.settings.Collect, s.logger)
	if err != nil {
		return nil, err
	}
	if err := s.saved(s.deps.Data.SaveArticles(ctx, arts)); err != nil {
		return nil, err
	}
	if err := s.deps.Index.ReplaceArticles(arts); err != nil {
		return nil, err
	}
	return nonNilSlice(arts), nil
}

// Reconcile brings the documents in line with the ledger. With no ids every
// article in the snapshot and every document the ledger mentions is
// processed. A dry run pushes nothing and keeps the ledger as it is.
//
// Only after a full run without failures are retargeted entries aligned with
// the registry and entries of removed keywords dropped; until then they keep
// pulling their old links out.
func (s *Service) Reconcile(ctx context.Context, ids []string, dryRun bool) (*reconcile.Report, error) {
	if s.deps.Content == nil {
		return nil, fmt.Errorf("linkservice: reconcile: %w", apperr.ErrNotConfigured)
	}
	if !s.mu.TryLock() {
		return nil, fmt.Errorf("linkservice: a run is already in progress: %w", apperr.ErrConflict)
	}
	defer s.mu.Unlock()

	r, err := s.deps.Data.LoadRegistry()
	if err != nil {
		return nil, err
	}
	l, err := s.deps.Data.LoadLedger()
	if err != nil {
		return nil, err
	}
	arts, err := s.deps.Data.LoadArticles()
	if err != nil {
		return nil, err
	}
	pairs := r.Pairs()
	docs := targets(arts, l, ids)

	d := reconcile.NewDriver(s.deps.Content, s.deps.Pages, s.settings.Linking, s.logger)
	rep, runErr := d.Run(ctx, docs, l, pairs, reconcile.RunOptions{
		DryRun: dryRun,
		Notify: func(res reconcile.DocumentResult) {
			s.publish(sse.TypeDocumentReconciled, res)
		},
	})

	if !dryRun {
		if runErr == nil && len(ids) == 0 && rep.Clean() {
			l.Retarget(pairs)
			if n := l.Prune(pairs); n > 0 {
				s.logger.Info("reconcile: pruned removed keywords", slog.Int("count", n))
			}
		}
		if err := s.saved(s.deps.Data.SaveLedger(context.WithoutCancel(ctx), l)); err != nil {
			return rep, err
		}
	}
	s.finish(KindReconcile, rep)
	return rep, runErr
}

// Detect rebuilds the ledger from the links present in every article.
func (s *Service) Detect(ctx context.Context) (*reconcile.Report, error) {
	switch s.settings.Linking.DetectSource {
	case reconcile.SourceContent:
		if s.deps.Content == nil {
			return nil, fmt.Errorf("linkservice: detect: %w", apperr.ErrNotConfigured)
		}
	default:
		if s.deps.Pages == nil {
			return nil, fmt.Errorf("linkservice: detect: %w", apperr.ErrNotConfigured)
		}
	}
	if !s.mu.TryLock() {
		return nil, fmt.Errorf("linkservice: a run is already in progress: %w", apperr.ErrConflict)
	}
	defer s.mu.Unlock()

	r, err := s.deps.Data.LoadRegistry()
	if err != nil {
		return nil, err
	}
	prev, err := s.deps.Data.LoadLedger()
	if err != nil {
		return nil, err
	}
	arts, err := s.deps.Data.LoadArticles()
	if err != nil {
		return nil, err
	}

	d := reconcile.NewDriver(s.deps.Content, s.deps.Pages, s.settings.Linking, s.logger)
	next, rep, err := d.Detect(ctx, arts, r.Pairs(), prev)
	if err != nil {
		return rep, err
	}
	if err := s.saved(s.deps.Data.SaveLedger(ctx, next)); err != nil {
		return rep, err
	}
	s.finish(KindDetect, rep)
	return rep, nil
}

// Preview shows what reconciling body as article id would do, without
// touching any store.
func (s *Service) Preview(_ context.Context, id, body string) (linker.Result, error) {
	r, err := s.deps.Data.LoadRegistry()
	if err != nil {
		return linker.Result{}, err
	}
	l, err := s.deps.Data.LoadLedger()
	if err != nil {
		return linker.Result{}, err
	}
	doc := models.Placeholder(id)
	if a, err := s.deps.Index.GetArticle(id); err == nil {
		doc = a.Article
	}
	return reconcile.Plan(doc, body, l, r.Pairs(), s.settings.Linking.MaxLinks), nil
}

// DetectIn counts the registry links present in body.
func (s *Service) DetectIn(_ context.Context, body string) (map[string]int, error) {
	r, err := s.deps.Data.LoadRegistry()
	if err != nil {
		return nil, err
	}
	return reconcile.DetectUsage(body, r.Pairs(), s.settings.Linking.DetectMode)
}

// ImportFlat converts a flat registry snapshot into the nested form.
func (s *Service) ImportFlat(ctx context.Context) (*registry.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.deps.Data.ImportFlatRegistry(ctx)
	if r != nil {
		err = s.saved(err)
	}
	return r, err
}

// Runs returns the most recent runs.
func (s *Service) Runs(_ context.Context, limit int) ([]index.RunRow, error) {
	runs, err := s.deps.Index.RecentRuns(limit)
	return nonNilSlice(runs), err
}

// RunDocuments returns the per-document results of a run.
func (s *Service) RunDocuments(_ context.Context, id int64) ([]reconcile.DocumentResult, error) {
	docs, err := s.deps.Index.RunDocuments(id)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("linkservice: run %d: %w", id, apperr.ErrNotFound)
	}
	return docs, nil
}

func (s *Service) finish(kind string, rep *reconcile.Report) {
	if _, err := s.deps.Index.RecordRun(kind, rep); err != nil {
		s.logger.Error("record run failed", slog.String("run", rep.ID), slog.String("error", err.Error()))
	}
	s.publish(sse.TypeRunFinished, map[string]any{
		"kind":      kind,
		"id":        rep.ID,
		"dry_run":   rep.DryRun,
		"pushed":    rep.Pushed,
		"unchanged": rep.Unchanged,
		"failed":    rep.Failed,
	})
}

func (s *Service) publish(typ string, data any) {
	if s.deps.Publisher == nil {
		return
	}
	s.deps.Publisher.Publish(sse.Event{Type: typ, Data: data})
}

// saved downgrades a failed remote commit to a warning: the snapshot is
// already on disk.
func (s *Service) saved(err error) error {
	if errors.Is(err, datastore.ErrCommitFailed) {
		s.logger.Warn("snapshot saved locally but not committed", slog.String("error", err.Error()))
		return nil
	}
	return err
}

func (s *Service) indexedArticles() ([]models.Article, error) {
	const page = 500
	var out []models.Article
	for offset := 0; ; offset += page {
		rows, total, err := s.deps.Index.ListArticles(page, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r.Article)
		}
		if len(rows) == 0 || offset+len(rows) >= total {
			return out, nil
		}
	}
}

// targets resolves the documents of a run. Unknown ids become placeholders.
func targets(arts []models.Article, l *ledger.Ledger, ids []string) []models.Article {
	if len(ids) == 0 {
		return withLedgerIDs(arts, l)
	}
	byID := make(map[string]models.Article, len(arts))
	for _, a := range arts {
		byID[a.ID] = a
	}
	out := make([]models.Article, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
			continue
		}
		out = append(out, models.Placeholder(id))
	}
	return out
}

func withLedgerIDs(arts []models.Article, l *ledger.Ledger) []models.Article {
	seen := make(map[string]struct{}, len(arts))
	out := make([]models.Article, 0, len(arts))
	for _, a := range arts {
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	for _, id := range l.DocumentIDs() {
		if _, ok := seen[id]; !ok {
			out = append(out, models.Placeholder(id))
		}
	}
	return out
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
