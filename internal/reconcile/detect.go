package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/interlink/internal/ledger"
	"github.com/starford/interlink/internal/linker"
	"github.com/starford/interlink/internal/models"
)

// DetectMode selects how references are counted in a body.
type DetectMode string

const (
	// DetectLiteral counts href="reference" substrings.
	DetectLiteral DetectMode = "literal"
	// DetectHTML parses the body and counts a[href] elements.
	DetectHTML DetectMode = "html"
)

// DetectSource selects which body detection reads.
type DetectSource string

const (
	// SourcePage reads the public rendered page.
	SourcePage DetectSource = "page"
	// SourceContent reads the body from the content store.
	SourceContent DetectSource = "content"
)

// DetectUsage counts the anchors to each pair's reference in body.
func DetectUsage(body string, pairs []linker.Pair, mode DetectMode) (map[string]int, error) {
	if mode == DetectHTML {
		return linker.DetectUsageHTML(body, pairs)
	}
	return linker.DetectUsage(body, pairs), nil
}

// Detect rebuilds a ledger from the links observed in docs. Every registry
// keyword gets an entry, linked or not. Documents that cannot be read keep
// whatever prev recorded for them.
func (d *Driver) Detect(ctx context.Context, docs []models.Article, pairs []linker.Pair, prev *ledger.Ledger) (*ledger.Ledger, *Report, error) {
	next := ledger.New()
	for _, p := range pairs {
		next.Ensure(p.Keyword, p.URL)
	}
	rep := newReport(false)
	defer func() { rep.FinishedAt = time.Now().UTC() }()

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return next, rep, err
		}
		res := DocumentResult{ID: doc.ID, Title: doc.Title}
		counts, err := d.detectOne(ctx, doc, pairs)
		if err != nil {
			d.logger.Warn("detect: skipped", slog.String("id", doc.ID), slog.String("error", err.Error()))
			carryOver(next, prev, doc.ID, pairs)
			rep.add(failed(res, err))
			continue
		}
		res.State = StateUnchanged
		res.Status = StatusOK
		for _, p := range pairs {
			if n := counts[p.Keyword]; n > 0 {
				next.Record(p.Keyword, p.URL, doc.ID, n)
				res.Linked = append(res.Linked, p.Keyword)
			}
		}
		d.logger.Debug("detect: scanned", slog.String("id", doc.ID), slog.Int("keywords", len(res.Linked)))
		rep.add(res)
	}
	d.logger.Info("detect: done",
		slog.String("run", rep.ID),
		slog.Int("documents", len(docs)),
		slog.Int("failed", rep.Failed),
	)
	return next, rep, nil
}

func (d *Driver) detectOne(ctx context.Context, doc models.Article, pairs []linker.Pair) (map[string]int, error) {
	var (
		body string
		err  error
	)
	if d.cfg.DetectSource == SourcePage && d.pages != nil {
		if doc.URL == "" {
			return nil, fmt.Errorf("reconcile: detect %s: no public url", doc.ID)
		}
		body, err = d.pages.FetchPage(ctx, doc.URL)
	} else {
		body, err = d.store.FetchBody(ctx, doc.ID)
	}
	if err != nil {
		return nil, err
	}
	return DetectUsage(body, pairs, d.cfg.DetectMode)
}

func carryOver(next, prev *ledger.Ledger, docID string, pairs []linker.Pair) {
	if prev == nil {
		return
	}
	for _, p := range pairs {
		if e, ok := prev.Get(p.Keyword); ok {
			if n, linked := e.Articles[docID]; linked {
				next.Record(p.Keyword, p.URL, docID, n)
			}
		}
	}
}
