package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/interlink/internal/checksum"
	"github.com/starford/interlink/internal/ledger"
	"github.com/starford/interlink/internal/linker"
	"github.com/starford/interlink/internal/models"
)

// Config holds the driver's tunables.
type Config struct {
	// MaxLinks caps new anchors per document and pass. Zero or less means
	// no cap.
	MaxLinks int
	// DetectMode selects literal or html usage counting.
	DetectMode DetectMode
	// DetectSource selects where detection reads bodies from.
	DetectSource DetectSource
}

// RunOptions tunes a single Run.
type RunOptions struct {
	// DryRun computes every rewrite but pushes nothing and leaves the
	// ledger untouched.
	DryRun bool
	// Notify, when set, receives each document result as soon as it is
	// final.
	Notify func(DocumentResult)
}

// DocumentResult is the per-document status of a pass.
type DocumentResult struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	State      State    `json:"state"`
	Status     Status   `json:"status"`
	StatusCode int      `json:"status_code,omitempty"`
	Changed    bool     `json:"changed"`
	Linked     []string `json:"linked,omitempty"`
	Unlinked   []string `json:"unlinked,omitempty"`
	Missing    []string `json:"missing,omitempty"`
	Checksum   string   `json:"checksum,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Report summarises a batch.
type Report struct {
	ID         string           `json:"id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	DryRun     bool             `json:"dry_run"`
	Documents  []DocumentResult `json:"documents"`
	Pushed     int              `json:"pushed"`
	Unchanged  int              `json:"unchanged"`
	Failed     int              `json:"failed"`
}

// Clean reports whether no document failed.
func (r *Report) Clean() bool {
	return r.Failed == 0
}

func newReport(dryRun bool) *Report {
	return &Report{ID: uuid.NewString(), StartedAt: time.Now().UTC(), DryRun: dryRun}
}

func (r *Report) add(res DocumentResult) {
	r.Documents = append(r.Documents, res)
	switch {
	case res.Status == StatusFailed:
		r.Failed++
	case res.State == StatePushed:
		r.Pushed++
	case res.State == StateUnchanged:
		r.Unchanged++
	}
}

// Driver runs reconciliation and detection passes.
type Driver struct {
	store  ContentStore
	pages  PageFetcher
	cfg    Config
	logger *slog.Logger
}

// NewDriver creates a driver. pages may be nil when detection always reads
// from the content store.
func NewDriver(store ContentStore, pages PageFetcher, cfg Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{store: store, pages: pages, cfg: cfg, logger: logger}
}

// Run reconciles docs in order against the ledger and registry pairs. The
// ledger's counts are refreshed for every document whose final text is
// known. Cancellation is honoured between documents; the partial report is
// returned together with the context error.
func (d *Driver) Run(ctx context.Context, docs []models.Article, l *ledger.Ledger, pairs []linker.Pair, opts RunOptions) (*Report, error) {
	rep := newReport(opts.DryRun)
	defer func() { rep.FinishedAt = time.Now().UTC() }()

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res := d.reconcileOne(ctx, doc, l, pairs, opts.DryRun)
		rep.add(res)
		if opts.Notify != nil {
			opts.Notify(res)
		}
	}

	d.logger.Info("reconcile: done",
		slog.String("run", rep.ID),
		slog.Int("documents", len(docs)),
		slog.Int("pushed", rep.Pushed),
		slog.Int("unchanged", rep.Unchanged),
		slog.Int("failed", rep.Failed),
		slog.Bool("dry_run", opts.DryRun),
	)
	return rep, nil
}

func (d *Driver) reconcileOne(ctx context.Context, doc models.Article, l *ledger.Ledger, pairs []linker.Pair, dryRun bool) DocumentResult {
	res := DocumentResult{ID: doc.ID, Title: doc.Title}
	log := d.logger.With(slog.String("id", doc.ID))

	body, err := d.store.FetchBody(ctx, doc.ID)
	if err != nil {
		log.Warn("reconcile: fetch failed", slog.String("error", err.Error()))
		return failed(res, err)
	}
	res.State = StateFetched
	if body == "" {
		log.Warn("reconcile: empty body, skipping")
		res.State = StateUnchanged
		res.Status = StatusSkipped
		return res
	}

	plan := Plan(doc, body, l, pairs, d.cfg.MaxLinks)
	res.State = StateRestored
	res.Changed = plan.Changed
	res.Linked = keywords(plan.Linked)
	res.Unlinked = keywords(plan.Unlinked)
	res.Missing = keywords(plan.Missing)
	res.Checksum = checksum.Sum([]byte(plan.Text))
	for _, p := range plan.Linked {
		log.Debug("reconcile: linked", slog.String("keyword", p.Keyword), slog.String("url", p.URL))
	}
	for _, p := range plan.Unlinked {
		log.Debug("reconcile: unlinked", slog.String("keyword", p.Keyword), slog.String("url", p.URL))
	}

	// An unchanged document leaves the ledger exactly as it was.
	if !plan.Changed {
		res.State = StateUnchanged
		res.Status = StatusOK
		return res
	}
	if dryRun {
		res.Status = StatusDryRun
		return res
	}

	code, err := d.store.PushBody(ctx, doc.ID, plan.Text)
	res.StatusCode = code
	if err != nil {
		log.Warn("reconcile: push failed", slog.Int("status", code), slog.String("error", err.Error()))
		return failed(res, err)
	}
	if code < 200 || code > 299 {
		log.Warn("reconcile: push rejected", slog.Int("status", code))
		return failed(res, fmt.Errorf("reconcile: push %s: status %d", doc.ID, code))
	}
	res.State = StatePushed
	res.Status = StatusOK
	recordCounts(l, doc.ID, plan)
	log.Info("reconcile: pushed",
		slog.Int("status", code),
		slog.Int("linked", len(plan.Linked)),
		slog.Int("unlinked", len(plan.Unlinked)),
	)
	return res
}

// recordCounts stores the anchor count of every on pair that ended up
// linked. Pairs that could not be placed keep their ledger state so the
// operator's intent survives until the keyword appears in the text.
func recordCounts(l *ledger.Ledger, docID string, plan linker.Result) {
	for _, group := range [][]linker.Pair{plan.Linked, plan.Present} {
		for _, p := range group {
			if n := linker.CountLinks(plan.Text, p.URL); n > 0 {
				l.Record(p.Keyword, p.URL, docID, n)
			}
		}
	}
}

func failed(res DocumentResult, err error) DocumentResult {
	res.Status = StatusFailed
	res.Error = err.Error()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		res.Error = "cancelled: " + res.Error
	}
	return res
}

func keywords(pairs []linker.Pair) []string {
	if len(pairs) == 0 {
		return nil
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.Keyword
	}
	return out
}
