package linkservice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/starford/interlink/internal/apperr"
	"github.com/starford/interlink/internal/datastore"
	"github.com/starford/interlink/internal/index"
	"github.com/starford/interlink/internal/models"
	"github.com/starford/interlink/internal/reconcile"
	"github.com/starford/interlink/internal/registry"
	"github.com/starford/interlink/internal/sse"
	"github.com/starford/interlink/internal/testutil"
	"github.com/starford/interlink/internal/wordpress"
)

const cafeURL = "https://example.com/cafe"

type memContent struct {
	mu     sync.Mutex
	bodies map[string]string
	pushes int
}

func (m *memContent) FetchBody(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bodies[id]
	if !ok {
		return "", apperr.ErrNotFound
	}
	return b, nil
}

func (m *memContent) PushBody(_ context.Context, id, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies[id] = text
	m.pushes++
	return 200, nil
}

type recorder struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recorder) Publish(e sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type testEnv struct {
	svc     *Service
	data    *datastore.Store
	db      *index.DB
	content *memContent
	events  *recorder
}

func newTestEnv(t *testing.T, bodies map[string]string) *testEnv {
	t.Helper()
	logger := testutil.QuietLogger()
	data := testutil.TestStore(t, nil)
	db := testutil.TestDB(t)

	content := &memContent{bodies: bodies}
	events := &recorder{}
	svc := NewService(Deps{
		Data:      data,
		Index:     db,
		Content:   content,
		Publisher: events,
		Logger:    logger,
	}, Settings{Linking: reconcile.Config{MaxLinks: 3}})
	return &testEnv{svc: svc, data: data, db: db, content: content, events: events}
}

func (e *testEnv) seedArticles(t *testing.T, arts ...models.Article) {
	t.Helper()
	if err := e.data.SaveArticles(context.Background(), arts); err != nil {
		t.Fatalf("SaveArticles: %v", err)
	}
	if err := e.db.ReplaceArticles(arts); err != nil {
		t.Fatalf("ReplaceArticles: %v", err)
	}
}

func TestAddKeyword_RejectsDuplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if _, err := env.svc.AddKeyword(ctx, "drinks", "カフェ", cafeURL); err != nil {
		t.Fatalf("AddKeyword: %v", err)
	}
	if _, err := env.svc.AddKeyword(ctx, "food", "カフェ", "https://example.com/x"); !errors.Is(err, apperr.ErrDuplicateKeyword) {
		t.Errorf("err = %v, want ErrDuplicateKeyword", err)
	}
	pairs, err := env.svc.FlatPairs(ctx)
	if err != nil || len(pairs) != 1 || pairs[0].URL != cafeURL {
		t.Errorf("pairs = %v err = %v", pairs, err)
	}
}

func TestToggleLink_UnknownKeyword(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.svc.ToggleLink(context.Background(), "nope", "1", true); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := env.svc.ToggleLink(context.Background(), "nope", "", true); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestReconcile_LinksThenIsIdempotent(t *testing.T) {
	env := newTestEnv(t, map[string]string{"1": "今日はカフェに行った。", "2": "カフェ"})
	ctx := context.Background()
	env.seedArticles(t, models.Article{ID: "1", Title: "One"}, models.Article{ID: "2", Title: "Two"})
	_, _ = env.svc.AddKeyword(ctx, "drinks", "カフェ", cafeURL)
	if err := env.svc.ToggleLink(ctx, "カフェ", "1", true); err != nil {
		t.Fatalf("ToggleLink: %v", err)
	}

	rep, err := env.svc.Reconcile(ctx, nil, false)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rep.Pushed != 1 || rep.Unchanged != 1 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if got := env.content.bodies["1"]; !strings.Contains(got, `<a href="`+cafeURL+`">カフェ</a>`) {
		t.Errorf("body 1 = %q", got)
	}
	if env.content.bodies["2"] != "カフェ" {
		t.Errorf("body 2 was touched: %q", env.content.bodies["2"])
	}

	rep, err = env.svc.Reconcile(ctx, nil, false)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if rep.Pushed != 0 || env.content.pushes != 1 {
		t.Errorf("second pass pushed: %+v", rep)
	}

	runs, err := env.svc.Runs(ctx, 10)
	if err != nil || len(runs) != 2 || runs[0].Kind != KindReconcile || runs[0].UID == "" {
		t.Errorf("runs = %+v err = %v", runs, err)
	}
	docs, err := env.svc.RunDocuments(ctx, runs[1].ID)
	if err != nil || len(docs) != 2 || docs[0].Title != "One" {
		t.Errorf("run documents = %+v err = %v", docs, err)
	}
	if env.events.count(sse.TypeDocumentReconciled) != 4 || env.events.count(sse.TypeRunFinished) != 2 {
		t.Errorf("events = %+v", env.events.events)
	}
}

func TestReconcile_RemovedKeywordIsUnlinkedAndPruned(t *testing.T) {
	env := newTestEnv(t, map[string]string{"1": `今日は<a href="` + cafeURL + `">カフェ</a>に行った。`})
	ctx := context.Background()
	env.seedArticles(t, models.Article{ID: "1", Title: "One"})
	_, _ = env.svc.AddKeyword(ctx, "drinks", "カフェ", cafeURL)
	_ = env.svc.ToggleLink(ctx, "カフェ", "1", true)

	if _, err := env.svc.RemoveKeyword(ctx, "カフェ"); err != nil {
		t.Fatalf("RemoveKeyword: %v", err)
	}
	if _, err := env.svc.Reconcile(ctx, nil, false); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := env.content.bodies["1"]; got != "今日はカフェに行った。" {
		t.Errorf("body = %q", got)
	}
	l, _ := env.svc.Ledger(ctx)
	if l.Len() != 0 {
		t.Errorf("orphan entry kept after clean run: %v", l.Keywords())
	}
}

func TestReconcile_RetargetReplacesLink(t *testing.T) {
	env := newTestEnv(t, map[string]string{"1": "カフェ"})
	ctx := context.Background()
	env.seedArticles(t, models.Article{ID: "1", Title: "One"})
	_, _ = env.svc.AddKeyword(ctx, "drinks", "カフェ", cafeURL)
	_ = env.svc.ToggleLink(ctx, "カフェ", "1", true)
	if _, err := env.svc.Reconcile(ctx, nil, false); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	const next = "https://example.com/cafe-v2"
	if _, err := env.svc.UpdateKeyword(ctx, "カフェ", registry.Change{URL: next}); err != nil {
		t.Fatalf("UpdateKeyword: %v", err)
	}
	if _, err := env.svc.Reconcile(ctx, nil, false); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := env.content.bodies["1"]; got != `<a href="`+next+`">カフェ</a>` {
		t.Errorf("body = %q", got)
	}
	l, _ := env.svc.Ledger(ctx)
	if e, ok := l.Get("カフェ"); !ok || e.URL != next {
		t.Errorf("ledger entry = %+v", e)
	}
}

func TestUpdateKeyword_RenameCarriesLedger(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, _ = env.svc.AddKeyword(ctx, "drinks", "カフェ", cafeURL)
	_ = env.svc.ToggleLink(ctx, "カフェ", "7", true)

	if _, err := env.svc.UpdateKeyword(ctx, "カフェ", registry.Change{Keyword: "喫茶店"}); err != nil {
		t.Fatalf("UpdateKeyword: %v", err)
	}
	l, _ := env.svc.Ledger(ctx)
	if !l.Linked("喫茶店", "7") || l.Linked("カフェ", "7") {
		t.Errorf("ledger keywords = %v", l.Keywords())
	}
}

func TestReconcile_DryRunKeepsLedgerAndBodies(t *testing.T) {
	env := newTestEnv(t, map[string]string{"1": "カフェ"})
	ctx := context.Background()
	env.seedArticles(t, models.Article{ID: "1", Title: "One"})
	_, _ = env.svc.AddKeyword(ctx, "drinks", "カフェ", cafeURL)
	_ = env.svc.ToggleLink(ctx, "カフェ", "1", true)

	rep, err := env.svc.Reconcile(ctx, []string{"1"}, true)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !rep.DryRun || rep.Documents[0].Status != reconcile.StatusDryRun {
		t.Errorf("report = %+v", rep)
	}
	if env.content.pushes != 0 || env.content.bodies["1"] != "カフェ" {
		t.Errorf("dry run wrote: %q", env.content.bodies["1"])
	}
}

func TestReconcile_NotConfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.deps.Content = nil
	if _, err := env.svc.Reconcile(context.Background(), nil, false); !errors.Is(err, apperr.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
	if _, err := env.svc.Collect(context.Background()); !errors.Is(err, apperr.ErrNotConfigured) {
		t.Errorf("collect err = %v, want ErrNotConfigured", err)
	}
}

type downPosts struct{}

func (downPosts) ListPosts(context.Context, int, int) ([]wordpress.Post, int, error) {
	return nil, 0, errors.New("connection refused")
}

func TestCollect_FailureKeepsArticles(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.deps.Posts = downPosts{}
	env.seedArticles(t, models.Article{ID: "1", Title: "One", URL: "https://example.com/1"})

	if _, err := env.svc.Collect(context.Background()); !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	arts, err := env.data.LoadArticles()
	if err != nil || len(arts) != 1 {
		t.Errorf("snapshot = %+v err = %v", arts, err)
	}
	if _, total, err := env.db.ListArticles(10, 0); err != nil || total != 1 {
		t.Errorf("index total = %d err = %v", total, err)
	}
}

func TestArticles_UnknownFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.seedArticles(t, models.Article{ID: "1", Title: "One", URL: "https://example.com/1"})
	_, _ = env.svc.AddKeyword(ctx, "drinks", "カフェ", cafeURL)
	_ = env.svc.ToggleLink(ctx, "カフェ", "1", true)
	_ = env.svc.ToggleLink(ctx, "カフェ", "99", true)

	views, err := env.svc.Articles(ctx)
	if err != nil {
		t.Fatalf("Articles: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("views = %+v", views)
	}
	if views[0].Title != "One" || len(views[0].Keywords) != 1 {
		t.Errorf("view 0 = %+v", views[0])
	}
	if views[1].ID != "99" || views[1].Title != models.UnknownTitle || views[1].Known() {
		t.Errorf("view 1 = %+v", views[1])
	}
}

func TestPreviewAndDetectIn(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, _ = env.svc.AddKeyword(ctx, "drinks", "カフェ", cafeURL)
	_ = env.svc.ToggleLink(ctx, "カフェ", "1", true)

	res, err := env.svc.Preview(ctx, "1", "カフェ")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !res.Changed || len(res.Linked) != 1 {
		t.Errorf("preview = %+v", res)
	}

	counts, err := env.svc.DetectIn(ctx, res.Text)
	if err != nil || counts["カフェ"] != 1 {
		t.Errorf("counts = %v err = %v", counts, err)
	}
}

type pages map[string]string

func (p pages) FetchPage(_ context.Context, url string) (string, error) {
	body, ok := p[url]
	if !ok {
		return "", apperr.ErrNotFound
	}
	return body, nil
}

func TestDetect_RebuildsLedgerFromPages(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.svc.deps.Pages = pages{
		"https://example.com/1": `<p><a href="` + cafeURL + `">カフェ</a></p>`,
	}
	env.svc.settings.Linking.DetectSource = reconcile.SourcePage
	env.seedArticles(t,
		models.Article{ID: "1", Title: "One", URL: "https://example.com/1"},
		models.Article{ID: "2", Title: "Two", URL: "https://example.com/2"},
	)
	_, _ = env.svc.AddKeyword(ctx, "drinks", "カフェ", cafeURL)
	_, _ = env.svc.AddKeyword(ctx, "drinks", "tea", "https://example.com/tea")
	_ = env.svc.ToggleLink(ctx, "カフェ", "2", true)

	rep, err := env.svc.Detect(ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if rep.Failed != 1 {
		t.Errorf("report = %+v", rep)
	}
	l, _ := env.svc.Ledger(ctx)
	if l.Len() != 2 {
		t.Errorf("every keyword should have an entry: %v", l.Keywords())
	}
	if !l.Linked("カフェ", "1") {
		t.Error("observed link not recorded")
	}
	if !l.Linked("カフェ", "2") {
		t.Error("unreadable page should keep its previous entry")
	}
	runs, _ := env.svc.Runs(ctx, 1)
	if len(runs) != 1 || runs[0].Kind != KindDetect {
		t.Errorf("runs = %+v", runs)
	}
}
