package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/starford/interlink/internal/ledger"
	"github.com/starford/interlink/internal/linker"
	"github.com/starford/interlink/internal/models"
)

var (
	cafe  = linker.Pair{Keyword: "カフェ", URL: "https://x/cafe"}
	bread = linker.Pair{Keyword: "パン", URL: "https://x/bread"}
)

type fakeStore struct {
	bodies   map[string]string
	fetchErr map[string]error
	pushCode int
	pushed   map[string]string
}

func newFakeStore(bodies map[string]string) *fakeStore {
	return &fakeStore{bodies: bodies, fetchErr: map[string]error{}, pushCode: 200, pushed: map[string]string{}}
}

func (f *fakeStore) FetchBody(_ context.Context, id string) (string, error) {
	if err := f.fetchErr[id]; err != nil {
		return "", err
	}
	return f.bodies[id], nil
}

func (f *fakeStore) PushBody(_ context.Context, id, text string) (int, error) {
	if f.pushCode/100 == 2 {
		f.pushed[id] = text
		f.bodies[id] = text
	}
	return f.pushCode, nil
}

type fakePages map[string]string

func (f fakePages) FetchPage(_ context.Context, url string) (string, error) {
	body, ok := f[url]
	if !ok {
		return "", errors.New("404")
	}
	return body, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestReconcileDocument_Idempotent(t *testing.T) {
	l := ledger.New()
	l.Toggle(cafe.Keyword, cafe.URL, "1", true)
	doc := models.Article{ID: "1", URL: "https://x/posts/1"}
	pairs := []linker.Pair{cafe, bread}

	text, changed := ReconcileDocument(doc, "カフェでパンを食べた", l, pairs, 3)
	if !changed || !strings.Contains(text, `<a href="https://x/cafe">カフェ</a>`) {
		t.Fatalf("text = %q changed = %v", text, changed)
	}
	if strings.Contains(text, "x/bread") {
		t.Errorf("bread is not in the ledger for doc 1: %q", text)
	}
	if _, again := ReconcileDocument(doc, text, l, pairs, 3); again {
		t.Error("second pass must not change the text")
	}
}

func TestReconcileDocument_IdempotentOverBudget(t *testing.T) {
	l := ledger.New()
	l.Toggle(cafe.Keyword, cafe.URL, "1", true)
	l.Toggle(bread.Keyword, bread.URL, "1", true)
	doc := models.Article{ID: "1", URL: "https://x/posts/1"}
	pairs := []linker.Pair{cafe, bread}

	text, changed := ReconcileDocument(doc, "カフェでパンを食べた", l, pairs, 1)
	if !changed || text != `<a href="https://x/cafe">カフェ</a>でパンを食べた` {
		t.Fatalf("text = %q changed = %v", text, changed)
	}
	if again, changed := ReconcileDocument(doc, text, l, pairs, 1); changed {
		t.Errorf("second pass must not change the text: %q", again)
	}
}

func TestReconcileDocument_UnlinksWhenToggledOff(t *testing.T) {
	l := ledger.New()
	l.Toggle(cafe.Keyword, cafe.URL, "1", true)
	l.Toggle(cafe.Keyword, cafe.URL, "1", false)
	text, changed := ReconcileDocument(models.Article{ID: "1"}, `<a href="https://x/cafe">カフェ</a>`, l, []linker.Pair{cafe}, 1)
	if !changed || text != "カフェ" {
		t.Errorf("text = %q changed = %v", text, changed)
	}
}

func TestReconcileDocument_NeverSelfLinks(t *testing.T) {
	l := ledger.New()
	l.Toggle(cafe.Keyword, cafe.URL, "1", true)
	doc := models.Article{ID: "1", URL: cafe.URL}
	if text, changed := ReconcileDocument(doc, "カフェ", l, []linker.Pair{cafe}, 1); changed {
		t.Errorf("self link inserted: %q", text)
	}
}

func TestRun_BatchContinuesAndReportsPerDocument(t *testing.T) {
	store := newFakeStore(map[string]string{
		"1": "カフェの話",
		"2": "",
		"3": "パンの話",
		"4": "nothing here",
	})
	store.fetchErr["3"] = errors.New("timeout")

	l := ledger.New()
	for _, id := range []string{"1", "3"} {
		l.Toggle(cafe.Keyword, cafe.URL, id, true)
	}
	docs := []models.Article{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}}

	var notified int
	d := NewDriver(store, nil, Config{MaxLinks: 1}, quietLogger())
	rep, err := d.Run(context.Background(), docs, l, []linker.Pair{cafe}, RunOptions{
		Notify: func(DocumentResult) { notified++ },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if notified != len(docs) || len(rep.Documents) != len(docs) {
		t.Fatalf("notified = %d results = %d", notified, len(rep.Documents))
	}
	if rep.ID == "" || rep.FinishedAt.Before(rep.StartedAt) {
		t.Errorf("report id = %q started = %v finished = %v", rep.ID, rep.StartedAt, rep.FinishedAt)
	}

	want := []struct {
		state  State
		status Status
	}{
		{StatePushed, StatusOK},
		{StateUnchanged, StatusSkipped},
		{StateNone, StatusFailed},
		{StateUnchanged, StatusOK},
	}
	for i, w := range want {
		got := rep.Documents[i]
		if got.State != w.state || got.Status != w.status {
			t.Errorf("doc %s: state = %s status = %s, want %s %s", got.ID, got.State, got.Status, w.state, w.status)
		}
	}
	if rep.Pushed != 1 || rep.Failed != 1 || rep.Clean() {
		t.Errorf("report = %+v", rep)
	}
	if store.pushed["1"] != `<a href="https://x/cafe">カフェ</a>の話` {
		t.Errorf("pushed = %q", store.pushed["1"])
	}
	if e, _ := l.Get(cafe.Keyword); e.Articles["1"] != 1 {
		t.Errorf("ledger count = %d", e.Articles["1"])
	}
}

func TestRun_UnchangedKeepsLedgerCounts(t *testing.T) {
	body := `<a href="https://x/cafe">カフェ</a>と<a href="https://x/cafe">カフェ</a>`
	store := newFakeStore(map[string]string{"1": body})
	l := ledger.New()
	l.Toggle(cafe.Keyword, cafe.URL, "1", true)

	d := NewDriver(store, nil, Config{MaxLinks: 3}, quietLogger())
	rep, err := d.Run(context.Background(), []models.Article{{ID: "1"}}, l, []linker.Pair{cafe}, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rep.Documents[0]; got.State != StateUnchanged || len(store.pushed) != 0 {
		t.Fatalf("result = %+v pushed = %v", got, store.pushed)
	}
	if e, _ := l.Get(cafe.Keyword); e.Articles["1"] != 1 {
		t.Errorf("ledger count = %d, want the toggled 1", e.Articles["1"])
	}
}

func TestRun_DryRunPushesNothing(t *testing.T) {
	store := newFakeStore(map[string]string{"1": "カフェ"})
	l := ledger.New()
	l.Toggle(cafe.Keyword, cafe.URL, "1", true)

	d := NewDriver(store, nil, Config{}, quietLogger())
	rep, err := d.Run(context.Background(), []models.Article{{ID: "1"}}, l, []linker.Pair{cafe}, RunOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.pushed) != 0 {
		t.Error("dry run pushed")
	}
	res := rep.Documents[0]
	if res.Status != StatusDryRun || !res.Changed || res.State != StateRestored {
		t.Errorf("result = %+v", res)
	}
}

func TestRun_RejectedPushIsFailure(t *testing.T) {
	store := newFakeStore(map[string]string{"1": "カフェ"})
	store.pushCode = 403
	l := ledger.New()
	l.Toggle(cafe.Keyword, cafe.URL, "1", true)

	d := NewDriver(store, nil, Config{}, quietLogger())
	rep, _ := d.Run(context.Background(), []models.Article{{ID: "1"}}, l, []linker.Pair{cafe}, RunOptions{})
	res := rep.Documents[0]
	if res.Status != StatusFailed || res.StatusCode != 403 {
		t.Errorf("result = %+v", res)
	}
}

func TestRun_StopsBetweenDocumentsOnCancel(t *testing.T) {
	store := newFakeStore(map[string]string{"1": "a", "2": "b"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDriver(store, nil, Config{}, quietLogger())
	rep, err := d.Run(ctx, []models.Article{{ID: "1"}, {ID: "2"}}, ledger.New(), nil, RunOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if len(rep.Documents) != 0 {
		t.Errorf("documents = %d", len(rep.Documents))
	}
}

func TestDetect_FromPages(t *testing.T) {
	pages := fakePages{
		"https://x/posts/1": `<a href="https://x/cafe">a</a> <a href="https://x/cafe">b</a>`,
		"https://x/posts/2": `no links`,
	}
	prev := ledger.New()
	prev.Toggle(bread.Keyword, bread.URL, "3", true)

	docs := []models.Article{
		{ID: "1", URL: "https://x/posts/1"},
		{ID: "2", URL: "https://x/posts/2"},
		{ID: "3", URL: "https://x/posts/3"},
	}
	d := NewDriver(newFakeStore(nil), pages, Config{DetectMode: DetectLiteral, DetectSource: SourcePage}, quietLogger())
	next, rep, err := d.Detect(context.Background(), docs, []linker.Pair{cafe, bread}, prev)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if next.Len() != 2 {
		t.Errorf("every registry keyword needs an entry, got %v", next.Keywords())
	}
	if e, _ := next.Get(cafe.Keyword); e.Articles["1"] != 2 || len(e.Articles) != 1 {
		t.Errorf("cafe = %+v", e)
	}
	if !next.Linked(bread.Keyword, "3") {
		t.Error("unreadable document should keep its previous state")
	}
	if rep.Failed != 1 {
		t.Errorf("failed = %d", rep.Failed)
	}
}

func TestDetectUsage_Modes(t *testing.T) {
	body := `<a class="c" href='https://x/cafe'>カフェ</a>`
	lit, _ := DetectUsage(body, []linker.Pair{cafe}, DetectLiteral)
	if lit[cafe.Keyword] != 0 {
		t.Errorf("literal mode should miss single quotes, got %v", lit)
	}
	parsed, err := DetectUsage(body, []linker.Pair{cafe}, DetectHTML)
	if err != nil || parsed[cafe.Keyword] != 1 {
		t.Errorf("html mode = %v err = %v", parsed, err)
	}
}

func TestState_Text(t *testing.T) {
	var s State
	if err := s.UnmarshalText([]byte("PUSHED")); err != nil || s != StatePushed || !s.Terminal() {
		t.Errorf("state = %v err = %v", s, err)
	}
	if err := s.UnmarshalText([]byte("nope")); err == nil {
		t.Error("unknown state accepted")
	}
}
