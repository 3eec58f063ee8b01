package collector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/starford/interlink/internal/apperr"
	"github.com/starford/interlink/internal/wordpress"
)

type fakeLister struct {
	pages map[int][]wordpress.Post
	codes map[int]int
	calls []int
}

func (f *fakeLister) ListPosts(_ context.Context, page, _ int) ([]wordpress.Post, int, error) {
	f.calls = append(f.calls, page)
	if code, ok := f.codes[page]; ok {
		return nil, code, nil
	}
	return f.pages[page], 200, nil
}

func post(id int64, link string) wordpress.Post {
	p := wordpress.Post{ID: id, Link: link}
	p.Title.Rendered = "Title &amp; more"
	return p
}

var discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

func TestCollect_FiltersAndStopsOnEmptyPage(t *testing.T) {
	src := &fakeLister{pages: map[int][]wordpress.Post{
		1: {post(1, "https://s/media/column/a"), post(2, "https://s/news/b")},
		2: {post(3, "https://s/media/column/c")},
	}}
	got, err := Collect(context.Background(), src, Options{PerPage: 2, MaxPages: 10, PathFilter: DefaultPathFilter}, discard)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("articles = %+v", got)
	}
	if got[0].Title != "Title & more" {
		t.Errorf("title = %q", got[0].Title)
	}
	if len(src.calls) != 3 {
		t.Errorf("calls = %v, want pages 1..3", src.calls)
	}
}

func TestCollect_StopsPastLastPageAndMaxPages(t *testing.T) {
	src := &fakeLister{
		pages: map[int][]wordpress.Post{1: {post(1, "x")}, 2: {post(2, "y")}, 3: {post(3, "z")}},
		codes: map[int]int{3: 400},
	}
	got, err := Collect(context.Background(), src, Options{MaxPages: 5}, discard)
	if err != nil || len(got) != 2 {
		t.Errorf("articles = %+v err = %v", got, err)
	}

	src = &fakeLister{pages: map[int][]wordpress.Post{1: {post(1, "x")}, 2: {post(2, "y")}}}
	got, _ = Collect(context.Background(), src, Options{MaxPages: 1}, discard)
	if len(got) != 1 || len(src.calls) != 1 {
		t.Errorf("max pages ignored: %+v calls = %v", got, src.calls)
	}
}

type failingLister struct{ fakeLister }

func (f *failingLister) ListPosts(ctx context.Context, page, perPage int) ([]wordpress.Post, int, error) {
	if page == 1 {
		return nil, 0, errors.New("connection reset")
	}
	return f.fakeLister.ListPosts(ctx, page, perPage)
}

func TestCollect_FirstPageFailureIsAnError(t *testing.T) {
	src := &failingLister{}
	got, err := Collect(context.Background(), src, Options{MaxPages: 5}, discard)
	if !errors.Is(err, apperr.ErrUpstream) || got != nil {
		t.Errorf("transport failure: articles = %+v err = %v", got, err)
	}

	rejected := &fakeLister{codes: map[int]int{1: 400}}
	got, err = Collect(context.Background(), rejected, Options{MaxPages: 5}, discard)
	if !errors.Is(err, apperr.ErrUpstream) || got != nil {
		t.Errorf("rejected first page: articles = %+v err = %v", got, err)
	}
}

func TestCollect_LaterServerErrorIsAnError(t *testing.T) {
	src := &fakeLister{
		pages: map[int][]wordpress.Post{1: {post(1, "x")}},
		codes: map[int]int{2: 503},
	}
	if got, err := Collect(context.Background(), src, Options{MaxPages: 5}, discard); !errors.Is(err, apperr.ErrUpstream) || got != nil {
		t.Errorf("articles = %+v err = %v", got, err)
	}
}

type cancelLister struct{ cancel context.CancelFunc }

func (c cancelLister) ListPosts(context.Context, int, int) ([]wordpress.Post, int, error) {
	c.cancel()
	return nil, 0, errors.New("aborted")
}

func TestCollect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := Collect(ctx, cancelLister{cancel}, Options{}, discard); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
