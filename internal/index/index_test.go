package index

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/interlink/internal/apperr"
	"github.com/starford/interlink/internal/models"
	"github.com/starford/interlink/internal/reconcile"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "interlink-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"articles", "snapshots", "runs", "run_documents"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestReplaceAndListArticles(t *testing.T) {
	db := testDB(t)
	arts := []models.Article{
		{ID: "30", Title: "Third", URL: "https://s/30"},
		{ID: "4", Title: "Fourth", URL: "https://s/4"},
	}
	if err := db.ReplaceArticles(arts); err != nil {
		t.Fatalf("ReplaceArticles: %v", err)
	}
	list, total, err := db.ListArticles(10, 0)
	if err != nil {
		t.Fatalf("ListArticles: %v", err)
	}
	if total != 2 || len(list) != 2 || list[0].ID != "30" {
		t.Errorf("list = %+v total = %d", list, total)
	}

	if err := db.ReplaceArticles(arts[1:]); err != nil {
		t.Fatalf("ReplaceArticles: %v", err)
	}
	if _, err := db.GetArticle("30"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	a, err := db.GetArticle("4")
	if err != nil || a.Title != "Fourth" {
		t.Errorf("article = %+v err = %v", a, err)
	}
}

func TestChecksums(t *testing.T) {
	db := testDB(t)
	if cs, err := db.GetChecksum("articles.json"); err != nil || cs != "" {
		t.Fatalf("cs = %q err = %v", cs, err)
	}
	_ = db.SetChecksum("articles.json", "abc")
	_ = db.SetChecksum("articles.json", "def")
	all, err := db.AllChecksums()
	if err != nil || all["articles.json"] != "def" || len(all) != 1 {
		t.Errorf("all = %v err = %v", all, err)
	}
	_ = db.SetChecksum("articles.json", "")
	if cs, _ := db.GetChecksum("articles.json"); cs != "" {
		t.Errorf("checksum not cleared: %q", cs)
	}
}

func TestRecordRun(t *testing.T) {
	db := testDB(t)
	_ = db.ReplaceArticles([]models.Article{{ID: "1", Title: "One"}})
	now := time.Now().UTC()
	rep := &reconcile.Report{
		ID:         "run-1",
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
		Pushed:     1,
		Failed:     1,
		Documents: []reconcile.DocumentResult{
			{ID: "1", State: reconcile.StatePushed, Status: reconcile.StatusOK, StatusCode: 200, Changed: true, Linked: []string{"カフェ"}},
			{ID: "2", State: reconcile.StateNone, Status: reconcile.StatusFailed, Error: "timeout"},
		},
	}
	id, err := db.RecordRun("reconcile", rep)
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := db.RecentRuns(5)
	if err != nil || len(runs) != 1 || runs[0].ID != id || runs[0].Pushed != 1 || runs[0].Kind != "reconcile" || runs[0].UID != "run-1" {
		t.Fatalf("runs = %+v err = %v", runs, err)
	}

	docs, err := db.RunDocuments(id)
	if err != nil {
		t.Fatalf("RunDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs = %+v", docs)
	}
	if docs[0].Title != "One" || docs[0].State != reconcile.StatePushed || len(docs[0].Linked) != 1 {
		t.Errorf("doc 0 = %+v", docs[0])
	}
	if docs[1].Status != reconcile.StatusFailed || docs[1].Error != "timeout" {
		t.Errorf("doc 1 = %+v", docs[1])
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.ReplaceArticles([]models.Article{
		{ID: "1", Title: "Search Me uniqueword", URL: "https://s/1"},
		{ID: "2", Title: "Other", URL: "https://s/2"},
	})

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "1" {
		t.Errorf("search results = %+v, want 1 hit for 1", results)
	}
}
