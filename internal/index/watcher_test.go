package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/interlink/internal/storage"
)

const articlesFile = "articles.json"

// watcherTestEnv sets up a data dir, storage, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB) {
	t.Helper()
	dataDir := t.TempDir()
	store, err := storage.NewFS(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	return dataDir, store, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSync_TracksSnapshot(t *testing.T) {
	dataDir, store, db := watcherTestEnv(t)
	logger := quietLogger()

	_ = os.WriteFile(filepath.Join(dataDir, articlesFile), []byte(`[{"id":"1","title":"A","url":"https://s/1"}]`), 0o644)
	changed, err := Sync(db, store, articlesFile, logger)
	if err != nil || !changed {
		t.Fatalf("first sync changed = %v err = %v", changed, err)
	}
	if changed, _ := Sync(db, store, articlesFile, logger); changed {
		t.Error("second sync without edits should be a no-op")
	}

	_ = os.Remove(filepath.Join(dataDir, articlesFile))
	if changed, _ := Sync(db, store, articlesFile, logger); !changed {
		t.Error("removal should empty the table")
	}
	if _, total, _ := db.ListArticles(10, 0); total != 0 {
		t.Errorf("total = %d after removal", total)
	}
}

func TestWatcher_ArticlesSnapshotSynced(t *testing.T) {
	dataDir, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, store, dataDir, articlesFile, quietLogger(), func(kind, path string) {
		mu.Lock()
		events = append(events, kind+":"+path)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	if err := store.Write(articlesFile, []byte(`[{"id":"9","title":"Nine","url":"https://s/9"}]`)); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		a, err := db.GetArticle("9")
		return err == nil && a.Title == "Nine"
	}, "articles snapshot not synced by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "updated:"+articlesFile {
				return true
			}
		}
		return false
	}, "expected updated:articles.json callback")
}

func TestWatcher_OtherSnapshotsReported(t *testing.T) {
	dataDir, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 8)
	go Watch(ctx, db, store, dataDir, articlesFile, quietLogger(), func(kind, path string) {
		got <- kind + ":" + path
	})
	time.Sleep(100 * time.Millisecond)

	_ = store.Write("linkUsage.json", []byte(`{}`))

	select {
	case e := <-got:
		if e != "updated:linkUsage.json" {
			t.Errorf("event = %q", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event for linkUsage.json")
	}

	_ = os.Remove(filepath.Join(dataDir, "linkUsage.json"))
	select {
	case e := <-got:
		if e != "deleted:linkUsage.json" {
			t.Errorf("event = %q", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event for removal")
	}
}
