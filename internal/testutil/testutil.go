// Package testutil provides shared test helpers for setting up data
// directories, snapshot stores and databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/interlink/internal/commit"
	"github.com/starford/interlink/internal/datastore"
	"github.com/starford/interlink/internal/index"
	"github.com/starford/interlink/internal/storage"
)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "interlink-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDataDir creates a temporary data directory with a storage.Provider.
func TestDataDir(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// TestStore creates a snapshot store over a fresh data directory. A nil
// committer commits nothing.
func TestStore(t *testing.T, c commit.Committer) *datastore.Store {
	t.Helper()
	_, fs := TestDataDir(t)
	return datastore.New(fs, datastore.DefaultFiles(), c, "", QuietLogger())
}
