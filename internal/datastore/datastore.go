// Package datastore loads and saves the JSON snapshots the tool works on:
// the keyword registry, the usage ledger and the article index. Each is read
// and written whole.
package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/starford/interlink/internal/commit"
	"github.com/starford/interlink/internal/ledger"
	"github.com/starford/interlink/internal/models"
	"github.com/starford/interlink/internal/registry"
	"github.com/starford/interlink/internal/storage"
)

// ErrCommitFailed wraps a failed remote commit. The local snapshot was
// written regardless.
var ErrCommitFailed = errors.New("datastore: commit failed")

// Files names the snapshot files inside the data directory.
type Files struct {
	Registry string
	Ledger   string
	Articles string
}

// DefaultFiles returns the conventional file names.
func DefaultFiles() Files {
	return Files{
		Registry: "linkMapping.json",
		Ledger:   "linkUsage.json",
		Articles: "articles.json",
	}
}

// Store reads and writes snapshots through a storage.Provider and commits
// every save through a Committer.
type Store struct {
	fs         storage.Provider
	files      Files
	committer  commit.Committer
	commitPath string
	logger     *slog.Logger
}

// New creates a store. commitPath is the directory inside the remote
// repository that mirrors the data directory.
func New(fs storage.Provider, files Files, c commit.Committer, commitPath string, logger *slog.Logger) *Store {
	if c == nil {
		c = commit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{fs: fs, files: files, committer: c, commitPath: commitPath, logger: logger}
}

// Files returns the snapshot names in use.
func (s *Store) Files() Files {
	return s.files
}

// LoadRegistry reads the nested registry. A missing file is an empty
// registry.
func (s *Store) LoadRegistry() (*registry.Registry, error) {
	data, err := s.read(s.files.Registry)
	if err != nil || data == nil {
		return registry.New(), err
	}
	r, err := registry.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("datastore: %s: %w", s.files.Registry, err)
	}
	if dups := r.Duplicates(); len(dups) > 0 {
		s.logger.Warn("datastore: keyword in several categories, first one wins",
			slog.Any("keywords", dups))
	}
	return r, nil
}

// SaveRegistry writes the registry and commits it.
func (s *Store) SaveRegistry(ctx context.Context, r *registry.Registry) error {
	return s.save(ctx, s.files.Registry, r)
}

// LoadLedger reads the usage ledger. A missing file is an empty ledger.
func (s *Store) LoadLedger() (*ledger.Ledger, error) {
	data, err := s.read(s.files.Ledger)
	if err != nil || data == nil {
		return ledger.New(), err
	}
	l, err := ledger.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("datastore: %s: %w", s.files.Ledger, err)
	}
	return l, nil
}

// SaveLedger writes the ledger and commits it.
func (s *Store) SaveLedger(ctx context.Context, l *ledger.Ledger) error {
	return s.save(ctx, s.files.Ledger, l)
}

// LoadArticles reads the article index. A missing file is an empty list.
func (s *Store) LoadArticles() ([]models.Article, error) {
	data, err := s.read(s.files.Articles)
	if err != nil || data == nil {
		return nil, err
	}
	var arts []models.Article
	if err := json.Unmarshal(data, &arts); err != nil {
		return nil, fmt.Errorf("datastore: %s: %w", s.files.Articles, err)
	}
	return arts, nil
}

// SaveArticles writes the article index and commits it.
func (s *Store) SaveArticles(ctx context.Context, arts []models.Article) error {
	if arts == nil {
		arts = []models.Article{}
	}
	return s.save(ctx, s.files.Articles, arts)
}

// ImportFlatRegistry converts a flat {"keyword": "url"} registry file into
// the nested form. The flat original is kept next to it with a .flat
// suffix.
func (s *Store) ImportFlatRegistry(ctx context.Context) (*registry.Registry, error) {
	data, err := s.read(s.files.Registry)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("datastore: %s: %w", s.files.Registry, os.ErrNotExist)
	}
	r, err := registry.ParseFlat(data)
	if err != nil {
		return nil, err
	}
	ext := path.Ext(s.files.Registry)
	backup := s.files.Registry[:len(s.files.Registry)-len(ext)] + ".flat" + ext
	if err := s.fs.Move(s.files.Registry, backup); err != nil {
		return nil, fmt.Errorf("datastore: back up flat registry: %w", err)
	}
	s.logger.Info("datastore: flat registry imported",
		slog.String("backup", backup), slog.Int("keywords", r.Len()))
	return r, s.SaveRegistry(ctx, r)
}

func (s *Store) read(name string) ([]byte, error) {
	data, err := s.fs.Read(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) save(ctx context.Context, name string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("datastore: encode %s: %w", name, err)
	}
	if err := s.fs.Write(name, data); err != nil {
		return err
	}
	s.logger.Debug("datastore: saved", slog.String("file", name), slog.Int("bytes", len(data)))

	target := path.Join(s.commitPath, name)
	if err := s.committer.Commit(ctx, target, data, "Update "+name); err != nil {
		s.logger.Warn("datastore: commit failed", slog.String("file", name), slog.String("error", err.Error()))
		return fmt.Errorf("%w: %s: %v", ErrCommitFailed, name, err)
	}
	return nil
}

// Encode renders v as two-space indented JSON with non-ASCII text and
// markup characters left as they are.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
