package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/interlink/internal/collector"
	"github.com/starford/interlink/internal/datastore"
	"github.com/starford/interlink/internal/index"
	"github.com/starford/interlink/internal/linkservice"
	"github.com/starford/interlink/internal/reconcile"
	"github.com/starford/interlink/internal/sse"
	"github.com/starford/interlink/internal/storage"
	"github.com/starford/interlink/internal/wordpress"
)

// App holds the wired components shared by every command.
type App struct {
	Config  *Config
	Version string
	Logger  *slog.Logger
	Storage *storage.FS
	DB      *index.DB
	Data    *datastore.Store
	Broker  *sse.Broker
	Service *linkservice.Service
}

// Open builds the application from opts. The caller must Close it.
func Open(opts ...Option) (*App, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		// Stdout stays free for the MCP stdio transport.
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
		slog.SetDefault(logger)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Data.Dir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("wordpress", cfg.WordPress.Configured()),
		slog.Bool("commit", cfg.Commit.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	fs, err := storage.NewFS(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if _, err := index.Sync(db, fs, cfg.Data.ArticlesFile, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	data := datastore.New(fs, cfg.Data.Files(), cfg.Commit.Committer(logger), cfg.Commit.Path, logger)
	broker := sse.NewBroker(2 * time.Second)

	deps := linkservice.Deps{
		Data:      data,
		Index:     db,
		Publisher: broker,
		Logger:    logger,
	}
	if cfg.WordPress.Configured() {
		wp := cfg.WordPress.Client(logger)
		deps.Pages = wp
		deps.Posts = wp
		if err := cfg.WordPress.ValidateCredentials(); err != nil {
			logger.Warn("wordpress credentials incomplete, bodies are read-only",
				slog.String("error", err.Error()))
		} else {
			deps.Content = wp
		}
	}

	svc := linkservice.NewService(deps, settings(cfg))

	return &App{
		Config:  cfg,
		Version: app.version,
		Logger:  logger,
		Storage: fs,
		DB:      db,
		Data:    data,
		Broker:  broker,
		Service: svc,
	}, nil
}

// Close releases the broker and the index.
func (a *App) Close() error {
	a.Broker.Close()
	return a.DB.Close()
}

func settings(cfg *Config) linkservice.Settings {
	return linkservice.Settings{
		Linking: cfg.Linking.Driver(),
		Collect: cfg.WordPress.CollectOptions(),
	}
}

var (
	_ reconcile.ContentStore = (*wordpress.Client)(nil)
	_ reconcile.PageFetcher  = (*wordpress.Client)(nil)
	_ collector.PostLister   = (*wordpress.Client)(nil)
)
