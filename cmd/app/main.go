package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/interlink/internal"
	"github.com/starford/interlink/internal/mcpserver"
	pkgconfig "github.com/starford/interlink/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	loaded, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !loaded {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

// withApp opens the application for a one-shot command.
func withApp(fn func(ctx context.Context, cmd *cli.Command, app *internal.App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		app, err := internal.Open(internal.WithConfig(cfg), internal.WithVersion(version))
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(ctx, cmd, app)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func collect(ctx context.Context, _ *cli.Command, app *internal.App) error {
	arts, err := app.Service.Collect(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "collected %d articles\n", len(arts))
	return nil
}

func detect(ctx context.Context, _ *cli.Command, app *internal.App) error {
	rep, err := app.Service.Detect(ctx)
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func reconcile(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	rep, err := app.Service.Reconcile(ctx, cmd.StringSlice("id"), cmd.Bool("dry-run"))
	if err != nil {
		return err
	}
	if err := printJSON(rep); err != nil {
		return err
	}
	if rep.Failed > 0 {
		return fmt.Errorf("%d documents failed", rep.Failed)
	}
	return nil
}

func flatten(ctx context.Context, _ *cli.Command, app *internal.App) error {
	pairs, err := app.Service.FlatPairs(ctx)
	if err != nil {
		return err
	}
	return printJSON(pairs)
}

func importFlat(ctx context.Context, _ *cli.Command, app *internal.App) error {
	r, err := app.Service.ImportFlat(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "imported %d keywords\n", r.Len())
	return nil
}

func serveMCP(_ context.Context, _ *cli.Command, app *internal.App) error {
	return mcpserver.New(app.Service, version).ServeStdio()
}

func main() {
	cmd := &cli.Command{
		Name:    "interlink",
		Usage:   "Keyword-driven internal linking for a WordPress site",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the live event stream",
				Action: serve,
			},
			{
				Name:   "collect",
				Usage:  "Refresh the article list from the posts endpoint",
				Action: withApp(collect),
			},
			{
				Name:   "detect",
				Usage:  "Rebuild the usage ledger from existing links",
				Action: withApp(detect),
			},
			{
				Name:  "reconcile",
				Usage: "Apply the usage ledger to article bodies",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Compute rewrites without pushing or saving",
					},
					&cli.StringSliceFlag{
						Name:  "id",
						Usage: "Limit the run to these article ids (repeatable)",
					},
				},
				Action: withApp(reconcile),
			},
			{
				Name:   "flatten",
				Usage:  "Print the registry as ordered keyword/url pairs",
				Action: withApp(flatten),
			},
			{
				Name:   "import-flat",
				Usage:  "Convert a flat registry snapshot into the nested form",
				Action: withApp(importFlat),
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: withApp(serveMCP),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
