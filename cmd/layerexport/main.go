package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/layerexport/internal"
	pkgconfig "github.com/starford/layerexport/pkg/config"
)

type entryFunc func(ctx context.Context, opts ...internal.Option) error

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cmd.IsSet("output") {
		cfg.Export.Path = cmd.String("output")
	}
	if cmd.IsSet("type") {
		cfg.Export.Type = cmd.String("type")
	}
	if cmd.IsSet("overwrite") {
		cfg.Export.Overwrite = cmd.Bool("overwrite")
	}
	if cmd.IsSet("workers") {
		cfg.Workers.Count = int(cmd.Int("workers"))
	}
	if cmd.IsSet("debug") {
		cfg.Log.Enabled = cmd.Bool("debug")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func action(fn entryFunc, needsSource bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
		}
		if needsSource {
			source := cmd.Args().First()
			if source == "" {
				return fmt.Errorf("%s: missing SOURCE argument", cmd.Name)
			}
			opts = append(opts, internal.WithSource(source))
		}
		if cmd.IsSet("limit") {
			opts = append(opts, internal.WithLimit(int(cmd.Int("limit"))))
		}

		if err := fn(ctx, opts...); err != nil {
			return fmt.Errorf("%s: %w", cmd.Name, err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "layerexport",
		Usage: "Export every layer of an Inkscape SVG document to its own file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Sources: cli.EnvVars("LAYEREXPORT_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (overrides export.path)",
			},
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Output format: svg, png, ps, eps, pdf, emf, wmf or xaml",
			},
			&cli.BoolFlag{
				Name:  "overwrite",
				Usage: "Replace existing output files",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of renderer processes run in parallel",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Log at debug level and pass renderer output through",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "export",
				Usage:     "Export the selected layers once",
				ArgsUsage: "SOURCE",
				Action:    action(internal.Run, true),
			},
			{
				Name:      "plan",
				Usage:     "Print the output path of every selected layer without rendering",
				ArgsUsage: "SOURCE",
				Action:    action(internal.Plan, true),
			},
			{
				Name:      "layers",
				Usage:     "List the layers of a document and whether they are selected",
				ArgsUsage: "SOURCE",
				Action:    action(internal.Layers, true),
			},
			{
				Name:      "watch",
				Usage:     "Export again whenever the document changes",
				ArgsUsage: "SOURCE",
				Action:    action(internal.Watch, true),
			},
			{
				Name:  "history",
				Usage: "List recent runs from the ledger",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "Maximum number of runs",
					},
				},
				Action: action(internal.History, false),
			},
			{
				Name:   "mcp",
				Usage:  "Serve the export tools over MCP on stdio",
				Action: action(internal.ServeMCP, false),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
