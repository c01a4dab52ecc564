package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/everzim/internal"
	pkgconfig "github.com/starford/everzim/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// applyBackupFlags lets command-line flags override the config file.
func applyBackupFlags(cmd *cli.Command, cfg *internal.Config) error {
	if cmd.IsSet("export") {
		cfg.Export.Path = cmd.String("export")
	}
	if cmd.IsSet("database") {
		cfg.Export.Database = cmd.String("database")
	}
	if cmd.IsSet("output") {
		cfg.Export.Output = cmd.String("output")
	}
	if cmd.IsSet("zim") {
		cfg.Backup.ZimSyntax = cmd.Bool("zim")
	}
	if cmd.Bool("no-dirs") {
		cfg.Backup.NotebooksToDirs = false
	}
	if cmd.Bool("no-markdown") {
		cfg.Backup.ToMarkdown = false
	}
	if cmd.Bool("fetch-images") {
		cfg.Rewrite.FetchRemote = true
	}
	if cmd.IsSet("on-error") {
		cfg.Backup.OnError = cmd.String("on-error")
	}
	return cfg.Validate()
}

func runBackup(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyBackupFlags(cmd, cfg); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("backup error: %w", err)
	}
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Serve(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.ServeMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func backupFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "export",
			Aliases: []string{"e"},
			Usage:   "Directory with the exported .html notes",
		},
		&cli.StringFlag{
			Name:    "database",
			Aliases: []string{"d"},
			Usage:   "Notebook index database of the export",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Backup output directory (same as --export converts in place)",
		},
		&cli.BoolFlag{
			Name:  "zim",
			Usage: "Rewrite notes into Zim wiki syntax",
		},
		&cli.BoolFlag{
			Name:  "no-dirs",
			Usage: "Do not organize notes into notebook and stack directories",
		},
		&cli.BoolFlag{
			Name:  "no-markdown",
			Usage: "Do not convert notes to markdown",
		},
		&cli.BoolFlag{
			Name:  "fetch-images",
			Usage: "Download remotely hosted images into the backup",
		},
		&cli.StringFlag{
			Name:  "on-error",
			Usage: "What to do when a note fails: skip, abort or prompt",
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "everzim",
		Usage:  "Back up an Evernote HTML export as plain text or Zim wiki notes",
		Action: runBackup,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		}, backupFlags()...),
		Commands: []*cli.Command{
			{
				Name:   "backup",
				Usage:  "Organize the export and convert every note (default)",
				Flags:  backupFlags(),
				Action: runBackup,
			},
			{
				Name:   "serve",
				Usage:  "Serve the conversion API and convert notes dropped into the inbox",
				Action: runServe,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the conversion tools over MCP stdio",
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
