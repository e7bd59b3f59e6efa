// Package main provides the reportgen command line tool.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "reportgen",
		Usage:                 "Generate and maintain crypto market reports",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML tuning file",
				Sources: cli.EnvVars("REPORTGEN_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "generate",
				Aliases: []string{"g"},
				Usage:   "Run one report generation and wait for it",
				Flags: []cli.Flag{
					databaseURLFlag(),
					&cli.StringFlag{
						Name:    "redis-url",
						Usage:   "Redis URL of the market snapshot cache",
						Sources: cli.EnvVars("REDIS_URL"),
					},
					&cli.StringFlag{
						Name:    "gemini-api-key",
						Usage:   "Gemini API key",
						Sources: cli.EnvVars("GEMINI_API_KEY"),
					},
					&cli.StringFlag{
						Name:    "prompts-dir",
						Usage:   "Directory holding the .env.* prompt files",
						Value:   "./prompts",
						Sources: cli.EnvVars("PROMPTS_DIR"),
					},
					&cli.StringFlag{
						Name:    "palette",
						Usage:   "Stylesheet whose :root block is injected into prompts",
						Sources: cli.EnvVars("PALETTE_CSS"),
					},
					&cli.BoolFlag{
						Name:    "tracing",
						Usage:   "Export traces over OTLP/HTTP",
						Sources: cli.EnvVars("OTEL_ENABLED"),
					},
				},
				Action: runGenerate,
			},
			{
				Name:  "migrate",
				Usage: "Apply database migrations",
				Flags: []cli.Flag{
					databaseURLFlag(),
				},
				Action: runMigrate,
			},
			{
				Name:  "next-run",
				Usage: "Print the next scheduled generation time",
				Action: runNextRun,
			},
			{
				Name:  "snapshot",
				Usage: "Manage the market snapshot cache",
				Commands: []*cli.Command{
					{
						Name:      "push",
						Usage:     "Append a JSON snapshot file to the snapshot stream",
						ArgsUsage: "<file.json>",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "redis-url",
								Usage:    "Redis URL of the market snapshot cache",
								Required: true,
								Sources:  cli.EnvVars("REDIS_URL"),
							},
							&cli.IntFlag{
								Name:  "max-len",
								Usage: "Approximate stream length to keep",
								Value: defaultStreamMaxLen,
							},
						},
						Action: runSnapshotPush,
					},
				},
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func databaseURLFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "database-url",
		Usage:    "Database connection URL (postgres://... or sqlite:///path)",
		Required: true,
		Sources:  cli.EnvVars("DATABASE_URL"),
	}
}
