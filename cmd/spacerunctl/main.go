// Command spacerunctl is the only execution entrypoint for the space
// runtime: space lifecycle and run submission/resume/cancel, driven
// directly against internal/space and internal/runs. There is no HTTP
// server here; a caller embeds a host process around the same packages
// for that.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"spacerun/internal/logger"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	logger.Configure()

	app := &cli.App{
		Name:    "spacerunctl",
		Usage:   "Create and drive isolated, policy-governed spaces",
		Version: fmt.Sprintf("dev (commit: %s)", commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to TOML config file (defaults to ~/.spacerun/config.toml)",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the SQLite database file (overrides config's database_url)",
			},
			&cli.StringSliceFlag{
				Name:  "set",
				Usage: "Dotted-key config override, e.g. --set sandbox.timeoutMs=5000 (repeatable)",
			},
		},
		Commands: []*cli.Command{
			spaceCommand(),
			runCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		var exitCoder cli.ExitCoder
		if errors.As(err, &exitCoder) {
			if msg := exitCoder.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(exitCoder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
