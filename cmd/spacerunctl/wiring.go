package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"spacerun/internal/config"
	"spacerun/internal/runs"
	"spacerun/internal/sandbox"
	"spacerun/internal/space"
	"spacerun/internal/store"
)

// Exit codes. 0/1 follow the Unix success/failure convention; 2 marks a
// command-line input validation failure (missing arguments, malformed
// flags or operations file). A config load failure exits with 1.
const (
	exitSuccess    = 0
	exitFailure    = 1
	exitUsageError = 2
)

// app bundles the long-lived collaborators every subcommand needs. It is
// built fresh per invocation: spacerunctl is a one-shot CLI, not a daemon.
type app struct {
	manager *space.Manager
	runs    *runs.Service
	store   *store.SQLiteStore
}

func newApp(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg = config.ApplyKVOverrides(cfg, c.StringSlice("set"))
	if dsn := c.String("db"); dsn != "" {
		cfg.DatabaseURL = dsn
	}

	st, err := store.OpenSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", cfg.DatabaseURL, err)
	}

	client, err := sandbox.NewDockerClient()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("connecting to container runtime: %w", err)
	}

	mgr := space.NewManager(client, st, cfg)
	return &app{
		manager: mgr,
		runs:    runs.NewService(mgr, st),
		store:   st,
	}, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

func usageErr(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), exitUsageError)
}

func runtimeErr(err error) error {
	return cli.Exit(err.Error(), exitFailure)
}
