package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the process-wide configuration for the space runtime: where
// workspaces live on the host, which container image sandboxes boot from,
// the default shell timeout, and how persisted state is reached.
type Config struct {
	WorkspaceBaseDir string        `toml:"workspace_base_dir"`
	SandboxBaseImage string        `toml:"sandbox_base_image"`
	SandboxTimeout   time.Duration `toml:"sandbox_timeout"`
	DatabaseURL      string        `toml:"database_url"`
	Source           string        `toml:"-"`
}

func Default() Config {
	return Config{
		WorkspaceBaseDir: filepath.Join(os.TempDir(), "spacerun", "workspaces"),
		SandboxBaseImage: "spacerun/sandbox:latest",
		SandboxTimeout:   30 * time.Second,
		DatabaseURL:      DefaultPath() + ".db",
	}
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".spacerun", "config.toml")
}

// Load reads Config from path (DefaultPath when empty), then layers
// environment overrides on top per spec §6: WORKSPACE_BASE_DIR,
// SANDBOX_BASE_IMAGE, SANDBOX_TIMEOUT, DATABASE_URL.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, errors.New("config path is empty and $HOME is not set")
	}
	cfg.Source = path

	content, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	} else if err := toml.Unmarshal(content, &cfg); err != nil {
		return cfg, err
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("WORKSPACE_BASE_DIR")); v != "" {
		cfg.WorkspaceBaseDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SANDBOX_BASE_IMAGE")); v != "" {
		cfg.SandboxBaseImage = v
	}
	if v := strings.TrimSpace(os.Getenv("SANDBOX_TIMEOUT")); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.SandboxTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
}
