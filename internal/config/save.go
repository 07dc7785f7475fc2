package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"spacerun/internal/logger"
)

// Save writes cfg to path (DefaultPath when empty) as TOML, creating parent
// directories as needed. Mirrors Load's path-resolution rules so a round
// trip through Load/Save always targets the same file.
func Save(path string, cfg Config) error {
	log := logger.Named("config")
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return errors.New("config path is empty and $HOME is not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory for %s: %w", path, err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	log.WithField("path", path).Info("config saved")
	return nil
}
