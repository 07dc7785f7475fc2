package config

import (
	"strconv"
	"strings"
	"time"
)

// ApplyKVOverrides applies free-form --set key=value overrides on top of a
// loaded Config, e.g. "--set sandbox.timeoutMs=5000". Unknown keys are
// ignored rather than rejected, matching the teacher's permissive
// key/value override style.
func ApplyKVOverrides(cfg Config, overrides []string) Config {
	for _, raw := range overrides {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "workspace_base_dir":
			cfg.WorkspaceBaseDir = val
		case "sandbox_base_image":
			cfg.SandboxBaseImage = val
		case "sandbox.timeoutMs", "sandbox_timeout_ms":
			if ms, err := strconv.Atoi(val); err == nil {
				cfg.SandboxTimeout = time.Duration(ms) * time.Millisecond
			}
		case "database_url":
			cfg.DatabaseURL = val
		}
	}
	return cfg
}
