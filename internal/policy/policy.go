// Package policy evaluates operations against a space's filesystem, shell,
// and network policy: a pure function of (Policy, Operation) to Decision.
package policy

import "time"

// Filesystem governs createFile/readFile/editFile/deleteFile operations.
type Filesystem struct {
	Enabled      bool     `toml:"enabled" json:"enabled"`
	ReadOnly     bool     `toml:"read_only" json:"readOnly"`
	MaxFileSize  int64    `toml:"max_file_size" json:"maxFileSize"`
	AllowedPaths []string `toml:"allowed_paths" json:"allowedPaths,omitempty"`
	BlockedPaths []string `toml:"blocked_paths" json:"blockedPaths,omitempty"`
}

// Shell governs the shell operation.
type Shell struct {
	Enabled          bool     `toml:"enabled" json:"enabled"`
	AllowedCommands  []string `toml:"allowed_commands" json:"allowedCommands,omitempty"`
	BlockedPatterns  []string `toml:"blocked_patterns" json:"blockedPatterns,omitempty"`
	TimeoutMs        int      `toml:"timeout_ms" json:"timeoutMs"`
	ApprovalRequired []string `toml:"approval_required" json:"approvalRequired,omitempty"`
}

// Network is carried for completeness (spec §3) though no operation in
// this core dispatches a network call directly. The sandbox does not read
// it: containers are always created with NetworkMode "none".
type Network struct {
	Enabled         bool     `toml:"enabled" json:"enabled"`
	AllowedDomains  []string `toml:"allowed_domains" json:"allowedDomains,omitempty"`
	BlockedDomains  []string `toml:"blocked_domains" json:"blockedDomains,omitempty"`
}

// Policy is immutable for the lifetime of a space.
type Policy struct {
	Filesystem Filesystem `toml:"filesystem" json:"filesystem"`
	Shell      Shell      `toml:"shell" json:"shell"`
	Network    Network    `toml:"network" json:"network"`
}

// PresetName names one of the three built-in presets.
type PresetName string

const (
	PresetRestrictive PresetName = "restrictive"
	PresetStandard    PresetName = "standard"
	PresetPermissive  PresetName = "permissive"
)

const (
	mib = 1024 * 1024
)

// FromPreset returns a fresh copy of the named built-in policy. Returns
// false if name is not one of the three presets.
func FromPreset(name PresetName) (Policy, bool) {
	switch name {
	case PresetRestrictive:
		return Policy{
			Filesystem: Filesystem{
				Enabled:     true,
				ReadOnly:    true,
				MaxFileSize: 1 * mib,
			},
			Shell: Shell{
				Enabled:   false,
				TimeoutMs: int(30 * time.Second / time.Millisecond),
			},
			Network: Network{Enabled: false},
		}, true

	case PresetStandard:
		return Policy{
			Filesystem: Filesystem{
				Enabled:     true,
				ReadOnly:    false,
				MaxFileSize: 10 * mib,
			},
			Shell: Shell{
				Enabled: true,
				AllowedCommands: []string{
					"bun", "node", "npm", "npx", "cat", "echo",
					"ls", "pwd", "head", "tail", "grep", "find", "wc",
					"rm",
				},
				BlockedPatterns: []string{
					"sudo", "chmod", "chown", "curl", "wget", "ssh",
					"rm -rf /", "rm -rf ~",
				},
				ApprovalRequired: []string{"rm -rf", "rm -r"},
				TimeoutMs:        int(30 * time.Second / time.Millisecond),
			},
			Network: Network{Enabled: false},
		}, true

	case PresetPermissive:
		return Policy{
			Filesystem: Filesystem{
				Enabled:     true,
				ReadOnly:    false,
				MaxFileSize: 100 * mib,
			},
			Shell: Shell{
				Enabled:          true,
				BlockedPatterns:  []string{"sudo", "chmod", "chown"},
				ApprovalRequired: []string{"rm -rf", "chmod", "chown"},
				TimeoutMs:        int(5 * time.Minute / time.Millisecond),
			},
			Network: Network{
				Enabled:        true,
				AllowedDomains: []string{"*"},
			},
		}, true

	default:
		return Policy{}, false
	}
}

// Overrides is a shallow, partial policy applied on top of a preset: within
// every non-nil section, each set field replaces the preset's field
// (one-level-deep merge, per field); arrays are replaced, never merged.
type Overrides struct {
	Filesystem *FilesystemOverride `json:"filesystem,omitempty"`
	Shell      *ShellOverride      `json:"shell,omitempty"`
	Network    *NetworkOverride    `json:"network,omitempty"`
}

type FilesystemOverride struct {
	Enabled      *bool    `json:"enabled,omitempty"`
	ReadOnly     *bool    `json:"readOnly,omitempty"`
	MaxFileSize  *int64   `json:"maxFileSize,omitempty"`
	AllowedPaths []string `json:"allowedPaths,omitempty"`
	BlockedPaths []string `json:"blockedPaths,omitempty"`
}

type ShellOverride struct {
	Enabled          *bool    `json:"enabled,omitempty"`
	AllowedCommands  []string `json:"allowedCommands,omitempty"`
	BlockedPatterns  []string `json:"blockedPatterns,omitempty"`
	TimeoutMs        *int     `json:"timeoutMs,omitempty"`
	ApprovalRequired []string `json:"approvalRequired,omitempty"`
}

type NetworkOverride struct {
	Enabled        *bool    `json:"enabled,omitempty"`
	AllowedDomains []string `json:"allowedDomains,omitempty"`
	BlockedDomains []string `json:"blockedDomains,omitempty"`
}

// FromPresetWithOverrides resolves the named preset then applies overrides
// field-by-field; fields left nil in overrides retain the preset's value,
// while a non-nil empty array clears the preset's list. Scalars and arrays
// are replaced outright, never concatenated.
func FromPresetWithOverrides(name PresetName, overrides Overrides) (Policy, bool) {
	base, ok := FromPreset(name)
	if !ok {
		return Policy{}, false
	}

	if fs := overrides.Filesystem; fs != nil {
		if fs.Enabled != nil {
			base.Filesystem.Enabled = *fs.Enabled
		}
		if fs.ReadOnly != nil {
			base.Filesystem.ReadOnly = *fs.ReadOnly
		}
		if fs.MaxFileSize != nil {
			base.Filesystem.MaxFileSize = *fs.MaxFileSize
		}
		if fs.AllowedPaths != nil {
			base.Filesystem.AllowedPaths = fs.AllowedPaths
		}
		if fs.BlockedPaths != nil {
			base.Filesystem.BlockedPaths = fs.BlockedPaths
		}
	}

	if sh := overrides.Shell; sh != nil {
		if sh.Enabled != nil {
			base.Shell.Enabled = *sh.Enabled
		}
		if sh.AllowedCommands != nil {
			base.Shell.AllowedCommands = sh.AllowedCommands
		}
		if sh.BlockedPatterns != nil {
			base.Shell.BlockedPatterns = sh.BlockedPatterns
		}
		if sh.TimeoutMs != nil {
			base.Shell.TimeoutMs = *sh.TimeoutMs
		}
		if sh.ApprovalRequired != nil {
			base.Shell.ApprovalRequired = sh.ApprovalRequired
		}
	}

	if nw := overrides.Network; nw != nil {
		if nw.Enabled != nil {
			base.Network.Enabled = *nw.Enabled
		}
		if nw.AllowedDomains != nil {
			base.Network.AllowedDomains = nw.AllowedDomains
		}
		if nw.BlockedDomains != nil {
			base.Network.BlockedDomains = nw.BlockedDomains
		}
	}

	return base, true
}

// EffectiveTimeout clamps a requested per-operation timeout (milliseconds)
// to the policy's shell timeout ceiling. A nil/zero requested value falls
// back to the policy's own timeout.
func EffectiveTimeout(requested *int, p Policy) int {
	if requested == nil || *requested <= 0 {
		return p.Shell.TimeoutMs
	}
	if *requested < p.Shell.TimeoutMs {
		return *requested
	}
	return p.Shell.TimeoutMs
}
