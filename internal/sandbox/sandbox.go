// Package sandbox owns exactly one container and one bind-mounted
// workspace directory per space, exposing filesystem and shell primitives
// that return structured results rather than erroring across the
// boundary.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"spacerun/internal/logger"
)

// Status mirrors the sandbox's coarse lifecycle state.
type Status string

const (
	StatusCreating Status = "creating"
	StatusReady    Status = "ready"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
	StatusDestroyed Status = "destroyed"
)

// Config describes how to provision a new Sandbox.
type Config struct {
	BaseImage        string
	WorkDir          string
	WorkspaceBaseDir string
	Env              map[string]string
	MemoryLimitBytes int64
	CPULimitNanos    int64
}

// Sandbox owns one container instance and one host workspace directory.
// All public methods are safe for concurrent use by a single caller at a
// time; callers above this package (the space manager) serialize access
// with a per-space mutex per the locking discipline in the design ledger.
type Sandbox struct {
	mu sync.Mutex

	client        dockerClient
	containerID   string
	workspaceID   string
	workspacePath string
	workDir       string
	baseEnv       []string
	status        Status

	log *logger.LogEntry
}

func defaultWorkDir(cfg Config) string {
	if cfg.WorkDir != "" {
		return cfg.WorkDir
	}
	return "/workspace"
}

// Create provisions a fresh workspace directory, ensures the base image is
// present locally (pulling if missing), and starts a long-lived,
// network-isolated container bind-mounting that workspace.
func Create(ctx context.Context, cli dockerClient, cfg Config) (*Sandbox, error) {
	workspaceID := uuid.NewString()[:12]
	workspacePath := filepath.Join(cfg.WorkspaceBaseDir, workspaceID)
	if err := os.MkdirAll(workspacePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace directory: %w", err)
	}

	if err := ensureImage(ctx, cli, cfg.BaseImage); err != nil {
		return nil, err
	}

	workDir := defaultWorkDir(cfg)
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	containerCfg := &container.Config{
		Image:      cfg.BaseImage,
		Env:        env,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: workDir,
		Tty:        false,
		OpenStdin:  false,
	}
	hostCfg := &container.HostConfig{
		Binds: []string{workspacePath + ":" + workDir},
	}
	hostCfg.NetworkMode = "none"
	if cfg.MemoryLimitBytes > 0 {
		hostCfg.Resources.Memory = cfg.MemoryLimitBytes
	}
	if cfg.CPULimitNanos > 0 {
		hostCfg.Resources.NanoCPUs = cfg.CPULimitNanos
	}

	createResp, err := cli.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, &ocispec.Platform{}, "")
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}

	if err := cli.ContainerStart(ctx, createResp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	sb := &Sandbox{
		client:        cli,
		containerID:   createResp.ID,
		workspaceID:   workspaceID,
		workspacePath: workspacePath,
		workDir:       workDir,
		baseEnv:       env,
		status:        StatusReady,
		log:           logger.Named("sandbox").WithField("workspace_id", workspaceID),
	}
	sb.log.Info("sandbox ready")
	return sb, nil
}

func ensureImage(ctx context.Context, cli dockerClient, ref string) error {
	if _, _, err := cli.ImageInspectWithRaw(ctx, ref); err == nil {
		return nil
	}
	reader, err := cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", ref, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("reading pull progress for %s: %w", ref, err)
	}
	return nil
}

// WorkspaceID returns the 12-char opaque id assigned to this sandbox's
// bind-mounted workspace directory.
func (s *Sandbox) WorkspaceID() string {
	return s.workspaceID
}

// WorkspacePath returns the absolute host path of the bind-mounted
// workspace directory.
func (s *Sandbox) WorkspacePath() string {
	return s.workspacePath
}

// Status reports the sandbox's current coarse lifecycle state.
func (s *Sandbox) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Destroy stops the container with a grace period then force-removes it,
// and recursively deletes the workspace directory. Safe to call more than
// once; subsequent calls are no-ops.
func (s *Sandbox) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusDestroyed {
		return nil
	}

	grace := 5
	if err := s.client.ContainerStop(ctx, s.containerID, container.StopOptions{Timeout: &grace}); err != nil {
		s.log.Warnf("stop container failed, forcing removal: %v", err)
	}
	if err := s.client.ContainerRemove(ctx, s.containerID, container.RemoveOptions{Force: true}); err != nil {
		s.log.Warnf("remove container failed: %v", err)
	}
	if err := os.RemoveAll(s.workspacePath); err != nil {
		return fmt.Errorf("removing workspace directory: %w", err)
	}

	s.status = StatusDestroyed
	return nil
}

func clampDuration(ms int) time.Duration {
	if ms <= 0 {
		return 30 * time.Second
	}
	return time.Duration(ms) * time.Millisecond
}
