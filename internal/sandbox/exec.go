package sandbox

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// ExecOptions parameterizes one shell dispatch.
type ExecOptions struct {
	Cwd       string
	Env       map[string]string
	TimeoutMs int
}

// ExecResult is the structured outcome of one shell dispatch.
type ExecResult struct {
	Success    bool
	ExitCode   int
	Stdout     string
	Stderr     string
	DurationMs int64
	TimedOut   bool
}

// Exec runs `sh -c command` inside the container, demultiplexing stdout
// and stderr from the runtime's combined stream. A single wall-clock timer
// enforces opts.TimeoutMs: on expiry the running process is force-killed
// and the result reports exitCode=124, timedOut=true.
func (s *Sandbox) Exec(ctx context.Context, command string, opts ExecOptions) ExecResult {
	start := time.Now()

	env := make([]string, 0, len(s.baseEnv)+len(opts.Env))
	env = append(env, s.baseEnv...)
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	workDir := s.workDir
	if opts.Cwd != "" {
		workDir = filepath.Join(s.workDir, opts.Cwd)
	}

	createResp, err := s.client.ContainerExecCreate(ctx, s.containerID, container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		Env:          env,
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{Success: false, ExitCode: 1, Stderr: err.Error(), DurationMs: time.Since(start).Milliseconds()}
	}

	attach, err := s.client.ContainerExecAttach(ctx, createResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{Success: false, ExitCode: 1, Stderr: err.Error(), DurationMs: time.Since(start).Milliseconds()}
	}

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copyDone <- copyErr
	}()

	timer := time.NewTimer(clampDuration(opts.TimeoutMs))
	defer timer.Stop()

	timedOut := false
	select {
	case <-copyDone:
	case <-timer.C:
		timedOut = true
		s.killExec(ctx, createResp.ID)
		attach.Close()
		select {
		case <-copyDone:
		case <-time.After(2 * time.Second):
		}
	}
	if !timedOut {
		attach.Close()
	}

	duration := time.Since(start).Milliseconds()

	if timedOut {
		return ExecResult{
			Success:    false,
			ExitCode:   124,
			TimedOut:   true,
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
			DurationMs: duration,
		}
	}

	inspect, err := s.client.ContainerExecInspect(ctx, createResp.ID)
	if err != nil {
		return ExecResult{
			Success:    false,
			ExitCode:   1,
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
			DurationMs: duration,
		}
	}

	return ExecResult{
		Success:    inspect.ExitCode == 0,
		ExitCode:   inspect.ExitCode,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: duration,
	}
}

// killExec looks up the timed-out exec's process id and issues a second,
// short-lived exec to SIGKILL it. Docker's API has no direct "kill this
// exec" call; killing by pid from inside the same container is the
// standard workaround.
func (s *Sandbox) killExec(ctx context.Context, execID string) {
	inspect, err := s.client.ContainerExecInspect(ctx, execID)
	if err != nil || inspect.Pid == 0 {
		return
	}

	killCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	killResp, err := s.client.ContainerExecCreate(killCtx, s.containerID, container.ExecOptions{
		Cmd: []string{"kill", "-9", strconv.Itoa(inspect.Pid)},
	})
	if err != nil {
		return
	}
	_ = s.client.ContainerExecStart(killCtx, killResp.ID, container.ExecStartOptions{})
}
