package executor

import (
	"context"

	"spacerun/internal/protocol"
	"spacerun/internal/sandbox"
)

// dispatch sends one Allow-decided operation to the sandbox and converts
// its structured result into the corresponding Event. A per-operation
// failure (missing file, non-zero exit) is recorded as success=false and
// never surfaces as a Go error: Sandbox primitives already never panic
// across the boundary, so there is nothing here to propagate.
func dispatch(ctx context.Context, op protocol.Operation, sb SandboxPort, eng PolicyPort) protocol.Event {
	switch op.Kind {
	case protocol.OpMessage:
		return protocol.Event{
			Kind:        protocol.EvMessage,
			OperationID: op.ID,
			Timestamp:   nowISO(),
			Success:     true,
		}

	case protocol.OpCreateFile:
		encoding := op.Encoding
		if encoding == "" {
			encoding = protocol.EncodingUTF8
		}
		r := sb.CreateFile(op.Path, op.Content, encoding, op.Overwrite)
		ev := protocol.Event{
			Kind:        protocol.EvCreateFile,
			OperationID: op.ID,
			Timestamp:   nowISO(),
			Success:     r.Success,
			Path:        op.Path,
			Error:       r.Error,
		}
		if r.Success {
			bw := r.BytesWritten
			ev.BytesWritten = &bw
		}
		return ev

	case protocol.OpReadFile:
		encoding := op.Encoding
		if encoding == "" {
			encoding = protocol.EncodingUTF8
		}
		r := sb.ReadFile(op.Path, encoding)
		ev := protocol.Event{
			Kind:        protocol.EvReadFile,
			OperationID: op.ID,
			Timestamp:   nowISO(),
			Success:     r.Success,
			Path:        op.Path,
			Error:       r.Error,
		}
		if r.Success {
			ev.Content = r.Content
			ev.Encoding = r.Encoding
			size := r.Size
			ev.Size = &size
		}
		return ev

	case protocol.OpEditFile:
		r := sb.EditFile(op.Path, op.Edits)
		ev := protocol.Event{
			Kind:        protocol.EvEditFile,
			OperationID: op.ID,
			Timestamp:   nowISO(),
			Success:     r.Success,
			Path:        op.Path,
			Error:       r.Error,
		}
		if r.Success {
			applied := r.EditsApplied
			ev.EditsApplied = &applied
		}
		return ev

	case protocol.OpDeleteFile:
		r := sb.DeleteFile(op.Path)
		return protocol.Event{
			Kind:        protocol.EvDeleteFile,
			OperationID: op.ID,
			Timestamp:   nowISO(),
			Success:     r.Success,
			Path:        op.Path,
			Error:       r.Error,
		}

	case protocol.OpShell:
		timeoutMs := eng.EffectiveTimeout(op.TimeoutMs)
		r := sb.Exec(ctx, op.Command, sandbox.ExecOptions{
			Cwd:       op.Cwd,
			Env:       op.Env,
			TimeoutMs: timeoutMs,
		})
		exitCode := r.ExitCode
		duration := r.DurationMs
		return protocol.Event{
			Kind:        protocol.EvShell,
			OperationID: op.ID,
			Timestamp:   nowISO(),
			Success:     r.Success,
			Command:     op.Command,
			ExitCode:    &exitCode,
			Stdout:      r.Stdout,
			Stderr:      r.Stderr,
			DurationMs:  &duration,
			TimedOut:    r.TimedOut,
		}

	default:
		return protocol.Event{
			Kind:        protocol.EvError,
			OperationID: op.ID,
			Timestamp:   nowISO(),
			Success:     false,
			Category:    protocol.ErrExecution,
			Message:     "unknown operation type",
		}
	}
}
