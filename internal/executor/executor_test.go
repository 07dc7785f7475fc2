package executor

import (
	"context"
	"testing"

	"spacerun/internal/policy"
	"spacerun/internal/protocol"
	"spacerun/internal/sandbox"
)

// fakeSandbox is an in-memory stand-in for *sandbox.Sandbox, letting these
// tests exercise the executor's control flow without Docker.
type fakeSandbox struct {
	files   map[string]string
	execFn  func(ctx context.Context, command string, opts sandbox.ExecOptions) sandbox.ExecResult
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{files: map[string]string{}}
}

func (f *fakeSandbox) CreateFile(path, content string, encoding protocol.Encoding, overwrite bool) sandbox.FileResult {
	if _, exists := f.files[path]; exists && !overwrite {
		return sandbox.FileResult{Success: false, Error: "File already exists"}
	}
	f.files[path] = content
	return sandbox.FileResult{Success: true, BytesWritten: len(content)}
}

func (f *fakeSandbox) ReadFile(path string, encoding protocol.Encoding) sandbox.FileResult {
	content, ok := f.files[path]
	if !ok {
		return sandbox.FileResult{Success: false, Error: "File not found"}
	}
	return sandbox.FileResult{Success: true, Content: content, Encoding: encoding, Size: len(content)}
}

func (f *fakeSandbox) EditFile(path string, edits []protocol.Edit) sandbox.FileResult {
	content, ok := f.files[path]
	if !ok {
		return sandbox.FileResult{Success: false, Error: "File not found"}
	}
	for _, e := range edits {
		content = replaceFirst(content, e.OldContent, e.NewContent)
	}
	f.files[path] = content
	return sandbox.FileResult{Success: true, EditsApplied: len(edits), Size: len(content)}
}

func (f *fakeSandbox) DeleteFile(path string) sandbox.FileResult {
	if _, ok := f.files[path]; !ok {
		return sandbox.FileResult{Success: false, Error: "File not found"}
	}
	delete(f.files, path)
	return sandbox.FileResult{Success: true}
}

func (f *fakeSandbox) Exec(ctx context.Context, command string, opts sandbox.ExecOptions) sandbox.ExecResult {
	if f.execFn != nil {
		return f.execFn(ctx, command, opts)
	}
	return sandbox.ExecResult{Success: true, ExitCode: 0}
}

func replaceFirst(s, old, new string) string {
	idx := indexOf(s, old)
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func mustStandardEngine(t *testing.T) *policy.Engine {
	t.Helper()
	p, ok := policy.FromPreset(policy.PresetStandard)
	if !ok {
		t.Fatalf("FromPreset(standard) ok=false")
	}
	return policy.NewEngine(p)
}

// mustPermissiveEngine is used wherever a test needs a shell command to hit
// the approvalRequired branch: permissive has no allowedCommands allowlist
// to trip on first, only blockedPatterns and approvalRequired.
func mustPermissiveEngine(t *testing.T) *policy.Engine {
	t.Helper()
	p, ok := policy.FromPreset(policy.PresetPermissive)
	if !ok {
		t.Fatalf("FromPreset(permissive) ok=false")
	}
	return policy.NewEngine(p)
}

// S1 — happy path.
func TestRun_HappyPath(t *testing.T) {
	sb := newFakeSandbox()
	sb.execFn = func(ctx context.Context, command string, opts sandbox.ExecOptions) sandbox.ExecResult {
		if command != "cat a.txt" {
			t.Fatalf("unexpected command: %q", command)
		}
		return sandbox.ExecResult{Success: true, ExitCode: 0, Stdout: "hello"}
	}
	eng := mustStandardEngine(t)

	ops := []protocol.Operation{
		{Kind: protocol.OpMessage, ID: "op0", Content: "hi"},
		{Kind: protocol.OpCreateFile, ID: "op1", Path: "a.txt", Content: "hello"},
		{Kind: protocol.OpReadFile, ID: "op2", Path: "a.txt"},
		{Kind: protocol.OpShell, ID: "op3", Command: "cat a.txt"},
	}

	result := Run(context.Background(), ops, sb, eng)
	if result.Status != StatusCompleted {
		t.Fatalf("Status = %v, want completed", result.Status)
	}
	if len(result.Events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(result.Events))
	}
	if !result.Events[1].Success || *result.Events[1].BytesWritten != 5 {
		t.Fatalf("createFile event = %+v", result.Events[1])
	}
	if result.Events[2].Content != "hello" || *result.Events[2].Size != 5 {
		t.Fatalf("readFile event = %+v", result.Events[2])
	}
	if !result.Events[3].Success || *result.Events[3].ExitCode != 0 || result.Events[3].Stdout != "hello" {
		t.Fatalf("shell event = %+v", result.Events[3])
	}
}

// S3 — policy denial mid-batch does not halt the run.
func TestRun_PolicyDenialMidBatchContinues(t *testing.T) {
	sb := newFakeSandbox()
	eng := mustStandardEngine(t)

	ops := []protocol.Operation{
		{Kind: protocol.OpCreateFile, ID: "op1", Path: "ok.txt", Content: "ok"},
		{Kind: protocol.OpShell, ID: "op2", Command: "sudo rm -rf /"},
		{Kind: protocol.OpCreateFile, ID: "op3", Path: "tail.txt", Content: "t"},
	}

	result := Run(context.Background(), ops, sb, eng)
	if result.Status != StatusCompleted {
		t.Fatalf("Status = %v, want completed", result.Status)
	}
	if len(result.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(result.Events))
	}
	if !result.Events[0].Success {
		t.Fatalf("expected first createFile to succeed, got %+v", result.Events[0])
	}
	if result.Events[1].Kind != protocol.EvPolicyDenied || result.Events[1].OperationType != protocol.OpShell {
		t.Fatalf("expected policyDenied for shell, got %+v", result.Events[1])
	}
	if !result.Events[2].Success {
		t.Fatalf("expected third createFile to succeed, got %+v", result.Events[2])
	}
}

// S4 — approval gate then approve.
func TestRunThenResume_Approved(t *testing.T) {
	sb := newFakeSandbox()
	sb.execFn = func(ctx context.Context, command string, opts sandbox.ExecOptions) sandbox.ExecResult {
		return sandbox.ExecResult{Success: true, ExitCode: 0}
	}
	eng := mustPermissiveEngine(t)

	ops := []protocol.Operation{
		{Kind: protocol.OpShell, ID: "op1", Command: "rm -rf tmp"},
	}

	first := Run(context.Background(), ops, sb, eng)
	if first.Status != StatusAwaitingApproval {
		t.Fatalf("Status = %v, want awaiting_approval", first.Status)
	}
	if len(first.Events) != 1 || first.Events[0].Kind != protocol.EvApprovalRequired {
		t.Fatalf("expected single approvalRequired event, got %+v", first.Events)
	}
	if first.PendingApproval == nil || first.PendingApproval.OperationID != "op1" {
		t.Fatalf("PendingApproval = %+v", first.PendingApproval)
	}

	second := Resume(context.Background(), ops, 0, ResumeDecision{Approved: true}, sb, eng)
	if second.Status != StatusCompleted {
		t.Fatalf("Status = %v, want completed", second.Status)
	}
	if len(second.Events) != 1 || second.Events[0].Kind != protocol.EvShell || !second.Events[0].Success {
		t.Fatalf("expected single shell success event, got %+v", second.Events)
	}
}

// S5 — approval gate then deny.
func TestRunThenResume_Denied(t *testing.T) {
	sb := newFakeSandbox()
	eng := mustPermissiveEngine(t)

	ops := []protocol.Operation{
		{Kind: protocol.OpShell, ID: "op1", Command: "rm -rf tmp"},
	}

	first := Run(context.Background(), ops, sb, eng)
	if first.Status != StatusAwaitingApproval {
		t.Fatalf("Status = %v, want awaiting_approval", first.Status)
	}

	second := Resume(context.Background(), ops, 0, ResumeDecision{Approved: false, Reason: "no"}, sb, eng)
	if second.Status != StatusCompleted {
		t.Fatalf("Status = %v, want completed", second.Status)
	}
	if len(second.Events) != 1 || second.Events[0].Kind != protocol.EvPolicyDenied || second.Events[0].Reason != "no" {
		t.Fatalf("expected policyDenied with decider reason, got %+v", second.Events)
	}
}

// S6 — timeout.
func TestRun_ShellTimeout(t *testing.T) {
	sb := newFakeSandbox()
	sb.execFn = func(ctx context.Context, command string, opts sandbox.ExecOptions) sandbox.ExecResult {
		return sandbox.ExecResult{Success: false, ExitCode: 124, TimedOut: true, DurationMs: 2000}
	}
	p, _ := policy.FromPresetWithOverrides(policy.PresetPermissive, policy.Overrides{
		Shell: &policy.ShellOverride{TimeoutMs: intPtr(2000)},
	})
	eng := policy.NewEngine(p)

	ops := []protocol.Operation{
		{Kind: protocol.OpShell, ID: "op1", Command: "sleep 10"},
	}
	result := Run(context.Background(), ops, sb, eng)
	if result.Status != StatusCompleted {
		t.Fatalf("Status = %v, want completed", result.Status)
	}
	ev := result.Events[0]
	if ev.Success || !ev.TimedOut || *ev.ExitCode != 124 {
		t.Fatalf("expected timed-out shell event, got %+v", ev)
	}
}

func intPtr(v int) *int { return &v }

// Invariant: a run that terminates awaiting_approval ends with that event
// as its last element and pendingApproval matching it.
func TestRun_SuspensionInvariant(t *testing.T) {
	sb := newFakeSandbox()
	eng := mustPermissiveEngine(t)

	ops := []protocol.Operation{
		{Kind: protocol.OpCreateFile, ID: "op1", Path: "a.txt", Content: "a"},
		{Kind: protocol.OpShell, ID: "op2", Command: "rm -rf tmp"},
		{Kind: protocol.OpCreateFile, ID: "op3", Path: "b.txt", Content: "b"},
	}
	result := Run(context.Background(), ops, sb, eng)
	if result.Status != StatusAwaitingApproval {
		t.Fatalf("Status = %v, want awaiting_approval", result.Status)
	}
	last := result.Events[len(result.Events)-1]
	if last.Kind != protocol.EvApprovalRequired {
		t.Fatalf("expected last event to be approvalRequired, got %+v", last)
	}
	if result.PendingApproval.OperationID != ops[1].ID {
		t.Fatalf("pendingApproval.OperationID = %q, want %q", result.PendingApproval.OperationID, ops[1].ID)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected operations after suspension to be unexecuted, got %d events", len(result.Events))
	}
}
