package runs

import (
	"context"
	"sync"
	"testing"
	"time"

	"spacerun/internal/executor"
	"spacerun/internal/policy"
	"spacerun/internal/protocol"
	"spacerun/internal/sandbox"
	"spacerun/internal/store"
)

// fakeSandbox is a minimal executor.SandboxPort implementation for
// exercising the Run Service without a real container.
type fakeSandbox struct {
	files  map[string]string
	execFn func(ctx context.Context, command string, opts sandbox.ExecOptions) sandbox.ExecResult
}

func newFakeSandbox() *fakeSandbox { return &fakeSandbox{files: map[string]string{}} }

func (f *fakeSandbox) CreateFile(path, content string, encoding protocol.Encoding, overwrite bool) sandbox.FileResult {
	f.files[path] = content
	return sandbox.FileResult{Success: true, BytesWritten: len(content)}
}

func (f *fakeSandbox) ReadFile(path string, encoding protocol.Encoding) sandbox.FileResult {
	content, ok := f.files[path]
	if !ok {
		return sandbox.FileResult{Success: false, Error: "File not found"}
	}
	return sandbox.FileResult{Success: true, Content: content, Size: len(content)}
}

func (f *fakeSandbox) EditFile(path string, edits []protocol.Edit) sandbox.FileResult {
	return sandbox.FileResult{Success: true, EditsApplied: len(edits)}
}

func (f *fakeSandbox) DeleteFile(path string) sandbox.FileResult {
	delete(f.files, path)
	return sandbox.FileResult{Success: true}
}

func (f *fakeSandbox) Exec(ctx context.Context, command string, opts sandbox.ExecOptions) sandbox.ExecResult {
	if f.execFn != nil {
		return f.execFn(ctx, command, opts)
	}
	return sandbox.ExecResult{Success: true, ExitCode: 0}
}

// fakeSpaces is a spaceLookup that always resolves to the same sandbox and
// policy engine, modeling a single already-created space. Lock is backed by
// a real mutex so tests can assert that Create/Resume actually serialize on
// it rather than just calling it.
type fakeSpaces struct {
	sb  executor.SandboxPort
	eng executor.PolicyPort
	mu  sync.Mutex
}

func (f *fakeSpaces) Sandbox(id string) (executor.SandboxPort, error)     { return f.sb, nil }
func (f *fakeSpaces) PolicyEngine(id string) (executor.PolicyPort, error) { return f.eng, nil }
func (f *fakeSpaces) Lock(id string) (func(), error) {
	f.mu.Lock()
	return f.mu.Unlock, nil
}

func mustPermissiveEngine(t *testing.T) *policy.Engine {
	t.Helper()
	p, ok := policy.FromPreset(policy.PresetPermissive)
	if !ok {
		t.Fatalf("FromPreset(permissive) ok=false")
	}
	return policy.NewEngine(p)
}

func newTestService(t *testing.T, sb *fakeSandbox, eng *policy.Engine) (*Service, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	return newService(&fakeSpaces{sb: sb, eng: eng}, st), st
}

func TestCreate_CompletedRunPersistsEvents(t *testing.T) {
	sb := newFakeSandbox()
	eng := mustPermissiveEngine(t)
	svc, _ := newTestService(t, sb, eng)

	ops := []protocol.Operation{
		{Kind: protocol.OpCreateFile, ID: "op1", Path: "a.txt", Content: "hi"},
	}
	rec, err := svc.Create(context.Background(), "spc_test000001", ops)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Status != "completed" {
		t.Fatalf("Status = %q, want completed", rec.Status)
	}
	if len(rec.Events) != 1 || !rec.Events[0].Success {
		t.Fatalf("Events = %+v", rec.Events)
	}
	if rec.CompletedAt == nil {
		t.Fatalf("expected CompletedAt to be set")
	}

	stored, err := svc.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != "completed" {
		t.Fatalf("stored.Status = %q", stored.Status)
	}
}

func TestCreateThenResume_ApprovedAppendsNewEvents(t *testing.T) {
	sb := newFakeSandbox()
	eng := mustPermissiveEngine(t)
	svc, st := newTestService(t, sb, eng)

	ops := []protocol.Operation{
		{Kind: protocol.OpShell, ID: "op1", Command: "rm -rf tmp"},
	}
	first, err := svc.Create(context.Background(), "spc_test000001", ops)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.Status != "awaiting_approval" {
		t.Fatalf("Status = %q, want awaiting_approval", first.Status)
	}
	if len(first.Events) != 1 {
		t.Fatalf("expected 1 event before resume, got %d", len(first.Events))
	}

	approvals, err := st.ListApprovalsByRun(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("ListApprovalsByRun: %v", err)
	}
	if len(approvals) != 1 || approvals[0].Status != approvalPending {
		t.Fatalf("approvals = %+v", approvals)
	}

	second, err := svc.Resume(context.Background(), first.ID, ApprovalDecision{OperationID: "op1", Approved: true})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if second.Status != "completed" {
		t.Fatalf("Status after resume = %q, want completed", second.Status)
	}
	if len(second.Events) != 2 {
		t.Fatalf("expected 2 total events after resume, got %d: %+v", len(second.Events), second.Events)
	}
	if second.Events[1].Kind != protocol.EvShell || !second.Events[1].Success {
		t.Fatalf("second event = %+v", second.Events[1])
	}

	resolved, err := st.ListApprovalsByRun(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("ListApprovalsByRun after resume: %v", err)
	}
	if resolved[0].Status != approvalApproved {
		t.Fatalf("approval status = %q, want approved", resolved[0].Status)
	}
}

func TestResume_RejectsWhenNotAwaitingApproval(t *testing.T) {
	sb := newFakeSandbox()
	eng := mustPermissiveEngine(t)
	svc, _ := newTestService(t, sb, eng)

	ops := []protocol.Operation{{Kind: protocol.OpCreateFile, ID: "op1", Path: "a.txt", Content: "x"}}
	rec, err := svc.Create(context.Background(), "spc_test000001", ops)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.Resume(context.Background(), rec.ID, ApprovalDecision{OperationID: "op1", Approved: true})
	if err != ErrNotAwaitingApproval {
		t.Fatalf("Resume error = %v, want ErrNotAwaitingApproval", err)
	}
}

func TestResume_RejectsMismatchedOperationID(t *testing.T) {
	sb := newFakeSandbox()
	eng := mustPermissiveEngine(t)
	svc, _ := newTestService(t, sb, eng)

	ops := []protocol.Operation{{Kind: protocol.OpShell, ID: "op1", Command: "rm -rf tmp"}}
	rec, err := svc.Create(context.Background(), "spc_test000001", ops)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.Resume(context.Background(), rec.ID, ApprovalDecision{OperationID: "wrong", Approved: true})
	if err != ErrApprovalMismatch {
		t.Fatalf("Resume error = %v, want ErrApprovalMismatch", err)
	}
}

func TestCancel_SetsStatusAndCompletedAt(t *testing.T) {
	sb := newFakeSandbox()
	eng := mustPermissiveEngine(t)
	svc, _ := newTestService(t, sb, eng)

	ops := []protocol.Operation{{Kind: protocol.OpShell, ID: "op1", Command: "rm -rf tmp"}}
	rec, err := svc.Create(context.Background(), "spc_test000001", ops)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cancelled, err := svc.Cancel(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != "cancelled" || cancelled.CompletedAt == nil {
		t.Fatalf("Cancel result = %+v", cancelled)
	}
}

// TestCreate_SerializesConcurrentRunsAgainstSameSpace exercises the
// Manager.Lock-derived per-space lock end to end: two Create calls racing
// against the same space id must never have their Exec calls overlap, per
// spec.md §5's "at most one active Run at a time" invariant.
func TestCreate_SerializesConcurrentRunsAgainstSameSpace(t *testing.T) {
	var inFlight int32
	var overlapped bool
	var mu sync.Mutex

	sb := newFakeSandbox()
	sb.execFn = func(ctx context.Context, command string, opts sandbox.ExecOptions) sandbox.ExecResult {
		mu.Lock()
		inFlight++
		if inFlight > 1 {
			overlapped = true
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return sandbox.ExecResult{Success: true, ExitCode: 0}
	}
	eng := mustPermissiveEngine(t)
	svc, _ := newTestService(t, sb, eng)

	ops := []protocol.Operation{{Kind: protocol.OpShell, ID: "op1", Command: "true"}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Create(context.Background(), "spc_test000001", ops); err != nil {
				t.Errorf("Create: %v", err)
			}
		}()
	}
	wg.Wait()

	if overlapped {
		t.Fatalf("concurrent Create calls overlapped inside the sandbox's Exec")
	}
}

func TestList_ReturnsRunsForSpace(t *testing.T) {
	sb := newFakeSandbox()
	eng := mustPermissiveEngine(t)
	svc, _ := newTestService(t, sb, eng)

	ops := []protocol.Operation{{Kind: protocol.OpMessage, ID: "op1", Content: "hi"}}
	if _, err := svc.Create(context.Background(), "spc_test000001", ops); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(context.Background(), "spc_test000001", ops); err != nil {
		t.Fatalf("Create 2: %v", err)
	}

	list, err := svc.List(context.Background(), "spc_test000001")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List len = %d, want 2", len(list))
	}
}
