// Package executor implements the run state machine: the loop that
// evaluates a batch of operations against a policy decider, dispatches
// allowed operations to a sandbox, and suspends mid-batch for approval.
//
// Suspension is expressed as a value, not a continuation: the executor
// never blocks waiting on a channel for a human decision. It returns with
// a terminal status and, when suspended, a PendingApproval snapshot; a
// later call to Resume re-enters the loop at the suspension point. No
// process-global state is shared between a Run and a later Resume.
package executor

import (
	"context"
	"time"

	"spacerun/internal/policy"
	"spacerun/internal/protocol"
	"spacerun/internal/sandbox"
)

// Status is the run's terminal or suspended state after one executor call.
type Status string

const (
	StatusCompleted        Status = "completed"
	StatusAwaitingApproval Status = "awaiting_approval"
)

// PendingApproval is the suspension snapshot produced when an operation's
// decision is RequireApproval.
type PendingApproval struct {
	OperationID   string
	OperationType protocol.OperationKind
	Reason        string
	Details       protocol.ApprovalDetails
}

// Result is the executor's output for one Run or Resume call: only the
// events produced by this call, never events from a prior call.
type Result struct {
	Events          []protocol.Event
	Status          Status
	PendingApproval *PendingApproval
}

// SandboxPort is the slice of Sandbox the executor dispatches allowed
// operations to. *sandbox.Sandbox satisfies this directly; tests supply a
// fake.
type SandboxPort interface {
	CreateFile(path, content string, encoding protocol.Encoding, overwrite bool) sandbox.FileResult
	ReadFile(path string, encoding protocol.Encoding) sandbox.FileResult
	EditFile(path string, edits []protocol.Edit) sandbox.FileResult
	DeleteFile(path string) sandbox.FileResult
	Exec(ctx context.Context, command string, opts sandbox.ExecOptions) sandbox.ExecResult
}

// PolicyPort is the policy decider the executor consults per operation.
// *policy.Engine satisfies this directly.
type PolicyPort interface {
	Evaluate(op protocol.Operation) policy.Decision
	EffectiveTimeout(requested *int) int
}

// Run evaluates operations from the start, consulting eng before every
// dispatch to sb. It never mutates operations.
func Run(ctx context.Context, operations []protocol.Operation, sb SandboxPort, eng PolicyPort) Result {
	return runFrom(ctx, operations, 0, -1, sb, eng)
}

// ResumeDecision is the human decision that resolves a suspended run's
// pending approval.
type ResumeDecision struct {
	Approved bool
	Reason   string
}

// Resume re-enters the loop at the index of the operation named by k
// (the caller locates k by matching PendingApproval.OperationID against
// operations). A denied decision records a policyDenied event for
// operation k and continues at k+1; an approved decision bypasses the
// policy check at k only — every later operation is evaluated normally.
// Only the newly produced events are returned; the caller concatenates
// them with the events accumulated before suspension.
func Resume(ctx context.Context, operations []protocol.Operation, k int, decision ResumeDecision, sb SandboxPort, eng PolicyPort) Result {
	if !decision.Approved {
		reason := decision.Reason
		if reason == "" {
			reason = "Approval denied by user"
		}
		deniedEvent := protocol.Event{
			Kind:          protocol.EvPolicyDenied,
			OperationID:   operations[k].ID,
			Timestamp:     nowISO(),
			Success:       false,
			OperationType: operations[k].Kind,
			Reason:        reason,
		}
		rest := runFrom(ctx, operations, k+1, -1, sb, eng)
		return Result{
			Events:          append([]protocol.Event{deniedEvent}, rest.Events...),
			Status:          rest.Status,
			PendingApproval: rest.PendingApproval,
		}
	}
	return runFrom(ctx, operations, k, k, sb, eng)
}

// runFrom is the shared main loop. bypassAt, when >= 0, treats the policy
// decision at that single index as Allow regardless of what eng.Evaluate
// would return; every other index is evaluated normally.
func runFrom(ctx context.Context, operations []protocol.Operation, startIndex, bypassAt int, sb SandboxPort, eng PolicyPort) Result {
	var events []protocol.Event

	for i := startIndex; i < len(operations); i++ {
		op := operations[i]

		var decision policy.Decision
		if i == bypassAt {
			decision = policy.Decision{Verdict: policy.VerdictAllow}
		} else {
			decision = eng.Evaluate(op)
		}

		switch decision.Verdict {
		case policy.VerdictDeny:
			events = append(events, policyDeniedEvent(op, decision))

		case policy.VerdictRequireApproval:
			details := approvalDetails(op, decision)
			ev := protocol.Event{
				Kind:          protocol.EvApprovalRequired,
				OperationID:   op.ID,
				Timestamp:     nowISO(),
				Success:       true,
				OperationType: op.Kind,
				Reason:        decision.Reason,
				Details:       &details,
			}
			events = append(events, ev)
			return Result{
				Events: events,
				Status: StatusAwaitingApproval,
				PendingApproval: &PendingApproval{
					OperationID:   op.ID,
					OperationType: op.Kind,
					Reason:        decision.Reason,
					Details:       details,
				},
			}

		default:
			events = append(events, dispatch(ctx, op, sb, eng))
		}
	}

	return Result{Events: events, Status: StatusCompleted}
}

func policyDeniedEvent(op protocol.Operation, decision policy.Decision) protocol.Event {
	return protocol.Event{
		Kind:          protocol.EvPolicyDenied,
		OperationID:   op.ID,
		Timestamp:     nowISO(),
		Success:       false,
		OperationType: op.Kind,
		Reason:        decision.Reason,
		Suggestion:    decision.Suggestion,
	}
}

func approvalDetails(op protocol.Operation, decision policy.Decision) protocol.ApprovalDetails {
	details := protocol.ApprovalDetails{Policy: decision.PolicyTag}
	if op.Kind == protocol.OpShell {
		details.Command = op.Command
	} else {
		details.Path = op.Path
	}
	return details
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
