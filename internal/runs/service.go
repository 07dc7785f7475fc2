// Package runs implements the Run Service: it persists runs, looks up a
// space's live Sandbox and PolicyEngine, and drives the Run Executor.
package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spacerun/internal/executor"
	"spacerun/internal/logger"
	"spacerun/internal/protocol"
	"spacerun/internal/space"
	"spacerun/internal/store"
)

// ErrNotFound is returned when a run id has no persisted record.
var ErrNotFound = errors.New("runs: not found")

// ErrNotAwaitingApproval is returned by Resume when the run isn't
// currently suspended.
var ErrNotAwaitingApproval = errors.New("runs: not awaiting approval")

// ErrApprovalMismatch is returned by Resume when the decision's
// operationId doesn't match the run's pending approval.
var ErrApprovalMismatch = errors.New("runs: approval operationId mismatch")

const (
	statusCompleted        = "completed"
	statusAwaitingApproval = "awaiting_approval"
	statusCancelled        = "cancelled"
)

// spaceLookup is the slice of *space.Manager the Service depends on. Lock
// returns the space's per-space run lock held (see space.Manager.Lock):
// callers must hold it for the full duration of a Run/Resume dispatch so
// concurrent submissions against the same space serialize on its Sandbox,
// per spec.md §5.
type spaceLookup interface {
	Sandbox(id string) (executor.SandboxPort, error)
	PolicyEngine(id string) (executor.PolicyPort, error)
	Lock(id string) (unlock func(), err error)
}

// managerAdapter lets *space.Manager satisfy spaceLookup: its Sandbox/
// PolicyEngine accessors return the concrete *sandbox.Sandbox /
// *policy.Engine types, which already implement executor.SandboxPort /
// executor.PolicyPort by duck typing, but Go requires the adapter because
// a method returning a concrete type doesn't satisfy an interface method
// returning a different (even if satisfied) interface type.
type managerAdapter struct {
	m *space.Manager
}

func (a managerAdapter) Sandbox(id string) (executor.SandboxPort, error) {
	return a.m.Sandbox(id)
}

func (a managerAdapter) PolicyEngine(id string) (executor.PolicyPort, error) {
	return a.m.PolicyEngine(id)
}

func (a managerAdapter) Lock(id string) (func(), error) {
	return a.m.Lock(id)
}

// Service orchestrates Run Executor calls and persists their outcome.
type Service struct {
	spaces spaceLookup
	store  store.Store
	log    *logger.LogEntry
}

// NewService wires a Service against a live Space Manager and Store.
func NewService(spaces *space.Manager, st store.Store) *Service {
	return newService(managerAdapter{m: spaces}, st)
}

// newService is the shared constructor; tests supply a fake spaceLookup
// instead of wrapping a real *space.Manager.
func newService(spaces spaceLookup, st store.Store) *Service {
	return &Service{spaces: spaces, store: st, log: logger.Named("runs")}
}

// Create evaluates operations against spaceID's Sandbox/PolicyEngine via
// the Run Executor and persists the resulting run.
func (s *Service) Create(ctx context.Context, spaceID string, operations []protocol.Operation) (store.RunRecord, error) {
	unlock, err := s.spaces.Lock(spaceID)
	if err != nil {
		return store.RunRecord{}, fmt.Errorf("locking space %s: %w", spaceID, err)
	}
	defer unlock()

	sb, err := s.spaces.Sandbox(spaceID)
	if err != nil {
		return store.RunRecord{}, fmt.Errorf("looking up sandbox for space %s: %w", spaceID, err)
	}
	eng, err := s.spaces.PolicyEngine(spaceID)
	if err != nil {
		return store.RunRecord{}, fmt.Errorf("looking up policy engine for space %s: %w", spaceID, err)
	}

	result := executor.Run(ctx, operations, sb, eng)

	now := time.Now().UTC()
	rec := store.RunRecord{
		ID:         "run_" + uuid.NewString()[:12],
		SpaceID:    spaceID,
		Operations: operations,
		Events:     result.Events,
		StartedAt:  now,
	}
	s.applyResult(rec.ID, &rec, result, now)

	if err := s.store.SaveRun(ctx, rec); err != nil {
		return store.RunRecord{}, fmt.Errorf("persisting run %s: %w", rec.ID, err)
	}
	if rec.PendingApproval != nil {
		if err := s.createApproval(ctx, rec); err != nil {
			return store.RunRecord{}, err
		}
	}

	s.log.WithField("run_id", rec.ID).WithField("status", rec.Status).Info("run created")
	return rec, nil
}

// ApprovalDecision is the human decision resolving a run's suspension.
type ApprovalDecision struct {
	OperationID string
	Approved    bool
	Reason      string
}

// Resume loads runID, validates it is awaiting_approval and that decision
// names its pending operation, invokes the executor's resume path, and
// persists the concatenated events plus new status.
func (s *Service) Resume(ctx context.Context, runID string, decision ApprovalDecision) (store.RunRecord, error) {
	rec, err := s.Get(ctx, runID)
	if err != nil {
		return store.RunRecord{}, err
	}
	if rec.Status != statusAwaitingApproval || rec.PendingApproval == nil {
		return store.RunRecord{}, ErrNotAwaitingApproval
	}
	if rec.PendingApproval.OperationID != decision.OperationID {
		return store.RunRecord{}, ErrApprovalMismatch
	}

	k := indexOfOperation(rec.Operations, decision.OperationID)
	if k < 0 {
		return store.RunRecord{}, fmt.Errorf("%w: operation %s not found in run %s", ErrApprovalMismatch, decision.OperationID, runID)
	}

	unlock, err := s.spaces.Lock(rec.SpaceID)
	if err != nil {
		return store.RunRecord{}, fmt.Errorf("locking space %s: %w", rec.SpaceID, err)
	}
	defer unlock()

	sb, err := s.spaces.Sandbox(rec.SpaceID)
	if err != nil {
		return store.RunRecord{}, fmt.Errorf("looking up sandbox for space %s: %w", rec.SpaceID, err)
	}
	eng, err := s.spaces.PolicyEngine(rec.SpaceID)
	if err != nil {
		return store.RunRecord{}, fmt.Errorf("looking up policy engine for space %s: %w", rec.SpaceID, err)
	}

	result := executor.Resume(ctx, rec.Operations, k, executor.ResumeDecision{
		Approved: decision.Approved,
		Reason:   decision.Reason,
	}, sb, eng)

	now := time.Now().UTC()
	rec.Events = append(rec.Events, result.Events...)
	s.applyResult(rec.ID, &rec, result, now)

	if err := s.store.SaveRun(ctx, rec); err != nil {
		return store.RunRecord{}, fmt.Errorf("persisting resumed run %s: %w", rec.ID, err)
	}
	if err := s.resolveApproval(ctx, rec.ID, decision); err != nil {
		return store.RunRecord{}, err
	}

	return rec, nil
}

// Cancel marks an in-progress or awaiting_approval run as cancelled. No
// further resume is accepted afterward.
func (s *Service) Cancel(ctx context.Context, runID string) (store.RunRecord, error) {
	rec, err := s.Get(ctx, runID)
	if err != nil {
		return store.RunRecord{}, err
	}
	now := time.Now().UTC()
	rec.Status = statusCancelled
	rec.CompletedAt = &now
	if err := s.store.SaveRun(ctx, rec); err != nil {
		return store.RunRecord{}, fmt.Errorf("persisting cancel for run %s: %w", runID, err)
	}
	return rec, nil
}

// Get returns the persisted run.
func (s *Service) Get(ctx context.Context, runID string) (store.RunRecord, error) {
	rec, err := s.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.RunRecord{}, ErrNotFound
		}
		return store.RunRecord{}, err
	}
	return rec, nil
}

// List returns every run submitted against spaceID.
func (s *Service) List(ctx context.Context, spaceID string) ([]store.RunRecord, error) {
	return s.store.ListRuns(ctx, spaceID)
}

// applyResult maps an executor.Result onto rec's status/completedAt/
// pendingApproval fields.
func (s *Service) applyResult(runID string, rec *store.RunRecord, result executor.Result, now time.Time) {
	switch result.Status {
	case executor.StatusAwaitingApproval:
		rec.Status = statusAwaitingApproval
		rec.PendingApproval = &store.PendingApproval{
			OperationID:   result.PendingApproval.OperationID,
			OperationType: result.PendingApproval.OperationType,
			Reason:        result.PendingApproval.Reason,
			Details:       result.PendingApproval.Details,
		}
	default:
		rec.Status = statusCompleted
		rec.PendingApproval = nil
		rec.CompletedAt = &now
	}
}

func indexOfOperation(operations []protocol.Operation, operationID string) int {
	for i, op := range operations {
		if op.ID == operationID {
			return i
		}
	}
	return -1
}
