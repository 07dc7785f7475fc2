package runs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spacerun/internal/store"
)

const (
	approvalPending  = "pending"
	approvalApproved = "approved"
	approvalDenied   = "denied"
)

// createApproval records the pending approval raised by rec's suspension.
func (s *Service) createApproval(ctx context.Context, rec store.RunRecord) error {
	pa := rec.PendingApproval
	approval := store.ApprovalRecord{
		ID:            "apr_" + uuid.NewString()[:12],
		SpaceID:       rec.SpaceID,
		RunID:         rec.ID,
		OperationID:   pa.OperationID,
		OperationType: pa.OperationType,
		Status:        approvalPending,
		Details:       pa.Details,
		Reason:        pa.Reason,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.SaveApproval(ctx, approval); err != nil {
		return fmt.Errorf("persisting approval for run %s: %w", rec.ID, err)
	}
	return nil
}

// resolveApproval marks the run's pending approval decided, exactly once.
func (s *Service) resolveApproval(ctx context.Context, runID string, decision ApprovalDecision) error {
	approvals, err := s.store.ListApprovalsByRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("listing approvals for run %s: %w", runID, err)
	}
	for _, a := range approvals {
		if a.OperationID != decision.OperationID || a.Status != approvalPending {
			continue
		}
		now := time.Now().UTC()
		a.Status = approvalApproved
		a.Decision = approvalApproved
		if !decision.Approved {
			a.Status = approvalDenied
			a.Decision = approvalDenied
		}
		a.DecisionReason = decision.Reason
		a.DecidedAt = &now
		if err := s.store.SaveApproval(ctx, a); err != nil {
			return fmt.Errorf("persisting approval decision for run %s: %w", runID, err)
		}
		return nil
	}
	return nil
}
