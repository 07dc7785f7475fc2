// Package store persists spaces, runs, and approvals — the three tables
// spec'd as simple relational CRUD. A Store is an external collaborator
// to the Space Manager and Run Service, never consulted by the Run
// Executor or Policy Engine directly.
package store

import (
	"context"
	"errors"
	"time"

	"spacerun/internal/protocol"
)

// ErrNotFound is returned by Get-style lookups that find nothing.
var ErrNotFound = errors.New("store: record not found")

// PendingApproval mirrors the run's suspension snapshot without coupling
// this package to internal/executor's types.
type PendingApproval struct {
	OperationID   string
	OperationType protocol.OperationKind
	Reason        string
	Details       protocol.ApprovalDetails
}

// SpaceRecord is the persisted shape of a space (spec.md §6).
type SpaceRecord struct {
	ID              string
	Name            string
	Description     string
	Status          string
	Policy          string
	PolicyOverrides []byte
	WorkspacePath   string
	Capabilities    []string
	Env             map[string]string
	Metadata        map[string]string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// RunRecord is the persisted shape of a run (spec.md §6).
type RunRecord struct {
	ID              string
	SpaceID         string
	Status          string
	Operations      []protocol.Operation
	Events          []protocol.Event
	PendingApproval *PendingApproval
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// ApprovalRecord is the persisted shape of an approval (spec.md §6).
type ApprovalRecord struct {
	ID             string
	SpaceID        string
	RunID          string
	OperationID    string
	OperationType  protocol.OperationKind
	Status         string
	Details        protocol.ApprovalDetails
	Reason         string
	Decision       string
	DecisionReason string
	CreatedAt      time.Time
	ExpiresAt      *time.Time
	DecidedAt      *time.Time
}

// Store is the persistence surface the Space Manager and Run Service
// depend on. Implementations must not interpret operations/events content;
// they round-trip it opaquely.
type Store interface {
	SaveSpace(ctx context.Context, rec SpaceRecord) error
	GetSpace(ctx context.Context, id string) (SpaceRecord, error)
	ListSpaces(ctx context.Context) ([]SpaceRecord, error)

	SaveRun(ctx context.Context, rec RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRuns(ctx context.Context, spaceID string) ([]RunRecord, error)

	SaveApproval(ctx context.Context, rec ApprovalRecord) error
	GetApproval(ctx context.Context, id string) (ApprovalRecord, error)
	ListApprovalsByRun(ctx context.Context, runID string) ([]ApprovalRecord, error)
}
