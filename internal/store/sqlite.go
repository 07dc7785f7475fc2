package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"spacerun/internal/protocol"
)

// schema creates the three spec'd tables plus their indices if absent.
const schema = `
CREATE TABLE IF NOT EXISTS spaces (
	id TEXT PRIMARY KEY,
	name TEXT,
	description TEXT,
	status TEXT NOT NULL,
	policy TEXT NOT NULL,
	policy_overrides TEXT,
	workspace_path TEXT NOT NULL,
	capabilities TEXT,
	env TEXT,
	metadata TEXT,
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	space_id TEXT NOT NULL,
	status TEXT NOT NULL,
	operations TEXT NOT NULL,
	events TEXT NOT NULL,
	pending_approval TEXT,
	started_at TEXT NOT NULL,
	completed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_space_id ON runs(space_id);

CREATE TABLE IF NOT EXISTS approvals (
	id TEXT PRIMARY KEY,
	space_id TEXT NOT NULL,
	run_id TEXT NOT NULL,
	operation_id TEXT NOT NULL,
	operation_type TEXT NOT NULL,
	status TEXT NOT NULL,
	details TEXT,
	reason TEXT,
	decision TEXT,
	decision_reason TEXT,
	created_at TEXT NOT NULL,
	expires_at TEXT,
	decided_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_approvals_space_id ON approvals(space_id);
CREATE INDEX IF NOT EXISTS idx_approvals_run_id ON approvals(run_id);
`

// SQLiteStore is the durable Store implementation, backed by the pure-Go
// modernc.org/sqlite driver (no cgo).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) the database at dsn and
// ensures its schema exists.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSpace(ctx context.Context, rec SpaceRecord) error {
	caps, _ := json.Marshal(rec.Capabilities)
	env, _ := json.Marshal(rec.Env)
	meta, _ := json.Marshal(rec.Metadata)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spaces (id, name, description, status, policy, policy_overrides, workspace_path, capabilities, env, metadata, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description, status=excluded.status,
			policy=excluded.policy, policy_overrides=excluded.policy_overrides,
			workspace_path=excluded.workspace_path, capabilities=excluded.capabilities,
			env=excluded.env, metadata=excluded.metadata, expires_at=excluded.expires_at`,
		rec.ID, rec.Name, rec.Description, rec.Status, rec.Policy, string(rec.PolicyOverrides),
		rec.WorkspacePath, string(caps), string(env), string(meta),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving space %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSpace(ctx context.Context, id string) (SpaceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, status, policy, policy_overrides, workspace_path, capabilities, env, metadata, created_at, expires_at
		FROM spaces WHERE id = ?`, id)
	return scanSpace(row)
}

func (s *SQLiteStore) ListSpaces(ctx context.Context) ([]SpaceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, status, policy, policy_overrides, workspace_path, capabilities, env, metadata, created_at, expires_at
		FROM spaces ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing spaces: %w", err)
	}
	defer rows.Close()

	var out []SpaceRecord
	for rows.Next() {
		rec, err := scanSpace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpace(row rowScanner) (SpaceRecord, error) {
	var rec SpaceRecord
	var overrides, caps, env, meta, createdAt, expiresAt string
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Status, &rec.Policy,
		&overrides, &rec.WorkspacePath, &caps, &env, &meta, &createdAt, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return SpaceRecord{}, ErrNotFound
		}
		return SpaceRecord{}, fmt.Errorf("scanning space: %w", err)
	}
	rec.PolicyOverrides = []byte(overrides)
	_ = json.Unmarshal([]byte(caps), &rec.Capabilities)
	_ = json.Unmarshal([]byte(env), &rec.Env)
	_ = json.Unmarshal([]byte(meta), &rec.Metadata)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt)
	return rec, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, rec RunRecord) error {
	ops, _ := json.Marshal(rec.Operations)
	events, _ := json.Marshal(rec.Events)
	var pending []byte
	if rec.PendingApproval != nil {
		pending, _ = json.Marshal(rec.PendingApproval)
	}
	var completedAt sql.NullString
	if rec.CompletedAt != nil {
		completedAt = sql.NullString{String: rec.CompletedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, space_id, status, operations, events, pending_approval, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, operations=excluded.operations, events=excluded.events,
			pending_approval=excluded.pending_approval, completed_at=excluded.completed_at`,
		rec.ID, rec.SpaceID, rec.Status, string(ops), string(events), string(pending),
		rec.StartedAt.UTC().Format(time.RFC3339Nano), completedAt,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, space_id, status, operations, events, pending_approval, started_at, completed_at
		FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, spaceID string) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, space_id, status, operations, events, pending_approval, started_at, completed_at
		FROM runs WHERE space_id = ? ORDER BY started_at ASC`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("listing runs for space %s: %w", spaceID, err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var ops, events, pending, startedAt string
	var completedAt sql.NullString
	if err := row.Scan(&rec.ID, &rec.SpaceID, &rec.Status, &ops, &events, &pending, &startedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return RunRecord{}, ErrNotFound
		}
		return RunRecord{}, fmt.Errorf("scanning run: %w", err)
	}
	_ = json.Unmarshal([]byte(ops), &rec.Operations)
	_ = json.Unmarshal([]byte(events), &rec.Events)
	if strings.TrimSpace(pending) != "" {
		var pa PendingApproval
		if err := json.Unmarshal([]byte(pending), &pa); err == nil {
			rec.PendingApproval = &pa
		}
	}
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err == nil {
			rec.CompletedAt = &t
		}
	}
	return rec, nil
}

func (s *SQLiteStore) SaveApproval(ctx context.Context, rec ApprovalRecord) error {
	details, _ := json.Marshal(rec.Details)
	var expiresAt, decidedAt sql.NullString
	if rec.ExpiresAt != nil {
		expiresAt = sql.NullString{String: rec.ExpiresAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	if rec.DecidedAt != nil {
		decidedAt = sql.NullString{String: rec.DecidedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (id, space_id, run_id, operation_id, operation_type, status, details, reason, decision, decision_reason, created_at, expires_at, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, decision=excluded.decision, decision_reason=excluded.decision_reason,
			decided_at=excluded.decided_at`,
		rec.ID, rec.SpaceID, rec.RunID, rec.OperationID, string(rec.OperationType), rec.Status,
		string(details), rec.Reason, rec.Decision, rec.DecisionReason,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), expiresAt, decidedAt,
	)
	if err != nil {
		return fmt.Errorf("saving approval %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetApproval(ctx context.Context, id string) (ApprovalRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, space_id, run_id, operation_id, operation_type, status, details, reason, decision, decision_reason, created_at, expires_at, decided_at
		FROM approvals WHERE id = ?`, id)
	return scanApproval(row)
}

func (s *SQLiteStore) ListApprovalsByRun(ctx context.Context, runID string) ([]ApprovalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, space_id, run_id, operation_id, operation_type, status, details, reason, decision, decision_reason, created_at, expires_at, decided_at
		FROM approvals WHERE run_id = ? ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing approvals for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []ApprovalRecord
	for rows.Next() {
		rec, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanApproval(row rowScanner) (ApprovalRecord, error) {
	var rec ApprovalRecord
	var opType, details, createdAt string
	var expiresAt, decidedAt sql.NullString
	if err := row.Scan(&rec.ID, &rec.SpaceID, &rec.RunID, &rec.OperationID, &opType, &rec.Status,
		&details, &rec.Reason, &rec.Decision, &rec.DecisionReason, &createdAt, &expiresAt, &decidedAt); err != nil {
		if err == sql.ErrNoRows {
			return ApprovalRecord{}, ErrNotFound
		}
		return ApprovalRecord{}, fmt.Errorf("scanning approval: %w", err)
	}
	rec.OperationType = protocol.OperationKind(opType)
	_ = json.Unmarshal([]byte(details), &rec.Details)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if expiresAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, expiresAt.String)
		if err == nil {
			rec.ExpiresAt = &t
		}
	}
	if decidedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, decidedAt.String)
		if err == nil {
			rec.DecidedAt = &t
		}
	}
	return rec, nil
}
