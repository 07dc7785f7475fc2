// Package space implements the Space Manager: the in-memory registry
// mapping a space id to its live Sandbox and PolicyEngine, fronting a
// Store for the persisted metadata. Space, Sandbox, and PolicyEngine form
// a tree — the Space owns the other two, neither references back.
package space

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"spacerun/internal/config"
	"spacerun/internal/logger"
	"spacerun/internal/policy"
	"spacerun/internal/sandbox"
	"spacerun/internal/store"
)

// ErrNotFound is returned when a space id has no registry entry.
var ErrNotFound = errors.New("space: not found")

// ErrUnknownPreset is returned when CreateOptions names a preset
// FromPresetWithOverrides does not recognize.
var ErrUnknownPreset = errors.New("space: unknown policy preset")

const defaultTTL = 12 * time.Hour

// entry is one registry record: the live collaborators plus the cached
// metadata last written to the store. mu is the per-space run lock
// (Manager.Lock) serializing Run/Resume dispatch and Destroy's teardown
// against the entry's Sandbox/PolicyEngine; the registry map itself is
// guarded separately by Manager.mu.
type entry struct {
	mu      sync.Mutex
	sandbox *sandbox.Sandbox
	engine  *policy.Engine
	record  store.SpaceRecord
}

// Manager owns the registry and the Store it mirrors into.
type Manager struct {
	mu     sync.RWMutex
	spaces map[string]*entry

	client sandbox.DockerClient
	store  store.Store
	cfg    config.Config
	log    *logger.LogEntry
}

func NewManager(client sandbox.DockerClient, st store.Store, cfg config.Config) *Manager {
	return &Manager{
		spaces: make(map[string]*entry),
		client: client,
		store:  st,
		cfg:    cfg,
		log:    logger.Named("space"),
	}
}

// CreateOptions parameterizes Create; Preset defaults to standard when empty.
type CreateOptions struct {
	Name         string
	Description  string
	Preset       policy.PresetName
	Overrides    policy.Overrides
	Capabilities []string
	Env          map[string]string
	Metadata     map[string]string
	TTLSeconds   int
}

// Create provisions a Sandbox, builds a PolicyEngine from the requested
// preset and overrides, persists the record, and registers the space.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (store.SpaceRecord, error) {
	preset := opts.Preset
	if preset == "" {
		preset = policy.PresetStandard
	}
	p, ok := policy.FromPresetWithOverrides(preset, opts.Overrides)
	if !ok {
		return store.SpaceRecord{}, fmt.Errorf("%w: %q", ErrUnknownPreset, preset)
	}

	sb, err := sandbox.Create(ctx, m.client, sandbox.Config{
		BaseImage:        m.cfg.SandboxBaseImage,
		WorkspaceBaseDir: m.cfg.WorkspaceBaseDir,
		Env:              opts.Env,
	})
	if err != nil {
		return store.SpaceRecord{}, fmt.Errorf("provisioning sandbox: %w", err)
	}

	ttl := time.Duration(opts.TTLSeconds) * time.Second
	if opts.TTLSeconds <= 0 {
		ttl = defaultTTL
	}
	now := time.Now().UTC()

	overridesJSON, _ := json.Marshal(opts.Overrides)
	id := "spc_" + uuid.NewString()[:12]
	rec := store.SpaceRecord{
		ID:              id,
		Name:            opts.Name,
		Description:     opts.Description,
		Status:          "ready",
		Policy:          string(preset),
		PolicyOverrides: overridesJSON,
		WorkspacePath:   sb.WorkspacePath(),
		Capabilities:    opts.Capabilities,
		Env:             opts.Env,
		Metadata:        opts.Metadata,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}

	if err := m.store.SaveSpace(ctx, rec); err != nil {
		_ = sb.Destroy(ctx)
		return store.SpaceRecord{}, fmt.Errorf("persisting space %s: %w", id, err)
	}

	m.mu.Lock()
	m.spaces[id] = &entry{sandbox: sb, engine: policy.NewEngine(p), record: rec}
	m.mu.Unlock()

	m.log.WithField("space_id", id).Info("space created")
	return rec, nil
}

// Get returns the persisted record for id.
func (m *Manager) Get(ctx context.Context, id string) (store.SpaceRecord, error) {
	rec, err := m.store.GetSpace(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.SpaceRecord{}, ErrNotFound
		}
		return store.SpaceRecord{}, err
	}
	return rec, nil
}

// List returns every persisted space record.
func (m *Manager) List(ctx context.Context) ([]store.SpaceRecord, error) {
	return m.store.ListSpaces(ctx)
}

// UpdatePatch carries the fields Update may change; nil fields are left
// untouched.
type UpdatePatch struct {
	Name        *string
	Description *string
	Metadata    map[string]string
}

// Update applies patch to the persisted record and, if present, the
// registry entry's cached copy.
func (m *Manager) Update(ctx context.Context, id string, patch UpdatePatch) (store.SpaceRecord, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return store.SpaceRecord{}, err
	}
	if patch.Name != nil {
		rec.Name = *patch.Name
	}
	if patch.Description != nil {
		rec.Description = *patch.Description
	}
	if patch.Metadata != nil {
		rec.Metadata = patch.Metadata
	}
	if err := m.store.SaveSpace(ctx, rec); err != nil {
		return store.SpaceRecord{}, fmt.Errorf("persisting update for space %s: %w", id, err)
	}

	m.mu.Lock()
	if e, ok := m.spaces[id]; ok {
		e.mu.Lock()
		e.record = rec
		e.mu.Unlock()
	}
	m.mu.Unlock()

	return rec, nil
}

// Extend pushes a space's expiration further into the future.
func (m *Manager) Extend(ctx context.Context, id string, additionalSeconds int) (store.SpaceRecord, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return store.SpaceRecord{}, err
	}
	rec.ExpiresAt = rec.ExpiresAt.Add(time.Duration(additionalSeconds) * time.Second)
	if err := m.store.SaveSpace(ctx, rec); err != nil {
		return store.SpaceRecord{}, fmt.Errorf("persisting extend for space %s: %w", id, err)
	}

	m.mu.Lock()
	if e, ok := m.spaces[id]; ok {
		e.mu.Lock()
		e.record = rec
		e.mu.Unlock()
	}
	m.mu.Unlock()

	return rec, nil
}

// Destroy releases the space's Sandbox, removes it from the registry, and
// persists status=destroyed. Idempotent: a space already absent from the
// in-memory registry still has its persisted status set.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.spaces[id]
	if ok {
		delete(m.spaces, id)
	}
	m.mu.Unlock()

	if ok {
		e.mu.Lock()
		err := e.sandbox.Destroy(ctx)
		e.mu.Unlock()
		if err != nil {
			return fmt.Errorf("destroying sandbox for space %s: %w", id, err)
		}
	}

	rec, err := m.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	rec.Status = "destroyed"
	if err := m.store.SaveSpace(ctx, rec); err != nil {
		return fmt.Errorf("persisting destroy for space %s: %w", id, err)
	}
	return nil
}

// Sandbox returns the live Sandbox for a registered, not-yet-destroyed space.
func (m *Manager) Sandbox(id string) (*sandbox.Sandbox, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.sandbox, nil
}

// PolicyEngine returns the live PolicyEngine for a registered space.
func (m *Manager) PolicyEngine(id string) (*policy.Engine, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.engine, nil
}

// Lock acquires id's per-space run lock and returns an unlock func the
// caller must invoke exactly once. Per spec.md §5, a Space permits at most
// one active Run at a time: a caller holds this lock for the full duration
// of a Run/Resume dispatch against the space's Sandbox, serializing
// concurrent run submissions the same way Destroy's own e.mu.Lock already
// serializes against sandbox teardown.
func (m *Manager) Lock(id string) (unlock func(), err error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	return e.mu.Unlock, nil
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.spaces[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}
