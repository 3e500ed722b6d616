package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSafetyTimeout forces the session out of a perpetual "resolving" state
// even if classification never returns.
const DefaultSafetyTimeout = 5 * time.Second

// Snapshot is the session context exposed to consumers. Principal is nil for a
// signed-out session.
type Snapshot struct {
	Principal Principal
	Resolving bool
}

// ManagerConfig carries the Manager dependencies.
type ManagerConfig struct {
	Classifier    *Classifier
	Logger        *zap.Logger
	SafetyTimeout time.Duration // 0 means DefaultSafetyTimeout
}

// Manager owns the resolved Principal slot and the generation guard protecting
// it. Resolutions are ordered by start order: a newer generation always wins,
// and a superseded resolution performs no mutation at all.
type Manager struct {
	classifier    *Classifier
	logger        *zap.Logger
	safetyTimeout time.Duration
	guard         GenerationGuard

	mu        sync.RWMutex
	principal Principal
	resolving bool
}

// NewManager constructs a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Classifier == nil {
		panic("classifier is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.SafetyTimeout
	if timeout <= 0 {
		timeout = DefaultSafetyTimeout
	}
	return &Manager{classifier: cfg.Classifier, logger: logger, safetyTimeout: timeout}
}

// Snapshot returns the current session context.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{Principal: m.principal, Resolving: m.resolving}
}

// Resolve starts an identity resolution under a fresh generation and returns a
// channel closed once this attempt settles (result applied, superseded, or
// failed open on timeout). The session keeps its previous principal while
// resolving.
func (m *Manager) Resolve(ctx context.Context, user AuthenticatedUser) <-chan struct{} {
	gen := m.guard.Begin()

	m.mu.Lock()
	m.resolving = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p, err := m.classifier.Classify(ctx, user, func() bool { return m.guard.IsCurrent(gen) })
		if err != nil {
			if !errors.Is(err, ErrStale) {
				m.logger.Warn("classification failed", zap.String("user_id", user.ID), zap.Error(err))
			}
			return
		}
		m.guard.Finalize(gen, func() { m.apply(p) })
	}()

	settled := make(chan struct{})
	go func() {
		defer close(settled)
		timer := time.NewTimer(m.safetyTimeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			// Both channels can be ready at once; a finished classification
			// must not be clobbered by the fail-open.
			select {
			case <-done:
				return
			default:
			}
			// Fail open: an unresolved session becomes Unclassified, never stuck.
			applied := m.guard.Finalize(gen, func() {
				m.apply(Unclassified{UserID: user.ID, Email: user.Email})
			})
			if applied {
				m.logger.Warn("identity resolution timed out; failing open to unclassified",
					zap.String("user_id", user.ID), zap.Duration("timeout", m.safetyTimeout))
			}
		}
	}()

	return settled
}

// Refresh re-runs classification on demand under a new generation.
func (m *Manager) Refresh(ctx context.Context, user AuthenticatedUser) <-chan struct{} {
	return m.Resolve(ctx, user)
}

// Logout clears the session. Bumping the generation supersedes any in-flight
// resolution so it cannot resurrect the cleared principal.
func (m *Manager) Logout() {
	gen := m.guard.Begin()
	m.guard.Finalize(gen, func() { m.apply(nil) })
}

func (m *Manager) apply(p Principal) {
	m.mu.Lock()
	m.principal = p
	m.resolving = false
	m.mu.Unlock()
}
