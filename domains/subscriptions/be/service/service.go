package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookline-app/bookline-core/platform/go/persistence"
)

// Errors returned by the repository layer. ErrNotFound aliases the shared
// persistence sentinel so repo layers report misses through it.
var (
	ErrNotFound = persistence.ErrNotFound
	ErrConflict = errors.New("subscription already exists")
)

// Trial defaults applied when a missing record is auto-healed.
const (
	TrialPlan = "pro"
	TrialDays = 15
)

// Status is the computed entitlement state of a business.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrial    Status = "trial"
	StatusExpired  Status = "expired"
	StatusInactive Status = "inactive"
)

// View is the entitlement summary consumed by the session layer.
type View struct {
	Status        Status
	PeriodEnd     time.Time
	DaysRemaining int
}

// Record represents a stored subscription row.
type Record struct {
	ID          uuid.UUID
	BusinessID  uuid.UUID
	Status      string
	Plan        string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Repository abstracts subscription persistence.
type Repository interface {
	GetByBusiness(ctx context.Context, businessID uuid.UUID) (Record, error)
	// GetByOwnerEmail joins through the owning business's contact email. It covers
	// the identifier-drift case where the auth identity and the business row
	// disagree on the business id.
	GetByOwnerEmail(ctx context.Context, email string) (Record, error)
	Create(ctx context.Context, rec Record) (Record, error)
}

// Notifier surfaces self-repair events to the user, distinct from normal notifications.
type Notifier interface {
	TrialAutoActivated(businessID uuid.UUID)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(businessID uuid.UUID)

func (f NotifierFunc) TrialAutoActivated(businessID uuid.UUID) { f(businessID) }

// Resolver computes entitlement views and auto-heals missing records.
// Resolve never returns an error: absence of a usable subscription is a
// degraded-entitlement state, not a fatal one.
type Resolver struct {
	repo     Repository
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewResolver constructs a Resolver with required dependencies.
func NewResolver(repo Repository, notifier Notifier, logger *zap.Logger) *Resolver {
	if repo == nil {
		panic("subscriptions repo is required")
	}
	if notifier == nil {
		notifier = NotifierFunc(func(uuid.UUID) {})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{repo: repo, notifier: notifier, logger: logger, now: time.Now}
}

// Resolve returns the entitlement view for the business, materializing a fresh
// trial record when none exists. ownerEmail drives the secondary lookup and may
// be empty.
func (r *Resolver) Resolve(ctx context.Context, businessID uuid.UUID, ownerEmail string) View {
	rec, err := r.repo.GetByBusiness(ctx, businessID)
	if err == nil {
		return r.viewOf(rec)
	}
	if !errors.Is(err, ErrNotFound) {
		// Store-level failures are recoverable: fall through to the secondary
		// lookup and, if needed, the heal path.
		r.logger.Warn("subscription lookup failed",
			zap.String("business_id", businessID.String()), zap.Error(err))
	}

	if ownerEmail != "" {
		rec, err = r.repo.GetByOwnerEmail(ctx, ownerEmail)
		if err == nil {
			return r.viewOf(rec)
		}
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("subscription lookup by owner email failed",
				zap.String("business_id", businessID.String()), zap.Error(err))
		}
	}

	return r.heal(ctx, businessID)
}

// heal inserts a fresh trial record. A conflicting concurrent heal is resolved
// by a single re-read; exhaustion degrades to an inactive view.
func (r *Resolver) heal(ctx context.Context, businessID uuid.UUID) View {
	now := r.now().UTC()
	created, err := r.repo.Create(ctx, Record{
		ID:          uuid.New(),
		BusinessID:  businessID,
		Status:      string(StatusTrial),
		Plan:        TrialPlan,
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 0, TrialDays),
	})
	if err == nil {
		r.logger.Info("subscription auto-healed: trial activated",
			zap.String("business_id", businessID.String()))
		r.notifier.TrialAutoActivated(businessID)
		return r.viewOf(created)
	}

	if !errors.Is(err, ErrConflict) {
		r.logger.Warn("subscription heal insert failed",
			zap.String("business_id", businessID.String()), zap.Error(err))
	}

	rec, readErr := r.repo.GetByBusiness(ctx, businessID)
	if readErr == nil {
		return r.viewOf(rec)
	}

	r.logger.Warn("subscription unresolved after heal; degrading to inactive",
		zap.String("business_id", businessID.String()), zap.Error(readErr))
	return View{Status: StatusInactive}
}

func (r *Resolver) viewOf(rec Record) View {
	days := daysRemaining(rec.PeriodEnd, r.now())

	status := StatusExpired
	if days > 0 {
		switch rec.Status {
		case string(StatusActive):
			status = StatusActive
		case string(StatusTrial):
			status = StatusTrial
		}
	}

	return View{Status: status, PeriodEnd: rec.PeriodEnd, DaysRemaining: days}
}

func daysRemaining(periodEnd, now time.Time) int {
	remaining := periodEnd.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}
