package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	subscriptions "github.com/bookline-app/bookline-core/domains/subscriptions/be/service"
)

// Errors used across the classifier.
var (
	// ErrNoMatch indicates a directory point lookup found nothing.
	ErrNoMatch = errors.New("no directory match")
	// ErrStale marks a resolution superseded by a newer generation. Callers must
	// discard the result; it is never surfaced to users.
	ErrStale = errors.New("resolution superseded")
)

// OwnerLink ties an auth user to the business it owns.
type OwnerLink struct {
	LinkID     uuid.UUID
	BusinessID uuid.UUID
	UserID     string
	Email      string
}

// StaffLink ties an auth user to an employee record.
type StaffLink struct {
	EmployeeID  uuid.UUID
	BusinessID  uuid.UUID
	UserID      string
	Email       string
	DisplayName string
}

// Directory is the tenant-store surface the classifier reads. Lookups return
// ErrNoMatch on a clean miss; Attach* writes are idempotent back-link repairs.
type Directory interface {
	IsSuperAdmin(ctx context.Context, userID string) (bool, error)
	OwnerLinkByUserID(ctx context.Context, userID string) (OwnerLink, error)
	OwnerLinkByEmail(ctx context.Context, email string) (OwnerLink, error)
	StaffLinkByUserID(ctx context.Context, userID string) (StaffLink, error)
	StaffLinkByEmail(ctx context.Context, email string) (StaffLink, error)
	AttachOwnerUser(ctx context.Context, linkID uuid.UUID, userID string) error
	AttachStaffUser(ctx context.Context, employeeID uuid.UUID, userID string) error
}

// SubscriptionResolver resolves a business's entitlement view. It never fails;
// a missing record is a degraded state (see the subscriptions domain).
type SubscriptionResolver interface {
	Resolve(ctx context.Context, businessID uuid.UUID, ownerEmail string) subscriptions.View
}

// Classifier reduces the parallel multi-source lookup to exactly one Principal.
type Classifier struct {
	dir           Directory
	subs          SubscriptionResolver
	logger        *zap.Logger
	repairTimeout time.Duration
	// repairs tracks detached back-link writes so tests can wait for them.
	repairs sync.WaitGroup
}

// NewClassifier constructs a Classifier with required dependencies.
func NewClassifier(dir Directory, subs SubscriptionResolver, logger *zap.Logger) *Classifier {
	if dir == nil {
		panic("identity directory is required")
	}
	if subs == nil {
		panic("subscription resolver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{dir: dir, subs: subs, logger: logger, repairTimeout: 10 * time.Second}
}

type ownerLookup struct {
	link    OwnerLink
	byEmail bool
	found   bool
}

type staffLookup struct {
	link    StaffLink
	byEmail bool
	found   bool
}

// Classify resolves the user to a Principal. stillCurrent is re-checked after
// every awaited store round-trip; nil means the caller runs without a guard.
// The only returnable error is ErrStale: store failures degrade to the best
// classification the surviving lookups allow, never to a stuck session.
func (c *Classifier) Classify(ctx context.Context, user AuthenticatedUser, stillCurrent func() bool) (Principal, error) {
	if stillCurrent == nil {
		stillCurrent = func() bool { return true }
	}

	var (
		wg      sync.WaitGroup
		isAdmin bool
		owner   ownerLookup
		staff   staffLookup
	)

	// Settle all three sources: each failure is captured and logged as a
	// no-match for that source only, never aborting the siblings.
	wg.Add(3)
	go func() {
		defer wg.Done()
		admin, err := c.dir.IsSuperAdmin(ctx, user.ID)
		if err != nil {
			c.logger.Warn("super-admin lookup failed", zap.String("user_id", user.ID), zap.Error(err))
			return
		}
		isAdmin = admin
	}()
	go func() {
		defer wg.Done()
		owner = c.lookupOwner(ctx, user)
	}()
	go func() {
		defer wg.Done()
		staff = c.lookupStaff(ctx, user)
	}()
	wg.Wait()

	if !stillCurrent() {
		return nil, ErrStale
	}

	// Owner takes precedence over staff even if both match; correct data never
	// produces both, but the classifier must not assume it cannot happen.
	if owner.found {
		if owner.byEmail {
			c.repairOwnerLink(owner.link.LinkID, user.ID)
		}
		view := c.subs.Resolve(ctx, owner.link.BusinessID, owner.link.Email)
		if !stillCurrent() {
			return nil, ErrStale
		}
		return BusinessOwner{UserID: user.ID, BusinessID: owner.link.BusinessID, Subscription: view}, nil
	}

	if staff.found {
		if staff.byEmail {
			c.repairStaffLink(staff.link.EmployeeID, user.ID)
		}
		return StaffMember{
			UserID:      user.ID,
			BusinessID:  staff.link.BusinessID,
			EmployeeID:  staff.link.EmployeeID,
			DisplayName: staff.link.DisplayName,
		}, nil
	}

	if isAdmin {
		return SuperAdmin{UserID: user.ID}, nil
	}

	return Unclassified{UserID: user.ID, Email: user.Email, IsSuperAdmin: isAdmin}, nil
}

func (c *Classifier) lookupOwner(ctx context.Context, user AuthenticatedUser) ownerLookup {
	link, err := c.dir.OwnerLinkByUserID(ctx, user.ID)
	if err == nil {
		return ownerLookup{link: link, found: true}
	}
	if !errors.Is(err, ErrNoMatch) {
		c.logger.Warn("owner lookup by id failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	if user.Email == "" {
		return ownerLookup{}
	}
	link, err = c.dir.OwnerLinkByEmail(ctx, user.Email)
	if err == nil {
		return ownerLookup{link: link, byEmail: true, found: true}
	}
	if !errors.Is(err, ErrNoMatch) {
		c.logger.Warn("owner lookup by email failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return ownerLookup{}
}

func (c *Classifier) lookupStaff(ctx context.Context, user AuthenticatedUser) staffLookup {
	link, err := c.dir.StaffLinkByUserID(ctx, user.ID)
	if err == nil {
		return staffLookup{link: link, found: true}
	}
	if !errors.Is(err, ErrNoMatch) {
		c.logger.Warn("staff lookup by id failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	if user.Email == "" {
		return staffLookup{}
	}
	link, err = c.dir.StaffLinkByEmail(ctx, user.Email)
	if err == nil {
		return staffLookup{link: link, byEmail: true, found: true}
	}
	if !errors.Is(err, ErrNoMatch) {
		c.logger.Warn("staff lookup by email failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return staffLookup{}
}

// repairOwnerLink writes the missing user back-link as a detached task.
// Repairs are idempotent and commutative, so they are allowed to complete even
// when the resolution that spawned them goes stale.
func (c *Classifier) repairOwnerLink(linkID uuid.UUID, userID string) {
	c.repairs.Add(1)
	go func() {
		defer c.repairs.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.repairTimeout)
		defer cancel()
		if err := c.dir.AttachOwnerUser(ctx, linkID, userID); err != nil {
			c.logger.Warn("owner back-link repair failed",
				zap.String("link_id", linkID.String()), zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

func (c *Classifier) repairStaffLink(employeeID uuid.UUID, userID string) {
	c.repairs.Add(1)
	go func() {
		defer c.repairs.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.repairTimeout)
		defer cancel()
		if err := c.dir.AttachStaffUser(ctx, employeeID, userID); err != nil {
			c.logger.Warn("staff back-link repair failed",
				zap.String("employee_id", employeeID.String()), zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

// WaitRepairs blocks until in-flight back-link repairs finish.
func (c *Classifier) WaitRepairs() {
	c.repairs.Wait()
}
