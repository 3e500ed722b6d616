package service

import (
	"github.com/google/uuid"

	subscriptions "github.com/bookline-app/bookline-core/domains/subscriptions/be/service"
)

// AuthenticatedUser is the bare identity handed over by the credential exchange.
type AuthenticatedUser struct {
	ID    string
	Email string
}

// Principal is the resolved role of an authenticated user within the platform.
// Exactly one variant is active per resolved session; consumers type-switch
// exhaustively instead of probing optional fields.
type Principal interface {
	principal()
}

// SuperAdmin is a platform operator with no tenant link.
type SuperAdmin struct {
	UserID string
}

// BusinessOwner owns a tenant and carries its entitlement state.
type BusinessOwner struct {
	UserID       string
	BusinessID   uuid.UUID
	Subscription subscriptions.View
}

// StaffMember is an employee within a tenant.
type StaffMember struct {
	UserID      string
	BusinessID  uuid.UUID
	EmployeeID  uuid.UUID
	DisplayName string
}

// Unclassified is an authenticated user with no tenant link found. It is also
// the fail-open result when resolution cannot complete.
type Unclassified struct {
	UserID       string
	Email        string
	IsSuperAdmin bool
}

func (SuperAdmin) principal()    {}
func (BusinessOwner) principal() {}
func (StaffMember) principal()   {}
func (Unclassified) principal()  {}
