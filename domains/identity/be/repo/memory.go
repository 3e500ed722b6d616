package repo

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bookline-app/bookline-core/domains/identity/be/service"
)

// MemoryDirectory is a simple in-memory implementation suitable for tests and early development.
type MemoryDirectory struct {
	mu          sync.RWMutex
	superAdmins map[string]struct{}
	owners      map[uuid.UUID]service.OwnerLink
	staff       map[uuid.UUID]service.StaffLink
}

// NewMemoryDirectory constructs a MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		superAdmins: make(map[string]struct{}),
		owners:      make(map[uuid.UUID]service.OwnerLink),
		staff:       make(map[uuid.UUID]service.StaffLink),
	}
}

// AddSuperAdmin marks a user id as a platform operator.
func (d *MemoryDirectory) AddSuperAdmin(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.superAdmins[userID] = struct{}{}
}

// AddOwnerLink stores an owner linkage row.
func (d *MemoryDirectory) AddOwnerLink(link service.OwnerLink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners[link.LinkID] = link
}

// AddStaffLink stores an employee row.
func (d *MemoryDirectory) AddStaffLink(link service.StaffLink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staff[link.EmployeeID] = link
}

// OwnerLink returns the stored owner linkage row by id.
func (d *MemoryDirectory) OwnerLink(linkID uuid.UUID) (service.OwnerLink, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	link, ok := d.owners[linkID]
	return link, ok
}

// StaffLink returns the stored employee row by id.
func (d *MemoryDirectory) StaffLink(employeeID uuid.UUID) (service.StaffLink, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	link, ok := d.staff[employeeID]
	return link, ok
}

func (d *MemoryDirectory) IsSuperAdmin(ctx context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.superAdmins[userID]
	return ok, nil
}

func (d *MemoryDirectory) OwnerLinkByUserID(ctx context.Context, userID string) (service.OwnerLink, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, link := range d.owners {
		if link.UserID == userID {
			return link, nil
		}
	}
	return service.OwnerLink{}, service.ErrNoMatch
}

func (d *MemoryDirectory) OwnerLinkByEmail(ctx context.Context, email string) (service.OwnerLink, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, link := range d.owners {
		if strings.EqualFold(link.Email, email) {
			return link, nil
		}
	}
	return service.OwnerLink{}, service.ErrNoMatch
}

func (d *MemoryDirectory) StaffLinkByUserID(ctx context.Context, userID string) (service.StaffLink, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, link := range d.staff {
		if link.UserID == userID {
			return link, nil
		}
	}
	return service.StaffLink{}, service.ErrNoMatch
}

func (d *MemoryDirectory) StaffLinkByEmail(ctx context.Context, email string) (service.StaffLink, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, link := range d.staff {
		if strings.EqualFold(link.Email, email) {
			return link, nil
		}
	}
	return service.StaffLink{}, service.ErrNoMatch
}

func (d *MemoryDirectory) AttachOwnerUser(ctx context.Context, linkID uuid.UUID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	link, ok := d.owners[linkID]
	if !ok {
		return service.ErrNoMatch
	}
	if link.UserID == "" {
		link.UserID = userID
		d.owners[linkID] = link
	}
	return nil
}

func (d *MemoryDirectory) AttachStaffUser(ctx context.Context, employeeID uuid.UUID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	link, ok := d.staff[employeeID]
	if !ok {
		return service.ErrNoMatch
	}
	if link.UserID == "" {
		link.UserID = userID
		d.staff[employeeID] = link
	}
	return nil
}

// Ensure interface compliance.
var _ service.Directory = (*MemoryDirectory)(nil)
