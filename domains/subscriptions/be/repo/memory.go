package repo

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bookline-app/bookline-core/domains/subscriptions/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and early development.
type MemoryRepository struct {
	mu          sync.RWMutex
	byBusiness  map[uuid.UUID]service.Record
	ownerEmails map[string]uuid.UUID
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byBusiness:  make(map[uuid.UUID]service.Record),
		ownerEmails: make(map[string]uuid.UUID),
	}
}

// SetOwnerEmail registers the contact email of a business so GetByOwnerEmail can join through it.
func (r *MemoryRepository) SetOwnerEmail(businessID uuid.UUID, email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ownerEmails[strings.ToLower(email)] = businessID
}

func (r *MemoryRepository) GetByBusiness(ctx context.Context, businessID uuid.UUID) (service.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byBusiness[businessID]
	if !ok {
		return service.Record{}, service.ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) GetByOwnerEmail(ctx context.Context, email string) (service.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	businessID, ok := r.ownerEmails[strings.ToLower(email)]
	if !ok {
		return service.Record{}, service.ErrNotFound
	}
	rec, ok := r.byBusiness[businessID]
	if !ok {
		return service.Record{}, service.ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) Create(ctx context.Context, rec service.Record) (service.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byBusiness[rec.BusinessID]; exists {
		return service.Record{}, service.ErrConflict
	}

	r.byBusiness[rec.BusinessID] = rec
	return rec, nil
}

// Count returns the number of stored records.
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byBusiness)
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
