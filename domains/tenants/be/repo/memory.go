package repo

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/bookline-app/bookline-core/domains/tenants/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and early development.
type MemoryRepository struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]service.Business
	bySlug map[string]uuid.UUID
	owners map[uuid.UUID]service.OwnerLink
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[uuid.UUID]service.Business),
		bySlug: make(map[string]uuid.UUID),
		owners: make(map[uuid.UUID]service.OwnerLink),
	}
}

// ReserveSlug marks a slug as taken without a backing business, for probing tests.
func (r *MemoryRepository) ReserveSlug(slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySlug[slug] = uuid.Nil
}

// Owner returns the owner linkage stored for a business.
func (r *MemoryRepository) Owner(businessID uuid.UUID) (service.OwnerLink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.owners {
		if link.BusinessID == businessID {
			return link, true
		}
	}
	return service.OwnerLink{}, false
}

func (r *MemoryRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.bySlug[slug]
	return exists, nil
}

func (r *MemoryRepository) CreateWithOwner(ctx context.Context, b service.Business, owner service.OwnerLink) (service.Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySlug[b.Slug]; exists {
		return service.Business{}, service.ErrSlugConflict
	}

	// Single lock scope keeps the pair atomic: no owner without a business.
	r.byID[b.ID] = b
	r.bySlug[b.Slug] = b.ID
	r.owners[owner.ID] = owner
	return b, nil
}

func (r *MemoryRepository) FindBySlug(ctx context.Context, slug string) (service.Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.bySlug[slug]
	if !ok {
		return service.Business{}, service.ErrNotFound
	}
	b, ok := r.byID[id]
	if !ok {
		return service.Business{}, service.ErrNotFound
	}
	return b, nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)

// MemorySeeder records seeded catalogs; Fail injects per-catalog failures.
type MemorySeeder struct {
	mu     sync.Mutex
	seeded map[uuid.UUID][]service.Catalog
	fail   map[service.Catalog]error
}

// NewMemorySeeder constructs a MemorySeeder.
func NewMemorySeeder() *MemorySeeder {
	return &MemorySeeder{
		seeded: make(map[uuid.UUID][]service.Catalog),
		fail:   make(map[service.Catalog]error),
	}
}

// Fail makes subsequent seeds of catalog return err.
func (s *MemorySeeder) Fail(catalog service.Catalog, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[catalog] = err
}

// Seeded lists the catalogs seeded for a business.
func (s *MemorySeeder) Seeded(businessID uuid.UUID) []service.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]service.Catalog(nil), s.seeded[businessID]...)
}

func (s *MemorySeeder) Seed(ctx context.Context, businessID uuid.UUID, catalog service.Catalog, owner service.OwnerLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[catalog]; ok {
		return err
	}
	s.seeded[businessID] = append(s.seeded[businessID], catalog)
	return nil
}

// Ensure interface compliance.
var _ service.Seeder = (*MemorySeeder)(nil)
