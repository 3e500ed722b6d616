package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookline-app/bookline-core/platform/go/persistence"
)

// Errors returned by the service layer. ErrNotFound aliases the shared
// persistence sentinel so repo layers report misses through it.
var (
	ErrNotFound      = persistence.ErrNotFound
	ErrSlugConflict  = errors.New("tenant slug already exists")
	ErrSlugExhausted = errors.New("slug allocation exhausted")
)

// maxSlugProbes caps sequential suffix probing against a pathological store state.
const maxSlugProbes = 100

// Business is a tenant registry entry. Slug is immutable after registration.
type Business struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	Phone     string
	CreatedAt time.Time
}

// OwnerLink ties the owner's auth identity to the business.
type OwnerLink struct {
	ID         uuid.UUID
	BusinessID uuid.UUID
	UserID     string
	Email      string
	FullName   string
}

// Catalog identifies one of the default catalogs seeded at registration.
type Catalog string

const (
	CatalogServices  Catalog = "services"
	CatalogRewards   Catalog = "rewards"
	CatalogStaff     Catalog = "staff"
	CatalogPortfolio Catalog = "portfolio"
)

// defaultCatalogs lists the seed order.
var defaultCatalogs = []Catalog{CatalogServices, CatalogRewards, CatalogStaff, CatalogPortfolio}

// Repository abstracts tenant persistence. CreateWithOwner must insert the
// business and owner linkage atomically as a pair and return ErrSlugConflict
// when the store's uniqueness constraint rejects the slug.
type Repository interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
	CreateWithOwner(ctx context.Context, b Business, owner OwnerLink) (Business, error)
	FindBySlug(ctx context.Context, slug string) (Business, error)
}

// Seeder populates one default catalog for a fresh tenant.
type Seeder interface {
	Seed(ctx context.Context, businessID uuid.UUID, catalog Catalog, owner OwnerLink) error
}

// RegisterInput captures the fields required to provision a tenant.
type RegisterInput struct {
	OwnerUserID  string
	OwnerEmail   string
	OwnerName    string
	BusinessName string
	Phone        string
	Slug         *string // explicit slug; derived from BusinessName when nil
}

// Service provisions tenants: slug allocation, atomic business+owner insert,
// and best-effort default catalog seeding.
type Service struct {
	repo   Repository
	seeder Seeder
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Service with required dependencies.
func New(repo Repository, seeder Seeder, logger *zap.Logger) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if seeder == nil {
		panic("catalog seeder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, seeder: seeder, logger: logger, now: time.Now}
}

// AllocateSlug derives a slug base and probes the store for the first free
// candidate: base, base-1, base-2, ... It fails with ErrSlugExhausted after
// maxSlugProbes probes. The returned index lets callers resume probing after an
// insert-time conflict.
func (s *Service) AllocateSlug(ctx context.Context, name string, explicit *string, from int) (string, int, error) {
	base, err := slugBase(name, explicit)
	if err != nil {
		return "", 0, err
	}

	for probe := from; probe < maxSlugProbes; probe++ {
		candidate := base
		if probe > 0 {
			candidate = fmt.Sprintf("%s-%d", base, probe)
		}
		exists, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", 0, fmt.Errorf("probe slug %q: %w", candidate, err)
		}
		if !exists {
			return candidate, probe, nil
		}
	}

	return "", 0, ErrSlugExhausted
}

// Register provisions a tenant. The business+owner insert is atomic as a pair;
// the store's unique constraint is the final arbiter of slug ownership, and a
// conflicting insert resumes probing at the next suffix. Seeding failures are
// logged and never roll the tenant back.
func (s *Service) Register(ctx context.Context, input RegisterInput) (Business, error) {
	probe := 0
	for {
		slug, used, err := s.AllocateSlug(ctx, input.BusinessName, input.Slug, probe)
		if err != nil {
			return Business{}, err
		}

		b := Business{
			ID:        uuid.New(),
			Name:      strings.TrimSpace(input.BusinessName),
			Slug:      slug,
			Phone:     strings.TrimSpace(input.Phone),
			CreatedAt: s.now().UTC(),
		}
		owner := OwnerLink{
			ID:         uuid.New(),
			BusinessID: b.ID,
			UserID:     input.OwnerUserID,
			Email:      strings.TrimSpace(input.OwnerEmail),
			FullName:   strings.TrimSpace(input.OwnerName),
		}

		created, err := s.repo.CreateWithOwner(ctx, b, owner)
		if errors.Is(err, ErrSlugConflict) {
			// Lost the race for this slug between probe and insert.
			s.logger.Info("slug claimed concurrently; retrying with next suffix",
				zap.String("slug", slug))
			probe = used + 1
			continue
		}
		if err != nil {
			return Business{}, err
		}

		owner.BusinessID = created.ID
		s.seedDefaults(ctx, created, owner)
		return created, nil
	}
}

// FindBySlug returns the business registered under slug.
func (s *Service) FindBySlug(ctx context.Context, slug string) (Business, error) {
	return s.repo.FindBySlug(ctx, slug)
}

// seedDefaults populates the starter catalogs. Each catalog is independent: a
// failure is logged and the rest still run, so the tenant stays usable with
// partial seed data.
func (s *Service) seedDefaults(ctx context.Context, b Business, owner OwnerLink) {
	for _, catalog := range defaultCatalogs {
		if err := s.seeder.Seed(ctx, b.ID, catalog, owner); err != nil {
			s.logger.Warn("default catalog seed failed; tenant remains usable",
				zap.String("business_id", b.ID.String()),
				zap.String("catalog", string(catalog)),
				zap.Error(err))
		}
	}
}

func slugBase(name string, explicit *string) (string, error) {
	if explicit != nil {
		return persistence.NormalizeSlug(strings.ToLower(*explicit))
	}
	base := persistence.Slugify(name)
	if base == "" {
		return "", fmt.Errorf("cannot derive slug from %q", name)
	}
	return base, nil
}
