package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookline-app/bookline-core/domains/tenants/be/repo"
	"github.com/bookline-app/bookline-core/domains/tenants/be/service"
	"github.com/bookline-app/bookline-core/platform/go/persistence"
)

func newTestService(r service.Repository, s service.Seeder) *service.Service {
	return service.New(r, s, zap.NewNop())
}

func TestAllocateSlugProbesSequentially(t *testing.T) {
	store := repo.NewMemoryRepository()
	store.ReserveSlug("joes-cuts")
	store.ReserveSlug("joes-cuts-1")
	svc := newTestService(store, repo.NewMemorySeeder())

	slug, used, err := svc.AllocateSlug(context.Background(), "Joe's Cuts", nil, 0)
	require.NoError(t, err)
	require.Equal(t, "joes-cuts-2", slug)
	require.Equal(t, 2, used)
}

func TestAllocateSlugPrefersBase(t *testing.T) {
	svc := newTestService(repo.NewMemoryRepository(), repo.NewMemorySeeder())

	slug, used, err := svc.AllocateSlug(context.Background(), "The Fade Factory", nil, 0)
	require.NoError(t, err)
	require.Equal(t, "the-fade-factory", slug)
	require.Zero(t, used)
}

func TestAllocateSlugHonorsExplicitSlug(t *testing.T) {
	store := repo.NewMemoryRepository()
	store.ReserveSlug("fades")
	svc := newTestService(store, repo.NewMemorySeeder())

	explicit := "Fades"
	slug, _, err := svc.AllocateSlug(context.Background(), "ignored name", &explicit, 0)
	require.NoError(t, err)
	require.Equal(t, "fades-1", slug)

	bad := "not a slug!"
	_, _, err = svc.AllocateSlug(context.Background(), "ignored name", &bad, 0)
	require.Error(t, err)
}

func TestAllocateSlugExhaustsAfterCeiling(t *testing.T) {
	store := repo.NewMemoryRepository()
	store.ReserveSlug("busy")
	for i := 1; i < 100; i++ {
		store.ReserveSlug(fmt.Sprintf("busy-%d", i))
	}
	svc := newTestService(store, repo.NewMemorySeeder())

	_, _, err := svc.AllocateSlug(context.Background(), "Busy", nil, 0)
	require.ErrorIs(t, err, service.ErrSlugExhausted)
}

func TestRegisterCreatesBusinessWithOwnerAndSeeds(t *testing.T) {
	store := repo.NewMemoryRepository()
	seeder := repo.NewMemorySeeder()
	svc := newTestService(store, seeder)

	b, err := svc.Register(context.Background(), service.RegisterInput{
		OwnerUserID:  "user-1",
		OwnerEmail:   " owner@joescuts.com ",
		OwnerName:    "Joe Barber",
		BusinessName: "Joe's Cuts",
		Phone:        "+1 555 0100",
	})
	require.NoError(t, err)
	require.Equal(t, "joes-cuts", b.Slug)
	require.Equal(t, "Joe's Cuts", b.Name)

	owner, ok := store.Owner(b.ID)
	require.True(t, ok, "owner linkage must be stored with the business")
	require.Equal(t, "user-1", owner.UserID)
	require.Equal(t, "owner@joescuts.com", owner.Email)

	require.Equal(t, []service.Catalog{
		service.CatalogServices,
		service.CatalogRewards,
		service.CatalogStaff,
		service.CatalogPortfolio,
	}, seeder.Seeded(b.ID))
}

// conflictOnceRepo makes the first CreateWithOwner fail with a slug conflict,
// simulating a concurrent claim between the probe and the insert.
type conflictOnceRepo struct {
	service.Repository
	conflicted bool
}

func (r *conflictOnceRepo) CreateWithOwner(ctx context.Context, b service.Business, owner service.OwnerLink) (service.Business, error) {
	if !r.conflicted {
		r.conflicted = true
		return service.Business{}, service.ErrSlugConflict
	}
	return r.Repository.CreateWithOwner(ctx, b, owner)
}

func TestRegisterRetriesNextSuffixOnInsertConflict(t *testing.T) {
	store := repo.NewMemoryRepository()
	svc := newTestService(&conflictOnceRepo{Repository: store}, repo.NewMemorySeeder())

	b, err := svc.Register(context.Background(), service.RegisterInput{
		OwnerUserID:  "user-1",
		OwnerEmail:   "owner@joescuts.com",
		BusinessName: "Joe's Cuts",
	})
	require.NoError(t, err)
	require.Equal(t, "joes-cuts-1", b.Slug, "retry must resume past the conflicting suffix")

	found, err := svc.FindBySlug(context.Background(), "joes-cuts-1")
	require.NoError(t, err)
	require.Equal(t, b.ID, found.ID)
}

func TestRegisterSurvivesSeedFailure(t *testing.T) {
	store := repo.NewMemoryRepository()
	seeder := repo.NewMemorySeeder()
	seeder.Fail(service.CatalogRewards, errors.New("rewards template unavailable"))
	svc := newTestService(store, seeder)

	b, err := svc.Register(context.Background(), service.RegisterInput{
		OwnerUserID:  "user-1",
		OwnerEmail:   "owner@joescuts.com",
		BusinessName: "Joe's Cuts",
	})
	require.NoError(t, err, "seed failures must never roll the tenant back")

	seeded := seeder.Seeded(b.ID)
	require.NotContains(t, seeded, service.CatalogRewards)
	require.Contains(t, seeded, service.CatalogServices)
	require.Contains(t, seeded, service.CatalogStaff, "catalogs after the failing one must still seed")
}

func TestFindBySlugMissing(t *testing.T) {
	svc := newTestService(repo.NewMemoryRepository(), repo.NewMemorySeeder())

	_, err := svc.FindBySlug(context.Background(), "nowhere")
	require.ErrorIs(t, err, service.ErrNotFound)
	require.ErrorIs(t, err, persistence.ErrNotFound, "misses surface the shared persistence sentinel")
}
