package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookline-app/bookline-core/domains/tenants/be/service"
)

// starter rows inserted for every fresh tenant.
var (
	starterServices = []struct {
		Name            string
		DurationMinutes int
		PriceCents      int
	}{
		{"Haircut", 30, 3500},
		{"Beard Trim", 15, 1500},
		{"Wash & Style", 45, 5000},
	}

	starterRewards = []struct {
		Name   string
		Points int
	}{
		{"Free Service Upgrade", 50},
		{"10% Off Next Visit", 100},
	}
)

// PostgresSeeder inserts the default catalogs for a fresh tenant. Each Seed
// call is independent so a failed catalog never blocks the others.
type PostgresSeeder struct {
	pool *pgxpool.Pool
}

// NewPostgresSeeder constructs a seeder backed by the shared pool.
func NewPostgresSeeder(pool *pgxpool.Pool) *PostgresSeeder {
	if pool == nil {
		panic("postgres pool is required")
	}
	return &PostgresSeeder{pool: pool}
}

func (s *PostgresSeeder) Seed(ctx context.Context, businessID uuid.UUID, catalog service.Catalog, owner service.OwnerLink) error {
	switch catalog {
	case service.CatalogServices:
		return s.seedServices(ctx, businessID)
	case service.CatalogRewards:
		return s.seedRewards(ctx, businessID)
	case service.CatalogStaff:
		return s.seedStaff(ctx, businessID, owner)
	case service.CatalogPortfolio:
		// The portfolio starts empty; rows appear as the tenant uploads work.
		return nil
	default:
		return fmt.Errorf("unknown catalog %q", catalog)
	}
}

func (s *PostgresSeeder) seedServices(ctx context.Context, businessID uuid.UUID) error {
	for _, item := range starterServices {
		_, err := s.pool.Exec(ctx, `
            INSERT INTO services (id, business_id, name, duration_minutes, price_cents)
            VALUES ($1, $2, $3, $4, $5)
        `, uuid.New(), businessID, item.Name, item.DurationMinutes, item.PriceCents)
		if err != nil {
			return fmt.Errorf("seed service %q: %w", item.Name, err)
		}
	}
	return nil
}

func (s *PostgresSeeder) seedRewards(ctx context.Context, businessID uuid.UUID) error {
	for _, item := range starterRewards {
		_, err := s.pool.Exec(ctx, `
            INSERT INTO rewards (id, business_id, name, points)
            VALUES ($1, $2, $3, $4)
        `, uuid.New(), businessID, item.Name, item.Points)
		if err != nil {
			return fmt.Errorf("seed reward %q: %w", item.Name, err)
		}
	}
	return nil
}

// seedStaff registers the owner as the tenant's first employee so the booking
// calendar has someone to assign from day one.
func (s *PostgresSeeder) seedStaff(ctx context.Context, businessID uuid.UUID, owner service.OwnerLink) error {
	displayName := owner.FullName
	if displayName == "" {
		displayName = owner.Email
	}
	_, err := s.pool.Exec(ctx, `
        INSERT INTO employees (id, business_id, user_id, email, display_name)
        VALUES ($1, $2, $3, $4, $5)
    `, uuid.New(), businessID, owner.UserID, owner.Email, displayName)
	if err != nil {
		return fmt.Errorf("seed owner staff record: %w", err)
	}
	return nil
}

// Ensure interface compliance.
var _ service.Seeder = (*PostgresSeeder)(nil)
