package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookline-app/bookline-core/domains/tenants/be/service"
	"github.com/bookline-app/bookline-core/platform/go/persistence"
)

const (
	businessesTable    = "businesses"
	businessUsersTable = "business_users"
)

// PostgresRepository implements the tenant repository on pgx. The unique
// constraint on businesses.subdomain is the final arbiter of slug ownership.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repository backed by the shared pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("postgres pool is required")
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT EXISTS (SELECT 1 FROM %s WHERE subdomain = $1)
    `, businessesTable), slug).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CreateWithOwner inserts the business and owner linkage in one transaction so
// neither row persists without the other.
func (r *PostgresRepository) CreateWithOwner(ctx context.Context, b service.Business, owner service.OwnerLink) (service.Business, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return service.Business{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, name, subdomain, phone, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, name, subdomain, phone, created_at
    `, businessesTable), b.ID, b.Name, b.Slug, b.Phone, b.CreatedAt)

	created, err := scanBusiness(row)
	if err != nil {
		if persistence.IsUniqueViolation(err) {
			return service.Business{}, service.ErrSlugConflict
		}
		return service.Business{}, err
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, business_id, user_id, email, full_name)
        VALUES ($1, $2, $3, $4, $5)
    `, businessUsersTable), owner.ID, created.ID, owner.UserID, owner.Email, owner.FullName)
	if err != nil {
		return service.Business{}, fmt.Errorf("insert owner linkage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return service.Business{}, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) FindBySlug(ctx context.Context, slug string) (service.Business, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT id, name, subdomain, phone, created_at
        FROM %s WHERE subdomain = $1
    `, businessesTable), slug)

	b, err := scanBusiness(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.Business{}, service.ErrNotFound
		}
		return service.Business{}, err
	}
	return b, nil
}

func scanBusiness(row pgx.Row) (service.Business, error) {
	var b service.Business
	if err := row.Scan(&b.ID, &b.Name, &b.Slug, &b.Phone, &b.CreatedAt); err != nil {
		return service.Business{}, err
	}
	return b, nil
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
