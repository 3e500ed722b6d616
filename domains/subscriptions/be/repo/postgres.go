package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookline-app/bookline-core/domains/subscriptions/be/service"
	"github.com/bookline-app/bookline-core/platform/go/persistence"
)

const subscriptionsTable = "subscriptions"

// PostgresRepository implements the subscription repository on pgx.
// A unique index on business_id makes the insert the arbiter under concurrent heals.
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

func (r *PostgresRepository) GetByBusiness(ctx context.Context, businessID uuid.UUID) (service.Record, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT id, business_id, status, plan, period_start, period_end
        FROM %s WHERE business_id = $1
    `, subscriptionsTable), businessID)

	return scanRecord(row)
}

func (r *PostgresRepository) GetByOwnerEmail(ctx context.Context, email string) (service.Record, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT s.id, s.business_id, s.status, s.plan, s.period_start, s.period_end
        FROM %s s
        JOIN business_users bu ON bu.business_id = s.business_id
        WHERE LOWER(bu.email) = LOWER($1)
        LIMIT 1
    `, subscriptionsTable), email)

	return scanRecord(row)
}

func (r *PostgresRepository) Create(ctx context.Context, rec service.Record) (service.Record, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, business_id, status, plan, period_start, period_end)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, business_id, status, plan, period_start, period_end
    `, subscriptionsTable),
		rec.ID, rec.BusinessID, rec.Status, rec.Plan, rec.PeriodStart, rec.PeriodEnd,
	)

	created, err := scanRecord(row)
	if err != nil {
		if persistence.IsUniqueViolation(err) {
			return service.Record{}, service.ErrConflict
		}
		return service.Record{}, err
	}
	return created, nil
}

func scanRecord(row pgx.Row) (service.Record, error) {
	var rec service.Record
	if err := row.Scan(&rec.ID, &rec.BusinessID, &rec.Status, &rec.Plan, &rec.PeriodStart, &rec.PeriodEnd); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.Record{}, service.ErrNotFound
		}
		return service.Record{}, err
	}
	return rec, nil
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
