package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookline-app/bookline-core/domains/identity/be/service"
)

const (
	superAdminsTable   = "super_admins"
	businessUsersTable = "business_users"
	employeesTable     = "employees"
)

// PostgresDirectory implements the classifier's Directory on pgx point lookups.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory constructs a directory backed by the shared pool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	if pool == nil {
		panic("postgres pool is required")
	}
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) IsSuperAdmin(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT EXISTS (SELECT 1 FROM %s WHERE user_id = $1)
    `, superAdminsTable), userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (d *PostgresDirectory) OwnerLinkByUserID(ctx context.Context, userID string) (service.OwnerLink, error) {
	row := d.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT id, business_id, COALESCE(user_id, ''), email
        FROM %s WHERE user_id = $1
        LIMIT 1
    `, businessUsersTable), userID)

	return scanOwnerLink(row)
}

func (d *PostgresDirectory) OwnerLinkByEmail(ctx context.Context, email string) (service.OwnerLink, error) {
	row := d.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT id, business_id, COALESCE(user_id, ''), email
        FROM %s WHERE LOWER(email) = LOWER($1)
        LIMIT 1
    `, businessUsersTable), email)

	return scanOwnerLink(row)
}

func (d *PostgresDirectory) StaffLinkByUserID(ctx context.Context, userID string) (service.StaffLink, error) {
	row := d.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT id, business_id, COALESCE(user_id, ''), email, display_name
        FROM %s WHERE user_id = $1
        LIMIT 1
    `, employeesTable), userID)

	return scanStaffLink(row)
}

func (d *PostgresDirectory) StaffLinkByEmail(ctx context.Context, email string) (service.StaffLink, error) {
	row := d.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT id, business_id, COALESCE(user_id, ''), email, display_name
        FROM %s WHERE LOWER(email) = LOWER($1)
        LIMIT 1
    `, employeesTable), email)

	return scanStaffLink(row)
}

// AttachOwnerUser writes the missing user back-link; a row already linked is
// left untouched so concurrent repairs commute.
func (d *PostgresDirectory) AttachOwnerUser(ctx context.Context, linkID uuid.UUID, userID string) error {
	_, err := d.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET user_id = $2
        WHERE id = $1 AND (user_id IS NULL OR user_id = '')
    `, businessUsersTable), linkID, userID)
	return err
}

func (d *PostgresDirectory) AttachStaffUser(ctx context.Context, employeeID uuid.UUID, userID string) error {
	_, err := d.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET user_id = $2
        WHERE id = $1 AND (user_id IS NULL OR user_id = '')
    `, employeesTable), employeeID, userID)
	return err
}

func scanOwnerLink(row pgx.Row) (service.OwnerLink, error) {
	var link service.OwnerLink
	if err := row.Scan(&link.LinkID, &link.BusinessID, &link.UserID, &link.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.OwnerLink{}, service.ErrNoMatch
		}
		return service.OwnerLink{}, err
	}
	return link, nil
}

func scanStaffLink(row pgx.Row) (service.StaffLink, error) {
	var link service.StaffLink
	if err := row.Scan(&link.EmployeeID, &link.BusinessID, &link.UserID, &link.Email, &link.DisplayName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.StaffLink{}, service.ErrNoMatch
		}
		return service.StaffLink{}, err
	}
	return link, nil
}

// Ensure interface compliance.
var _ service.Directory = (*PostgresDirectory)(nil)
