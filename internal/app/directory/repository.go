package directory

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schoolchow/notifier/internal/contracts"
)

// Repository is the read surface the fan-out engine uses to resolve
// recipients. Empty results are valid: no matching user simply means no one
// to notify.
type Repository interface {
	FindByIdentity(ctx context.Context, userID string) ([]contracts.User, error)
	FindByRole(ctx context.Context, role string) ([]contracts.User, error)
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createUsersSQL = `
CREATE TABLE IF NOT EXISTS app_users (
  uid text PRIMARY KEY,
  role text NOT NULL,
  display_name text NOT NULL DEFAULT '',
  push_token text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now()
)`

const createUsersRoleIndexSQL = `
CREATE INDEX IF NOT EXISTS app_users_role_idx ON app_users (role)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createUsersSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createUsersRoleIndexSQL); err != nil {
		return err
	}
	return nil
}

func (r *PostgresRepository) FindByIdentity(ctx context.Context, userID string) ([]contracts.User, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT uid, role, display_name, push_token FROM app_users WHERE uid = $1`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *PostgresRepository) FindByRole(ctx context.Context, role string) ([]contracts.User, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT uid, role, display_name, push_token FROM app_users WHERE role = $1`,
		role,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// UpsertUser exists for seeding and the order simulator; the notifier itself
// never writes user records.
func (r *PostgresRepository) UpsertUser(ctx context.Context, user contracts.User) error {
	_, err := r.Pool.Exec(ctx, `
INSERT INTO app_users (uid, role, display_name, push_token)
VALUES ($1, $2, $3, $4)
ON CONFLICT (uid) DO UPDATE
SET role = EXCLUDED.role,
    display_name = EXCLUDED.display_name,
    push_token = EXCLUDED.push_token`,
		user.ID, user.Role, user.DisplayName, user.PushToken,
	)
	return err
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanUsers(rows pgxRows) ([]contracts.User, error) {
	var users []contracts.User
	for rows.Next() {
		var u contracts.User
		if err := rows.Scan(&u.ID, &u.Role, &u.DisplayName, &u.PushToken); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
