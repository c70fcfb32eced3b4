package orders

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schoolchow/notifier/internal/contracts"
)

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createOrdersSQL = `
CREATE TABLE IF NOT EXISTS orders (
  id text PRIMARY KEY,
  status text NOT NULL,
  vendor_id text NOT NULL,
  customer_id text NOT NULL,
  driver_id text NOT NULL DEFAULT '',
  item_description text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now(),
  packaged_at timestamptz,
  dispatched_at timestamptz,
  completed_at timestamptz,
  completion_notified boolean NOT NULL DEFAULT false
)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, createOrdersSQL)
	return err
}

const snapshotSQL = `
SELECT id, status, vendor_id, customer_id, driver_id, item_description,
       created_at, packaged_at, dispatched_at, completed_at, completion_notified
FROM orders`

// Snapshot returns every order's current state. It backs the bootstrap seed:
// the one read that suppresses notifications for pre-existing data.
func (r *PostgresRepository) Snapshot(ctx context.Context) ([]contracts.Order, error) {
	rows, err := r.Pool.Query(ctx, snapshotSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []contracts.Order
	for rows.Next() {
		var o contracts.Order
		if err := rows.Scan(
			&o.ID, &o.Status, &o.VendorID, &o.CustomerID, &o.DriverID, &o.ItemDescription,
			&o.CreatedAt, &o.PackagedAt, &o.DispatchedAt, &o.CompletedAt, &o.CompletionNotified,
		); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

const claimCompletionSQL = `
UPDATE orders
SET completion_notified = true
WHERE id = $1 AND NOT completion_notified`

// ClaimCompletionNotified atomically flips the completion guard. It returns
// false when the guard was already set, which is how a replayed
// dispatched-to-completed transition is kept from re-notifying anyone.
func (r *PostgresRepository) ClaimCompletionNotified(ctx context.Context, orderID string) (bool, error) {
	tag, err := r.Pool.Exec(ctx, claimCompletionSQL, orderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const upsertOrderSQL = `
INSERT INTO orders (
  id, status, vendor_id, customer_id, driver_id, item_description,
  created_at, packaged_at, dispatched_at, completed_at, completion_notified
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status,
    driver_id = EXCLUDED.driver_id,
    packaged_at = EXCLUDED.packaged_at,
    dispatched_at = EXCLUDED.dispatched_at,
    completed_at = EXCLUDED.completed_at`

// UpsertOrder exists for the order simulator; the notifier itself only reads
// orders and flips the completion guard.
func (r *PostgresRepository) UpsertOrder(ctx context.Context, o contracts.Order) error {
	_, err := r.Pool.Exec(ctx, upsertOrderSQL,
		o.ID, o.Status, o.VendorID, o.CustomerID, o.DriverID, o.ItemDescription,
		o.CreatedAt, o.PackagedAt, o.DispatchedAt, o.CompletedAt, o.CompletionNotified,
	)
	return err
}
