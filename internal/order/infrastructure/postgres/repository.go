package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	product_sku      TEXT NOT NULL,
	product_quantity INTEGER NOT NULL,
	client_cpf       TEXT NOT NULL,
	total_amount     NUMERIC(19,2) NOT NULL,
	status           TEXT NOT NULL,
	stock_reserved   BOOLEAN NOT NULL DEFAULT FALSE,
	version          BIGINT NOT NULL DEFAULT 1,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS payment_details (
	order_id       TEXT PRIMARY KEY REFERENCES orders(id) ON DELETE CASCADE,
	payment_method TEXT NOT NULL,
	card_number    TEXT NOT NULL,
	status         TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS outbox (
	id             BIGSERIAL PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	type           TEXT NOT NULL,
	payload        JSONB NOT NULL,
	headers        JSONB NOT NULL DEFAULT '{}',
	traceparent    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	relay_id       TEXT,
	lease_until    TIMESTAMPTZ,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	last_error     TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS outbox_status_idx ON outbox (status, id);
`

// Migrate creates the tables used by Repository and OutboxStore.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// Save inserts the order and its payment details in one transaction.
func (r *Repository) Save(ctx context.Context, o domain.Order) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.Version = 1

	_, err = tx.Exec(ctx, `INSERT INTO orders (id, product_sku, product_quantity, client_cpf, total_amount, status, stock_reserved, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.ProductSKU, o.ProductQuantity, o.ClientCPF, o.TotalAmount, o.Status, o.StockReserved, o.Version, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO payment_details (order_id, payment_method, card_number, status) VALUES ($1,$2,$3,$4)`,
		o.ID, o.Payment.Method, o.Payment.CardNumber, o.Payment.Status)
	if err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (domain.Order, error) {
	var (
		o       domain.Order
		total   decimal.Decimal
		status  string
		method  string
		pstatus string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT o.id, o.product_sku, o.product_quantity, o.client_cpf, o.total_amount, o.status, o.stock_reserved,
		       o.version, o.created_at, o.updated_at, p.payment_method, p.card_number, p.status
		FROM orders o
		JOIN payment_details p ON p.order_id = o.id
		WHERE o.id = $1`, id).
		Scan(&o.ID, &o.ProductSKU, &o.ProductQuantity, &o.ClientCPF, &total, &status, &o.StockReserved,
			&o.Version, &o.CreatedAt, &o.UpdatedAt, &method, &o.Payment.CardNumber, &pstatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}

	o.TotalAmount = total
	o.Status = domain.OrderStatus(status)
	o.Payment.Method = domain.PaymentMethod(method)
	o.Payment.Status = domain.PaymentStatus(pstatus)
	return o, nil
}

// Update writes the mutable columns of o if the stored version still equals
// o.Version, and bumps the version.
func (r *Repository) Update(ctx context.Context, o domain.Order) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	o.UpdatedAt = time.Now().UTC()
	var tag pgconn.CommandTag
	tag, err = tx.Exec(ctx, `UPDATE orders SET status=$2, stock_reserved=$3, version=version+1, updated_at=$4
		WHERE id=$1 AND version=$5`,
		o.ID, o.Status, o.StockReserved, o.UpdatedAt, o.Version)
	if err != nil {
		return domain.Order{}, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
			return domain.Order{}, err
		}
		if !exists {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, domain.ErrConflict
	}

	_, err = tx.Exec(ctx, `UPDATE payment_details SET status=$2 WHERE order_id=$1`, o.ID, o.Payment.Status)
	if err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}

	o.Version++
	return o, nil
}

// Delete removes the order; payment details go with it through the cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	r.log.Info("order row deleted", "order_id", id)
	return nil
}
