package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dwikikusuma/shoping-cart/internal/cart/app"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CartRepo is the Postgres-backed cart store. Row locks are taken with
// SELECT ... FOR UPDATE, so multiple service instances coordinate through
// the database.
type CartRepo struct {
	*Queries
	pool *pgxpool.Pool
}

func NewCartRepo(pool *pgxpool.Pool) *CartRepo {
	return &CartRepo{
		Queries: &Queries{db: pool},
		pool:    pool,
	}
}

func (r *CartRepo) WithinTx(ctx context.Context, fn func(q app.Queries) error) error {
	return r.execTX(ctx, func(q *Queries) error {
		return fn(q)
	})
}

func (r *CartRepo) execTX(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Queries{db: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("tx err: %w; rollback err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// PurgeExpiredTokens deletes tokens that expired before now. Their carts and
// line items go with them through the foreign key cascade.
func (r *CartRepo) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteCartsExcept removes every cart except the ones owned by keepUser.
func (r *CartRepo) DeleteCartsExcept(ctx context.Context, keep app.Auth) (int64, error) {
	var total int64
	err := r.execTX(ctx, func(q *Queries) error {
		tag, err := q.db.Exec(ctx, `
			DELETE FROM carts
			WHERE user_id IS NULL OR user_id <> $1`, keep.UserID)
		if err != nil {
			return err
		}
		total = tag.RowsAffected()

		// Anonymous carts are gone; their tokens have nothing left to identify.
		_, err = q.db.Exec(ctx, `
			DELETE FROM cart_tokens t
			WHERE NOT EXISTS (SELECT 1 FROM carts c WHERE c.token_id = t.id)`)
		return err
	})
	return total, err
}

var _ app.Store = (*CartRepo)(nil)
