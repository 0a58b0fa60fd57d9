package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Maintenance is the bulk-delete surface used by offline housekeeping.
type Maintenance interface {
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error)
	DeleteCartsExcept(ctx context.Context, keep Auth) (int64, error)
}

type Janitor struct {
	store Maintenance
	now   Clock
	log   *slog.Logger
}

func NewJanitor(store Maintenance, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{store: store, now: time.Now, log: log}
}

// PurgeTokens deletes expired cart tokens along with their carts.
func (j *Janitor) PurgeTokens(ctx context.Context) (int64, error) {
	n, err := j.store.PurgeExpiredTokens(ctx, j.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	j.log.Info("expired cart tokens purged", slog.Int64("count", n))
	return n, nil
}

// CleanCarts deletes every cart except those owned by keep. An anonymous
// keep deletes all carts.
func (j *Janitor) CleanCarts(ctx context.Context, keep Auth) (int64, error) {
	n, err := j.store.DeleteCartsExcept(ctx, keep)
	if err != nil {
		return 0, fmt.Errorf("delete carts: %w", err)
	}
	j.log.Info("carts deleted",
		slog.Int64("count", n),
		slog.String("kept_user", keep.UserID.String()))
	return n, nil
}
