package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresGuard records processed messages in the processed_messages table.
type PostgresGuard struct {
	pool    querier
	window  time.Duration
	pending time.Duration
}

var _ Guard = (*PostgresGuard)(nil)

func NewPostgresGuard(pool *pgxpool.Pool, window time.Duration, opts ...GuardOption) *PostgresGuard {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return newPostgresGuardWithQuerier(pool, window, opts...)
}

func newPostgresGuardWithQuerier(q querier, window time.Duration, opts ...GuardOption) *PostgresGuard {
	if q == nil {
		panic("events: querier required")
	}
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	o := applyGuardOptions(window, opts)
	return &PostgresGuard{pool: q, window: window, pending: o.pending}
}

// IsDuplicate claims the message, reclaiming expired rows. The statement
// returns "" for a fresh claim and the stored state otherwise.
func (g *PostgresGuard) IsDuplicate(ctx context.Context, sender, messageID string) (bool, error) {
	if err := validate(sender, messageID); err != nil {
		return false, err
	}
	query := `
		WITH claimed AS (
			INSERT INTO processed_messages (sender, message_id, state, processed_at, expires_at)
			VALUES ($1, $2, 'pending', now(), now() + make_interval(secs => $3))
			ON CONFLICT (sender, message_id) DO UPDATE
				SET state = 'pending', processed_at = now(), expires_at = EXCLUDED.expires_at
				WHERE processed_messages.expires_at < now()
			RETURNING ''::text AS state
		)
		SELECT state FROM claimed
		UNION ALL
		SELECT state FROM processed_messages
		WHERE sender = $1 AND message_id = $2 AND NOT EXISTS (SELECT 1 FROM claimed)
		LIMIT 1
	`
	var state string
	err := g.pool.QueryRow(ctx, query, sender, messageID, g.pending.Seconds()).Scan(&state)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// The row vanished between the insert and the read.
		return false, ErrInFlight
	case err != nil:
		return false, fmt.Errorf("events: mark processed: %w", err)
	case state == "":
		return false, nil
	}
	return claimResult(state)
}

func (g *PostgresGuard) Confirm(ctx context.Context, sender, messageID string) error {
	query := `
		INSERT INTO processed_messages (sender, message_id, state, processed_at, expires_at)
		VALUES ($1, $2, 'done', now(), now() + make_interval(secs => $3))
		ON CONFLICT (sender, message_id) DO UPDATE
			SET state = 'done', expires_at = EXCLUDED.expires_at
	`
	if _, err := g.pool.Exec(ctx, query, sender, messageID, g.window.Seconds()); err != nil {
		return fmt.Errorf("events: confirm processed: %w", err)
	}
	return nil
}

func (g *PostgresGuard) Forget(ctx context.Context, sender, messageID string) error {
	query := `DELETE FROM processed_messages WHERE sender = $1 AND message_id = $2`
	if _, err := g.pool.Exec(ctx, query, sender, messageID); err != nil {
		return fmt.Errorf("events: forget processed: %w", err)
	}
	return nil
}
