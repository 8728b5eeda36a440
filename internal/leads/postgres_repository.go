package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/lead-qualifier/internal/qualification"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool pgxQuerier
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q pgxQuerier) *PostgresRepository {
	if q == nil {
		panic("leads: querier required")
	}
	return &PostgresRepository{pool: q}
}

const leadColumns = `id, title, contact_name, phone, sender_phone, email, city, product_interest, need, budget, urgency, priority, source, tier, score, forced, status, description, created_at, updated_at`

// Create inserts a new row. The partial unique index on open leads per sender
// turns a concurrent second insert into ErrDuplicateLead.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO leads (id, title, contact_name, phone, sender_phone, phone_digits, email, city, product_interest,
			need, budget, urgency, priority, source, tier, score, forced, status, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 'open', $18)
		ON CONFLICT (phone_digits) WHERE status = 'open' AND phone_digits <> '' DO NOTHING
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.pool.QueryRow(ctx, query,
		id,
		req.Title,
		req.ContactName,
		req.Phone,
		req.SenderPhone,
		qualification.NormalizePhone(req.DedupePhone()),
		req.Email,
		req.City,
		req.ProductInterest,
		req.Need,
		req.Budget,
		req.Urgency,
		req.Priority,
		req.Source,
		req.Tier,
		req.Score,
		req.Forced,
		req.Description,
	).Scan(&createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDuplicateLead
		}
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}

	return req.toLead(id.String(), createdAt), nil
}

// GetByID fetches a lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrLeadNotFound
	}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	return scanLead(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) FindOpenByPhone(ctx context.Context, phone string) (*Lead, error) {
	digits := qualification.NormalizePhone(phone)
	if digits == "" {
		return nil, ErrLeadNotFound
	}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE phone_digits = $1 AND status = 'open' ORDER BY created_at DESC LIMIT 1`
	return scanLead(r.pool.QueryRow(ctx, query, digits))
}

func (r *PostgresRepository) Enrich(ctx context.Context, id string, req *CreateLeadRequest) (*Lead, error) {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := req.enrich(existing)

	query := `
		UPDATE leads
		SET title = $2, contact_name = $3, email = $4, city = $5, product_interest = $6,
			budget = $7, urgency = $8, priority = $9, tier = $10, score = $11, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		id,
		updated.Title,
		updated.ContactName,
		updated.Email,
		updated.City,
		updated.ProductInterest,
		updated.Budget,
		updated.Urgency,
		updated.Priority,
		updated.Tier,
		updated.Score,
	).Scan(&updated.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: update failed: %w", err)
	}
	return updated, nil
}

func (r *PostgresRepository) AddNote(ctx context.Context, leadID, body string) error {
	query := `INSERT INTO lead_notes (id, lead_id, body) VALUES ($1, $2, $3)`
	if _, err := r.pool.Exec(ctx, query, uuid.New(), leadID, body); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrLeadNotFound
		}
		return fmt.Errorf("leads: insert note failed: %w", err)
	}
	return nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.Title,
		&lead.ContactName,
		&lead.Phone,
		&lead.SenderPhone,
		&lead.Email,
		&lead.City,
		&lead.ProductInterest,
		&lead.Need,
		&lead.Budget,
		&lead.Urgency,
		&lead.Priority,
		&lead.Source,
		&lead.Tier,
		&lead.Score,
		&lead.Forced,
		&lead.Status,
		&lead.Description,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return &lead, nil
}
