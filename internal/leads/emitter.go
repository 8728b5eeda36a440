package leads

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/lead-qualifier/internal/qualification"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

// EmitResult identifies the CRM lead a qualification landed on.
type EmitResult struct {
	LeadID string `json:"lead_id"`
	// Duplicate is set when an open lead already existed for the sender.
	Duplicate bool `json:"duplicate"`
}

// Emitter turns finalized conversations into CRM leads, at most one open
// lead per sender. The lookup keys on the channel number, never on a phone
// the contact typed, so a sender who gives different numbers across
// conversations still lands on one lead.
type Emitter struct {
	repo   Repository
	logger *logging.Logger
	tracer trace.Tracer
}

func NewEmitter(repo Repository, logger *logging.Logger) *Emitter {
	if repo == nil {
		panic("leads: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Emitter{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("leadqual.internal.leads.emitter"),
	}
}

// Emit creates a lead for res, or enriches and annotates the sender's open lead.
// Every failure wraps ErrEmitFailed.
func (e *Emitter) Emit(ctx context.Context, res qualification.QualificationResult) (EmitResult, error) {
	ctx, span := e.tracer.Start(ctx, "leads.emit", trace.WithAttributes(
		attribute.String("sender", res.Sender),
		attribute.String("tier", string(res.Tier)),
	))
	defer span.End()

	req := RequestFromResult(res)
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		return EmitResult{}, fmt.Errorf("%w: %w", ErrEmitFailed, err)
	}

	existing, err := e.repo.FindOpenByPhone(ctx, req.DedupePhone())
	switch {
	case err == nil:
		return e.annotate(ctx, existing.ID, req, res)
	case !errors.Is(err, ErrLeadNotFound):
		span.RecordError(err)
		return EmitResult{}, fmt.Errorf("%w: lookup open lead: %w", ErrEmitFailed, err)
	}

	lead, err := e.repo.Create(ctx, req)
	if errors.Is(err, ErrDuplicateLead) {
		existing, findErr := e.repo.FindOpenByPhone(ctx, req.DedupePhone())
		if findErr != nil {
			span.RecordError(findErr)
			return EmitResult{}, fmt.Errorf("%w: reload open lead: %w", ErrEmitFailed, findErr)
		}
		return e.annotate(ctx, existing.ID, req, res)
	}
	if err != nil {
		span.RecordError(err)
		return EmitResult{}, fmt.Errorf("%w: create lead: %w", ErrEmitFailed, err)
	}

	if err := e.repo.AddNote(ctx, lead.ID, NoteBody(res)); err != nil {
		e.logger.Warn("failed to attach note to new lead", "lead_id", lead.ID, "error", err)
	}
	e.logger.Info("lead created", "lead_id", lead.ID, "sender", res.Sender, "tier", res.Tier, "forced", res.Forced)
	return EmitResult{LeadID: lead.ID}, nil
}

func (e *Emitter) annotate(ctx context.Context, leadID string, req *CreateLeadRequest, res qualification.QualificationResult) (EmitResult, error) {
	if _, err := e.repo.Enrich(ctx, leadID, req); err != nil {
		e.logger.Warn("failed to enrich existing lead", "lead_id", leadID, "error", err)
	}
	if err := e.repo.AddNote(ctx, leadID, NoteBody(res)); err != nil {
		e.logger.Warn("failed to attach note to existing lead", "lead_id", leadID, "error", err)
	}
	e.logger.Info("open lead already exists", "lead_id", leadID, "sender", res.Sender)
	return EmitResult{LeadID: leadID, Duplicate: true}, nil
}
