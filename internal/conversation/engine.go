package conversation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/lead-qualifier/internal/events"
	"github.com/wolfman30/lead-qualifier/internal/leads"
	"github.com/wolfman30/lead-qualifier/internal/observability/metrics"
	"github.com/wolfman30/lead-qualifier/internal/qualification"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

const (
	defaultStoreTimeout     = 3 * time.Second
	defaultExtractorTimeout = 10 * time.Second
	defaultEmitterTimeout   = 15 * time.Second
	defaultArchiveTimeout   = 10 * time.Second
)

// FieldExtractor turns a message into candidate fields.
type FieldExtractor interface {
	Extract(ctx context.Context, text string, prior qualification.Fields) (qualification.Extraction, error)
}

// LeadEmitter persists a finalized conversation as a CRM lead.
type LeadEmitter interface {
	Emit(ctx context.Context, res qualification.QualificationResult) (leads.EmitResult, error)
}

// Archiver keeps finalized transcripts after the live record is reset.
type Archiver interface {
	Archive(ctx context.Context, res qualification.QualificationResult, leadID string) error
}

// TurnResult is the outcome of one inbound message.
type TurnResult struct {
	Sender    string                       `json:"sender"`
	MessageID string                       `json:"message_id"`
	Dropped   bool                         `json:"dropped"`
	Decision  qualification.ActionDecision `json:"decision"`
	Reply     string                       `json:"reply,omitempty"`
	Tier      qualification.Tier           `json:"tier,omitempty"`
	Score     float64                      `json:"score"`
	TurnCount int                          `json:"turn_count"`
	LeadID    string                       `json:"lead_id,omitempty"`
	// DuplicateLead is set when finalize landed on an existing open lead.
	DuplicateLead    bool `json:"duplicate_lead,omitempty"`
	ExtractionFailed bool `json:"extraction_failed,omitempty"`
	// Fallback is set when Reply is the generic failure prompt.
	Fallback bool `json:"fallback,omitempty"`
}

// StatusSnapshot is what GetStatus reports for an active conversation.
type StatusSnapshot struct {
	Record  *qualification.ConversationRecord `json:"record"`
	Summary qualification.Summary             `json:"summary"`
}

// Engine runs the per-message qualification loop.
type Engine struct {
	store     Store
	guard     events.Guard
	extractor FieldExtractor
	emitter   LeadEmitter
	archiver  Archiver
	scorer    qualification.Scorer
	policy    qualification.Policy
	catalog   *qualification.Catalog
	metrics   *metrics.QualificationMetrics
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
	cfg       engineConfig
}

type engineConfig struct {
	settings         qualification.Settings
	catalog          *qualification.Catalog
	retention        time.Duration
	storeTimeout     time.Duration
	extractorTimeout time.Duration
	emitterTimeout   time.Duration
	archiveTimeout   time.Duration
	archiver         Archiver
	metrics          *metrics.QualificationMetrics
	now              func() time.Time
}

// EngineOption customizes the engine.
type EngineOption func(*engineConfig)

// WithSettings sets scoring weights, thresholds and the turn ceiling.
func WithSettings(settings qualification.Settings) EngineOption {
	return func(cfg *engineConfig) {
		cfg.settings = settings.Normalized()
	}
}

// WithCatalog replaces the built-in follow-up prompts.
func WithCatalog(catalog *qualification.Catalog) EngineOption {
	return func(cfg *engineConfig) {
		if catalog != nil {
			cfg.catalog = catalog
		}
	}
}

// WithRetention sets the idle window refreshed on every save.
func WithRetention(ttl time.Duration) EngineOption {
	return func(cfg *engineConfig) {
		if ttl > 0 {
			cfg.retention = ttl
		}
	}
}

// WithTimeouts bounds store, extractor and emitter calls. Zero keeps the default.
func WithTimeouts(store, extractor, emitter time.Duration) EngineOption {
	return func(cfg *engineConfig) {
		if store > 0 {
			cfg.storeTimeout = store
		}
		if extractor > 0 {
			cfg.extractorTimeout = extractor
		}
		if emitter > 0 {
			cfg.emitterTimeout = emitter
		}
	}
}

// WithArchiveTimeout bounds the transcript write after finalize.
func WithArchiveTimeout(d time.Duration) EngineOption {
	return func(cfg *engineConfig) {
		if d > 0 {
			cfg.archiveTimeout = d
		}
	}
}

// WithArchiver stores transcripts of finalized conversations.
func WithArchiver(a Archiver) EngineOption {
	return func(cfg *engineConfig) {
		cfg.archiver = a
	}
}

// WithMetrics records engine metrics.
func WithMetrics(m *metrics.QualificationMetrics) EngineOption {
	return func(cfg *engineConfig) {
		cfg.metrics = m
	}
}

func withClock(now func() time.Time) EngineOption {
	return func(cfg *engineConfig) {
		cfg.now = now
	}
}

func NewEngine(store Store, guard events.Guard, extractor FieldExtractor, emitter LeadEmitter, logger *logging.Logger, opts ...EngineOption) *Engine {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if guard == nil {
		panic("conversation: dedupe guard cannot be nil")
	}
	if extractor == nil {
		panic("conversation: extractor cannot be nil")
	}
	if emitter == nil {
		panic("conversation: lead emitter cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := engineConfig{
		settings:         qualification.DefaultSettings(),
		catalog:          qualification.DefaultCatalog(),
		retention:        DefaultRetention,
		storeTimeout:     defaultStoreTimeout,
		extractorTimeout: defaultExtractorTimeout,
		emitterTimeout:   defaultEmitterTimeout,
		archiveTimeout:   defaultArchiveTimeout,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Engine{
		store:     store,
		guard:     guard,
		extractor: extractor,
		emitter:   emitter,
		archiver:  cfg.archiver,
		scorer:    qualification.NewScorer(cfg.settings),
		policy:    qualification.NewPolicy(cfg.settings, cfg.catalog),
		catalog:   cfg.catalog,
		metrics:   cfg.metrics,
		logger:    logger,
		tracer:    otel.Tracer("leadqual.internal.conversation.engine"),
		now:       cfg.now,
		cfg:       cfg,
	}
}

// MessageKey returns the dedupe identifier for a message. Transports that
// carry no message id fall back to a hash of the text.
func MessageKey(messageID, text string) string {
	if id := strings.TrimSpace(messageID); id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(text))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ProcessTurn applies one inbound message: dedupe, load, extract, merge,
// score, decide, then finalize or save. On any failure other than a
// duplicate the returned result carries the fallback reply.
func (e *Engine) ProcessTurn(ctx context.Context, sender, text, messageID string) (*TurnResult, error) {
	started := e.now()
	sender = strings.TrimSpace(sender)
	messageID = MessageKey(messageID, text)

	ctx, span := e.tracer.Start(ctx, "conversation.process_turn", trace.WithAttributes(
		attribute.String("sender", sender),
		attribute.String("message_id", messageID),
	))
	defer span.End()

	if sender == "" {
		return e.fallback(sender, messageID), fmt.Errorf("%w: sender is required", ErrInvalidInput)
	}
	log := e.logger.With("sender", sender, "message_id", messageID)

	dup, err := e.checkDuplicate(ctx, sender, messageID)
	if errors.Is(err, events.ErrInFlight) {
		span.SetAttributes(attribute.Bool("in_flight", true))
		log.Info("message already being processed, leaving it for redelivery")
		return e.fallback(sender, messageID), fmt.Errorf("%w: %w", ErrMessageInFlight, err)
	}
	if err != nil {
		e.metrics.IncStoreFailure("dedupe")
		span.RecordError(err)
		span.SetStatus(codes.Error, "dedupe failed")
		log.Error("duplicate guard unavailable", "error", err)
		return e.fallback(sender, messageID), fmt.Errorf("%w: dedupe: %w", ErrStoreUnreachable, err)
	}
	if dup {
		e.metrics.IncDuplicate()
		span.SetAttributes(attribute.Bool("dropped", true))
		log.Info("duplicate message dropped")
		return &TurnResult{Sender: sender, MessageID: messageID, Dropped: true}, nil
	}

	res, err := e.runTurn(ctx, log, sender, text, messageID, started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
	}
	if IsRetryable(err) {
		// The turn was not applied; let a redelivery through the guard.
		e.forget(ctx, log, sender, messageID)
	} else {
		e.confirm(ctx, log, sender, messageID)
	}
	if res != nil {
		span.SetAttributes(
			attribute.String("action", string(res.Decision.Action)),
			attribute.String("tier", string(res.Tier)),
		)
	}
	return res, err
}

func (e *Engine) runTurn(ctx context.Context, log *logging.Logger, sender, text, messageID string, started time.Time) (*TurnResult, error) {
	ctx, release, err := e.store.Lock(ctx, sender)
	if err != nil {
		e.metrics.IncStoreFailure("lock")
		log.Warn("failed to lock conversation", "error", err)
		return e.fallback(sender, messageID), err
	}
	defer release()

	rec, err := e.load(ctx, log, sender)
	if err != nil {
		e.metrics.IncStoreFailure("load")
		log.Error("failed to load conversation", "error", err)
		return e.fallback(sender, messageID), err
	}

	now := e.now()
	extraction, extractErr := e.extract(ctx, text, rec.Fields.Clone())
	if extractErr != nil {
		e.metrics.IncExtractionFailure()
		log.Warn("field extraction failed, continuing with known fields", "error", extractErr)
	}

	turn := rec.AppendInbound(qualification.Turn{
		Text:             text,
		Timestamp:        now,
		MessageID:        messageID,
		SupportRequest:   extraction.SupportRequest,
		ExtractionFailed: extractErr != nil,
	})
	changed := rec.Fields.Merge(extraction.Fields, turn)
	assessment := e.scorer.Score(rec.Fields, sender)
	rec.Apply(assessment)

	decision := e.policy.Decide(qualification.PolicyInput{
		Assessment:       assessment,
		Fields:           rec.Fields,
		TurnCount:        rec.TurnCount,
		SupportRequested: extraction.SupportRequest,
		UsedPrompts:      rec.UsedPrompts,
	})
	log.Debug("turn assessed",
		"turn", turn,
		"changed_fields", changed,
		"score", assessment.Score,
		"tier", assessment.Tier,
		"action", decision.Action,
		"reason", decision.Reason,
	)

	result := &TurnResult{
		Sender:           sender,
		MessageID:        messageID,
		Decision:         decision,
		Tier:             rec.Tier,
		Score:            rec.Score,
		TurnCount:        rec.TurnCount,
		ExtractionFailed: extractErr != nil,
	}

	if decision.Action == qualification.ActionCreateLead {
		err = e.finalize(ctx, log, rec, result, now)
	} else {
		result.Reply = e.catalog.Reply(decision)
		rec.MarkPromptUsed(decision.PromptKey)
		rec.AppendOutbound(result.Reply, decision, now)
		if err = e.save(ctx, rec); err != nil {
			e.metrics.IncStoreFailure("save")
			log.Error("failed to save conversation", "error", err)
			return e.fallback(sender, messageID), err
		}
	}

	e.metrics.ObserveTurn(string(decision.Action), e.now().Sub(started))
	log.Info("turn processed",
		"action", decision.Action,
		"tier", result.Tier,
		"score", result.Score,
		"turn", result.TurnCount,
		"lead_id", result.LeadID,
	)
	return result, err
}

// load returns the sender's active record or a fresh one. Only an
// unreachable store is an error.
func (e *Engine) load(ctx context.Context, log *logging.Logger, sender string) (*qualification.ConversationRecord, error) {
	loadCtx, cancel := context.WithTimeout(ctx, e.cfg.storeTimeout)
	defer cancel()

	rec, err := e.store.Load(loadCtx, sender)
	switch {
	case errors.Is(err, ErrNotFound):
		return qualification.NewRecord(sender, e.now()), nil
	case errors.Is(err, ErrCorruptRecord):
		log.Warn("discarding unreadable conversation record", "error", err)
		return qualification.NewRecord(sender, e.now()), nil
	case err != nil:
		return nil, err
	case rec.Status != qualification.StatusActive:
		return qualification.NewRecord(sender, e.now()), nil
	}
	return rec, nil
}

func (e *Engine) extract(ctx context.Context, text string, prior qualification.Fields) (qualification.Extraction, error) {
	extractCtx, cancel := context.WithTimeout(ctx, e.cfg.extractorTimeout)
	defer cancel()

	out, err := e.extractor.Extract(extractCtx, text, prior)
	if err != nil {
		return qualification.Extraction{}, err
	}
	return out, nil
}

// finalize emits the lead, resets the record and archives the transcript.
// When the emitter fails the record is kept so finalize runs again.
func (e *Engine) finalize(ctx context.Context, log *logging.Logger, rec *qualification.ConversationRecord, result *TurnResult, now time.Time) error {
	decision := result.Decision
	emitCtx, cancel := context.WithTimeout(ctx, e.cfg.emitterTimeout)
	emitted, err := e.emitter.Emit(emitCtx, rec.Result(decision.Forced, now))
	cancel()

	if err != nil {
		e.metrics.ObserveFinalize(string(rec.Tier), "failed")
		log.Error("lead emit failed, keeping conversation", "error", err)
		result.Reply = e.catalog.Fallback
		result.Fallback = true
		rec.AppendOutbound(result.Reply, decision, now)
		if saveErr := e.save(ctx, rec); saveErr != nil {
			e.metrics.IncStoreFailure("save")
			return fmt.Errorf("%w: %w (save: %w)", ErrEmitFailed, err, saveErr)
		}
		return fmt.Errorf("%w: %w", ErrEmitFailed, err)
	}

	outcome := "created"
	if emitted.Duplicate {
		outcome = "duplicate"
	}
	e.metrics.ObserveFinalize(string(rec.Tier), outcome)

	result.LeadID = emitted.LeadID
	result.DuplicateLead = emitted.Duplicate
	result.Reply = e.catalog.LeadCreated
	rec.Status = qualification.StatusFinalized
	rec.AppendOutbound(result.Reply, decision, now)

	resetCtx, cancelReset := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.storeTimeout)
	err = e.store.Reset(resetCtx, rec.Sender)
	cancelReset()
	if err != nil {
		e.metrics.IncStoreFailure("reset")
		log.Error("failed to reset finalized conversation", "error", err, "lead_id", emitted.LeadID)
	}

	if e.archiver != nil {
		archiveCtx, cancelArchive := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.archiveTimeout)
		defer cancelArchive()
		if err := e.archiver.Archive(archiveCtx, rec.Result(decision.Forced, now), emitted.LeadID); err != nil {
			log.Warn("failed to archive conversation", "error", err, "lead_id", emitted.LeadID)
		}
	}
	return nil
}

// save persists rec even if the request context was cancelled after the
// turn was applied.
func (e *Engine) save(ctx context.Context, rec *qualification.ConversationRecord) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.storeTimeout)
	defer cancel()
	return e.store.Save(saveCtx, rec, e.cfg.retention)
}

func (e *Engine) checkDuplicate(ctx context.Context, sender, messageID string) (bool, error) {
	guardCtx, cancel := context.WithTimeout(ctx, e.cfg.storeTimeout)
	defer cancel()
	return e.guard.IsDuplicate(guardCtx, sender, messageID)
}

func (e *Engine) confirm(ctx context.Context, log *logging.Logger, sender, messageID string) {
	confirmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.storeTimeout)
	defer cancel()
	if err := e.guard.Confirm(confirmCtx, sender, messageID); err != nil {
		log.Warn("failed to confirm dedupe mark", "error", err)
	}
}

func (e *Engine) forget(ctx context.Context, log *logging.Logger, sender, messageID string) {
	forgetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.storeTimeout)
	defer cancel()
	if err := e.guard.Forget(forgetCtx, sender, messageID); err != nil {
		log.Warn("failed to clear dedupe mark", "error", err)
	}
}

func (e *Engine) fallback(sender, messageID string) *TurnResult {
	return &TurnResult{
		Sender:    sender,
		MessageID: messageID,
		Reply:     e.catalog.Fallback,
		Fallback:  true,
	}
}

// GetStatus returns the sender's active conversation with a derived summary.
func (e *Engine) GetStatus(ctx context.Context, sender string) (*StatusSnapshot, error) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidInput)
	}
	loadCtx, cancel := context.WithTimeout(ctx, e.cfg.storeTimeout)
	defer cancel()

	rec, err := e.store.Load(loadCtx, sender)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorruptRecord):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	case rec.Status != qualification.StatusActive:
		return nil, ErrNotFound
	}
	return &StatusSnapshot{
		Record:  rec,
		Summary: qualification.Summarize(rec, e.scorer.Score(rec.Fields, sender)),
	}, nil
}

// Reset discards the sender's conversation. Resetting an unknown sender is
// not an error.
func (e *Engine) Reset(ctx context.Context, sender string) error {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return fmt.Errorf("%w: sender is required", ErrInvalidInput)
	}
	lockCtx, release, err := e.store.Lock(ctx, sender)
	if err != nil {
		return err
	}
	defer release()

	resetCtx, cancel := context.WithTimeout(lockCtx, e.cfg.storeTimeout)
	defer cancel()
	if err := e.store.Reset(resetCtx, sender); err != nil {
		return err
	}
	e.logger.Info("conversation reset", "sender", sender)
	return nil
}

// Settings returns the qualification settings in effect.
func (e *Engine) Settings() qualification.Settings {
	return e.cfg.settings
}
