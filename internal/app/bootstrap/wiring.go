package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/lead-qualifier/internal/archive"
	"github.com/wolfman30/lead-qualifier/internal/conversation"
	"github.com/wolfman30/lead-qualifier/internal/leads"
	"github.com/wolfman30/lead-qualifier/internal/notify"
	"github.com/wolfman30/lead-qualifier/internal/observability/metrics"
	"github.com/wolfman30/lead-qualifier/internal/qualification"
)

// QueueMemory selects the in-process queue for INBOUND_QUEUE_URL.
const QueueMemory = "memory"

// BuildLeadRepository selects the CRM backend.
func BuildLeadRepository(ctx context.Context, rt *Runtime) (leads.Repository, error) {
	cfg := rt.Config
	switch cfg.CRMBackend {
	case "memory", "":
		rt.Logger.Warn("using in-memory lead repository")
		return leads.NewInMemoryRepository(), nil
	case "postgres":
		pool, err := rt.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		return leads.NewPostgresRepository(pool), nil
	case "odoo":
		if cfg.OdooURL == "" || cfg.OdooDB == "" {
			return nil, fmt.Errorf("%w: ODOO_URL and ODOO_DB are required", ErrNotConfigured)
		}
		client := leads.NewOdooClient(leads.OdooConfig{
			URL:      cfg.OdooURL,
			DB:       cfg.OdooDB,
			Username: cfg.OdooUsername,
			Password: cfg.OdooPassword,
		}, &http.Client{Timeout: cfg.EmitterTimeout}, rt.Logger)
		return leads.NewOdooRepository(client), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown CRM_BACKEND %q", cfg.CRMBackend)
	}
}

// BuildEmitter wraps the lead emitter with email alerts when NOTIFY_BACKEND
// names a provider.
func BuildEmitter(ctx context.Context, rt *Runtime, repo leads.Repository) (conversation.LeadEmitter, error) {
	cfg := rt.Config
	emitter := leads.NewEmitter(repo, rt.Logger)

	var sender notify.EmailSender
	switch cfg.NotifyBackend {
	case "none", "":
		return emitter, nil
	case "stub":
		sender = notify.NewStubEmailSender(rt.Logger)
	case "sendgrid":
		sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.NotifyFromEmail,
			FromName:  cfg.NotifyFromName,
		}, rt.Logger)
		if sg == nil {
			return nil, fmt.Errorf("%w: SENDGRID_API_KEY is required", ErrNotConfigured)
		}
		sender = sg
	case "ses":
		awsCfg, err := rt.AWS(ctx)
		if err != nil {
			return nil, err
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail:        cfg.NotifyFromEmail,
			FromName:         cfg.NotifyFromName,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, rt.Logger)
	default:
		return nil, fmt.Errorf("bootstrap: unknown NOTIFY_BACKEND %q", cfg.NotifyBackend)
	}
	if len(cfg.NotifyEmailTo) == 0 {
		rt.Logger.Warn("NOTIFY_EMAIL_TO is empty; lead alerts disabled")
		return emitter, nil
	}
	return notify.NewLeadAlerter(emitter, sender, notify.AlertConfig{
		Recipients: cfg.NotifyEmailTo,
		MinTier:    parseTier(cfg.NotifyMinTier),
	}, rt.Logger), nil
}

func parseTier(s string) qualification.Tier {
	switch qualification.Tier(strings.ToLower(strings.TrimSpace(s))) {
	case qualification.TierWarm:
		return qualification.TierWarm
	case qualification.TierCold:
		return qualification.TierCold
	default:
		return qualification.TierHot
	}
}

// Archive bundles the engine-side writer with the admin-side reader. Lister
// is nil for backends that cannot be queried by sender.
type Archive struct {
	Archiver conversation.Archiver
	Lister   *archive.SQLStore
}

// BuildArchive selects where finalized transcripts go.
func BuildArchive(ctx context.Context, rt *Runtime) (Archive, error) {
	cfg := rt.Config
	switch cfg.ArchiveBackend {
	case "none", "":
		return Archive{}, nil
	case "s3":
		if cfg.ArchiveBucket == "" {
			return Archive{}, fmt.Errorf("%w: ARCHIVE_BUCKET is required", ErrNotConfigured)
		}
		awsCfg, err := rt.AWS(ctx)
		if err != nil {
			return Archive{}, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
		return Archive{Archiver: archive.NewStore(client, cfg.ArchiveBucket, rt.Logger)}, nil
	case "sql":
		db, err := rt.SQLDB(ctx)
		if err != nil {
			return Archive{}, err
		}
		store := archive.NewSQLStore(db)
		return Archive{Archiver: store, Lister: store}, nil
	default:
		return Archive{}, fmt.Errorf("bootstrap: unknown ARCHIVE_BACKEND %q", cfg.ArchiveBackend)
	}
}

// Components is everything the HTTP server and queue consumers need.
type Components struct {
	Engine  *conversation.Engine
	Leads   leads.Repository
	Archive Archive
	Metrics *metrics.QualificationMetrics
}

// BuildEngine wires store, guard, extractor, emitter and archive into an
// engine.
func BuildEngine(ctx context.Context, rt *Runtime, m *metrics.QualificationMetrics) (*Components, error) {
	cfg := rt.Config
	store := BuildStore(rt)
	guard, err := BuildGuard(ctx, rt)
	if err != nil {
		return nil, err
	}
	extractor, err := BuildExtractor(ctx, rt)
	if err != nil {
		return nil, err
	}
	repo, err := BuildLeadRepository(ctx, rt)
	if err != nil {
		return nil, err
	}
	emitter, err := BuildEmitter(ctx, rt, repo)
	if err != nil {
		return nil, err
	}
	arch, err := BuildArchive(ctx, rt)
	if err != nil {
		return nil, err
	}

	opts := []conversation.EngineOption{
		conversation.WithSettings(cfg.QualificationSettings()),
		conversation.WithRetention(cfg.ConversationTTL),
		conversation.WithTimeouts(cfg.StoreTimeout, cfg.ExtractorTimeout, cfg.EmitterTimeout),
		conversation.WithArchiveTimeout(cfg.ArchiveTimeout),
		conversation.WithMetrics(m),
	}
	if arch.Archiver != nil {
		opts = append(opts, conversation.WithArchiver(arch.Archiver))
	}

	return &Components{
		Engine:  conversation.NewEngine(store, guard, extractor, emitter, rt.Logger, opts...),
		Leads:   repo,
		Archive: arch,
		Metrics: m,
	}, nil
}

// BuildQueue returns the queue for url: SQS for a queue URL, an in-process
// queue for "memory", nil when empty.
func BuildQueue(ctx context.Context, rt *Runtime, url string) (conversation.Queue, error) {
	switch strings.TrimSpace(url) {
	case "":
		return nil, nil
	case QueueMemory:
		return conversation.NewMemoryQueue(0), nil
	}
	awsCfg, err := rt.AWS(ctx)
	if err != nil {
		return nil, err
	}
	return conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), url), nil
}

// BuildReplyPublisher publishes replies to OUTBOUND_QUEUE_URL. It returns
// nil when no outbound queue is configured; the worker then drops replies.
func BuildReplyPublisher(ctx context.Context, rt *Runtime) (conversation.ReplyPublisher, error) {
	url := rt.Config.OutboundQueueURL
	if url == QueueMemory {
		url = ""
	}
	queue, err := BuildQueue(ctx, rt, url)
	if err != nil {
		return nil, err
	}
	if queue == nil {
		rt.Logger.Warn("OUTBOUND_QUEUE_URL not set; replies are not published")
		return nil, nil
	}
	return conversation.NewPublisher(queue, rt.Logger), nil
}

// WorkerOptions derives worker settings from config.
func WorkerOptions(rt *Runtime, m *metrics.QualificationMetrics) []conversation.WorkerOption {
	return []conversation.WorkerOption{
		conversation.WithWorkerCount(rt.Config.WorkerCount),
		conversation.WithWorkerMetrics(m),
		conversation.WithFallbackReply(qualification.DefaultCatalog().Fallback),
	}
}

// ShutdownTimeout bounds graceful shutdown of servers and workers.
const ShutdownTimeout = 15 * time.Second
