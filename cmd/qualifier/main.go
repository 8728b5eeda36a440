package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/lead-qualifier/internal/api/router"
	"github.com/wolfman30/lead-qualifier/internal/app/bootstrap"
	appconfig "github.com/wolfman30/lead-qualifier/internal/config"
	"github.com/wolfman30/lead-qualifier/internal/conversation"
	"github.com/wolfman30/lead-qualifier/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/lead-qualifier/internal/http/middleware"
	"github.com/wolfman30/lead-qualifier/internal/leads"
	"github.com/wolfman30/lead-qualifier/internal/observability/metrics"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting lead qualifier",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("lead qualifier stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("lead qualifier stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	rt := bootstrap.NewRuntime(cfg, logger)
	defer rt.Close()

	m := metrics.NewQualificationMetrics(prometheus.DefaultRegisterer)
	comp, err := bootstrap.BuildEngine(ctx, rt, m)
	if err != nil {
		return err
	}

	inbound, err := bootstrap.BuildQueue(ctx, rt, cfg.InboundQueueURL)
	if err != nil {
		return err
	}
	var publisher *conversation.Publisher
	if inbound != nil {
		publisher = conversation.NewPublisher(inbound, logger)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newHandler(cfg, comp, publisher, promhttp.Handler(), logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), bootstrap.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if inbound != nil && cfg.WorkerCount > 0 {
		replies, err := bootstrap.BuildReplyPublisher(ctx, rt)
		if err != nil {
			return err
		}
		worker := conversation.NewWorker(comp.Engine, inbound, replies, logger, bootstrap.WorkerOptions(rt, m)...)
		g.Go(func() error {
			worker.Start(gctx)
			worker.Wait()
			return nil
		})
	}

	return g.Wait()
}

// writeMargin covers encoding the reply after the turn returns.
const writeMargin = 5 * time.Second

// writeTimeout lets a synchronous turn run to its worst case before the
// server gives up on the response.
func writeTimeout(cfg *appconfig.Config) time.Duration {
	return cfg.TurnBudget() + writeMargin
}

// newHandler assembles the HTTP surface. A nil publisher disables async
// submission.
func newHandler(cfg *appconfig.Config, comp *bootstrap.Components, publisher *conversation.Publisher, metricsHandler http.Handler, logger *logging.Logger) http.Handler {
	var enqueuer handlers.InboundEnqueuer
	if publisher != nil {
		enqueuer = publisher
	}
	var lister handlers.ArchiveLister
	if comp.Archive.Lister != nil {
		lister = comp.Archive.Lister
	}

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	}

	return router.New(&router.Config{
		Logger:               logger,
		MessagesHandler:      handlers.NewMessagesHandler(comp.Engine, enqueuer, logger),
		ConversationsHandler: handlers.NewConversationsHandler(comp.Engine, lister, logger),
		LeadsHandler:         leads.NewHandler(comp.Leads, logger),
		MetricsHandler:       metricsHandler,
		AdminAuthSecret:      cfg.AdminJWTSecret,
		RateLimiter:          limiter,
	})
}
