package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/lead-qualifier/internal/events"
	"github.com/wolfman30/lead-qualifier/internal/observability/metrics"
	"github.com/wolfman30/lead-qualifier/internal/qualification"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

// TurnProcessor is the engine entry point the worker drives.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, sender, text, messageID string) (*TurnResult, error)
}

// ReplyPublisher delivers replies back to the transport.
type ReplyPublisher interface {
	PublishReply(ctx context.Context, reply events.OutboundReplyV1) error
}

// Worker consumes inbound messages from the queue and runs one turn each.
type Worker struct {
	queue    Queue
	delivery *DeliveryHandler
	logger   *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	maxAttempts      int
	metrics          *metrics.QualificationMetrics
	fallback         string
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	defaultMaxAttempts   = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
	publishTimeout       = 5 * time.Second
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithMaxAttempts caps redeliveries of a message that keeps failing with a
// retryable error. The last attempt is answered with the fallback reply.
func WithMaxAttempts(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.maxAttempts = n
		}
	}
}

// WithWorkerMetrics records per-message outcomes.
func WithWorkerMetrics(m *metrics.QualificationMetrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

// WithFallbackReply sets the reply sent when a message is given up on.
func WithFallbackReply(text string) WorkerOption {
	return func(cfg *workerConfig) {
		if text != "" {
			cfg.fallback = text
		}
	}
}

// NewWorker constructs a queue consumer. A nil replies publisher drops replies.
func NewWorker(processor TurnProcessor, queue Queue, replies ReplyPublisher, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := newWorkerConfig(opts)
	return &Worker{
		queue:    queue,
		delivery: newDeliveryHandler(processor, replies, logger, cfg),
		logger:   logger,
		cfg:      cfg,
	}
}

func newWorkerConfig(opts []WorkerOption) workerConfig {
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		maxAttempts:      defaultMaxAttempts,
		fallback:         qualification.DefaultCatalog().Fallback,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Start launches the consumer goroutines.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive inbound messages", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	if done := w.delivery.Deliver(ctx, msg.Body, msg.ReceiveCount); !done {
		if rq, ok := w.queue.(requeuer); ok {
			if err := rq.Requeue(ctx, msg); err != nil {
				w.logger.Error("failed to requeue message", "error", err, "queue_message_id", msg.ID)
			}
		}
		return
	}
	w.deleteMessage(ctx, msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete inbound message", "error", err)
	}
}
