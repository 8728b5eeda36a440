package conversation

import (
	"context"

	"github.com/wolfman30/lead-qualifier/internal/events"
	"github.com/wolfman30/lead-qualifier/internal/observability/metrics"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

// DeliveryHandler runs one queued inbound message through the engine and
// publishes the reply. It is shared by the queue worker and the Lambda
// entry point, which only differ in how a message is acknowledged.
type DeliveryHandler struct {
	processor   TurnProcessor
	replies     ReplyPublisher
	metrics     *metrics.QualificationMetrics
	logger      *logging.Logger
	fallback    string
	maxAttempts int
}

// NewDeliveryHandler builds a handler. Only the attempt, metrics, and
// fallback options apply.
func NewDeliveryHandler(processor TurnProcessor, replies ReplyPublisher, logger *logging.Logger, opts ...WorkerOption) *DeliveryHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return newDeliveryHandler(processor, replies, logger, newWorkerConfig(opts))
}

func newDeliveryHandler(processor TurnProcessor, replies ReplyPublisher, logger *logging.Logger, cfg workerConfig) *DeliveryHandler {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	return &DeliveryHandler{
		processor:   processor,
		replies:     replies,
		metrics:     cfg.metrics,
		logger:      logger,
		fallback:    cfg.fallback,
		maxAttempts: cfg.maxAttempts,
	}
}

// Deliver processes body, the JSON of an events.InboundMessageV1, on its
// attempt-th delivery. It returns false when the message should stay on the
// queue for redelivery; no reply is sent in that case.
func (d *DeliveryHandler) Deliver(ctx context.Context, body string, attempt int) bool {
	inbound, err := decodeInbound(body)
	if err != nil {
		d.logger.Error("dropping undecodable inbound message", "error", err)
		d.metrics.ObserveQueueMessage("invalid")
		return true
	}
	log := d.logger.With("sender", inbound.Sender, "message_id", inbound.MessageID, "event_id", inbound.EventID)

	res, err := d.processor.ProcessTurn(ctx, inbound.Sender, inbound.Body, inbound.MessageID)
	if err != nil && IsRetryable(err) {
		if attempt < d.maxAttempts {
			d.metrics.ObserveQueueMessage("retry")
			log.Warn("turn failed, leaving message for redelivery", "error", err, "attempt", attempt)
			return false
		}
		log.Error("giving up on message after repeated failures", "error", err, "attempts", attempt)
	}

	switch {
	case res != nil && res.Dropped:
		d.metrics.ObserveQueueMessage("duplicate")
	case err != nil:
		d.metrics.ObserveQueueMessage("failed")
		log.Error("turn failed", "error", err)
	default:
		d.metrics.ObserveQueueMessage("processed")
	}

	if res == nil || !res.Dropped {
		d.publish(ctx, log, inbound, res)
	}
	return true
}

func (d *DeliveryHandler) publish(ctx context.Context, log *logging.Logger, inbound events.InboundMessageV1, res *TurnResult) {
	if d.replies == nil {
		return
	}
	reply := events.OutboundReplyV1{
		To:        inbound.Sender,
		Body:      d.fallback,
		InReplyTo: inbound.MessageID,
		Fallback:  true,
	}
	if res != nil && res.Reply != "" {
		reply.Body = res.Reply
		reply.Action = string(res.Decision.Action)
		reply.Tier = string(res.Tier)
		reply.Score = res.Score
		reply.LeadID = res.LeadID
		reply.Fallback = res.Fallback
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := d.replies.PublishReply(publishCtx, reply); err != nil {
		log.Error("failed to publish reply", "error", err)
	}
}
