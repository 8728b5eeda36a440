package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/lead-qualifier/internal/events"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

// Publisher writes inbound messages and outbound replies to queues.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueInbound hands a message to the worker for asynchronous processing.
func (p *Publisher) EnqueueInbound(ctx context.Context, msg events.InboundMessageV1) (string, error) {
	msg, body, err := encodeInbound(msg)
	if err != nil {
		return "", err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue message: %w", err)
	}
	p.logger.Debug("inbound message enqueued", "event_id", msg.EventID, "sender", msg.Sender)
	return msg.EventID, nil
}

// PublishReply sends a reply for the transport to deliver.
func (p *Publisher) PublishReply(ctx context.Context, reply events.OutboundReplyV1) error {
	reply, body, err := encodeReply(reply)
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: failed to publish reply: %w", err)
	}
	p.logger.Debug("reply published", "event_id", reply.EventID, "to", reply.To, "action", reply.Action)
	return nil
}
