package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/lead-qualifier/internal/events"
)

// Queue is the transport between the HTTP surface, the worker and the
// reply consumer. SQSQueue and MemoryQueue implement it.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// requeuer is implemented by queues without a visibility timeout, which
// must put a failed message back explicitly.
type requeuer interface {
	Requeue(ctx context.Context, msg queueMessage) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
	// ReceiveCount is how many times the message has been delivered.
	ReceiveCount int
}

func encodeInbound(msg events.InboundMessageV1) (events.InboundMessageV1, string, error) {
	if msg.EventID == "" {
		msg.EventID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return events.InboundMessageV1{}, "", fmt.Errorf("conversation: encode inbound message: %w", err)
	}
	return msg, string(body), nil
}

func decodeInbound(body string) (events.InboundMessageV1, error) {
	var msg events.InboundMessageV1
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return events.InboundMessageV1{}, fmt.Errorf("conversation: decode inbound message: %w", err)
	}
	if strings.TrimSpace(msg.Sender) == "" {
		return events.InboundMessageV1{}, fmt.Errorf("%w: inbound message has no sender", ErrInvalidInput)
	}
	return msg, nil
}

func encodeReply(reply events.OutboundReplyV1) (events.OutboundReplyV1, string, error) {
	if reply.EventID == "" {
		reply.EventID = uuid.NewString()
	}
	if reply.SentAt.IsZero() {
		reply.SentAt = time.Now().UTC()
	}
	body, err := json.Marshal(reply)
	if err != nil {
		return events.OutboundReplyV1{}, "", fmt.Errorf("conversation: encode reply: %w", err)
	}
	return reply, string(body), nil
}
