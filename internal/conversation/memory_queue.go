package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is a Queue backed by an in-memory buffered channel.
type MemoryQueue struct {
	ch           chan queueMessage
	requeueDelay time.Duration
}

var _ requeuer = (*MemoryQueue)(nil)

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{
		ch:           make(chan queueMessage, buffer),
		requeueDelay: time.Second,
	}
}

// Send enqueues a payload or blocks until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	return q.push(ctx, queueMessage{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
		ReceiveCount:  0,
	})
}

func (q *MemoryQueue) push(ctx context.Context, msg queueMessage) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message is available, ctx is done, or waitSeconds elapses.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case msg := <-q.ch:
		return q.collect(msg, maxMessages), nil
	}
}

// Delete is a no-op for the in-memory queue.
func (q *MemoryQueue) Delete(_ context.Context, _ string) error {
	return nil
}

// Requeue delivers msg again after the requeue delay.
func (q *MemoryQueue) Requeue(ctx context.Context, msg queueMessage) error {
	msg.ReceiptHandle = uuid.NewString()
	if q.requeueDelay <= 0 {
		return q.push(ctx, msg)
	}
	time.AfterFunc(q.requeueDelay, func() {
		_ = q.push(context.WithoutCancel(ctx), msg)
	})
	return nil
}

func (q *MemoryQueue) collect(first queueMessage, max int) []queueMessage {
	first.ReceiveCount++
	messages := make([]queueMessage, 0, max)
	messages = append(messages, first)

	for len(messages) < max {
		select {
		case msg := <-q.ch:
			msg.ReceiveCount++
			messages = append(messages, msg)
		default:
			return messages
		}
	}
	return messages
}
