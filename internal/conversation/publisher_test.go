package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/lead-qualifier/internal/events"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

type stubQueue struct {
	sent []string
	err  error
}

func (s *stubQueue) Send(_ context.Context, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, body)
	return nil
}

func (s *stubQueue) Receive(context.Context, int, int) ([]queueMessage, error) {
	return nil, nil
}

func (s *stubQueue) Delete(context.Context, string) error {
	return nil
}

func TestPublisher_EnqueueInbound(t *testing.T) {
	queue := &stubQueue{}
	publisher := NewPublisher(queue, logging.Default())

	eventID, err := publisher.EnqueueInbound(context.Background(), events.InboundMessageV1{
		Sender:    "+15551234567",
		MessageID: "SM1",
		Body:      "hola",
	})
	require.NoError(t, err)
	require.NotEmpty(t, eventID)
	require.Len(t, queue.sent, 1)

	var msg events.InboundMessageV1
	require.NoError(t, json.Unmarshal([]byte(queue.sent[0]), &msg))
	assert.Equal(t, eventID, msg.EventID)
	assert.Equal(t, "+15551234567", msg.Sender)
	assert.False(t, msg.ReceivedAt.IsZero())
}

func TestPublisher_EnqueueInboundKeepsEventID(t *testing.T) {
	queue := &stubQueue{}
	publisher := NewPublisher(queue, nil)

	eventID, err := publisher.EnqueueInbound(context.Background(), events.InboundMessageV1{
		EventID: "evt-1",
		Sender:  "+15551234567",
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", eventID)
}

func TestPublisher_PublishReply(t *testing.T) {
	queue := &stubQueue{}
	publisher := NewPublisher(queue, nil)

	err := publisher.PublishReply(context.Background(), events.OutboundReplyV1{
		To:     "+15551234567",
		Body:   "¿Qué tratamiento te interesa?",
		Action: "gather_more_details",
	})
	require.NoError(t, err)
	require.Len(t, queue.sent, 1)

	var reply events.OutboundReplyV1
	require.NoError(t, json.Unmarshal([]byte(queue.sent[0]), &reply))
	assert.NotEmpty(t, reply.EventID)
	assert.Equal(t, "gather_more_details", reply.Action)
	assert.False(t, reply.SentAt.IsZero())
}

func TestPublisher_SendFailure(t *testing.T) {
	queue := &stubQueue{err: errors.New("queue down")}
	publisher := NewPublisher(queue, nil)

	_, err := publisher.EnqueueInbound(context.Background(), events.InboundMessageV1{Sender: "+15551234567"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue")

	err = publisher.PublishReply(context.Background(), events.OutboundReplyV1{To: "+15551234567"})
	require.Error(t, err)
}

func TestNewPublisherPanicsWithoutQueue(t *testing.T) {
	assert.Panics(t, func() { NewPublisher(nil, nil) })
}
