package conversation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/lead-qualifier/internal/events"
	"github.com/wolfman30/lead-qualifier/internal/extraction"
)

func inboundBody(t *testing.T, msg events.InboundMessageV1) string {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return string(body)
}

func TestDeliveryHandler_RetryThenGiveUp(t *testing.T) {
	replies := &capturedReplies{}
	d := NewDeliveryHandler(failingProcessor{err: ErrLockTimeout}, replies, nil, WithMaxAttempts(2))
	body := inboundBody(t, events.InboundMessageV1{Sender: sender, MessageID: "wamid.1", Body: "Hola"})

	assert.False(t, d.Deliver(context.Background(), body, 1))
	assert.Empty(t, replies.all())

	assert.True(t, d.Deliver(context.Background(), body, 2))
	got := replies.all()
	require.Len(t, got, 1)
	assert.True(t, got[0].Fallback)
	assert.Equal(t, "wamid.1", got[0].InReplyTo)
}

func TestDeliveryHandler_InvalidBodyIsAcknowledged(t *testing.T) {
	replies := &capturedReplies{}
	d := NewDeliveryHandler(failingProcessor{}, replies, nil)

	assert.True(t, d.Deliver(context.Background(), "not json", 1))
	assert.True(t, d.Deliver(context.Background(), `{"body":"no sender"}`, 1))
	assert.Empty(t, replies.all())
}

func TestDeliveryHandler_DuplicateSendsNoReply(t *testing.T) {
	h := newHarness(t, extraction.NewHeuristicExtractor())
	replies := &capturedReplies{}
	d := NewDeliveryHandler(h.engine, replies, nil)
	body := inboundBody(t, events.InboundMessageV1{Sender: sender, MessageID: "wamid.7", Body: "Hola"})

	require.True(t, d.Deliver(context.Background(), body, 1))
	require.True(t, d.Deliver(context.Background(), body, 2))

	assert.Len(t, replies.all(), 1)
}

func TestDeliveryHandler_RequiresProcessor(t *testing.T) {
	assert.Panics(t, func() { NewDeliveryHandler(nil, nil, nil) })
}
