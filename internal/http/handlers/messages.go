package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/lead-qualifier/internal/conversation"
	"github.com/wolfman30/lead-qualifier/internal/events"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

const maxMessageBytes = 64 << 10

// TurnProcessor applies one inbound message synchronously.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, sender, text, messageID string) (*conversation.TurnResult, error)
}

// InboundEnqueuer hands an inbound message to the queue worker.
type InboundEnqueuer interface {
	EnqueueInbound(ctx context.Context, msg events.InboundMessageV1) (string, error)
}

// MessageRequest is an already-authenticated, already-deframed chat message.
type MessageRequest struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	MessageID string `json:"message_id,omitempty"`
	Channel   string `json:"channel,omitempty"`
}

type enqueuedResponse struct {
	EventID   string `json:"event_id"`
	MessageID string `json:"message_id"`
}

// MessagesHandler serves POST /v1/messages.
type MessagesHandler struct {
	processor TurnProcessor
	enqueuer  InboundEnqueuer
	logger    *logging.Logger
	now       func() time.Time
}

// NewMessagesHandler builds the handler. A nil enqueuer disables ?async=true.
func NewMessagesHandler(processor TurnProcessor, enqueuer InboundEnqueuer, logger *logging.Logger) *MessagesHandler {
	if processor == nil {
		panic("handlers: turn processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MessagesHandler{processor: processor, enqueuer: enqueuer, logger: logger, now: time.Now}
}

// Post runs one conversation turn and returns the TurnResult. With
// ?async=true the message is queued instead and 202 is returned.
func (h *MessagesHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Sender = strings.TrimSpace(req.Sender)
	if req.Sender == "" {
		writeError(w, http.StatusBadRequest, "sender is required")
		return
	}

	if r.URL.Query().Get("async") == "true" {
		h.enqueue(w, r, req)
		return
	}

	res, err := h.processor.ProcessTurn(r.Context(), req.Sender, req.Text, req.MessageID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, conversation.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case conversation.IsRetryable(err):
		h.logger.Warn("turn deferred, store unavailable", "error", err, "sender", req.Sender)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "conversation store unavailable, retry")
	case res != nil:
		// Not retryable: the sender still gets the fallback reply.
		h.logger.Error("turn failed", "error", err, "sender", req.Sender)
		writeJSON(w, http.StatusOK, res)
	default:
		h.logger.Error("turn failed", "error", err, "sender", req.Sender)
		writeError(w, http.StatusInternalServerError, "failed to process message")
	}
}

func (h *MessagesHandler) enqueue(w http.ResponseWriter, r *http.Request, req MessageRequest) {
	if h.enqueuer == nil {
		writeError(w, http.StatusNotImplemented, "async processing not configured")
		return
	}
	msg := events.InboundMessageV1{
		EventID:    uuid.NewString(),
		Sender:     req.Sender,
		MessageID:  conversation.MessageKey(req.MessageID, req.Text),
		Body:       req.Text,
		Channel:    req.Channel,
		ReceivedAt: h.now().UTC(),
	}
	if _, err := h.enqueuer.EnqueueInbound(r.Context(), msg); err != nil {
		h.logger.Error("failed to enqueue message", "error", err, "sender", req.Sender)
		writeError(w, http.StatusServiceUnavailable, "failed to enqueue message")
		return
	}
	writeJSON(w, http.StatusAccepted, enqueuedResponse{EventID: msg.EventID, MessageID: msg.MessageID})
}
