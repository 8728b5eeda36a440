package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/lead-qualifier/internal/archive"
	"github.com/wolfman30/lead-qualifier/internal/conversation"
	httpmiddleware "github.com/wolfman30/lead-qualifier/internal/http/middleware"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

// ConversationManager exposes the admin operations on live conversations.
type ConversationManager interface {
	GetStatus(ctx context.Context, sender string) (*conversation.StatusSnapshot, error)
	Reset(ctx context.Context, sender string) error
}

// ArchiveLister reads finalized conversations back from the archive.
type ArchiveLister interface {
	ListByPhoneHash(ctx context.Context, phoneHash string) ([]*archive.ConversationRecord, error)
}

// ConversationsHandler serves /admin/conversations/{sender}.
type ConversationsHandler struct {
	manager ConversationManager
	archive ArchiveLister
	logger  *logging.Logger
}

// NewConversationsHandler builds the handler. archived may be nil.
func NewConversationsHandler(manager ConversationManager, archived ArchiveLister, logger *logging.Logger) *ConversationsHandler {
	if manager == nil {
		panic("handlers: conversation manager cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConversationsHandler{manager: manager, archive: archived, logger: logger}
}

// senderParam decodes the path parameter; "whatsapp:+52..." arrives escaped.
func senderParam(r *http.Request) string {
	raw := chi.URLParam(r, "sender")
	if s, err := url.PathUnescape(raw); err == nil {
		return s
	}
	return raw
}

// GetStatus handles GET /admin/conversations/{sender}.
func (h *ConversationsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sender := senderParam(r)
	snap, err := h.manager.GetStatus(r.Context(), sender)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, snap)
	case errors.Is(err, conversation.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrNotFound):
		writeError(w, http.StatusNotFound, "no active conversation")
	case conversation.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "conversation store unavailable")
	default:
		h.logger.Error("failed to load conversation", "error", err, "sender", sender)
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
	}
}

// Reset handles DELETE /admin/conversations/{sender}.
func (h *ConversationsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sender := senderParam(r)
	err := h.manager.Reset(r.Context(), sender)
	switch {
	case err == nil:
		operator := "anonymous"
		if claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context()); ok {
			operator = claims.Operator()
		}
		h.logger.Info("conversation reset", "sender", sender, "operator", operator)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, conversation.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case conversation.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "conversation store unavailable")
	default:
		h.logger.Error("failed to reset conversation", "error", err, "sender", sender)
		writeError(w, http.StatusInternalServerError, "failed to reset conversation")
	}
}

// ListArchived handles GET /admin/conversations/{sender}/archive.
func (h *ConversationsHandler) ListArchived(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotImplemented, "archive not configured")
		return
	}
	sender := senderParam(r)
	records, err := h.archive.ListByPhoneHash(r.Context(), archive.HashPhone(sender))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, records)
	case errors.Is(err, archive.ErrNotFound):
		writeError(w, http.StatusNotFound, "no archived conversations")
	default:
		h.logger.Error("failed to list archived conversations", "error", err, "sender", sender)
		writeError(w, http.StatusInternalServerError, "failed to list archived conversations")
	}
}
