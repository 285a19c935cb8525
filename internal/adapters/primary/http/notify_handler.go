package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lorrc/notification-relay/internal/adapters/primary/validation"
	"github.com/lorrc/notification-relay/internal/core/domain"
	"github.com/lorrc/notification-relay/internal/core/ports"
	"github.com/lorrc/notification-relay/internal/infrastructure/logging"
)

// NotifyResponse reports how many relay instances received the notification.
// It says nothing about how many client connections were reached.
type NotifyResponse struct {
	Receivers int64 `json:"receivers"`
}

// NotifyHandler accepts notifications from producers.
type NotifyHandler struct {
	notifications ports.NotificationService
	errorHandler  *ErrorHandler
	logger        *slog.Logger
}

// NewNotifyHandler creates a new notify handler
func NewNotifyHandler(notifications ports.NotificationService, errorHandler *ErrorHandler, logger *slog.Logger) *NotifyHandler {
	return &NotifyHandler{
		notifications: notifications,
		errorHandler:  errorHandler,
		logger:        logger.With("handler", "notify"),
	}
}

// RegisterRoutes registers the producer endpoint.
func (h *NotifyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/notify-subscribers", h.HandleNotify)
}

// HandleNotify handles POST /notify-subscribers
func (h *NotifyHandler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeJSON[domain.NotificationRequest](w, r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	ctx := logging.WithSubscriptionKey(r.Context(), req.SubscriptionKey)
	receivers, err := h.notifications.Publish(ctx, *req)
	if HandleError(w, r.WithContext(ctx), err, h.errorHandler) {
		return
	}

	h.logger.DebugContext(ctx, "notification accepted",
		"event_type", req.EventType,
		"receivers", receivers,
	)
	WriteJSON(w, http.StatusOK, NotifyResponse{Receivers: receivers})
}
