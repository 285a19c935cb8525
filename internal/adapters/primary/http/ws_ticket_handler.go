package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/lorrc/notification-relay/internal/adapters/primary/http/middleware"
	"github.com/lorrc/notification-relay/internal/adapters/primary/validation"
	"github.com/lorrc/notification-relay/internal/core/domain"
	apperrors "github.com/lorrc/notification-relay/internal/core/errors"
	"github.com/lorrc/notification-relay/internal/core/ports"
	"github.com/lorrc/notification-relay/internal/infrastructure/logging"
)

var errNoSubject = errors.New("no subject claim found")

// WSTicketHandler issues connection tickets to authenticated staff clients.
type WSTicketHandler struct {
	tickets      ports.TicketService
	access       ports.AccessChecker
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewWSTicketHandler creates a new ticket handler
func NewWSTicketHandler(
	tickets ports.TicketService,
	access ports.AccessChecker,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *WSTicketHandler {
	return &WSTicketHandler{
		tickets:      tickets,
		access:       access,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "ws_ticket"),
	}
}

// RegisterRoutes registers the ticket endpoint.
func (h *WSTicketHandler) RegisterRoutes(r chi.Router) {
	r.Post("/ws-auth-ticket", h.HandleIssueTicket)
}

// HandleIssueTicket handles POST /ws-auth-ticket. The ticket is returned as plain text.
func (h *WSTicketHandler) HandleIssueTicket(w http.ResponseWriter, r *http.Request) {
	subject, ok := mw.SubjectFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(errNoSubject, "Invalid auth"))
		return
	}

	req, err := validation.DecodeJSON[domain.TicketRequest](w, r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	if HandleError(w, r, validation.TicketRequest(*req), h.errorHandler) {
		return
	}

	ctx := logging.WithSubscriptionKey(r.Context(), req.SubscriptionKey)
	r = r.WithContext(ctx)

	allowed, err := h.access.CanAccess(ctx, subject, req.SubscriptionKey)
	if err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewInternalError(err))
		return
	}
	if !allowed {
		h.errorHandler.Handle(w, r, apperrors.NewForbiddenError("You do not have access to this subscription"))
		return
	}

	ticket, err := h.tickets.IssueTicket(ctx, subject, *req)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.InfoContext(ctx, "connection ticket issued", "events", len(req.Events))
	WriteText(w, http.StatusOK, ticket.String())
}
