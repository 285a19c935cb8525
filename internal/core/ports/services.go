package ports

import (
	"context"

	"github.com/lorrc/notification-relay/internal/core/domain"
)

// TicketService defines the ticket protocol used to authenticate long-lived connections.
type TicketService interface {
	// IssueTicket mints and stores a ticket for subject. Failures are *apperrors.GenerateTicketError.
	IssueTicket(ctx context.Context, subject string, req domain.TicketRequest) (domain.WellFormedTicket, error)
	// ConsumeTicket resolves a ticket to its subscription. Failures are *apperrors.TicketError.
	ConsumeTicket(ctx context.Context, ticket domain.WellFormedTicket) (domain.ValidatedTicket, error)
}

// NotificationService publishes producer notifications to every relay instance.
type NotificationService interface {
	Publish(ctx context.Context, req domain.NotificationRequest) (int64, error)
}

// AccessChecker asks the external policy service whether subject may
// follow the given subscription key.
type AccessChecker interface {
	CanAccess(ctx context.Context, subject, subscriptionKey string) (bool, error)
}
