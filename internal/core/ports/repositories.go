package ports

import (
	"context"
	"time"

	"github.com/lorrc/notification-relay/internal/core/domain"
)

// TicketStore is the shared, cross-instance store of issued tickets.
// Get returns apperrors.ErrSubscriptionNotFound for unknown tickets; every
// other failure is an *apperrors.BackendError.
type TicketStore interface {
	Get(ctx context.Context, ticket domain.WellFormedTicket) (domain.Subscription, error)
	Put(ctx context.Context, ticket domain.WellFormedTicket, sub domain.Subscription, ttl time.Duration) error
	Delete(ctx context.Context, ticket domain.WellFormedTicket) error
}

// MessagePublisher places envelopes on the shared broadcast medium and
// reports how many relay processes received them.
type MessagePublisher interface {
	Publish(ctx context.Context, env domain.BroadcastEnvelope) (int64, error)
}

// HealthChecker verifies that a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
