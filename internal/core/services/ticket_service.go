package services

import (
	"context"
	"time"

	"github.com/lorrc/notification-relay/internal/core/domain"
	apperrors "github.com/lorrc/notification-relay/internal/core/errors"
	"github.com/lorrc/notification-relay/internal/core/ports"
)

// DefaultTicketTTL is how long an issued ticket stays redeemable.
const DefaultTicketTTL = 6 * time.Hour

// TicketServiceConfig holds ticket protocol settings.
type TicketServiceConfig struct {
	TTL time.Duration
	// SingleUse deletes a ticket once it has been consumed successfully.
	SingleUse bool
}

// TicketService issues and redeems connection tickets.
type TicketService struct {
	store     ports.TicketStore
	ttl       time.Duration
	singleUse bool
}

var _ ports.TicketService = (*TicketService)(nil)

// NewTicketService creates a ticket service backed by the shared store.
func NewTicketService(store ports.TicketStore, cfg TicketServiceConfig) ports.TicketService {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	return &TicketService{
		store:     store,
		ttl:       ttl,
		singleUse: cfg.SingleUse,
	}
}

// IssueTicket mints a ticket and stores the subscription it grants.
func (s *TicketService) IssueTicket(ctx context.Context, subject string, req domain.TicketRequest) (domain.WellFormedTicket, error) {
	ticket := domain.NewTicket()
	sub := domain.NewSubscription(subject, ticket, req)

	if err := s.store.Put(ctx, ticket, sub, s.ttl); err != nil {
		return domain.WellFormedTicket{}, apperrors.ToGenerateTicketError(err)
	}

	return ticket, nil
}

// ConsumeTicket resolves a well-formed ticket into its subscription.
func (s *TicketService) ConsumeTicket(ctx context.Context, ticket domain.WellFormedTicket) (domain.ValidatedTicket, error) {
	sub, err := s.store.Get(ctx, ticket)
	if err != nil {
		return domain.ValidatedTicket{}, apperrors.ToTicketError(ticket.Fingerprint(), err)
	}

	if s.singleUse {
		if err := s.store.Delete(ctx, ticket); err != nil {
			return domain.ValidatedTicket{}, apperrors.ToTicketError(ticket.Fingerprint(), err)
		}
	}

	return domain.ValidatedTicket{Ticket: ticket, Subscription: sub}, nil
}
