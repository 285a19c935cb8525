package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lorrc/notification-relay/internal/core/domain"
	apperrors "github.com/lorrc/notification-relay/internal/core/errors"
	"github.com/lorrc/notification-relay/internal/core/ports"
	"github.com/lorrc/notification-relay/internal/core/retry"
)

// TicketStore keeps subscriptions keyed by ticket value, as JSON with a TTL.
type TicketStore struct {
	client goredis.UniversalClient
	policy retry.Policy
}

var _ ports.TicketStore = (*TicketStore)(nil)

// NewTicketStore creates a ticket store on the given client.
func NewTicketStore(client goredis.UniversalClient, policy retry.Policy) *TicketStore {
	return &TicketStore{client: client, policy: policy}
}

func (s *TicketStore) Get(ctx context.Context, ticket domain.WellFormedTicket) (domain.Subscription, error) {
	// A missing key is an answer, not a failure, so it is never retried.
	raw, err := retry.Do(ctx, s.policy, func(ctx context.Context) (*string, error) {
		val, err := s.client.Get(ctx, ticket.String()).Result()
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &val, nil
	})
	if err != nil {
		return domain.Subscription{}, apperrors.NewBackendError("get subscription", err, Classify)
	}
	if raw == nil {
		return domain.Subscription{}, apperrors.ErrSubscriptionNotFound
	}

	var sub domain.Subscription
	if err := json.Unmarshal([]byte(*raw), &sub); err != nil {
		return domain.Subscription{}, &apperrors.BackendError{
			Kind: apperrors.BackendUnknown,
			Op:   "get subscription (json decode)",
			Err:  err,
		}
	}
	return sub, nil
}

func (s *TicketStore) Put(ctx context.Context, ticket domain.WellFormedTicket, sub domain.Subscription, ttl time.Duration) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return &apperrors.BackendError{
			Kind: apperrors.BackendUnknown,
			Op:   "add subscription (json encode)",
			Err:  fmt.Errorf("marshal subscription: %w", err),
		}
	}

	if err := retry.DoErr(ctx, s.policy, func(ctx context.Context) error {
		return s.client.Set(ctx, ticket.String(), data, ttl).Err()
	}); err != nil {
		return apperrors.NewBackendError("add subscription", err, Classify)
	}
	return nil
}

func (s *TicketStore) Delete(ctx context.Context, ticket domain.WellFormedTicket) error {
	if err := retry.DoErr(ctx, s.policy, func(ctx context.Context) error {
		return s.client.Del(ctx, ticket.String()).Err()
	}); err != nil {
		return apperrors.NewBackendError("remove subscription", err, Classify)
	}
	return nil
}
