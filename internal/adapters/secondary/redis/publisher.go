package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lorrc/notification-relay/internal/core/domain"
	apperrors "github.com/lorrc/notification-relay/internal/core/errors"
	"github.com/lorrc/notification-relay/internal/core/ports"
	"github.com/lorrc/notification-relay/internal/core/retry"
)

// Publisher places broadcast envelopes on a Redis pub/sub channel.
type Publisher struct {
	client  goredis.UniversalClient
	channel string
	policy  retry.Policy
}

var _ ports.MessagePublisher = (*Publisher)(nil)

// NewPublisher creates a publisher for the named channel.
func NewPublisher(client goredis.UniversalClient, channel string, policy retry.Policy) *Publisher {
	return &Publisher{client: client, channel: channel, policy: policy}
}

// Publish returns the number of relay processes subscribed to the channel
// that received the message.
func (p *Publisher) Publish(ctx context.Context, env domain.BroadcastEnvelope) (int64, error) {
	payload, err := env.Marshal()
	if err != nil {
		return 0, &apperrors.BackendError{Kind: apperrors.BackendUnknown, Op: "publish", Err: err}
	}

	receivers, err := retry.Do(ctx, p.policy, func(ctx context.Context) (int64, error) {
		return p.client.Publish(ctx, p.channel, payload).Result()
	})
	if err != nil {
		return 0, apperrors.NewBackendError("publish", err, Classify)
	}
	return receivers, nil
}
