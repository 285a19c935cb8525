package websocket

import (
	"context"
	"log/slog"

	"github.com/lorrc/notification-relay/internal/core/domain"
)

// DeliveryObserver is told about every event pushed to a connection.
type DeliveryObserver interface {
	EventDelivered(eventType domain.EventType)
}

// Notifier pushes broadcast messages to the listeners they are addressed to.
type Notifier struct {
	registry *Registry
	observer DeliveryObserver
	logger   *slog.Logger
}

// NewNotifier creates a notifier over registry. observer may be nil.
func NewNotifier(registry *Registry, observer DeliveryObserver, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		registry: registry,
		observer: observer,
		logger:   logger.With("component", "notifier"),
	}
}

// Run notifies for every message until ctx is done or messages is closed.
func (n *Notifier) Run(ctx context.Context, messages <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-messages:
			if !ok {
				return
			}
			n.Notify(raw)
		}
	}
}

// Notify delivers one raw broadcast message. Malformed messages are logged
// and dropped; a failing listener never keeps the others from receiving.
func (n *Notifier) Notify(raw string) {
	env, err := domain.DecodeEnvelope(raw)
	if err != nil {
		n.logger.Warn("dropping undecodable broadcast message", "error", err)
		return
	}

	listeners := n.registry.Listeners(env.SubscriptionKey)
	if len(listeners) == 0 {
		return
	}

	payload := env.EventType.Encode()
	for _, l := range listeners {
		if !l.Session.IsOpen() {
			n.logger.Debug("evicting closed connection",
				"subscription_key", env.SubscriptionKey,
				"connection_id", l.Session.ID(),
			)
			n.registry.Remove(l)
			continue
		}

		if !l.Subscription.Wants(env.EventType) {
			continue
		}

		if err := l.Session.Send(payload); err != nil {
			n.logger.Warn("delivery failed, evicting connection",
				"subscription_key", env.SubscriptionKey,
				"connection_id", l.Session.ID(),
				"error", err,
			)
			n.registry.Remove(l)
			continue
		}

		if n.observer != nil {
			n.observer.EventDelivered(env.EventType)
		}
	}

	n.logger.Debug("notified listeners",
		"subscription_key", env.SubscriptionKey,
		"event_type", env.EventType,
		"listeners", len(listeners),
	)
}
