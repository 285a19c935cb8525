package services

import (
	"context"
	"log/slog"

	"github.com/lorrc/notification-relay/internal/core/domain"
	apperrors "github.com/lorrc/notification-relay/internal/core/errors"
	"github.com/lorrc/notification-relay/internal/core/ports"
)

// MaxSubscriptionKeyLength bounds the routing key accepted from producers.
const MaxSubscriptionKeyLength = 256

// PublishObserver is told about the outcome of every publish.
type PublishObserver interface {
	ObservePublish(err error)
}

// NotificationService validates producer requests and hands them to the broadcast medium.
type NotificationService struct {
	publisher ports.MessagePublisher
	observer  PublishObserver
	logger    *slog.Logger
}

var _ ports.NotificationService = (*NotificationService)(nil)

// NewNotificationService creates a notification service. observer may be nil.
func NewNotificationService(publisher ports.MessagePublisher, observer PublishObserver, logger *slog.Logger) ports.NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		publisher: publisher,
		observer:  observer,
		logger:    logger.With("component", "notification_service"),
	}
}

// Publish sends the notification to every relay instance and returns how
// many of them received it.
func (s *NotificationService) Publish(ctx context.Context, req domain.NotificationRequest) (int64, error) {
	if err := validateNotification(req); err != nil {
		return 0, err
	}

	receivers, err := s.publisher.Publish(ctx, req.Envelope())
	if s.observer != nil {
		s.observer.ObservePublish(err)
	}
	if err != nil {
		return 0, err
	}

	s.logger.DebugContext(ctx, "notification published",
		"subscription_key", req.SubscriptionKey,
		"event_type", req.EventType,
		"receivers", receivers,
	)
	return receivers, nil
}

func validateNotification(req domain.NotificationRequest) error {
	errs := apperrors.NewValidationErrors()

	switch {
	case req.SubscriptionKey == "":
		errs.Add("subscriptionKey", apperrors.ErrSubscriptionKeyRequired.Error())
	case len(req.SubscriptionKey) > MaxSubscriptionKeyLength:
		errs.Add("subscriptionKey", apperrors.ErrSubscriptionKeyTooLong.Error())
	}

	if !req.EventType.IsValid() {
		errs.Add("eventType", apperrors.ErrInvalidEventType.Error())
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
