package mocks

import (
	"context"
	"time"

	"github.com/lorrc/notification-relay/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

// MockTicketStore is a mock implementation of ports.TicketStore
type MockTicketStore struct {
	mock.Mock
}

func NewMockTicketStore() *MockTicketStore {
	return &MockTicketStore{}
}

func (m *MockTicketStore) Get(ctx context.Context, ticket domain.WellFormedTicket) (domain.Subscription, error) {
	args := m.Called(ctx, ticket)
	if args.Get(0) == nil {
		return domain.Subscription{}, args.Error(1)
	}
	return args.Get(0).(domain.Subscription), args.Error(1)
}

func (m *MockTicketStore) Put(ctx context.Context, ticket domain.WellFormedTicket, sub domain.Subscription, ttl time.Duration) error {
	args := m.Called(ctx, ticket, sub, ttl)
	return args.Error(0)
}

func (m *MockTicketStore) Delete(ctx context.Context, ticket domain.WellFormedTicket) error {
	args := m.Called(ctx, ticket)
	return args.Error(0)
}

// MockMessagePublisher is a mock implementation of ports.MessagePublisher
type MockMessagePublisher struct {
	mock.Mock
}

func NewMockMessagePublisher() *MockMessagePublisher {
	return &MockMessagePublisher{}
}

func (m *MockMessagePublisher) Publish(ctx context.Context, env domain.BroadcastEnvelope) (int64, error) {
	args := m.Called(ctx, env)
	return args.Get(0).(int64), args.Error(1)
}

// MockHealthChecker is a mock implementation of ports.HealthChecker
type MockHealthChecker struct {
	mock.Mock
}

func NewMockHealthChecker() *MockHealthChecker {
	return &MockHealthChecker{}
}

func (m *MockHealthChecker) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockTicketService is a mock implementation of ports.TicketService
type MockTicketService struct {
	mock.Mock
}

func NewMockTicketService() *MockTicketService {
	return &MockTicketService{}
}

func (m *MockTicketService) IssueTicket(ctx context.Context, subject string, req domain.TicketRequest) (domain.WellFormedTicket, error) {
	args := m.Called(ctx, subject, req)
	if args.Get(0) == nil {
		return domain.WellFormedTicket{}, args.Error(1)
	}
	return args.Get(0).(domain.WellFormedTicket), args.Error(1)
}

func (m *MockTicketService) ConsumeTicket(ctx context.Context, ticket domain.WellFormedTicket) (domain.ValidatedTicket, error) {
	args := m.Called(ctx, ticket)
	if args.Get(0) == nil {
		return domain.ValidatedTicket{}, args.Error(1)
	}
	return args.Get(0).(domain.ValidatedTicket), args.Error(1)
}

// MockNotificationService is a mock implementation of ports.NotificationService
type MockNotificationService struct {
	mock.Mock
}

func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{}
}

func (m *MockNotificationService) Publish(ctx context.Context, req domain.NotificationRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

// MockAccessChecker is a mock implementation of ports.AccessChecker
type MockAccessChecker struct {
	mock.Mock
}

func NewMockAccessChecker() *MockAccessChecker {
	return &MockAccessChecker{}
}

func (m *MockAccessChecker) CanAccess(ctx context.Context, subject, subscriptionKey string) (bool, error) {
	args := m.Called(ctx, subject, subscriptionKey)
	return args.Bool(0), args.Error(1)
}
