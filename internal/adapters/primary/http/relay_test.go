package http

import (
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wsAdapter "github.com/lorrc/notification-relay/internal/adapters/primary/websocket"
	"github.com/lorrc/notification-relay/internal/adapters/secondary/authz"
	"github.com/lorrc/notification-relay/internal/auth"
	"github.com/lorrc/notification-relay/internal/core/broadcast"
	"github.com/lorrc/notification-relay/internal/core/domain"
	apperrors "github.com/lorrc/notification-relay/internal/core/errors"
	"github.com/lorrc/notification-relay/internal/core/services"
)

// memoryStore is a ticket store shared by every relay instance in a test.
type memoryStore struct {
	mu   sync.Mutex
	subs map[string]domain.Subscription
}

func newMemoryStore() *memoryStore {
	return &memoryStore{subs: make(map[string]domain.Subscription)}
}

func (s *memoryStore) Get(_ context.Context, ticket domain.WellFormedTicket) (domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[ticket.String()]
	if !ok {
		return domain.Subscription{}, apperrors.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *memoryStore) Put(_ context.Context, ticket domain.WellFormedTicket, sub domain.Subscription, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[ticket.String()] = sub
	return nil
}

func (s *memoryStore) Delete(_ context.Context, ticket domain.WellFormedTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, ticket.String())
	return nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

// memoryMedium fans published envelopes out to every attached instance's
// stream and reports the number of instances as receivers.
type memoryMedium struct {
	mu      sync.Mutex
	streams []*broadcast.Broker[string]
}

func (m *memoryMedium) attach(b *broadcast.Broker[string]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = append(m.streams, b)
}

func (m *memoryMedium) Publish(ctx context.Context, env domain.BroadcastEnvelope) (int64, error) {
	raw, err := env.Marshal()
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	streams := append([]*broadcast.Broker[string](nil), m.streams...)
	m.mu.Unlock()

	for _, s := range streams {
		s.Publish(ctx, raw)
	}
	return int64(len(streams)), nil
}

type relayInstance struct {
	server   *httptest.Server
	registry *wsAdapter.Registry
}

func newRelayInstance(t *testing.T, store *memoryStore, medium *memoryMedium, tm *auth.TokenManager) *relayInstance {
	t.Helper()
	logger := testLogger()
	ctx, cancel := context.WithCancel(context.Background())

	stream := broadcast.NewBroker[string]("test", broadcast.WithLogger[string](logger))
	medium.attach(stream)

	registry := wsAdapter.NewRegistry(nil, logger)
	notifier := wsAdapter.NewNotifier(registry, nil, logger)
	messages := stream.Subscribe(ctx)
	go notifier.Run(ctx, messages)

	tickets := services.NewTicketService(store, services.TicketServiceConfig{})
	notifications := services.NewNotificationService(medium, nil, logger)
	protocol := wsAdapter.NewAuthProtocol(tickets, registry, 2*time.Second, logger)
	errorHandler := NewErrorHandler(logger)

	router := NewRouter(RouterConfig{Logger: logger, TokenValidator: tm}, Handlers{
		Health:    NewHealthHandler(store, readiness(true), registry, "test", logger),
		Notify:    NewNotifyHandler(notifications, errorHandler, logger),
		Ticket:    NewWSTicketHandler(tickets, authz.AllowAll{}, errorHandler, logger),
		WebSocket: NewWebSocketHandler(protocol, WebSocketConfig{IsDevelopment: true}, logger),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		protocol.Shutdown()
		registry.CloseAll()
		srv.Close()
		cancel()
		stream.Shutdown()
	})

	return &relayInstance{server: srv, registry: registry}
}

func (ri *relayInstance) post(t *testing.T, tm *auth.TokenManager, subject, path, payload string) (int, string) {
	t.Helper()
	req, err := stdhttp.NewRequest(stdhttp.MethodPost, ri.server.URL+path, strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Authorization", bearer(t, tm, subject))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ri.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func (ri *relayInstance) issueTicket(t *testing.T, tm *auth.TokenManager, subject, body string) string {
	t.Helper()
	status, ticket := ri.post(t, tm, subject, "/ws-auth-ticket", body)
	require.Equal(t, stdhttp.StatusOK, status, ticket)
	return ticket
}

func (ri *relayInstance) publish(t *testing.T, tm *auth.TokenManager, key string, event domain.EventType) int64 {
	t.Helper()
	body, err := json.Marshal(domain.NotificationRequest{SubscriptionKey: key, EventType: event})
	require.NoError(t, err)

	status, resp := ri.post(t, tm, "producer", "/notify-subscribers", string(body))
	require.Equal(t, stdhttp.StatusOK, status, resp)

	var out NotifyResponse
	require.NoError(t, json.Unmarshal([]byte(resp), &out))
	return out.Receivers
}

func (ri *relayInstance) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ri.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	return string(data)
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message %q", data)
}

func newCluster(t *testing.T) (*relayInstance, *relayInstance, *auth.TokenManager) {
	tm := testTokenManager()
	store := newMemoryStore()
	medium := &memoryMedium{}
	return newRelayInstance(t, store, medium, tm), newRelayInstance(t, store, medium, tm), tm
}

func TestRelay_TicketThenEventAcrossInstances(t *testing.T) {
	producerSide, clientSide, tm := newCluster(t)

	ticket := producerSide.issueTicket(t, tm, "Z1", `{"subscriptionKey":"123"}`)

	conn := clientSide.dial(t)
	sendText(t, conn, ticket)
	require.Equal(t, wsAdapter.MessageAuthenticated, readText(t, conn))
	assert.Equal(t, 1, clientSide.registry.Count("123"))

	receivers := producerSide.publish(t, tm, "123", domain.EventMessageFromUser)
	assert.Equal(t, int64(2), receivers)

	assert.Equal(t, domain.EventMessageFromUser.Encode(), readText(t, conn))
}

func TestRelay_UnknownTicketThenValidTicket(t *testing.T) {
	relay, _, tm := newCluster(t)

	conn := relay.dial(t)
	sendText(t, conn, uuid.NewString())
	require.Equal(t, wsAdapter.MessageInvalidToken, readText(t, conn))

	sendText(t, conn, "not a ticket")
	require.Equal(t, wsAdapter.MessageInvalidToken, readText(t, conn))
	assert.Zero(t, relay.registry.CountAll())

	ticket := relay.issueTicket(t, tm, "Z1", `{"subscriptionKey":"123"}`)
	sendText(t, conn, ticket)
	require.Equal(t, wsAdapter.MessageAuthenticated, readText(t, conn))
	assert.Equal(t, 1, relay.registry.Count("123"))
}

func TestRelay_PublishWithoutListeners(t *testing.T) {
	producerSide, clientSide, tm := newCluster(t)

	receivers := producerSide.publish(t, tm, "nobody-listens", domain.EventMessageToUser)

	// receivers counts relay instances, not client connections
	assert.Equal(t, int64(2), receivers)
	assert.Zero(t, producerSide.registry.CountAll())
	assert.Zero(t, clientSide.registry.CountAll())
}

func TestRelay_DeliversOnlySelectedEventsForKey(t *testing.T) {
	relay, _, tm := newCluster(t)

	fromUserOnly := relay.dial(t)
	sendText(t, fromUserOnly, relay.issueTicket(t, tm, "Z1", `{"subscriptionKey":"123","events":["NY_DIALOGMELDING_FRA_BRUKER_TIL_NAV"]}`))
	require.Equal(t, wsAdapter.MessageAuthenticated, readText(t, fromUserOnly))

	otherKey := relay.dial(t)
	sendText(t, otherKey, relay.issueTicket(t, tm, "Z1", `{"subscriptionKey":"456"}`))
	require.Equal(t, wsAdapter.MessageAuthenticated, readText(t, otherKey))

	relay.publish(t, tm, "123", domain.EventMessageToUser)
	relay.publish(t, tm, "123", domain.EventMessageFromUser)

	assert.Equal(t, domain.EventMessageFromUser.Encode(), readText(t, fromUserOnly))
	expectSilence(t, otherKey)
}

func TestRelay_ReconnectWithSameTicket(t *testing.T) {
	relay, _, tm := newCluster(t)
	ticket := relay.issueTicket(t, tm, "Z1", `{"subscriptionKey":"123"}`)

	first := relay.dial(t)
	sendText(t, first, ticket)
	require.Equal(t, wsAdapter.MessageAuthenticated, readText(t, first))
	require.NoError(t, first.Close())

	require.Eventually(t, func() bool { return relay.registry.CountAll() == 0 }, 2*time.Second, 10*time.Millisecond)

	second := relay.dial(t)
	sendText(t, second, ticket)
	require.Equal(t, wsAdapter.MessageAuthenticated, readText(t, second))

	relay.publish(t, tm, "123", domain.EventMessageToUser)
	assert.Equal(t, domain.EventMessageToUser.Encode(), readText(t, second))
}

func TestRelay_HealthChecksAndAuth(t *testing.T) {
	relay, _, _ := newCluster(t)

	for _, path := range []string{"/isAlive", "/isReady", "/health/live", "/health/ready"} {
		resp, err := relay.server.Client().Get(relay.server.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, stdhttp.StatusOK, resp.StatusCode, path)
	}

	resp, err := relay.server.Client().Post(relay.server.URL+"/ws-auth-ticket", "application/json", strings.NewReader(`{"subscriptionKey":"123"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)
}
