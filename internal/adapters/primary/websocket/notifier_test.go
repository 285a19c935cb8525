package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/notification-relay/internal/core/domain"
)

type deliveryCounter struct {
	counts map[domain.EventType]int
}

func (d *deliveryCounter) EventDelivered(e domain.EventType) {
	if d.counts == nil {
		d.counts = make(map[domain.EventType]int)
	}
	d.counts[e]++
}

func envelope(t *testing.T, key string, e domain.EventType) string {
	t.Helper()
	raw, err := domain.BroadcastEnvelope{SubscriptionKey: key, EventType: e}.Marshal()
	require.NoError(t, err)
	return raw
}

func TestNotifier_DeliversOnlyToMatchingKey(t *testing.T) {
	registry := NewRegistry(nil, nil)
	counter := &deliveryCounter{}
	notifier := NewNotifier(registry, counter, nil)

	k1, s1 := newListener("K")
	k2, s2 := newListener("K")
	j, sj := newListener("J")
	registry.Add(k1)
	registry.Add(k2)
	registry.Add(j)

	notifier.Notify(envelope(t, "K", domain.EventMessageFromUser))

	want := []string{`"NY_DIALOGMELDING_FRA_BRUKER_TIL_NAV"`}
	assert.Equal(t, want, s1.messages())
	assert.Equal(t, want, s2.messages())
	assert.Empty(t, sj.messages())
	assert.Equal(t, 2, counter.counts[domain.EventMessageFromUser])
}

func TestNotifier_RespectsSelectedEvents(t *testing.T) {
	registry := NewRegistry(nil, nil)
	notifier := NewNotifier(registry, nil, nil)

	session := newFakeSession()
	ticket := domain.NewTicket()
	registry.Add(&Listener{
		Session: session,
		Subscription: domain.NewSubscription("Z1", ticket, domain.TicketRequest{
			SubscriptionKey: "K",
			Events:          []domain.EventType{domain.EventMessageToUser},
		}),
	})

	notifier.Notify(envelope(t, "K", domain.EventMessageFromUser))
	notifier.Notify(envelope(t, "K", domain.EventMessageToUser))

	assert.Equal(t, []string{`"NY_DIALOGMELDING_FRA_NAV_TIL_BRUKER"`}, session.messages())
}

func TestNotifier_EvictsClosedSessions(t *testing.T) {
	observer := &countingObserver{}
	registry := NewRegistry(observer, nil)
	notifier := NewNotifier(registry, nil, nil)

	alive, aliveSession := newListener("K")
	dead, deadSession := newListener("K")
	registry.Add(alive)
	registry.Add(dead)
	deadSession.open.Store(false)

	notifier.Notify(envelope(t, "K", domain.EventMessageToUser))

	assert.Len(t, aliveSession.messages(), 1)
	assert.Empty(t, deadSession.messages())
	assert.Equal(t, 1, registry.Count("K"))
	assert.Equal(t, int64(1), observer.removed.Load())
}

func TestNotifier_FailedSendDoesNotBlockOthers(t *testing.T) {
	registry := NewRegistry(nil, nil)
	notifier := NewNotifier(registry, nil, nil)

	broken, brokenSession := newListener("K")
	brokenSession.sendErr = ErrSendBufferFull
	healthy, healthySession := newListener("K")
	registry.Add(broken)
	registry.Add(healthy)

	notifier.Notify(envelope(t, "K", domain.EventMessageToUser))

	assert.Len(t, healthySession.messages(), 1)
	assert.Equal(t, 1, registry.Count("K"))
	assert.False(t, brokenSession.IsOpen())
}

func TestNotifier_DropsMalformedMessages(t *testing.T) {
	registry := NewRegistry(nil, nil)
	notifier := NewNotifier(registry, nil, nil)

	l, session := newListener("K")
	registry.Add(l)

	for _, raw := range []string{
		"",
		"not json",
		`{"subscriptionKey":"K"}`,
		`{"subscriptionKey":"K","eventType":"UNKNOWN"}`,
		`{"eventType":"NY_DIALOGMELDING_FRA_NAV_TIL_BRUKER"}`,
	} {
		assert.NotPanics(t, func() { notifier.Notify(raw) })
	}

	assert.Empty(t, session.messages())
	assert.Equal(t, 1, registry.CountAll())
}

func TestNotifier_RunConsumesUntilChannelCloses(t *testing.T) {
	registry := NewRegistry(nil, nil)
	notifier := NewNotifier(registry, nil, nil)

	l, session := newListener("K")
	registry.Add(l)

	messages := make(chan string, 2)
	messages <- envelope(t, "K", domain.EventMessageToUser)
	messages <- envelope(t, "K", domain.EventMessageFromUser)
	close(messages)

	done := make(chan struct{})
	go func() {
		defer close(done)
		notifier.Run(context.Background(), messages)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, []string{
		`"NY_DIALOGMELDING_FRA_NAV_TIL_BRUKER"`,
		`"NY_DIALOGMELDING_FRA_BRUKER_TIL_NAV"`,
	}, session.messages())
}
