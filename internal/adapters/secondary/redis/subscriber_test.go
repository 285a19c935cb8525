package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/notification-relay/internal/core/broadcast"
)

const testChannel = "dab.dialog-events-v1"

var errReceiveTimeout = errors.New("i/o timeout")

type fakePubSub struct {
	events    chan interface{}
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{
		events: make(chan interface{}, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakePubSub) Receive(ctx context.Context) (interface{}, error) {
	select {
	case ev := <-f.events:
		return ev, nil
	case <-f.closed:
		return nil, goredis.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakePubSub) ReceiveTimeout(ctx context.Context, timeout time.Duration) (interface{}, error) {
	select {
	case ev := <-f.events:
		return ev, nil
	case <-f.closed:
		return nil, goredis.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, errReceiveTimeout
	}
}

func (f *fakePubSub) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakePubSub) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// fakeMedium hands out fake pub/sub connections and decides whether each
// one confirms its subscription.
type fakeMedium struct {
	mu    sync.Mutex
	conns []*fakePubSub
	ack   func(attempt int) bool
}

func (m *fakeMedium) subscribe(_ context.Context, channel string) PubSub {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps := newFakePubSub()
	m.conns = append(m.conns, ps)
	if m.ack == nil || m.ack(len(m.conns)) {
		ps.events <- &goredis.Subscription{Kind: "subscribe", Channel: channel, Count: 1}
	}
	return ps
}

func (m *fakeMedium) attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *fakeMedium) latest() *fakePubSub {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[len(m.conns)-1]
}

func newTestSubscriber(t *testing.T, medium *fakeMedium) (*Subscriber, *broadcast.Broker[string]) {
	t.Helper()
	stream := broadcast.NewBroker[string]("test")
	t.Cleanup(stream.Shutdown)

	sub := NewSubscriber(medium.subscribe, SubscriberConfig{
		Channel:        testChannel,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		AckTimeout:     20 * time.Millisecond,
	}, stream, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sub.Stop(ctx)
	})
	return sub, stream
}

func receiveMessage(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "stream closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	return ""
}

func TestSubscriber_StartBlocksUntilSubscribed(t *testing.T) {
	medium := &fakeMedium{}
	sub, _ := newTestSubscriber(t, medium)

	assert.False(t, sub.IsReady())
	assert.Equal(t, StateDisconnected, sub.State())

	require.NoError(t, sub.Start(context.Background()))

	assert.True(t, sub.IsReady())
	assert.Equal(t, 1, medium.attempts())
	assert.ErrorIs(t, sub.Start(context.Background()), ErrAlreadyStarted)
}

func TestSubscriber_ForwardsMessagesInOrder(t *testing.T) {
	medium := &fakeMedium{}
	sub, _ := newTestSubscriber(t, medium)
	require.NoError(t, sub.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages := sub.Subscribe(ctx)

	ps := medium.latest()
	ps.events <- &goredis.Message{Channel: testChannel, Payload: "first"}
	ps.events <- &goredis.Pong{}
	ps.events <- &goredis.Message{Channel: testChannel, Payload: "second"}

	assert.Equal(t, "first", receiveMessage(t, messages))
	assert.Equal(t, "second", receiveMessage(t, messages))
}

func TestSubscriber_ResubscribesAfterUnrequestedUnsubscribe(t *testing.T) {
	medium := &fakeMedium{}
	sub, _ := newTestSubscriber(t, medium)
	require.NoError(t, sub.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages := sub.Subscribe(ctx)

	first := medium.latest()
	first.events <- &goredis.Subscription{Kind: "unsubscribe", Channel: testChannel, Count: 0}

	require.Eventually(t, func() bool {
		return medium.attempts() == 2 && sub.IsReady()
	}, time.Second, 5*time.Millisecond)
	assert.True(t, first.isClosed())

	medium.latest().events <- &goredis.Message{Channel: testChannel, Payload: "after resubscribe"}
	assert.Equal(t, "after resubscribe", receiveMessage(t, messages))
}

func TestSubscriber_ResubscribesAfterReceiveError(t *testing.T) {
	medium := &fakeMedium{}
	sub, _ := newTestSubscriber(t, medium)
	require.NoError(t, sub.Start(context.Background()))

	_ = medium.latest().Close()

	require.Eventually(t, func() bool {
		return medium.attempts() == 2 && sub.IsReady()
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriber_RetriesWhenSubscribeIsNotConfirmed(t *testing.T) {
	medium := &fakeMedium{ack: func(attempt int) bool { return attempt == 3 }}
	sub, _ := newTestSubscriber(t, medium)

	require.NoError(t, sub.Start(context.Background()))

	assert.Equal(t, 3, medium.attempts())
	assert.True(t, sub.IsReady())
}

func TestSubscriber_FailsAfterMaxAttempts(t *testing.T) {
	medium := &fakeMedium{ack: func(int) bool { return false }}
	sub, _ := newTestSubscriber(t, medium)

	err := sub.Start(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSubscribeAck)
	assert.Equal(t, 3, medium.attempts())
	assert.Equal(t, StateFailed, sub.State())
	assert.False(t, sub.IsReady())

	select {
	case <-sub.Failed():
	default:
		t.Fatal("expected failed channel to be closed")
	}
	assert.Error(t, sub.Err())
}

func TestSubscriber_FailsWhenResubscribeIsExhausted(t *testing.T) {
	medium := &fakeMedium{ack: func(attempt int) bool { return attempt == 1 }}
	sub, _ := newTestSubscriber(t, medium)
	require.NoError(t, sub.Start(context.Background()))

	medium.latest().events <- &goredis.Subscription{Kind: "unsubscribe", Channel: testChannel}

	select {
	case <-sub.Failed():
	case <-time.After(time.Second):
		t.Fatal("subscriber did not fail")
	}
	assert.Equal(t, 4, medium.attempts())
	assert.False(t, sub.IsReady())
}

func TestSubscriber_StopEndsSubscription(t *testing.T) {
	medium := &fakeMedium{}
	sub, _ := newTestSubscriber(t, medium)
	require.NoError(t, sub.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sub.Stop(ctx))

	assert.False(t, sub.IsReady())
	assert.Equal(t, StateDisconnected, sub.State())
	assert.True(t, medium.latest().isClosed())
	assert.Equal(t, 1, medium.attempts())
}
