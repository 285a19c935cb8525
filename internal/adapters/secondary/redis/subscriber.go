package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lorrc/notification-relay/internal/core/broadcast"
	"github.com/lorrc/notification-relay/internal/core/retry"
)

var (
	ErrAlreadyStarted = errors.New("subscriber already started")
	ErrNoSubscribeAck = errors.New("subscribe returned without confirmation")
)

// State is the lifecycle of the channel subscription.
type State int32

const (
	StateDisconnected State = iota
	StateSubscribing
	StateSubscribed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PubSub is the part of *goredis.PubSub the subscriber depends on.
type PubSub interface {
	Receive(ctx context.Context) (interface{}, error)
	ReceiveTimeout(ctx context.Context, timeout time.Duration) (interface{}, error)
	Close() error
}

// SubscribeFunc opens a dedicated pub/sub connection subscribed to channel.
type SubscribeFunc func(ctx context.Context, channel string) PubSub

// ClientSubscribe adapts a go-redis client into a SubscribeFunc.
func ClientSubscribe(client goredis.UniversalClient) SubscribeFunc {
	return func(ctx context.Context, channel string) PubSub {
		return client.Subscribe(ctx, channel)
	}
}

// SubscriberConfig configures the channel subscription.
type SubscriberConfig struct {
	Channel string
	// MaxAttempts bounds how many times a subscribe is tried before the
	// subscriber gives up and enters StateFailed.
	MaxAttempts    int
	InitialBackoff time.Duration
	// AckTimeout is how long one attempt waits for the subscribe confirmation.
	AckTimeout time.Duration
}

// Subscriber keeps exactly one live subscription to the broadcast channel
// and republishes every received payload into a local hot stream.
type Subscriber struct {
	subscribe  SubscribeFunc
	channel    string
	policy     retry.Policy
	ackTimeout time.Duration
	stream     *broadcast.Broker[string]
	logger     *slog.Logger

	state atomic.Int32

	mu       sync.Mutex
	current  PubSub
	cancel   context.CancelFunc
	loopDone chan struct{}

	failed   chan struct{}
	failOnce sync.Once
	failErr  error
}

// NewSubscriber creates a subscriber that feeds stream.
func NewSubscriber(subscribe SubscribeFunc, cfg SubscriberConfig, stream *broadcast.Broker[string], logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	ackTimeout := cfg.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = 5 * time.Second
	}

	return &Subscriber{
		subscribe: subscribe,
		channel:   cfg.Channel,
		policy: retry.Policy{
			MaxRetries:     attempts - 1,
			InitialBackoff: cfg.InitialBackoff,
			Multiplier:     2,
		},
		ackTimeout: ackTimeout,
		stream:     stream,
		logger:     logger.With("component", "subscriber", "channel", cfg.Channel),
		failed:     make(chan struct{}),
	}
}

// Start subscribes to the channel and blocks until the first subscription
// is confirmed. Messages are then pumped in the background until Stop.
func (s *Subscriber) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateDisconnected), int32(StateSubscribing)) {
		return ErrAlreadyStarted
	}

	ps, err := s.subscribeWithRetry(ctx)
	if err != nil {
		s.fail(err)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.current = ps
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	s.setState(StateSubscribed)
	s.logger.Info("Successfully subscribed to channel")

	go s.run(loopCtx, ps)
	return nil
}

// Stop ends the subscription and waits for the pump to exit.
func (s *Subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	if cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel()
	ps := s.current
	done := s.loopDone
	s.mu.Unlock()

	if ps != nil {
		_ = ps.Close()
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if State(s.state.Load()) != StateFailed {
		s.setState(StateDisconnected)
	}
	return nil
}

// Subscribe returns a channel of raw messages received after this call.
func (s *Subscriber) Subscribe(ctx context.Context) <-chan string {
	return s.stream.Subscribe(ctx)
}

// IsReady reports whether a subscription is currently live.
func (s *Subscriber) IsReady() bool {
	return State(s.state.Load()) == StateSubscribed
}

// State returns the current lifecycle state.
func (s *Subscriber) State() State {
	return State(s.state.Load())
}

// Failed is closed once the subscriber gave up on the channel for good.
func (s *Subscriber) Failed() <-chan struct{} {
	return s.failed
}

// Err returns the cause of the failure after Failed is closed.
func (s *Subscriber) Err() error {
	select {
	case <-s.failed:
		return s.failErr
	default:
		return nil
	}
}

func (s *Subscriber) run(ctx context.Context, ps PubSub) {
	defer close(s.loopDone)

	for {
		msg, err := ps.Receive(ctx)
		if ctx.Err() != nil {
			_ = ps.Close()
			return
		}
		if err != nil {
			s.logger.Warn("receive failed, resubscribing", "error", err)
			if ps = s.resubscribe(ctx, ps); ps == nil {
				return
			}
			continue
		}

		switch m := msg.(type) {
		case *goredis.Message:
			s.stream.Publish(ctx, m.Payload)
		case *goredis.Subscription:
			if m.Kind == "unsubscribe" && m.Channel == s.channel {
				s.logger.Info("unsubscribed without request, resubscribing")
				if ps = s.resubscribe(ctx, ps); ps == nil {
					return
				}
				s.logger.Info("Re-subscribed after unsubscribe")
			}
		case *goredis.Pong:
		default:
			s.logger.Debug("ignoring pub/sub event", "type", fmt.Sprintf("%T", msg))
		}
	}
}

// resubscribe replaces old with a fresh subscription. It returns nil when
// the subscriber is stopping or has failed.
func (s *Subscriber) resubscribe(ctx context.Context, old PubSub) PubSub {
	_ = old.Close()
	s.setState(StateSubscribing)

	ps, err := s.subscribeWithRetry(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.fail(err)
		}
		return nil
	}

	// Stop cancels under the same lock, so a subscription created while
	// stopping is closed here instead of leaking.
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		_ = ps.Close()
		return nil
	}
	s.current = ps
	s.mu.Unlock()
	s.setState(StateSubscribed)
	return ps
}

func (s *Subscriber) subscribeWithRetry(ctx context.Context) (PubSub, error) {
	return retry.Do(ctx, s.policy, func(ctx context.Context) (PubSub, error) {
		ps := s.subscribe(ctx, s.channel)
		if err := s.awaitAck(ctx, ps); err != nil {
			_ = ps.Close()
			s.logger.Warn("subscribe attempt failed", "error", err)
			return nil, err
		}
		return ps, nil
	})
}

// awaitAck waits for the confirmation that the channel subscription is live.
// Returning without one counts as a failed attempt.
func (s *Subscriber) awaitAck(ctx context.Context, ps PubSub) error {
	deadline := time.Now().Add(s.ackTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrNoSubscribeAck
		}

		msg, err := ps.ReceiveTimeout(ctx, remaining)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNoSubscribeAck, err)
		}

		if sub, ok := msg.(*goredis.Subscription); ok && sub.Kind == "subscribe" && sub.Channel == s.channel {
			return nil
		}
	}
}

func (s *Subscriber) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.logger.Debug("subscriber state changed", "from", prev.String(), "to", st.String())
	}
}

func (s *Subscriber) fail(err error) {
	s.failOnce.Do(func() {
		s.failErr = err
		s.setState(StateFailed)
		s.logger.Error("giving up on channel subscription", "error", err)
		close(s.failed)
	})
}
