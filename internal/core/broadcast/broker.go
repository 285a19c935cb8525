// Package broadcast provides an in-process hot multicast stream.
//
// A Broker has no history: a consumer only sees values published after it
// subscribed. Every live consumer receives every value in publish order.
// Publish blocks on a full consumer instead of dropping values; a consumer
// that goes away (context cancelled) is skipped.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultBufferSize is the default channel buffer for consumers.
const DefaultBufferSize = 64

// Option configures a Broker.
type Option[T any] func(*Broker[T])

// WithBufferSize sets the consumer channel buffer size.
func WithBufferSize[T any](size int) Option[T] {
	return func(b *Broker[T]) {
		if size >= 0 {
			b.bufferSize = size
		}
	}
}

// WithLogger sets the logger used for consumer count transitions.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(b *Broker[T]) {
		b.logger = logger
	}
}

type subscriber[T any] struct {
	ch   chan T
	done <-chan struct{}
}

// Broker fans values out to every current consumer.
type Broker[T any] struct {
	subs       map[*subscriber[T]]struct{}
	mu         sync.RWMutex
	done       chan struct{}
	closeOnce  sync.Once
	bufferSize int
	logger     *slog.Logger
}

// NewBroker creates a broker with optional configuration.
func NewBroker[T any](name string, opts ...Option[T]) *Broker[T] {
	b := &Broker[T]{
		subs:       make(map[*subscriber[T]]struct{}),
		done:       make(chan struct{}),
		bufferSize: DefaultBufferSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "broadcast", "stream", name)
	return b
}

// Subscribe registers a consumer until ctx is done or the broker shuts down.
// The returned channel is closed at that point.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan T)
		close(ch)
		return ch
	default:
	}

	sub := &subscriber[T]{
		ch:   make(chan T, b.bufferSize),
		done: ctx.Done(),
	}
	b.subs[sub] = struct{}{}
	if len(b.subs) == 1 {
		b.logger.Info("stream received consumers")
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}

		// Publish holds the read lock while sending, so closing under the
		// write lock never races with a send.
		b.mu.Lock()
		defer b.mu.Unlock()

		if _, ok := b.subs[sub]; !ok {
			return
		}
		delete(b.subs, sub)
		close(sub.ch)
		if len(b.subs) == 0 {
			b.logger.Info("stream has no consumers")
		}
	}()

	return sub.ch
}

// Publish delivers v to every current consumer, in subscription-independent
// order. It blocks on a full consumer until that consumer reads, goes away,
// the broker shuts down or ctx is done.
func (b *Broker[T]) Publish(ctx context.Context, v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.done:
		return
	default:
	}

	for sub := range b.subs {
		select {
		case sub.ch <- v:
		case <-sub.done:
		case <-b.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown closes every consumer channel. Later publishes are ignored.
func (b *Broker[T]) Shutdown() {
	b.closeOnce.Do(func() {
		close(b.done)
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// SubscriberCount returns the number of live consumers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
