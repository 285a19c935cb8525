package websocket

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/lorrc/notification-relay/internal/core/domain"
)

// ConnectionObserver is told when authenticated connections come and go.
type ConnectionObserver interface {
	ConnectionAdded()
	ConnectionRemoved()
}

// Listener is an authenticated session together with the subscription it
// was admitted with. The subscription never changes for the session's lifetime.
type Listener struct {
	Session      Session
	Subscription domain.Subscription
}

func (l *Listener) matches(other *Listener) bool {
	return l.Session.ID() == other.Session.ID() && l.Subscription.Equal(other.Subscription)
}

// Registry maps subscription keys to their live listeners.
//
// The slice stored under a key is never modified after it is published;
// Add and Remove build a new slice and swap it in, so a slice returned by
// Listeners stays valid while other goroutines mutate the registry.
type Registry struct {
	listeners map[string][]*Listener
	mu        sync.RWMutex
	observer  ConnectionObserver
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. observer may be nil.
func NewRegistry(observer ConnectionObserver, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		listeners: make(map[string][]*Listener),
		observer:  observer,
		logger:    logger.With("component", "connection_registry"),
	}
}

// Add registers a listener under its subscription key. A session that is
// already registered under the key is not added twice.
func (r *Registry) Add(l *Listener) {
	key := l.Subscription.SubscriptionKey

	r.mu.Lock()
	current := r.listeners[key]
	for _, existing := range current {
		if existing.Session.ID() == l.Session.ID() {
			r.mu.Unlock()
			return
		}
	}
	next := make([]*Listener, len(current), len(current)+1)
	copy(next, current)
	r.listeners[key] = append(next, l)
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.ConnectionAdded()
	}
	r.logger.Debug("listener added",
		"subscription_key", key,
		"connection_id", l.Session.ID(),
	)
}

// Remove unregisters a listener and closes its session with GoingAway.
func (r *Registry) Remove(l *Listener) {
	key := l.Subscription.SubscriptionKey

	r.mu.Lock()
	current := r.listeners[key]
	next := make([]*Listener, 0, len(current))
	for _, existing := range current {
		if !existing.matches(l) {
			next = append(next, existing)
		}
	}
	removed := len(current) - len(next)
	if len(next) == 0 {
		delete(r.listeners, key)
	} else if removed > 0 {
		r.listeners[key] = next
	}
	r.mu.Unlock()

	l.Session.Close(websocket.CloseGoingAway, "connection removed")

	if removed == 0 {
		return
	}
	if r.observer != nil {
		for i := 0; i < removed; i++ {
			r.observer.ConnectionRemoved()
		}
	}
	r.logger.Debug("listener removed",
		"subscription_key", key,
		"connection_id", l.Session.ID(),
	)
}

// Listeners returns the listeners registered under key. The result must
// not be modified.
func (r *Registry) Listeners(key string) []*Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listeners[key]
}

// Count returns the number of listeners under key.
func (r *Registry) Count(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[key])
}

// CountAll returns the number of listeners across all keys.
func (r *Registry) CountAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, list := range r.listeners {
		count += len(list)
	}
	return count
}

// CloseAll removes every listener, closing each session.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	all := make([]*Listener, 0)
	for _, list := range r.listeners {
		all = append(all, list...)
	}
	r.mu.RUnlock()

	for _, l := range all {
		r.Remove(l)
	}
}
