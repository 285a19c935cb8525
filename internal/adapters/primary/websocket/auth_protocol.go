package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lorrc/notification-relay/internal/core/domain"
	apperrors "github.com/lorrc/notification-relay/internal/core/errors"
	"github.com/lorrc/notification-relay/internal/core/ports"
	"github.com/lorrc/notification-relay/internal/infrastructure/logging"
)

// Responses sent to a connection while it authenticates.
const (
	MessageAuthenticated = "AUTHENTICATED"
	MessageInvalidToken  = "INVALID_TOKEN"
)

const defaultAuthTimeout = 30 * time.Second

// AuthProtocol admits a freshly opened connection once it presents a valid
// ticket, then holds it open as a one-way push channel.
type AuthProtocol struct {
	tickets     ports.TicketService
	registry    *Registry
	authTimeout time.Duration
	logger      *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewAuthProtocol creates the protocol driver. A non-positive authTimeout
// falls back to 30 seconds.
func NewAuthProtocol(tickets ports.TicketService, registry *Registry, authTimeout time.Duration, logger *slog.Logger) *AuthProtocol {
	if authTimeout <= 0 {
		authTimeout = defaultAuthTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthProtocol{
		tickets:     tickets,
		registry:    registry,
		authTimeout: authTimeout,
		logger:      logger.With("component", "ws_auth"),
		done:        make(chan struct{}),
	}
}

// Shutdown makes every running Serve close its session and return.
func (p *AuthProtocol) Shutdown() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Serve drives one session until it is closed by the peer, evicted, or the
// protocol shuts down. It blocks for the lifetime of the connection.
func (p *AuthProtocol) Serve(ctx context.Context, session Session) {
	ctx = logging.WithConnectionID(ctx, session.ID())

	listener := p.awaitTicket(ctx, session)
	if listener == nil {
		return
	}
	defer p.registry.Remove(listener)

	ctx = logging.WithSubject(ctx, listener.Subscription.Subject)
	ctx = logging.WithSubscriptionKey(ctx, listener.Subscription.SubscriptionKey)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case frame, ok := <-session.Frames():
			if !ok {
				p.logger.DebugContext(ctx, "connection closed by peer")
				return
			}
			p.logger.DebugContext(ctx, "ignoring frame from authenticated connection", "frame_type", frame.Type)
		}
	}
}

// awaitTicket reads frames until one carries a valid ticket. It returns nil
// when the connection went away or the authentication window expired.
func (p *AuthProtocol) awaitTicket(ctx context.Context, session Session) *Listener {
	timer := time.NewTimer(p.authTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			session.Close(websocket.CloseGoingAway, "server shutting down")
			return nil
		case <-p.done:
			session.Close(websocket.CloseGoingAway, "server shutting down")
			return nil
		case <-timer.C:
			p.logger.InfoContext(ctx, "no valid ticket presented in time, closing connection", "timeout", p.authTimeout)
			session.Close(websocket.ClosePolicyViolation, "authentication timeout")
			return nil
		case frame, ok := <-session.Frames():
			if !ok {
				p.logger.DebugContext(ctx, "connection closed before authentication")
				return nil
			}
			if listener := p.authenticate(ctx, session, frame); listener != nil {
				return listener
			}
		}
	}
}

func (p *AuthProtocol) authenticate(ctx context.Context, session Session, frame Frame) *Listener {
	if frame.Type != websocket.TextMessage {
		p.logger.WarnContext(ctx, "expected a text frame with a ticket", "frame_type", frame.Type)
		p.reject(ctx, session)
		return nil
	}

	ticket, err := domain.ParseTicket(string(frame.Data))
	if err != nil {
		p.logger.WarnContext(ctx, "malformed ticket")
		p.reject(ctx, session)
		return nil
	}

	validated, err := p.tickets.ConsumeTicket(ctx, ticket)
	if err != nil {
		var ticketErr *apperrors.TicketError
		switch {
		case errors.As(err, &ticketErr) && ticketErr.Kind == apperrors.TicketNotFound:
			p.logger.WarnContext(ctx, "ticket not found", "ticket", ticket)
		case errors.As(err, &ticketErr):
			p.logger.ErrorContext(ctx, "ticket lookup failed", "ticket", ticket, "error", ticketErr.Err)
		default:
			p.logger.ErrorContext(ctx, "ticket lookup failed", "ticket", ticket, "error", err)
		}
		p.reject(ctx, session)
		return nil
	}

	listener := &Listener{Session: session, Subscription: validated.Subscription}
	// Registered before the client is told, so an event published right
	// after AUTHENTICATED arrives is not missed.
	p.registry.Add(listener)

	if err := session.Send(MessageAuthenticated); err != nil {
		p.logger.WarnContext(ctx, "failed to acknowledge authentication", "error", err)
		p.registry.Remove(listener)
		return nil
	}

	p.logger.InfoContext(ctx, "connection authenticated",
		"subject", validated.Subscription.Subject,
		"subscription_key", validated.Subscription.SubscriptionKey,
	)
	return listener
}

func (p *AuthProtocol) reject(ctx context.Context, session Session) {
	if err := session.Send(MessageInvalidToken); err != nil {
		p.logger.DebugContext(ctx, "failed to send rejection", "error", err)
	}
}
