// Package redis implements the shared ticket store and the broadcast medium
// on top of Redis key expiry and pub/sub.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/lorrc/notification-relay/internal/core/errors"
	"github.com/lorrc/notification-relay/internal/core/retry"
)

var (
	ErrEmptyConnectionURL           = errors.New("empty redis connection URL")
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready")
	ErrHealthcheckFailed            = errors.New("redis healthcheck failed")
)

// Config holds connection settings.
type Config struct {
	URL         string
	DialTimeout time.Duration
	Retry       retry.Policy
}

// Connect creates a client and verifies it answers PING before returning it.
func Connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrEmptyConnectionURL
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToParseRedisConnString, err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}

	client := goredis.NewClient(opts)

	if err := retry.DoErr(ctx, cfg.Retry, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisNotReady, err)
	}

	return client, nil
}

// Pinger checks that Redis answers PING with PONG.
type Pinger struct {
	client goredis.UniversalClient
	policy retry.Policy
}

// NewPinger creates a health checker for the given client.
func NewPinger(client goredis.UniversalClient, policy retry.Policy) *Pinger {
	return &Pinger{client: client, policy: policy}
}

// Ping returns nil when Redis replied PONG.
func (p *Pinger) Ping(ctx context.Context) error {
	reply, err := retry.Do(ctx, p.policy, func(ctx context.Context) (string, error) {
		return p.client.Ping(ctx).Result()
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHealthcheckFailed, apperrors.NewBackendError("ping", err, Classify))
	}
	if reply != "PONG" {
		return fmt.Errorf("%w: unexpected reply %q", ErrHealthcheckFailed, reply)
	}
	return nil
}

// Classify decides whether a Redis failure is a transport problem or
// something else, e.g. a value that could not be decoded.
func Classify(err error) apperrors.BackendKind {
	if err == nil {
		return apperrors.BackendUnknown
	}

	var netErr net.Error
	var redisErr goredis.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, goredis.ErrClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &redisErr):
		return apperrors.BackendTransport
	default:
		return apperrors.BackendUnknown
	}
}
