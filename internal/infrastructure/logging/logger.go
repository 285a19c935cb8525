// Package logging builds the relay's slog logger. Identifiers that travel
// through a request or a websocket connection are stored in the context and
// stamped onto every record logged with that context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	subjectKey
	subscriptionKeyKey
	connectionIDKey
)

// contextAttrs lists the context values copied onto log records, in output order.
var contextAttrs = []struct {
	key  ctxKey
	name string
}{
	{requestIDKey, "request_id"},
	{connectionIDKey, "connection_id"},
	{subjectKey, "subject"},
	{subscriptionKeyKey, "subscription_key"},
}

// Config holds logger configuration
type Config struct {
	Level       string // debug, info, warn, error
	Format      string // json, text
	Output      io.Writer
	AddSource   bool
	ServiceName string
	Environment string
}

// NewLogger creates a structured logger. Unknown levels fall back to info
// and any format other than "text" produces JSON.
func NewLogger(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = slog.LevelInfo
		}
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	static := make([]slog.Attr, 0, 2)
	if cfg.ServiceName != "" {
		static = append(static, slog.String("service", cfg.ServiceName))
	}
	if cfg.Environment != "" {
		static = append(static, slog.String("environment", cfg.Environment))
	}

	return slog.New(contextHandler{Handler: handler.WithAttrs(static)})
}

// contextHandler copies the identifiers in contextAttrs from the record's context.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, a := range contextAttrs {
		if v, ok := ctx.Value(a.key).(string); ok && v != "" {
			r.AddAttrs(slog.String(a.name, v))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}

// WithRequestID adds the HTTP request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithConnectionID adds the websocket connection id to the context.
func WithConnectionID(ctx context.Context, connectionID string) context.Context {
	return context.WithValue(ctx, connectionIDKey, connectionID)
}

// WithSubject adds the authenticated caller to the context.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// WithSubscriptionKey adds the subscription key being served to the context.
func WithSubscriptionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, subscriptionKeyKey, key)
}

// RequestIDFromContext returns the request id, or "" when there is none.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// LogPanic logs a recovered panic with the current goroutine's stack.
func LogPanic(ctx context.Context, logger *slog.Logger, panicValue any, attrs ...any) {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)

	attrs = append(attrs, "panic", panicValue, "stack_trace", string(buf[:n]))
	logger.ErrorContext(ctx, "panic recovered", attrs...)
}

// HTTPRequest is one completed HTTP exchange.
type HTTPRequest struct {
	Method    string
	Path      string
	Status    int
	Duration  time.Duration
	Bytes     int64
	ClientIP  string
	UserAgent string
}

// LogHTTPRequest logs req at error for 5xx, warn for 4xx and info otherwise.
func LogHTTPRequest(ctx context.Context, logger *slog.Logger, req HTTPRequest) {
	level := slog.LevelInfo
	switch {
	case req.Status >= http.StatusInternalServerError:
		level = slog.LevelError
	case req.Status >= http.StatusBadRequest:
		level = slog.LevelWarn
	}

	logger.LogAttrs(ctx, level, "http request",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status_code", req.Status),
		slog.Int64("duration_ms", req.Duration.Milliseconds()),
		slog.Int64("bytes_written", req.Bytes),
		slog.String("client_ip", req.ClientIP),
		slog.String("user_agent", req.UserAgent),
	)
}
