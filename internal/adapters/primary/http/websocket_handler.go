package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	wsAdapter "github.com/lorrc/notification-relay/internal/adapters/primary/websocket"
	"github.com/lorrc/notification-relay/internal/infrastructure/logging"
)

// WebSocketHandler upgrades client connections and hands them to the ticket protocol.
type WebSocketHandler struct {
	protocol *wsAdapter.AuthProtocol
	connCfg  wsAdapter.ConnConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// WebSocketConfig holds configuration for the WebSocket handler
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	IsDevelopment   bool
	Conn            wsAdapter.ConnConfig
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(protocol *wsAdapter.AuthProtocol, cfg WebSocketConfig, logger *slog.Logger) *WebSocketHandler {
	handler := &WebSocketHandler{
		protocol: protocol,
		connCfg:  cfg.Conn,
		logger:   logger.With("handler", "websocket"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(cfg WebSocketConfig) func(r *http.Request) bool {
	allowedOrigins := cfg.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		if originAllowed(parsedOrigin.Host, allowedOrigins) {
			return true
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// originAllowed supports exact hosts and wildcard subdomains like "*.example.com".
func originAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		if strings.HasPrefix(a, "*.") {
			if strings.HasSuffix(host, a[1:]) || host == a[2:] {
				return true
			}
		} else if host == a {
			return true
		}
	}
	return false
}

// ServeHTTP handles GET /ws. The connection is unauthenticated until it
// presents a ticket; the handler blocks for the connection's lifetime.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.WarnContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}

	conn := wsAdapter.NewConn(ws, h.connCfg, h.logger)
	ctx = logging.WithConnectionID(ctx, conn.ID())
	h.logger.DebugContext(ctx, "websocket connection opened", "remote_addr", r.RemoteAddr)

	conn.Start()
	h.protocol.Serve(ctx, conn)
}
