package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/caspchat/internal/identity"
)

const wsWriteTimeout = 10 * time.Second

// WebSocketHandler runs conversation rounds over a WebSocket. Frames are
// handled one at a time, so a client sees each round complete before the
// next message is read.
type WebSocketHandler struct {
	svc            *Service
	allowedOrigins []string
	isDev          bool
	rateLimiter    *RateLimiter
}

// NewWebSocketHandler creates a WebSocket chat handler. Chat frames count
// against rateLimiter, if set, under the client's address.
func NewWebSocketHandler(svc *Service, allowedOrigins []string, isDev bool, rateLimiter *RateLimiter) *WebSocketHandler {
	return &WebSocketHandler{
		svc:            svc,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
		rateLimiter:    rateLimiter,
	}
}

// wsInbound is a client frame.
type wsInbound struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// wsOutbound is a server frame. Round frames embed the round payload.
type wsOutbound struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
	*RoundResult
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	h.readLoop(r.Context(), ws, sessionID, identity.IPFromRequest(r))
	slog.Info("WebSocket chat ended", "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sessionID, clientIP string) {
	for {
		var msg wsInbound
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var out wsOutbound
		switch msg.Type {
		case "ping":
			out = wsOutbound{Type: "pong"}
		case "chat":
			if h.rateLimiter != nil && !h.rateLimiter.Allow(clientIP) {
				out = wsOutbound{Type: "error", Error: errRateLimited}
				break
			}
			result, err := h.svc.Chat(ctx, sessionID, ChannelWebSocket, msg.Message)
			if err != nil {
				_, text := chatErrorStatus(err)
				out = wsOutbound{Type: "error", Error: text}
			} else {
				out = wsOutbound{Type: "round", RoundResult: result}
			}
		default:
			out = wsOutbound{Type: "error", Error: "unknown message type"}
		}

		if err := writeJSON(ctx, ws, out); err != nil {
			slog.Debug("Failed to write WebSocket frame", "error", err, "session_id", sessionID)
			return
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
