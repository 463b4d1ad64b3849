package stream

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/mock-interview/internal/chat"
	"github.com/ashureev/mock-interview/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// StateFunc returns the current chat state of a user.
type StateFunc func(ctx context.Context, userID string) (chat.State, error)

// clientMessage is a message sent by the browser.
type clientMessage struct {
	Type string `json:"type"`
}

// snapshot is the first message on every connection.
type snapshot struct {
	Type  string     `json:"type"`
	State chat.State `json:"state"`
}

// WebSocketHandler streams a user's chat events to one browser tab.
type WebSocketHandler struct {
	hub           *Hub
	state         StateFunc
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub, state StateFunc, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		state:         state,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	tabID := identity.SessionIDFromContext(r.Context())
	slog.Info("Event stream connection request", "user_id", userID, "tab_id", tabID, "ip", identity.IPFromRequest(r))

	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	// Subscribe before taking the snapshot so no event falls between them.
	sub := h.hub.Subscribe(userID, tabID)
	defer h.hub.Unsubscribe(userID, tabID, sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	state, err := h.state(ctx, userID)
	if err != nil {
		slog.Error("Failed to load chat state", "error", err, "user_id", userID)
		_ = h.writeJSON(ctx, ws, map[string]string{"type": "error", "error": "state_unavailable"})
		return
	}
	if err := h.writeJSON(ctx, ws, snapshot{Type: "snapshot", State: state}); err != nil {
		slog.Debug("Failed to send snapshot", "error", err, "user_id", userID)
		return
	}

	pings := make(chan struct{}, 1)
	go func() {
		defer cancel()
		h.readLoop(ctx, ws, userID, pings)
	}()

	h.writeLoop(ctx, ws, sub, userID, pings)
	slog.Info("Event stream ended", "user_id", userID, "tab_id", tabID, "dropped", sub.Dropped())
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, userID string, pings chan<- struct{}) {
	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}
		if msg.Type == "ping" {
			select {
			case pings <- struct{}{}:
			default:
			}
		}
	}
}

func (h *WebSocketHandler) writeLoop(ctx context.Context, ws *websocket.Conn, sub *Subscription, userID string, pings <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			slog.Debug("Event stream replaced", "user_id", userID)
			return
		case <-pings:
			if err := h.writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
				return
			}
		case <-sub.Ready():
			for _, ev := range sub.Drain() {
				if err := h.writeJSON(ctx, ws, ev); err != nil {
					slog.Debug("Failed to send event", "error", err, "user_id", userID, "event_type", ev.Type)
					return
				}
			}
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
