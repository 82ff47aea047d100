package handlers

import (
	"encoding/json"
	"net/http"

	"photo-trade-backend/internal/config"
	"photo-trade-backend/internal/middleware"
	"photo-trade-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // mobile clients send no Origin
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub       *services.WSHub
	validator middleware.TokenValidator
	cfg       config.WebSocketConfig
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, validator middleware.TokenValidator, cfg config.WebSocketConfig) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		validator: validator,
		cfg:       cfg,
	}
}

// HandleWebSocket handles GET /ws?token=. The session is joined to the
// token's user; events for that user arrive until the socket closes.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	claims, err := h.validator.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID := claims.UserID

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := services.NewWSClient(conn, services.WSClientConfig{
		PingInterval: h.cfg.PingInterval,
		PongWait:     h.cfg.PongWait,
		SendBuffer:   h.cfg.SendBuffer,
	})
	go client.WritePump()

	h.hub.Join(userID, client)
	defer func() {
		h.hub.Disconnect(client)
		client.Close()
	}()

	h.hub.SendToChannel(client, services.WSMessage{
		Type: "connected",
		Data: map[string]string{"user_id": userID},
	})

	err = client.ReadPump(func(data []byte) {
		h.handleMessage(client, userID, data)
	})
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		log.Warn().Err(err).Str("user_id", userID).Msg("WebSocket closed unexpectedly")
	}
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(client *services.WSClient, userID string, data []byte) {
	var msg services.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.hub.SendToChannel(client, services.WSMessage{Type: "error", Message: "Invalid message format"})
		return
	}

	switch msg.Type {
	case "ping":
		h.hub.SendToChannel(client, services.WSMessage{Type: "pong"})
	case "join_user":
		// sessions are joined on connect; only the token's user is accepted
		if id, _ := msg.Data.(string); id != "" && id != userID {
			h.hub.SendToChannel(client, services.WSMessage{Type: "error", Message: "Cannot join another user"})
			return
		}
		h.hub.SendToChannel(client, services.WSMessage{Type: "joined", Data: map[string]string{"user_id": userID}})
	default:
		h.hub.SendToChannel(client, services.WSMessage{Type: "error", Message: "Unknown message type"})
	}
}
