package services

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// WSMessage is the envelope of every websocket frame
type WSMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Channel is one live delivery session. Send must not block.
type Channel interface {
	Send(data []byte) bool
	Close()
}

// WSHub maps users to their live channels. A user may hold several sessions.
type WSHub struct {
	mu       sync.RWMutex
	channels map[string]map[Channel]struct{}
	owners   map[Channel]string
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		channels: make(map[string]map[Channel]struct{}),
		owners:   make(map[Channel]string),
	}
}

// Join registers ch under userID. A channel belongs to at most one user.
func (h *WSHub) Join(userID string, ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.owners[ch]; ok {
		if prev == userID {
			return
		}
		h.removeLocked(ch)
	}

	if h.channels[userID] == nil {
		h.channels[userID] = make(map[Channel]struct{})
	}
	h.channels[userID][ch] = struct{}{}
	h.owners[ch] = userID
	wsSessions.Inc()

	log.Info().
		Str("user_id", userID).
		Int("sessions", len(h.channels[userID])).
		Msg("WebSocket session joined")
}

// Disconnect removes ch from whatever user it was registered under
func (h *WSHub) Disconnect(ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if userID, ok := h.owners[ch]; ok {
		h.removeLocked(ch)
		log.Info().Str("user_id", userID).Msg("WebSocket session left")
	}
}

func (h *WSHub) removeLocked(ch Channel) {
	userID := h.owners[ch]
	delete(h.owners, ch)
	if set, ok := h.channels[userID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.channels, userID)
		}
	}
	wsSessions.Dec()
}

// EmitToUser delivers an event to every channel of userID. It is fire and
// forget: an offline user or a full channel buffer is logged and dropped.
func (h *WSHub) EmitToUser(userID, event string, payload any) {
	data, err := json.Marshal(WSMessage{Type: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	targets := make([]Channel, 0, len(h.channels[userID]))
	for ch := range h.channels[userID] {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		notifications.WithLabelValues(event, "offline").Inc()
		log.Debug().Str("user_id", userID).Str("event", event).Msg("No live session, event dropped")
		return
	}

	for _, ch := range targets {
		if ch.Send(data) {
			notifications.WithLabelValues(event, "delivered").Inc()
			continue
		}
		notifications.WithLabelValues(event, "dropped").Inc()
		log.Warn().Str("user_id", userID).Str("event", event).Msg("Session buffer full, event dropped")
	}
}

// SendToChannel writes a message to a single channel, bypassing user lookup
func (h *WSHub) SendToChannel(ch Channel, message WSMessage) bool {
	data, err := json.Marshal(message)
	if err != nil {
		return false
	}
	return ch.Send(data)
}

// IsOnline checks if a user has at least one live session
func (h *WSHub) IsOnline(userID string) bool {
	return h.SessionCount(userID) > 0
}

// SessionCount returns the number of live sessions of a user
func (h *WSHub) SessionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[userID])
}

// Close closes every registered channel and empties the hub
func (h *WSHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.owners {
		ch.Close()
		wsSessions.Dec()
	}
	h.channels = make(map[string]map[Channel]struct{})
	h.owners = make(map[Channel]string)
}
