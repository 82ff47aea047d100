package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Wire events emitted to clients
const (
	EventNewTrade      = "new_trade"
	EventTradeAccepted = "trade_accepted"
	EventTradeDeclined = "trade_declined"
)

// TradeEvent is the payload of every trade event. It carries ids only; clients re-fetch state.
type TradeEvent struct {
	TradeID    string `json:"tradeId"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

// Notifier delivers an event to every live channel of a user. Implementations
// are best effort: they never block the caller and never report failure.
type Notifier interface {
	EmitToUser(userID, event string, payload any)
}

// Pusher sends an out-of-band alert to a user's device
type Pusher interface {
	Push(ctx context.Context, userID, event string, payload TradeEvent) error
}

const pushTimeout = 10 * time.Second

// Dispatcher is the Notifier handed to the trade ledger. It forwards events to
// the live transport (hub or relay) and, when a pusher is configured, alerts
// the counterparty's device in the background.
type Dispatcher struct {
	live   Notifier
	pusher Pusher
}

// NewDispatcher creates a dispatcher; pusher may be nil
func NewDispatcher(live Notifier, pusher Pusher) *Dispatcher {
	return &Dispatcher{live: live, pusher: pusher}
}

// EmitToUser implements Notifier
func (d *Dispatcher) EmitToUser(userID, event string, payload any) {
	d.live.EmitToUser(userID, event, payload)

	if d.pusher == nil {
		return
	}
	ev, ok := payload.(TradeEvent)
	if !ok || !shouldPush(userID, event, ev) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := d.pusher.Push(ctx, userID, event, ev); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Str("event", event).Msg("Push notification failed")
		}
	}()
}

// shouldPush selects the party who did not act: the recipient of a new trade,
// the proposer of a resolved one.
func shouldPush(userID, event string, ev TradeEvent) bool {
	switch event {
	case EventNewTrade:
		return userID == ev.ToUserID
	case EventTradeAccepted, EventTradeDeclined:
		return userID == ev.FromUserID
	default:
		return false
	}
}
