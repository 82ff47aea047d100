package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	publishTimeout = 2 * time.Second

	initialResubscribeDelay = time.Second
	maxResubscribeDelay     = 30 * time.Second
)

// relayEnvelope is what travels over the redis channel
type relayEnvelope struct {
	UserID  string          `json:"user_id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay fans events out to every instance through redis pub/sub. Each
// instance runs Run and hands what it receives to its own hub.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   Notifier

	retryDelay time.Duration
}

// NewRedisRelay creates a relay publishing on channel and delivering to local
func NewRedisRelay(client *redis.Client, channel string, local Notifier) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, local: local, retryDelay: initialResubscribeDelay}
}

// EmitToUser publishes the event in the background so callers never wait on
// redis. If redis is unreachable the event is delivered to this instance only.
func (r *RedisRelay) EmitToUser(userID, event string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}
	msg, err := json.Marshal(relayEnvelope{UserID: userID, Event: event, Payload: body})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal relay envelope")
		return
	}

	go r.publish(userID, event, msg, body)
}

func (r *RedisRelay) publish(userID, event string, msg, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, msg).Err(); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Relay publish failed, delivering locally")
		r.local.EmitToUser(userID, event, json.RawMessage(body))
	}
}

// Run subscribes to the relay channel and blocks until ctx is done. A failed
// subscription is retried with exponential backoff.
func (r *RedisRelay) Run(ctx context.Context) error {
	delay := r.retryDelay
	for attempt := 1; ; attempt++ {
		subscribed, err := r.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			attempt, delay = 1, r.retryDelay
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Event relay subscription lost, retrying")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxResubscribeDelay {
			delay = maxResubscribeDelay
		}
	}
}

// listen holds one subscription until it fails or ctx is done. subscribed
// reports whether the subscription was confirmed before it ended.
func (r *RedisRelay) listen(ctx context.Context) (subscribed bool, err error) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return false, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	log.Info().Str("channel", r.channel).Msg("Event relay subscribed")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case msg, ok := <-messages:
			if !ok {
				return true, fmt.Errorf("subscription to %s closed", r.channel)
			}
			r.deliver(msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(raw string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		log.Warn().Err(err).Msg("Dropping malformed relay message")
		return
	}
	r.local.EmitToUser(env.UserID, env.Event, env.Payload)
}
