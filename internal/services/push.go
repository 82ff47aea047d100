package services

import (
	"context"
	"errors"
	"fmt"

	"photo-trade-backend/internal/config"
	"photo-trade-backend/internal/models"
	"photo-trade-backend/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

type apnsClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type deviceTokens interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// APNsPusher alerts a user's iOS device about trade activity
type APNsPusher struct {
	client apnsClient
	users  deviceTokens
	topic  string
}

// NewAPNsPusher builds a token-authenticated APNs client from cfg
func NewAPNsPusher(cfg config.APNsConfig, users *repository.UserRepository) (*APNsPusher, error) {
	key, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: key,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNsPusher{client: client, users: users, topic: cfg.Topic}, nil
}

var pushText = map[string]string{
	EventNewTrade:      "You have a new trade offer",
	EventTradeAccepted: "Your trade was accepted",
	EventTradeDeclined: "Your trade was declined",
}

// Push implements Pusher. Users without a registered device are skipped.
func (p *APNsPusher) Push(ctx context.Context, userID, event string, ev TradeEvent) error {
	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up device token: %w", err)
	}
	if user.PushToken == "" {
		return nil
	}

	body := payload.NewPayload().
		AlertTitle("PhotoTrade").
		AlertBody(pushText[event]).
		Sound("default").
		Custom("type", event).
		Custom("tradeId", ev.TradeID)

	res, err := p.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: user.PushToken,
		Topic:       p.topic,
		Payload:     body,
	})
	if err != nil {
		return fmt.Errorf("failed to send push: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("push rejected: %d %s", res.StatusCode, res.Reason)
	}

	log.Debug().Str("user_id", userID).Str("event", event).Str("apns_id", res.ApnsID).Msg("Push notification sent")
	return nil
}
