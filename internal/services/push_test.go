package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"photo-trade-backend/internal/models"
	"photo-trade-backend/internal/repository"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPNs struct {
	sent []*apns2.Notification
	res  *apns2.Response
	err  error
}

func (f *fakeAPNs) PushWithContext(_ apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	f.sent = append(f.sent, n)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type tokenTable map[string]*models.User

func (t tokenTable) GetByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := t[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user not found: %w", repository.ErrNotFound)
}

func TestAPNsPusher_Push(t *testing.T) {
	users := tokenTable{
		"bob":   {ID: "bob", PushToken: "device-bob"},
		"carol": {ID: "carol"},
	}
	ev := TradeEvent{TradeID: "t1", FromUserID: "alice", ToUserID: "bob"}

	t.Run("sends alert to registered device", func(t *testing.T) {
		client := &fakeAPNs{res: &apns2.Response{StatusCode: http.StatusOK, ApnsID: "id-1"}}
		p := &APNsPusher{client: client, users: users, topic: "com.example.phototrade"}

		require.NoError(t, p.Push(context.Background(), "bob", EventNewTrade, ev))
		require.Len(t, client.sent, 1)
		assert.Equal(t, "device-bob", client.sent[0].DeviceToken)
		assert.Equal(t, "com.example.phototrade", client.sent[0].Topic)

		body, err := json.Marshal(client.sent[0].Payload)
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(body, &decoded))
		assert.Equal(t, EventNewTrade, decoded["type"])
		assert.Equal(t, "t1", decoded["tradeId"])
	})

	t.Run("skips users without a device", func(t *testing.T) {
		client := &fakeAPNs{}
		p := &APNsPusher{client: client, users: users}

		assert.NoError(t, p.Push(context.Background(), "carol", EventTradeAccepted, ev))
		assert.NoError(t, p.Push(context.Background(), "ghost", EventTradeAccepted, ev))
		assert.Empty(t, client.sent)
	})

	t.Run("reports rejection", func(t *testing.T) {
		client := &fakeAPNs{res: &apns2.Response{StatusCode: http.StatusBadRequest, Reason: apns2.ReasonBadDeviceToken}}
		p := &APNsPusher{client: client, users: users}

		err := p.Push(context.Background(), "bob", EventTradeDeclined, ev)
		require.Error(t, err)
		assert.Contains(t, err.Error(), apns2.ReasonBadDeviceToken)
	})

	t.Run("reports transport failure", func(t *testing.T) {
		client := &fakeAPNs{err: errors.New("connection reset")}
		p := &APNsPusher{client: client, users: users}

		assert.Error(t, p.Push(context.Background(), "bob", EventNewTrade, ev))
	})
}
