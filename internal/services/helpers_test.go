package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	userCols  = []string{"id", "username", "email", "password_hash", "push_token", "created_at"}
	photoCols = []string{"id", "user_id", "filename", "original_name", "description", "derived_filename", "created_at"}
	tradeCols = []string{"id", "from_user_id", "to_user_id", "from_photo_id", "to_photo_id", "status", "created_at", "resolved_at"}
	edgeCols  = []string{"user_id", "friend_id", "status", "created_at"}
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

type sentEvent struct {
	UserID  string
	Event   string
	Payload any
}

// recordingNotifier captures emitted events
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) EmitToUser(userID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{UserID: userID, Event: event, Payload: payload})
}

func (n *recordingNotifier) Events() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEvent(nil), n.events...)
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	// failPut fails only the put of keys with this prefix
	failPut string
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Put(_ context.Context, key string, body []byte, _ string) error {
	if m.putErr != nil && strings.HasPrefix(key, m.failPut) {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = body
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memStore) PresignGet(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", errors.New("empty key")
	}
	return "https://objects.test/" + key + "?sig=1", nil
}

type stubDeriver struct {
	err error
}

func (d stubDeriver) Derive(src []byte, username string) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	return append([]byte("wm:"+username+":"), src...), nil
}
