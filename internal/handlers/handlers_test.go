package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"photo-trade-backend/internal/config"
	"photo-trade-backend/internal/middleware"
	"photo-trade-backend/internal/models"
	"photo-trade-backend/internal/repository"
	"photo-trade-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	photoCols = []string{"id", "user_id", "filename", "original_name", "description", "derived_filename", "created_at"}
	tradeCols = []string{"id", "from_user_id", "to_user_id", "from_photo_id", "to_photo_id", "status", "created_at", "resolved_at"}
	userCols  = []string{"id", "username", "email", "password_hash", "push_token", "created_at"}
)

type fakeStore struct{}

func (fakeStore) Put(context.Context, string, []byte, string) error { return nil }

func (fakeStore) Delete(context.Context, string) error { return nil }

func (fakeStore) PresignGet(_ context.Context, key string) (string, error) {
	return "https://objects.test/" + key, nil
}

type fakeDeriver struct{}

func (fakeDeriver) Derive(src []byte, _ string) ([]byte, error) { return src, nil }

type testEnv struct {
	mock   pgxmock.PgxPoolIface
	hub    *services.WSHub
	router http.Handler
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})

	userRepo := repository.NewUserRepository(mock)
	photoRepo := repository.NewPhotoRepository(mock)
	friendRepo := repository.NewFriendRepository(mock)
	tradeRepo := repository.NewTradeRepository(mock)

	cfg := config.Default()
	cfg.JWT.Secret = "test-secret"

	users := services.NewUserService(mock, userRepo, photoRepo, cfg.Assets.DefaultPhotos, cfg.JWT)
	photos := services.NewPhotoService(mock, photoRepo, friendRepo, fakeStore{}, fakeDeriver{}, cfg.Assets)
	friends := services.NewFriendService(mock, userRepo, friendRepo)
	hub := services.NewWSHub()
	trades := services.NewTradeService(mock, tradeRepo, photoRepo, friendRepo, hub)

	router := NewRouter(Routes{
		Users:     NewUserHandler(users),
		Photos:    NewPhotoHandler(photos, cfg.Assets.MaxUploadBytes),
		Friends:   NewFriendHandler(friends),
		Trades:    NewTradeHandler(trades),
		WebSocket: NewWebSocketHandler(hub, users, cfg.WebSocket),
		Auth:      middleware.AuthMiddleware(users),
		Metrics:   promhttp.Handler(),
	})

	token, err := users.GenerateJWT(&models.User{ID: "bob-id", Username: "bob"})
	require.NoError(t, err)

	return &testEnv{mock: mock, hub: hub, router: router, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		services.ErrNotFound:     http.StatusNotFound,
		services.ErrConflict:     http.StatusConflict,
		services.ErrUnauthorized: http.StatusForbidden,
		services.ErrValidation:   http.StatusBadRequest,
		services.ErrDependency:   http.StatusBadGateway,
		services.ErrStorage:      http.StatusInternalServerError,
		errors.New("other"):      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(kind), kind.Error())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegister_ValidationMessages(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/register", map[string]string{"username": "al", "email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, "validation_error", resp.Kind)
	assert.Contains(t, resp.Error, "username must be at least 3 characters")
	assert.Contains(t, resp.Error, "email must be a valid email")
	assert.Contains(t, resp.Error, "password is required")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trades", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTradeAccept_ConflictMapsTo409(t *testing.T) {
	env := newTestEnv(t)
	resolved := time.Now()

	env.mock.ExpectBegin()
	env.mock.ExpectQuery("UPDATE trades SET status").WithArgs("accepted", pgxmock.AnyArg(), "t1", "bob-id", "pending").
		WillReturnRows(pgxmock.NewRows(tradeCols))
	env.mock.ExpectQuery("FROM trades WHERE id").WithArgs("t1").
		WillReturnRows(pgxmock.NewRows(tradeCols).AddRow("t1", "alice-id", "bob-id", "p1", "p2", "declined", resolved, &resolved))
	env.mock.ExpectRollback()

	rec := env.do(t, http.MethodPut, "/api/v1/trades/t1/accept", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "conflict", resp.Kind)
	assert.Equal(t, "trade already declined", resp.Error)
}

func TestTradeDecline_NotRecipientMapsTo403(t *testing.T) {
	env := newTestEnv(t)

	env.mock.ExpectBegin()
	env.mock.ExpectQuery("UPDATE trades SET status").WithArgs("declined", pgxmock.AnyArg(), "t1", "bob-id", "pending").
		WillReturnRows(pgxmock.NewRows(tradeCols))
	env.mock.ExpectQuery("FROM trades WHERE id").WithArgs("t1").
		WillReturnRows(pgxmock.NewRows(tradeCols).AddRow("t1", "bob-id", "carol-id", "p1", "p2", "pending", time.Now(), (*time.Time)(nil)))
	env.mock.ExpectRollback()

	rec := env.do(t, http.MethodPut, "/api/v1/trades/t1/decline", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTradeAccept_MalformedIDIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	env.mock.ExpectBegin()
	env.mock.ExpectQuery("UPDATE trades SET status").WithArgs("accepted", pgxmock.AnyArg(), "123", "bob-id", "pending").
		WillReturnError(&pgconn.PgError{Code: "22P02"})
	env.mock.ExpectRollback()

	rec := env.do(t, http.MethodPut, "/api/v1/trades/123/accept", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Kind)
}

func TestFriendAccept_MalformedIDIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectExec("UPDATE friends SET status").WithArgs("accepted", "bob-id", "42").
		WillReturnError(&pgconn.PgError{Code: "22P02"})

	rec := env.do(t, http.MethodPost, "/api/v1/friends/accept", map[string]string{"friend_id": "42"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTradePropose_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/trades", map[string]string{"to_user_id": "alice-id"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "from_photo_id is required")
}

func TestFriendRequest_UnknownUser(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectQuery("FROM users WHERE username").WithArgs("ghost").WillReturnRows(pgxmock.NewRows(userCols))

	rec := env.do(t, http.MethodPost, "/api/v1/friends/request", map[string]string{"username": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Kind)
}

func TestFriendAccept(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectExec("UPDATE friends SET status").WithArgs("accepted", "bob-id", "alice-id").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	rec := env.do(t, http.MethodPost, "/api/v1/friends/accept", map[string]string{"friend_id": "alice-id"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetImage_Redirects(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectQuery("FROM photos WHERE id").WithArgs("p1").
		WillReturnRows(pgxmock.NewRows(photoCols).AddRow("p1", "bob-id", "raw.jpg", "beach", "", "watermarked-raw.jpg", time.Now()))

	rec := env.do(t, http.MethodGet, "/api/v1/photos/p1/image", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://objects.test/watermarked-raw.jpg", rec.Header().Get("Location"))
}

func TestUploadPhoto(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectExec("INSERT INTO photos").
		WithArgs(pgxmock.AnyArg(), "bob-id", pgxmock.AnyArg(), "beach.jpg", "at sunset", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="photo"; filename="beach.jpg"`)
	hdr.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	part.Write([]byte("\xff\xd8\xff\xe0jpeg"))
	require.NoError(t, mw.WriteField("description", "at sunset"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var photo models.Photo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&photo))
	assert.Equal(t, "bob-id", photo.UserID)
	assert.True(t, strings.HasPrefix(photo.DerivedFilename, "watermarked-"))
}

func TestUploadPhoto_NoFile(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("description", "nothing"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebSocket_SessionReceivesEvents(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + env.token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	read := func() services.WSMessage {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg services.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, "connected", read().Type)
	assert.True(t, env.hub.IsOnline("bob-id"))

	require.NoError(t, conn.WriteJSON(services.WSMessage{Type: "ping"}))
	assert.Equal(t, "pong", read().Type)

	env.hub.EmitToUser("bob-id", services.EventNewTrade, services.TradeEvent{TradeID: "t9", FromUserID: "alice-id", ToUserID: "bob-id"})
	msg := read()
	assert.Equal(t, services.EventNewTrade, msg.Type)
	assert.Equal(t, map[string]any{"tradeId": "t9", "fromUserId": "alice-id", "toUserId": "bob-id"}, msg.Data)

	conn.Close()
	assert.Eventually(t, func() bool { return !env.hub.IsOnline("bob-id") }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
