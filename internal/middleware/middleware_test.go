package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"photo-trade-backend/internal/services"

	"github.com/stretchr/testify/assert"
)

type stubValidator map[string]*services.Claims

func (s stubValidator) ValidateJWT(token string) (*services.Claims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, errors.New("bad token")
}

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserID(r.Context()) + "/" + GetUsername(r.Context())))
	})
}

func TestAuthMiddleware(t *testing.T) {
	validator := stubValidator{"good": {UserID: "alice-id", Username: "alice"}}
	handler := AuthMiddleware(validator)(echoIdentity())

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid bearer token", header: "Bearer good", status: http.StatusOK, body: "alice-id/alice"},
		{name: "lowercase scheme", header: "bearer good", status: http.StatusOK, body: "alice-id/alice"},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", status: http.StatusUnauthorized},
		{name: "no token", header: "Bearer", status: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer forged", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			} else {
				assert.JSONEq(t, `{"error":"`+errorMessage(tt.header)+`","kind":"unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func errorMessage(header string) string {
	switch header {
	case "":
		return "Authorization header required"
	case "Bearer forged":
		return "Invalid token"
	default:
		return "Invalid authorization header format"
	}
}

func TestRateLimiter_PerUserBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("bob"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("alice"))
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("alice")
	now = now.Add(limiterIdleTTL + time.Minute)
	rl.Allow("bob")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "alice")
	assert.Contains(t, rl.visitors, "bob")
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	handler := rl.Middleware()(echoIdentity())

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/trades", nil)
		req = req.WithContext(WithUser(req.Context(), "alice-id", "alice"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}
