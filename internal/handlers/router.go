package handlers

import (
	"net/http"

	"photo-trade-backend/internal/logger"
	"photo-trade-backend/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Routes bundles everything the router mounts
type Routes struct {
	Users     *UserHandler
	Photos    *PhotoHandler
	Friends   *FriendHandler
	Trades    *TradeHandler
	WebSocket *WebSocketHandler
	Auth      func(http.Handler) http.Handler
	Limiter   *middleware.RateLimiter
	Metrics   http.Handler
}

// NewRouter builds the HTTP API
func NewRouter(rt Routes) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(logger.RequestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", Health)

		// Public routes
		r.Group(func(r chi.Router) {
			if rt.Limiter != nil {
				r.Use(rt.Limiter.Middleware())
			}
			r.Post("/register", rt.Users.Register)
			r.Post("/login", rt.Users.Login)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(rt.Auth)

			r.Get("/users", rt.Friends.List)
			r.Get("/users/{user_id}/photos", rt.Photos.GetUserPhotos)
			r.Get("/photos", rt.Photos.GetPhotos)
			r.Get("/photos/{photo_id}/image", rt.Photos.GetImage)
			r.Get("/trades", rt.Trades.List)
			r.Get("/friends", rt.Friends.List)
			r.Get("/friends/requests", rt.Friends.Requests)

			// Mutations are rate limited per user
			r.Group(func(r chi.Router) {
				if rt.Limiter != nil {
					r.Use(rt.Limiter.Middleware())
				}
				r.Put("/users/me/push-token", rt.Users.UpdatePushToken)
				r.Post("/photos", rt.Photos.UploadPhoto)
				r.Post("/photos/defaults", rt.Photos.AddDefaultPhotos)
				r.Post("/trades", rt.Trades.Propose)
				r.Put("/trades/{trade_id}/accept", rt.Trades.Accept)
				r.Put("/trades/{trade_id}/decline", rt.Trades.Decline)
				r.Post("/friends/request", rt.Friends.SendRequest)
				r.Post("/friends/accept", rt.Friends.Accept)
				r.Post("/friends/decline", rt.Friends.Decline)
				r.Post("/friends/remove", rt.Friends.Remove)
			})
		})
	})

	r.Get("/ws", rt.WebSocket.HandleWebSocket)
	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics)
	}

	return r
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
