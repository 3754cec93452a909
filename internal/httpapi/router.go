package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/vntrieu/roomlink/internal/httpapi/handler"
	"github.com/vntrieu/roomlink/internal/ratelimit"
)

// Options configures the control API router.
type Options struct {
	// Secret signs bearer tokens for /api. Empty disables authentication.
	Secret []byte
	// AllowedOrigins for CORS. Empty allows none.
	AllowedOrigins []string
	// RateLimiter guards mutating routes by client IP. Nil disables it.
	RateLimiter ratelimit.Limiter
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Player enables PUT /api/player when set.
	Player handler.PlayerUpdater
	Logger zerolog.Logger
}

// NewRouter builds the local control API: health, metrics and the /api
// surface the host UI uses to drive the session.
func NewRouter(ctrl handler.Controller, opts Options) http.Handler {
	rateLimiter := opts.RateLimiter
	if rateLimiter == nil {
		rateLimiter = ratelimit.Noop{}
	}
	logger := opts.Logger.With().Str("component", "httpapi").Logger()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", handler.Healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	sessionHandler := handler.NewSessionHandler(ctrl, logger)
	roomHandler := handler.NewRoomHandler(ctrl, logger)
	commandHandler := handler.NewCommandHandler(ctrl, logger)

	// Mutating routes are limited per client IP.
	limited := RateLimitMiddleware(rateLimiter, RateLimitKeyByIP)

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireToken(opts.Secret))
		r.Use(LimitRequestBody(DefaultMaxBodyBytes))

		r.Get("/status", sessionHandler.Status)
		r.Get("/room", roomHandler.GetRoom)
		r.Get("/rooms", roomHandler.ListRooms)

		r.Group(func(r chi.Router) {
			r.Use(limited)

			r.Post("/connect", sessionHandler.Connect)
			r.Post("/disconnect", sessionHandler.Disconnect)
			r.Put("/reconnect", sessionHandler.SetAutoReconnect)

			r.Post("/rooms", roomHandler.CreateRoom)
			r.Post("/rooms/{roomID}/join", roomHandler.JoinRoom)
			r.Post("/room/leave", roomHandler.LeaveRoom)
			r.Post("/room/disband", roomHandler.DisbandRoom)
			r.Post("/room/refresh", roomHandler.RefreshRoom)
			r.Post("/room/players/{playerID}/kick", roomHandler.KickPlayer)
			r.Put("/room/players/{playerID}/role", roomHandler.AssignRole)
			r.Put("/room/players/{playerID}/team", roomHandler.AssignTeam)

			r.Post("/commands", commandHandler.Send)

			if opts.Player != nil {
				r.Put("/player", handler.NewPlayerHandler(opts.Player, logger).Update)
			}
		})
	})

	return r
}

// DefaultRateLimiter allows perMinute mutating requests per IP. A non-positive
// value disables limiting.
func DefaultRateLimiter(perMinute int) ratelimit.Limiter {
	if perMinute <= 0 {
		return ratelimit.Noop{}
	}
	return ratelimit.NewSlidingWindow(perMinute, time.Minute)
}
