package server

import (
	"net/http"
	"time"

	"github.com/bbff-chat/apiserver/internal/auth"
	"github.com/bbff-chat/apiserver/internal/events"
	"github.com/bbff-chat/apiserver/internal/handlers"
	"github.com/bbff-chat/apiserver/internal/metrics"
	"github.com/bbff-chat/apiserver/internal/middleware"
	"github.com/bbff-chat/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the router is assembled from. Transcripts,
// Limiter and Health are optional. TrustProxy lets X-Forwarded-For and
// X-Real-IP replace the peer address seen by logging and rate limiting.
type Deps struct {
	Users    services.UserRepository
	Chats    services.ChatRepository
	Messages services.MessageRepository

	Tokens      *auth.TokenService
	Hasher      services.PasswordHasher
	Events      *events.Publisher
	Transcripts services.TranscriptStore
	Metrics     *metrics.Metrics
	Limiter     *middleware.RateLimiter
	Health      []handlers.Pinger
	Logger      zerolog.Logger
	TrustProxy  bool
}

// NewRouter wires services and handlers onto a chi router.
func NewRouter(d Deps) chi.Router {
	userService := services.NewUserService(d.Users, d.Hasher, d.Tokens, d.Events)
	chatService := services.NewChatService(d.Chats, d.Messages, d.Events, d.Transcripts)
	messageService := services.NewMessageService(d.Chats, d.Messages, d.Events)

	requireAuth := handlers.RequireAuth(d.Tokens)

	var limit func(http.Handler) http.Handler
	if d.Limiter != nil {
		if d.Metrics != nil {
			d.Limiter.OnReject = d.Metrics.RateLimited
		}
		limit = d.Limiter.Handler
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	if d.TrustProxy {
		router.Use(chimw.RealIP)
	}
	router.Use(
		middleware.Logger(d.Logger),
		chimw.Recoverer,
		chimw.Timeout(60*time.Second),
	)
	if d.Metrics != nil {
		router.Use(d.Metrics.Middleware)
		router.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	router.Get("/", handlers.Root)
	router.Get("/healthz", handlers.Healthz(d.Health...))

	handlers.AuthRouter(router, userService, requireAuth, limit)
	handlers.UserRouter(router, userService, requireAuth)
	handlers.ChatRouter(router, chatService, requireAuth)
	handlers.MessageRouter(router, messageService, requireAuth)

	return router
}
