package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bbff-chat/apiserver/config"
	"github.com/bbff-chat/apiserver/internal/auth"
	"github.com/bbff-chat/apiserver/internal/db"
	"github.com/bbff-chat/apiserver/internal/events"
	"github.com/bbff-chat/apiserver/internal/handlers"
	"github.com/bbff-chat/apiserver/internal/metrics"
	"github.com/bbff-chat/apiserver/internal/middleware"
	"github.com/bbff-chat/apiserver/internal/mq"
	"github.com/bbff-chat/apiserver/internal/services"
	"github.com/bbff-chat/apiserver/internal/storage"
	"github.com/bbff-chat/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const rateLimitTTL = 2 * time.Minute

// Options adjust how New assembles the server.
type Options struct {
	// InMemory replaces Postgres with a process-local store.
	InMemory bool
}

// Server wraps the HTTP server and the clients it owns.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	db         *sql.DB
	mq         *mq.MQ
	stop       context.CancelFunc
	logger     zerolog.Logger
}

// New connects to the configured database, broker and object store and
// builds the router.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts Options) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	s := &Server{logger: logger}
	deps := Deps{
		Tokens:  auth.NewTokenService(cfg.Auth.JWTSecret, auth.DefaultTokenTTL),
		Hasher:  auth.NewBcryptHasher(),
		Metrics: metrics.New(),
		Logger:  logger,

		TrustProxy: cfg.TrustProxy,
	}

	if opts.InMemory {
		mem := store.NewMemory()
		deps.Users, deps.Chats, deps.Messages = mem.Users(), mem.Chats(), mem.Messages()
		logger.Warn().Msg("using in-memory store; data is lost on exit")
	} else {
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.db = dbConn
		deps.Users = store.NewUserRepository(dbConn)
		deps.Chats = store.NewChatRepository(dbConn)
		deps.Messages = store.NewMessageRepository(dbConn)
		deps.Health = []handlers.Pinger{dbConn}
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		s.closeClients()
		return nil, err
	}
	s.mq = broker
	deps.Events = events.NewPublisher(broker)
	if broker == nil {
		logger.Info().Msg("no event backend configured; domain events are dropped")
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		s.closeClients()
		return nil, err
	}
	if objects != nil {
		deps.Transcripts = objects
	} else {
		logger.Info().Msg("no storage backend configured; transcript export is disabled")
	}

	limiterCtx, stop := context.WithCancel(context.Background())
	s.stop = stop
	if cfg.RateLimit.RequestsPerSecond > 0 {
		deps.Limiter = middleware.NewRateLimiter(limiterCtx, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, rateLimitTTL)
	}

	s.router = NewRouter(deps)

	port := cfg.ServerPort
	if port == 0 {
		port = 3000
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeClients()
	return err
}

func (s *Server) closeClients() {
	if s.stop != nil {
		s.stop()
	}
	if s.mq != nil {
		if err := s.mq.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("close event backend")
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

var _ services.TranscriptStore = (*storage.Storage)(nil)
