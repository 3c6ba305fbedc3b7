package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lumenlearn/growthloop/internal/app/service"
	inthttp "github.com/lumenlearn/growthloop/internal/http/handler"
	"github.com/lumenlearn/growthloop/internal/http/middleware"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies bundles infrastructure dependencies required by the HTTP server.
type Dependencies struct {
	Logger      *zap.Logger
	Postgres    *pgxpool.Pool
	Redis       *redis.Client
	NATS        *nats.Conn
	JetStream   nats.JetStreamContext
	Registry    *service.LinkRegistry
	Attribution *service.AttributionCarrier
	Publisher   *service.EventPublisher
	AppURL      string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	app := fiber.New()

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())
	if s.deps.Redis != nil {
		s.app.Use(middleware.RateLimit(s.deps.Redis, middleware.DefaultRateLimitConfig(), s.deps.Logger))
	}
}

func (s *Server) registerRoutes() {
	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:       s.deps.Logger,
		Registry:     s.deps.Registry,
		Assigner:     service.NewExperimentAssigner(),
		Orchestrator: service.NewLoopOrchestrator(),
		Composer:     service.NewPersonalizationComposer(),
		Events:       s.deps.Publisher,
	})
	apiHandler.Register(s.app)

	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:      s.deps.Logger,
		Registry:    s.deps.Registry,
		Attribution: s.deps.Attribution,
		AppURL:      s.deps.AppURL,
	})
	redirectHandler.Register(s.app)
}
