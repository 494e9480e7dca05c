package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/edulock/license-gateway/internal/api/handlers"
	"github.com/edulock/license-gateway/internal/api/middleware"
	"github.com/edulock/license-gateway/internal/audit"
	"github.com/edulock/license-gateway/internal/cache"
	"github.com/edulock/license-gateway/internal/clock"
	"github.com/edulock/license-gateway/internal/config"
	"github.com/edulock/license-gateway/internal/matcher"
	"github.com/edulock/license-gateway/internal/metrics"
	"github.com/edulock/license-gateway/internal/token"
)

type Server struct {
	Config *config.Config
	Router *gin.Engine
	Tokens *token.Service
}

type Deps struct {
	Store   handlers.ViolationStore
	Matcher *matcher.Matcher
	VCache  *cache.ValidationCache
	Tokens  *token.Service
	Modules *cache.ModuleCache
	Sink    *audit.Sink
	Metrics *metrics.Collector
	Clock   clock.Clock
	Logger  *zap.Logger
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(deps.Logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	server := &Server{
		Config: cfg,
		Router: router,
		Tokens: deps.Tokens,
	}

	server.setupRoutes(cfg, deps)
	return server
}

func (s *Server) setupRoutes(cfg *config.Config, deps Deps) {
	h := handlers.NewHandler(
		deps.Store,
		deps.Matcher,
		deps.VCache,
		deps.Tokens,
		deps.Modules,
		deps.Sink,
		deps.Metrics,
		deps.Clock,
		deps.Logger,
		cfg.Security.ViolationThreshold,
		cfg.Security.ViolationWindow,
	)

	s.Router.GET("/health", h.Health)
	s.Router.GET("/ready", h.Ready)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.Router.Group("/api")
	{
		api.POST("/validate-cdn",
			middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
			h.ValidateCDN,
		)
		api.POST("/heartbeat", h.Heartbeat)
		api.POST("/security-report", h.SecurityReport)
		api.POST("/webcam-access-check", h.WebcamAccessCheck)
		api.POST("/log-webcam-usage", h.LogWebcamUsage)
	}

	cdn := api.Group("/cdn")
	cdn.Use(middleware.TokenRequired(deps.Tokens))
	{
		cdn.GET("/:module", h.ServeModule)
	}
}
