package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/edulock/license-gateway/internal/api"
	"github.com/edulock/license-gateway/internal/audit"
	"github.com/edulock/license-gateway/internal/cache"
	"github.com/edulock/license-gateway/internal/clock"
	"github.com/edulock/license-gateway/internal/config"
	"github.com/edulock/license-gateway/internal/db"
	"github.com/edulock/license-gateway/internal/matcher"
	"github.com/edulock/license-gateway/internal/metrics"
	"github.com/edulock/license-gateway/internal/token"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	var logger *zap.Logger
	if cfg.Server.Mode == "release" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	if cfg.Token.Secret == "" {
		logger.Fatal("CDN token secret is not configured")
	}

	// Database
	conn, err := db.NewConnection(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	if err := db.Migrate(conn); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	repo := db.NewRepository(conn)
	clk := clock.New()
	collector := metrics.NewCollector()

	// Core components
	tokens := token.NewService(
		cfg.Token.Secret,
		cfg.Token.TTL,
		token.ReadmitPolicy(cfg.Token.ReadmitPolicy),
		clk,
		logger,
		collector,
	)
	vcache := cache.NewValidationCache(cfg.Cache.ValidationTTL, clk, logger)
	modules := cache.NewModuleCache(cfg.Modules.Dir, cfg.Modules.AllowList, clk, logger)
	modules.Preload()

	m := matcher.New(repo, logger, collector)
	sink := audit.NewSink(repo, clk, logger, collector)

	server := api.NewServer(cfg, api.Deps{
		Store:   repo,
		Matcher: m,
		VCache:  vcache,
		Tokens:  tokens,
		Modules: modules,
		Sink:    sink,
		Metrics: collector,
		Clock:   clk,
		Logger:  logger,
	})

	// Background sweeps
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go vcache.Run(ctx, cfg.Cache.SweepInterval)
	go tokens.Run(ctx, cfg.Token.SweepInterval)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Gateway started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
