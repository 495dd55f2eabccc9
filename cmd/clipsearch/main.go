package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/kailas-cloud/clipsearch/internal/app"
	"github.com/kailas-cloud/clipsearch/internal/config"
	"github.com/kailas-cloud/clipsearch/internal/domain"
	logpkg "github.com/kailas-cloud/clipsearch/internal/logger"
	chiTransport "github.com/kailas-cloud/clipsearch/internal/transport/chi"
	healthuc "github.com/kailas-cloud/clipsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/clipsearch/internal/usecase/search"
	"github.com/kailas-cloud/clipsearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting clipsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("collection", cfg.Search.Collection),
	)

	a, err := app.Build(cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal("Failed to build application", zap.Error(err))
	}
	defer a.Close()

	ctx := context.Background()
	if err := a.WaitForReady(ctx); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	logCollectionStatus(ctx, a)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	searchSvc := searchuc.New(a.Records, a.QueryEmbedder)
	healthSvc := healthuc.New(a.Records, a.Records, a.Embedder)
	server := chiTransport.NewServer(searchSvc, healthSvc, a.Collection(), logger)

	router := chiTransport.NewRouter(server, chiTransport.RouterOptions{
		StaticDir:      cfg.HTTP.StaticDir,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		APIKeys:        cfg.Auth.APIKeys,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(router, "clipsearch"),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr), zap.String("static_dir", cfg.HTTP.StaticDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// logCollectionStatus reports the collection size at startup. The server
// still starts when the collection is missing; /health and /search report it.
func logCollectionStatus(ctx context.Context, a *app.App) {
	n, err := a.Records.Count(ctx, a.Collection())
	switch {
	case errors.Is(err, domain.ErrCollectionNotFound):
		a.Logger.Warn("Collection not found, run clipsearch-ingest first", zap.String("collection", a.Collection()))
	case err != nil:
		a.Logger.Warn("Failed to count collection", zap.String("collection", a.Collection()), zap.Error(err))
	case n == 0:
		a.Logger.Warn("Collection is empty", zap.String("collection", a.Collection()))
	default:
		a.Logger.Info("Collection loaded", zap.String("collection", a.Collection()), zap.Int("documents", n))
	}
}
