package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopacc-api/internal/app"
	"github.com/shopacc-api/internal/config"
	"github.com/shopacc-api/internal/pkg/logging"
	transporthttp "github.com/shopacc-api/internal/transport/http"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()

	logger, err := logging.New(cfg.AppName, cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if envErr != nil {
		logger.Info("no .env file found, reading from environment")
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal("build app", zap.Error(err))
	}

	router, stopRouter := transporthttp.NewRouter(cfg, a.RouterDeps())
	defer stopRouter()

	sched, err := a.Scheduler()
	if err != nil {
		logger.Fatal("build scheduler", zap.Error(err))
	}
	sched.Start()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("store", a.Config.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	sched.Stop(shutdownCtx)
	logger.Info("server stopped")
}
