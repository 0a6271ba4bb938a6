package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/RichardoC/pad-chat/internal/api"
	"github.com/RichardoC/pad-chat/internal/app"
	"github.com/RichardoC/pad-chat/internal/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a yaml config file")
	flag.Parse()

	bootLogger, _ := zap.NewProduction()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		bootLogger.Fatal("failed to load config", zap.Error(err))
	}
	if err := cfg.ValidateServer(); err != nil {
		bootLogger.Fatal("invalid config", zap.Error(err))
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		bootLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize chat service", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close store", zap.Error(err))
		}
	}()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.NewHandler(a.Service, logger), cfg.Auth.JwtSecret, logger)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}
	go func() {
		logger.Info("Starting server", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down server", zap.Error(err))
	}
}
