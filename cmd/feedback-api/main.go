package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/noah-isme/course-feedback-api/internal/app"
	"github.com/noah-isme/course-feedback-api/pkg/config"
	"github.com/noah-isme/course-feedback-api/pkg/logger"
)

// @title Course Feedback API
// @version 1.0.0
// @description Course feedback between students, lecturers and PIN-authorized guests
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to build application", "error", err)
	}

	if err := application.Run(ctx); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
