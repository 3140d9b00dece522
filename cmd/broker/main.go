package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/blok-hamster/copy-trader-service/internal/app"
	"github.com/blok-hamster/copy-trader-service/internal/config"
)

func main() {
	logger := log.New(os.Stdout, "broker ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	service := app.NewApp(cfg, logger)

	if err := service.Run(ctx); err != nil {
		logger.Fatalf("service exited with error: %v", err)
	}
}
