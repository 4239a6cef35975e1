package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tazhate/taskcal/config"
	"github.com/tazhate/taskcal/internal/app"
	"github.com/tazhate/taskcal/internal/logger"
	"github.com/tazhate/taskcal/internal/mcp"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("info", "text").WithError(err).Fatal("Failed to load config")
	}
	time.Local = cfg.Timezone

	// stdout carries the protocol, logs go to stderr
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	a, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to init")
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Restore(ctx); err != nil {
		log.WithError(err).Warn("Failed to restore session")
	}

	server := mcp.NewServer(a.Coordinator, a.Months, log.Component("mcp"))
	server.OnMutation(func(ctx context.Context) {
		if err := a.Persist(ctx); err != nil {
			log.WithError(err).Warn("Failed to persist cache")
		}
	})

	if err := server.Run(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("MCP server stopped")
	}

	if err := a.Persist(context.Background()); err != nil {
		log.WithError(err).Warn("Failed to persist cache")
	}
}
