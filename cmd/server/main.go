package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"

	"nodeflow/internal/config"
	"nodeflow/internal/core/bootstrap"
	"nodeflow/internal/handler"
	"nodeflow/internal/hub"
	"nodeflow/internal/loader"
	"nodeflow/internal/service"
	"nodeflow/internal/watcher"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Config file path (default: search order)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	templatesDir := flag.String("templates", "", "Workflow template directory (overrides config)")
	flag.Parse()

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nodeflow: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = *dbPath
	}
	if *templatesDir != "" {
		cfg.Templates.Dir = *templatesDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "nodeflow: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	logger.Info("starting nodeflow server", "config", path, "summary", cfg.Summary())

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Run(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("shutdown error", "error", err)
		}
	}()
	graphSvc := components.Service

	// Connect event bus to SSE hub
	sseHub := hub.New(logger)
	go sseHub.Run(ctx)

	eventChan := make(chan service.Event, 100)
	components.Events.Subscribe(eventChan)
	defer components.Events.Unsubscribe(eventChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventChan:
				sseHub.Broadcast(event)
			}
		}
	}()

	if cfg.Templates.Watch {
		w := watcher.New(cfg.Templates.Dir, loader.IsTemplateFile, func(path string) {
			logger.Info("template changed", "path", path)
			if err := graphSvc.ReloadTemplates(); err != nil {
				logger.Warn("failed to reload templates", "error", err)
			}
		}).WithLogger(logger)
		go func() {
			if err := w.Watch(ctx); err != nil {
				logger.Warn("template watcher stopped", "error", err)
			}
		}()
	}

	app := handler.NewApp(handler.NewGraphHandler(graphSvc, logger), sseHub.Handler, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		errCh <- app.Listen(cfg.Server.Addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}
	return nil
}
