package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"nodeflow/internal/config"
	"nodeflow/internal/core/bootstrap"
	"nodeflow/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "Config file path (default: search order)")
	project := flag.String("project", "default", "Project to open")
	logPath := flag.String("log", "", "Write logs to this file (default: discard)")
	flag.Parse()

	if err := run(*configPath, *project, *logPath); err != nil {
		fmt.Fprintf(os.Stderr, "nodeflow-canvas: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, project, logPath string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, _, err = config.LoadFromPath(configPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The terminal owns stdout and stderr while the canvas runs
	var out io.Writer = io.Discard
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		out = f
	}
	logger := cfg.Log.NewLogger(out)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Run(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer screen.Fini()

	return tui.New(screen, components.Service, project, logger).Run(ctx)
}
