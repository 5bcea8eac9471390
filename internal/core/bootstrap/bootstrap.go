// Package bootstrap assembles the nodeflow components from a config. Both
// the HTTP server and the terminal canvas start through Run.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nodeflow/internal/adapter"
	"nodeflow/internal/config"
	"nodeflow/internal/domain"
	"nodeflow/internal/loader"
	"nodeflow/internal/repository"
	"nodeflow/internal/repository/postgres"
	"nodeflow/internal/repository/sqlite"
	"nodeflow/internal/service"
)

// ConnectTimeout bounds the postgres connect and schema setup
const ConnectTimeout = 15 * time.Second

// Result holds the assembled components
type Result struct {
	Duration   time.Duration
	Repo       repository.Repository
	Generators *adapter.Registry
	Templates  *loader.Catalog
	Events     *service.EventBus
	Service    *service.GraphService
	// Warnings are problems that did not stop startup
	Warnings []string

	closers []func() error
}

// Run executes the startup sequence. On error everything opened so far is
// closed again.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	r := &Result{}

	// Phase 1: Storage
	logger.Debug("bootstrap: opening database", "driver", cfg.Database.Driver)
	repo, err := OpenRepository(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	r.Repo = repo
	r.closers = append(r.closers, repo.Close)

	// Phase 2: Generators
	logger.Debug("bootstrap: registering generators", "endpoint", cfg.Generation.Endpoint)
	generators, closeGenerators, err := BuildRegistry(cfg.Generation, logger)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.Generators = generators
	r.closers = append(r.closers, closeGenerators)

	// Phase 3: Templates
	r.Templates = loader.NewCatalog(cfg.Templates.Dir, logger)
	if err := r.Templates.Reload(); err != nil {
		r.Warnings = append(r.Warnings, fmt.Sprintf("templates: %v", err))
	}

	// Phase 4: Service
	offset := cfg.Canvas.DuplicateOffset
	r.Events = service.NewEventBus()
	r.Service = service.NewGraphService(repo, generators, r.Events, service.Options{
		HistoryCapacity: cfg.History.Capacity,
		DuplicateOffset: domain.Position{X: offset, Y: offset},
		Templates:       r.Templates,
		Logger:          logger,
	})
	r.closers = append(r.closers, func() error {
		r.Service.Close()
		return nil
	})

	r.Duration = time.Since(start)
	logger.Info("bootstrap: complete", "duration", r.Duration, "generators", len(generators.List()),
		"templates", len(r.Templates.List()))
	for _, w := range r.Warnings {
		logger.Warn("bootstrap: " + w)
	}
	return r, nil
}

// Close shuts the components down in reverse start order
func (r *Result) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// OpenRepository opens the configured store
func OpenRepository(ctx context.Context, db config.DatabaseConfig) (repository.Repository, error) {
	switch db.Driver {
	case config.DriverPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
		defer cancel()
		store, err := postgres.Open(connectCtx, db.URL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverSQLite, "":
		repo, err := sqlite.New(db.Path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return repo, nil
	}
	return nil, fmt.Errorf("%w: unknown database driver %q", config.ErrInvalid, db.Driver)
}

// BuildRegistry registers the HTTP backend when an endpoint is configured.
// The stub serves every type the backend does not.
func BuildRegistry(gen config.GenerationConfig, logger *slog.Logger) (*adapter.Registry, func() error, error) {
	registry := adapter.NewRegistry(logger)

	var latency time.Duration
	if gen.StubLatency != nil {
		latency = gen.StubLatency.Duration()
	}
	registry.SetFallback(adapter.NewStub("", latency))

	if gen.Endpoint == "" {
		return registry, func() error { return nil }, nil
	}

	types := make([]domain.NodeType, 0, len(gen.Types))
	for _, t := range gen.Types {
		nt := domain.NodeType(t)
		if !nt.Generative() {
			return nil, nil, fmt.Errorf("%w: generation.types: %q is not a generative node type", config.ErrInvalid, t)
		}
		types = append(types, nt)
	}

	var timeout time.Duration
	if gen.Timeout != nil {
		timeout = gen.Timeout.Duration()
	}
	httpGen, err := adapter.NewHTTPGenerator(adapter.HTTPConfig{
		Endpoint: gen.Endpoint,
		Timeout:  timeout,
		APIKey:   gen.APIKey(),
		Types:    types,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := registry.Register(httpGen); err != nil {
		return nil, nil, err
	}
	return registry, httpGen.Close, nil
}
