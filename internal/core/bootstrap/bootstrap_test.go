package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"nodeflow/internal/config"
	"nodeflow/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunSQLite(t *testing.T) {
	dir := t.TempDir()
	tmplDir := filepath.Join(dir, "templates")
	if err := os.MkdirAll(tmplDir, 0755); err != nil {
		t.Fatal(err)
	}
	tmpl := `
name: single
nodes:
  - id: a
    type: text
    position: {x: 0, y: 0}
`
	if err := os.WriteFile(filepath.Join(tmplDir, "single.yaml"), []byte(tmpl), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "nodeflow.db")
	cfg.Templates.Dir = tmplDir

	r, err := Run(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	defer r.Close()

	if len(r.Templates.List()) != 1 {
		t.Errorf("templates = %d, want 1", len(r.Templates.List()))
	}
	if len(r.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", r.Warnings)
	}

	gen, err := r.Generators.For(domain.NodeTypeImageGenerator)
	if err != nil {
		t.Fatalf("For() error: %v", err)
	}
	if gen.Name() != "stub" {
		t.Errorf("generator = %s, want stub", gen.Name())
	}

	ctx := context.Background()
	if _, err := r.Service.AddNode(ctx, "p", domain.NodeTypeText, domain.Position{}, nil); err != nil {
		t.Fatalf("AddNode() error: %v", err)
	}
	if _, err := r.Service.Save(ctx, "p"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if err := r.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestBuildRegistryHTTP(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Generation.Endpoint = "http://127.0.0.1:1"
	cfg.Generation.Types = []string{"video_generator"}

	reg, closeFn, err := BuildRegistry(cfg.Generation, quietLogger())
	if err != nil {
		t.Fatalf("BuildRegistry() error: %v", err)
	}
	defer closeFn()

	gen, err := reg.For(domain.NodeTypeVideoGenerator)
	if err != nil {
		t.Fatalf("For() error: %v", err)
	}
	if gen.Name() != "http" {
		t.Errorf("video generator = %s, want http", gen.Name())
	}
	gen, err = reg.For(domain.NodeTypeTextGenerator)
	if err != nil {
		t.Fatalf("For() error: %v", err)
	}
	if gen.Name() != "stub" {
		t.Errorf("text generator = %s, want stub fallback", gen.Name())
	}
}

func TestBuildRegistryRejectsUnknownType(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Generation.Endpoint = "http://127.0.0.1:1"
	cfg.Generation.Types = []string{"text"}

	_, _, err := BuildRegistry(cfg.Generation, quietLogger())
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("BuildRegistry() = %v, want ErrInvalid", err)
	}
}

func TestOpenRepositoryUnknownDriver(t *testing.T) {
	_, err := OpenRepository(context.Background(), config.DatabaseConfig{Driver: "mysql"})
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("OpenRepository() = %v, want ErrInvalid", err)
	}
}
