package repository

import (
	"context"
	"errors"
	"time"

	"nodeflow/internal/domain"
)

// ErrProjectNotFound is returned when a project has never been saved
var ErrProjectNotFound = errors.New("project not found")

// Project summarizes a stored project
type Project struct {
	ID          string    `json:"id"`
	NodeCount   int       `json:"nodeCount"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Asset is a generated media reference recorded in a project's gallery
type Asset struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"projectId"`
	NodeID    string            `json:"nodeId"`
	Kind      domain.HandleType `json:"kind"`
	URL       string            `json:"url"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Repository defines the interface for project graph persistence
type Repository interface {
	// Graph persistence
	LoadGraph(ctx context.Context, projectID string) (domain.Graph, error)
	SaveGraph(ctx context.Context, projectID string, g domain.Graph) error

	// Projects
	ListProjects(ctx context.Context) ([]Project, error)
	DeleteProject(ctx context.Context, projectID string) error

	// Gallery
	SaveAsset(ctx context.Context, asset Asset) error
	ListAssets(ctx context.Context, projectID string) ([]Asset, error)

	// Close releases resources
	Close() error
}
