package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"nodeflow/internal/domain"
	"nodeflow/internal/repository"
)

// ListProjects returns all projects, most recently saved first.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListProjects(ctx context.Context) ([]repository.Project, error) {
	rows, err := s.db.Query(ctx,
		`SELECT p.id, p.fingerprint, p.created_at, p.updated_at,
		        (SELECT COUNT(*) FROM nodeflow_nodes n WHERE n.project_id = p.id)
		 FROM nodeflow_projects p
		 ORDER BY p.updated_at DESC, p.id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query projects: %w", err)
	}
	defer rows.Close()

	projects := make([]repository.Project, 0)
	for rows.Next() {
		var (
			p     repository.Project
			count int64
		)
		if err := rows.Scan(&p.ID, &p.Fingerprint, &p.CreatedAt, &p.UpdatedAt, &count); err != nil {
			return nil, fmt.Errorf("postgres: scan project: %w", err)
		}
		p.NodeCount = int(count)
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows projects: %w", err)
	}
	return projects, nil
}

// DeleteProject deletes a project; nodes, connections and assets are
// cascade-deleted by the DB.
func (s *PGStore) DeleteProject(ctx context.Context, projectID string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM nodeflow_projects WHERE id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("postgres: delete project: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrProjectNotFound
	}
	return nil
}

// SaveAsset records a generated asset, updating it if the id exists.
func (s *PGStore) SaveAsset(ctx context.Context, a repository.Asset) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO nodeflow_assets (id, project_id, node_id, kind, url, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		 ON CONFLICT (id) DO UPDATE SET node_id = EXCLUDED.node_id, kind = EXCLUDED.kind, url = EXCLUDED.url`,
		a.ID, a.ProjectID, a.NodeID, string(a.Kind), a.URL, nullableTime(a),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return repository.ErrProjectNotFound
		}
		return fmt.Errorf("postgres: save asset: %w", err)
	}
	return nil
}

// ListAssets returns a project's assets, oldest first.
func (s *PGStore) ListAssets(ctx context.Context, projectID string) ([]repository.Asset, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, project_id, node_id, kind, url, created_at
		 FROM nodeflow_assets WHERE project_id = $1 ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query assets: %w", err)
	}
	defer rows.Close()

	assets := make([]repository.Asset, 0)
	for rows.Next() {
		var (
			a    repository.Asset
			kind string
		)
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.NodeID, &kind, &a.URL, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan asset: %w", err)
		}
		a.Kind = domain.HandleType(kind)
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows assets: %w", err)
	}
	return assets, nil
}

// nullableTime maps a zero CreatedAt to NULL so the column default applies
func nullableTime(a repository.Asset) *time.Time {
	if a.CreatedAt.IsZero() {
		return nil
	}
	return &a.CreatedAt
}
