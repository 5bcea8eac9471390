package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"nodeflow/internal/domain"
	"nodeflow/internal/repository"
)

// LoadGraph fetches the graph of a project in saved order.
// Returns repository.ErrProjectNotFound if the project was never saved.
func (s *PGStore) LoadGraph(ctx context.Context, projectID string) (domain.Graph, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT TRUE FROM nodeflow_projects WHERE id = $1`, projectID,
	).Scan(&exists)
	if err != nil {
		if isNoRows(err) {
			return domain.Graph{}, repository.ErrProjectNotFound
		}
		return domain.Graph{}, fmt.Errorf("postgres: get project: %w", err)
	}

	g := domain.NewGraph()

	rows, err := s.db.Query(ctx,
		`SELECT id, type, position_x, position_y, data FROM nodeflow_nodes WHERE project_id = $1 ORDER BY seq`, projectID)
	if err != nil {
		return domain.Graph{}, fmt.Errorf("postgres: query nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			n    domain.Node
			data []byte
		)
		if err := rows.Scan(&n.ID, &n.Type, &n.Position.X, &n.Position.Y, &data); err != nil {
			return domain.Graph{}, fmt.Errorf("postgres: scan node: %w", err)
		}
		if n.Data, err = domain.DecodePayload(n.Type, data); err != nil {
			return domain.Graph{}, fmt.Errorf("postgres: node %s: %w", n.ID, err)
		}
		g.Nodes = append(g.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return domain.Graph{}, fmt.Errorf("postgres: rows nodes: %w", err)
	}

	rows, err = s.db.Query(ctx,
		`SELECT id, from_node_id, from_handle_id, to_node_id, to_handle_id
		 FROM nodeflow_connections WHERE project_id = $1 ORDER BY seq`, projectID)
	if err != nil {
		return domain.Graph{}, fmt.Errorf("postgres: query connections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Connection
		if err := rows.Scan(&c.ID, &c.FromNodeID, &c.FromHandleID, &c.ToNodeID, &c.ToHandleID); err != nil {
			return domain.Graph{}, fmt.Errorf("postgres: scan connection: %w", err)
		}
		g.Connections = append(g.Connections, c)
	}
	if err := rows.Err(); err != nil {
		return domain.Graph{}, fmt.Errorf("postgres: rows connections: %w", err)
	}

	return g, nil
}

// SaveGraph replaces a project's graph in one transaction, creating the
// project on first save.
func (s *PGStore) SaveGraph(ctx context.Context, projectID string, g domain.Graph) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO nodeflow_projects (id, fingerprint) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET fingerprint = EXCLUDED.fingerprint, updated_at = NOW()`,
		projectID, g.Fingerprint(),
	); err != nil {
		return fmt.Errorf("postgres: upsert project: %w", err)
	}

	// Replace semantics: connections first, then nodes.
	if _, err := tx.Exec(ctx, `DELETE FROM nodeflow_connections WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("postgres: delete connections: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM nodeflow_nodes WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("postgres: delete nodes: %w", err)
	}

	for i, n := range g.Nodes {
		data, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("postgres: marshal node %s: %w", n.ID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO nodeflow_nodes (project_id, id, type, position_x, position_y, data, seq)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			projectID, n.ID, string(n.Type), n.Position.X, n.Position.Y, data, i,
		); err != nil {
			return fmt.Errorf("postgres: insert node %s: %w", n.ID, err)
		}
	}

	for i, c := range g.Connections {
		if _, err := tx.Exec(ctx,
			`INSERT INTO nodeflow_connections (project_id, id, from_node_id, from_handle_id, to_node_id, to_handle_id, seq)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			projectID, c.ID, c.FromNodeID, c.FromHandleID, c.ToNodeID, c.ToHandleID, i,
		); err != nil {
			return fmt.Errorf("postgres: insert connection %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}
