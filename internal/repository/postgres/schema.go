package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS nodeflow_projects (
    id          TEXT PRIMARY KEY,
    fingerprint TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS nodeflow_nodes (
    project_id TEXT NOT NULL REFERENCES nodeflow_projects(id) ON DELETE CASCADE,
    id         TEXT NOT NULL,
    type       TEXT NOT NULL,
    position_x DOUBLE PRECISION NOT NULL DEFAULT 0,
    position_y DOUBLE PRECISION NOT NULL DEFAULT 0,
    data       JSONB NOT NULL DEFAULT '{}',
    seq        INTEGER NOT NULL,
    PRIMARY KEY (project_id, id)
);

CREATE TABLE IF NOT EXISTS nodeflow_connections (
    project_id     TEXT NOT NULL,
    id             TEXT NOT NULL,
    from_node_id   TEXT NOT NULL,
    from_handle_id TEXT NOT NULL,
    to_node_id     TEXT NOT NULL,
    to_handle_id   TEXT NOT NULL,
    seq            INTEGER NOT NULL,
    PRIMARY KEY (project_id, id),
    UNIQUE (project_id, to_node_id, to_handle_id),
    FOREIGN KEY (project_id, from_node_id) REFERENCES nodeflow_nodes(project_id, id) ON DELETE CASCADE,
    FOREIGN KEY (project_id, to_node_id)   REFERENCES nodeflow_nodes(project_id, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS nodeflow_assets (
    id         TEXT PRIMARY KEY,
    project_id TEXT NOT NULL REFERENCES nodeflow_projects(id) ON DELETE CASCADE,
    node_id    TEXT NOT NULL,
    kind       TEXT NOT NULL,
    url        TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_nodeflow_nodes_seq       ON nodeflow_nodes(project_id, seq);
CREATE INDEX IF NOT EXISTS idx_nodeflow_connections_seq ON nodeflow_connections(project_id, seq);
CREATE INDEX IF NOT EXISTS idx_nodeflow_assets_project  ON nodeflow_assets(project_id, created_at);
`

// CreateSchema creates the nodeflow tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops every nodeflow table.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS nodeflow_assets, nodeflow_connections, nodeflow_nodes, nodeflow_projects CASCADE;`)
	return err
}
