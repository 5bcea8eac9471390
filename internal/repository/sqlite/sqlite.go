package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"nodeflow/internal/domain"
	"nodeflow/internal/repository"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.Repository = (*Repository)(nil)

// New creates a new SQLite repository. dbPath may be ":memory:".
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func dsn(path string) string {
	pragmas := []string{"foreign_keys(1)", "busy_timeout(5000)"}
	if path != ":memory:" {
		pragmas = append(pragmas, "journal_mode(WAL)")
	}
	var b strings.Builder
	b.WriteString(path)
	for i, p := range pragmas {
		if i == 0 {
			b.WriteString("?")
		} else {
			b.WriteString("&")
		}
		b.WriteString("_pragma=" + p)
	}
	return b.String()
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS nodes (
		project_id TEXT NOT NULL,
		id TEXT NOT NULL,
		type TEXT NOT NULL,
		position_x REAL NOT NULL DEFAULT 0,
		position_y REAL NOT NULL DEFAULT 0,
		data JSON NOT NULL,
		seq INTEGER NOT NULL,
		PRIMARY KEY (project_id, id),
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS connections (
		project_id TEXT NOT NULL,
		id TEXT NOT NULL,
		from_node_id TEXT NOT NULL,
		from_handle_id TEXT NOT NULL,
		to_node_id TEXT NOT NULL,
		to_handle_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		PRIMARY KEY (project_id, id),
		UNIQUE (project_id, to_node_id, to_handle_id),
		FOREIGN KEY (project_id, from_node_id) REFERENCES nodes(project_id, id) ON DELETE CASCADE,
		FOREIGN KEY (project_id, to_node_id) REFERENCES nodes(project_id, id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		url TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_project ON nodes(project_id, seq);
	CREATE INDEX IF NOT EXISTS idx_connections_project ON connections(project_id, seq);
	CREATE INDEX IF NOT EXISTS idx_assets_project ON assets(project_id, created_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// LoadGraph loads the graph of a project
func (r *Repository) LoadGraph(ctx context.Context, projectID string) (domain.Graph, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Graph{}, repository.ErrProjectNotFound
	}
	if err != nil {
		return domain.Graph{}, fmt.Errorf("failed to query project: %w", err)
	}

	g := domain.NewGraph()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes WHERE project_id = ? ORDER BY seq
	`, projectID)
	if err != nil {
		return domain.Graph{}, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row nodeRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return domain.Graph{}, fmt.Errorf("failed to scan node: %w", err)
		}
		node, err := row.toDomain()
		if err != nil {
			return domain.Graph{}, fmt.Errorf("node %s: %w", row.ID, err)
		}
		g.Nodes = append(g.Nodes, node)
	}
	if err := rows.Err(); err != nil {
		return domain.Graph{}, fmt.Errorf("error iterating nodes: %w", err)
	}

	connRows, err := r.db.QueryContext(ctx, `
		SELECT `+connectionColumns+`
		FROM connections WHERE project_id = ? ORDER BY seq
	`, projectID)
	if err != nil {
		return domain.Graph{}, fmt.Errorf("failed to query connections: %w", err)
	}
	defer connRows.Close()

	for connRows.Next() {
		var row connectionRow
		if err := connRows.Scan(row.scanArgs()...); err != nil {
			return domain.Graph{}, fmt.Errorf("failed to scan connection: %w", err)
		}
		g.Connections = append(g.Connections, row.toDomain())
	}
	if err := connRows.Err(); err != nil {
		return domain.Graph{}, fmt.Errorf("error iterating connections: %w", err)
	}

	return g, nil
}

// SaveGraph replaces the stored graph of a project, creating the project on
// first save
func (r *Repository) SaveGraph(ctx context.Context, projectID string, g domain.Graph) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, fingerprint, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			updated_at = CURRENT_TIMESTAMP
	`, projectID, g.Fingerprint()); err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	// Connections go first so the node delete never trips a foreign key
	if _, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to clear connections: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to clear nodes: %w", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (project_id, id, type, position_x, position_y, data, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare node statement: %w", err)
	}
	defer nodeStmt.Close()

	for i, node := range g.Nodes {
		args, err := nodeInsertArgs(projectID, i, node)
		if err != nil {
			return fmt.Errorf("node %s: %w", node.ID, err)
		}
		if _, err := nodeStmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
		}
	}

	connStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO connections (project_id, id, from_node_id, from_handle_id, to_node_id, to_handle_id, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare connection statement: %w", err)
	}
	defer connStmt.Close()

	for i, conn := range g.Connections {
		if _, err := connStmt.ExecContext(ctx, connectionInsertArgs(projectID, i, conn)...); err != nil {
			return fmt.Errorf("failed to insert connection %s: %w", conn.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListProjects returns every stored project, most recently saved first
func (r *Repository) ListProjects(ctx context.Context) ([]repository.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.fingerprint, p.created_at, p.updated_at,
			(SELECT COUNT(*) FROM nodes n WHERE n.project_id = p.id)
		FROM projects p
		ORDER BY p.updated_at DESC, p.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := make([]repository.Project, 0)
	for rows.Next() {
		var p repository.Project
		if err := rows.Scan(&p.ID, &p.Fingerprint, &p.CreatedAt, &p.UpdatedAt, &p.NodeCount); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// DeleteProject removes a project with its graph and assets
func (r *Repository) DeleteProject(ctx context.Context, projectID string) error {
	// Nodes, connections and assets are deleted by CASCADE
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrProjectNotFound
	}
	return nil
}

// SaveAsset records a generated asset in the project's gallery. The insert
// only happens when the project exists, in the same statement.
func (r *Repository) SaveAsset(ctx context.Context, asset repository.Asset) error {
	args := append(assetInsertArgs(asset), asset.ProjectID)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO assets (id, project_id, node_id, kind, url, created_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM projects WHERE id = ?)
		ON CONFLICT(id) DO UPDATE SET
			node_id = excluded.node_id,
			kind = excluded.kind,
			url = excluded.url
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrProjectNotFound
	}
	return nil
}

// ListAssets returns a project's gallery, oldest first
func (r *Repository) ListAssets(ctx context.Context, projectID string) ([]repository.Asset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+assetColumns+`
		FROM assets WHERE project_id = ? ORDER BY created_at, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	assets := make([]repository.Asset, 0)
	for rows.Next() {
		var row assetRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}
	return assets, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
