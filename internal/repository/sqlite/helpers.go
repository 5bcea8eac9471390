package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"nodeflow/internal/domain"
	"nodeflow/internal/repository"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullToTime converts sql.NullTime to time.Time, zero when NULL
func nullToTime(nt sql.NullTime) time.Time {
	if nt.Valid {
		return nt.Time
	}
	return time.Time{}
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to the nodes table:
// 1. Add field to nodeRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update nodeColumns constant - APPEND to end
// 4. Update toDomain() to map new field to domain.Node
// 5. Update nodeInsertArgs() and the INSERT in SaveGraph
// 6. Update relevant tests
//
// CRITICAL: Column order must match between:
// - nodeColumns constant
// - scanArgs() return slice
//
// Same pattern applies to connections and assets.

// ============================================================================
// Node Row Scanner
// ============================================================================

// nodeRow holds all columns from a node query for scanning
type nodeRow struct {
	ID        string
	Type      string
	PositionX float64
	PositionY float64
	DataJSON  sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match nodeColumns order exactly:
// id, type, position_x, position_y, data
func (r *nodeRow) scanArgs() []any {
	return []any{
		&r.ID,        // 1
		&r.Type,      // 2
		&r.PositionX, // 3
		&r.PositionY, // 4
		&r.DataJSON,  // 5
	}
}

// toDomain converts the scanned row to a domain.Node
func (r *nodeRow) toDomain() (domain.Node, error) {
	nodeType := domain.NodeType(r.Type)
	data, err := domain.DecodePayload(nodeType, []byte(nullToString(r.DataJSON)))
	if err != nil {
		return domain.Node{}, fmt.Errorf("unmarshal data: %w", err)
	}

	return domain.Node{
		ID:       r.ID,
		Type:     nodeType,
		Position: domain.Position{X: r.PositionX, Y: r.PositionY},
		Data:     data,
	}, nil
}

// nodeColumns is the SELECT column list for node queries
const nodeColumns = `id, type, position_x, position_y, data`

// nodeInsertArgs prepares arguments for node INSERT
// Returns: project_id, id, type, position_x, position_y, data, seq
func nodeInsertArgs(projectID string, seq int, node domain.Node) ([]any, error) {
	data, err := json.Marshal(node.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}

	return []any{
		projectID,
		node.ID,
		string(node.Type),
		node.Position.X,
		node.Position.Y,
		string(data),
		seq,
	}, nil
}

// ============================================================================
// Connection Row Scanner
// ============================================================================

// connectionRow holds all columns from a connection query for scanning
type connectionRow struct {
	ID           string
	FromNodeID   string
	FromHandleID string
	ToNodeID     string
	ToHandleID   string
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match connectionColumns order exactly:
// id, from_node_id, from_handle_id, to_node_id, to_handle_id
func (r *connectionRow) scanArgs() []any {
	return []any{
		&r.ID,           // 1
		&r.FromNodeID,   // 2
		&r.FromHandleID, // 3
		&r.ToNodeID,     // 4
		&r.ToHandleID,   // 5
	}
}

// toDomain converts the scanned row to a domain.Connection
func (r *connectionRow) toDomain() domain.Connection {
	return domain.Connection{
		ID:           r.ID,
		FromNodeID:   r.FromNodeID,
		FromHandleID: r.FromHandleID,
		ToNodeID:     r.ToNodeID,
		ToHandleID:   r.ToHandleID,
	}
}

// connectionColumns is the SELECT column list for connection queries
const connectionColumns = `id, from_node_id, from_handle_id, to_node_id, to_handle_id`

// connectionInsertArgs prepares arguments for connection INSERT
// Returns: project_id, id, from_node_id, from_handle_id, to_node_id, to_handle_id, seq
func connectionInsertArgs(projectID string, seq int, c domain.Connection) []any {
	return []any{
		projectID,
		c.ID,
		c.FromNodeID,
		c.FromHandleID,
		c.ToNodeID,
		c.ToHandleID,
		seq,
	}
}

// ============================================================================
// Asset Row Scanner
// ============================================================================

// assetRow holds all columns from an asset query for scanning
type assetRow struct {
	ID        string
	ProjectID string
	NodeID    string
	Kind      string
	URL       string
	CreatedAt sql.NullTime
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match assetColumns order exactly:
// id, project_id, node_id, kind, url, created_at
func (r *assetRow) scanArgs() []any {
	return []any{
		&r.ID,        // 1
		&r.ProjectID, // 2
		&r.NodeID,    // 3
		&r.Kind,      // 4
		&r.URL,       // 5
		&r.CreatedAt, // 6
	}
}

// toDomain converts the scanned row to a repository.Asset
func (r *assetRow) toDomain() repository.Asset {
	return repository.Asset{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		NodeID:    r.NodeID,
		Kind:      domain.HandleType(r.Kind),
		URL:       r.URL,
		CreatedAt: nullToTime(r.CreatedAt),
	}
}

// assetColumns is the SELECT column list for asset queries
const assetColumns = `id, project_id, node_id, kind, url, created_at`

// assetInsertArgs prepares arguments for asset INSERT/UPSERT
// Returns: id, project_id, node_id, kind, url, created_at
func assetInsertArgs(a repository.Asset) []any {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return []any{
		a.ID,
		a.ProjectID,
		a.NodeID,
		string(a.Kind),
		a.URL,
		createdAt,
	}
}
