package domain

// Connection is a directed edge from an output handle to an input handle
type Connection struct {
	ID           string `json:"id"`
	FromNodeID   string `json:"fromNodeId"`
	FromHandleID string `json:"fromHandleId"`
	ToNodeID     string `json:"toNodeId"`
	ToHandleID   string `json:"toHandleId"`
}

// Involves checks if this connection touches the given node
func (c Connection) Involves(nodeID string) bool {
	return c.FromNodeID == nodeID || c.ToNodeID == nodeID
}

// Targets reports whether the connection terminates at the given input handle
func (c Connection) Targets(nodeID, handleID string) bool {
	return c.ToNodeID == nodeID && c.ToHandleID == handleID
}

// OtherEnd returns the node id on the other end of this connection
func (c Connection) OtherEnd(nodeID string) string {
	if c.FromNodeID == nodeID {
		return c.ToNodeID
	}
	return c.FromNodeID
}
