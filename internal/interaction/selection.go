package interaction

import "slices"

// Click updates the selection. A plain click selects only nodeID; a modified
// click toggles its membership.
func (c *Controller) Click(nodeID string, modified bool) {
	if !c.doc.Graph().HasNode(nodeID) {
		return
	}
	if !modified {
		c.selection = []string{nodeID}
		return
	}
	if i := slices.Index(c.selection, nodeID); i >= 0 {
		c.selection = slices.Delete(c.selection, i, i+1)
		return
	}
	c.selection = append(c.selection, nodeID)
}

// ClearSelection empties the selection
func (c *Controller) ClearSelection() {
	c.selection = nil
}

// Selection returns the selected node ids that still exist, in click order
func (c *Controller) Selection() []string {
	g := c.doc.Graph()
	c.selection = slices.DeleteFunc(c.selection, func(id string) bool { return !g.HasNode(id) })
	return slices.Clone(c.selection)
}

// IsSelected reports whether nodeID is selected
func (c *Controller) IsSelected(nodeID string) bool {
	return slices.Contains(c.Selection(), nodeID)
}

// Targets returns the nodes a bulk-capable action on nodeID applies to: the
// whole selection when nodeID belongs to a selection of several nodes,
// otherwise nodeID alone.
func (c *Controller) Targets(nodeID string) []string {
	sel := c.Selection()
	if len(sel) > 1 && slices.Contains(sel, nodeID) {
		return sel
	}
	return []string{nodeID}
}

// Duplicate copies the targets of nodeID as one undo entry and returns the
// new ids. Copies of a multi-node selection become the new selection.
func (c *Controller) Duplicate(nodeID string) []string {
	targets := c.Targets(nodeID)
	next, ids := c.store.DuplicateNodes(c.doc.Graph(), targets)
	if len(ids) == 0 {
		return nil
	}
	c.doc.Apply(next, false)
	if len(targets) > 1 {
		c.selection = slices.Clone(ids)
	}
	return ids
}

// Delete removes the targets of nodeID and their connections as one undo
// entry and returns the ids that were removed
func (c *Controller) Delete(nodeID string) []string {
	g := c.doc.Graph()
	targets := slices.DeleteFunc(c.Targets(nodeID), func(id string) bool { return !g.HasNode(id) })
	if len(targets) == 0 {
		return nil
	}
	c.doc.Apply(c.store.DeleteNodes(g, targets), false)
	c.selection = slices.DeleteFunc(c.selection, func(id string) bool { return slices.Contains(targets, id) })
	return targets
}

// Reset clears generated outputs of the targets of nodeID as one undo entry
// and returns the ids that were reset
func (c *Controller) Reset(nodeID string) []string {
	g := c.doc.Graph()
	targets := slices.DeleteFunc(c.Targets(nodeID), func(id string) bool { return !g.HasNode(id) })
	if len(targets) == 0 {
		return nil
	}
	c.doc.Apply(c.store.ResetNodes(g, targets), false)
	return targets
}
