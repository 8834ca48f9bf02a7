package collector

import "github.com/zavedsaifi/procmon/internal/models"

// BuildTree reassembles one snapshot's flat rows into a forest of process
// nodes linked by parent_pid. Roots and siblings keep submission order. A
// row becomes a root when its parent_pid is absent, names itself, or names
// a pid not present in the batch (the parent exited before collection).
//
// Every input row appears in the forest exactly once: a node attaches to at
// most one parent, and a parent link is refused when it would close a cycle,
// so even inconsistent parent references from a skewed scan degenerate into
// a valid forest.
func BuildTree(rows []models.Process) []*models.ProcessNode {
	nodes := make(map[int32]*models.ProcessNode, len(rows))
	order := make([]*models.ProcessNode, 0, len(rows))
	for _, row := range rows {
		// first-seen pid wins; ingestion already resolved duplicates
		if _, ok := nodes[row.PID]; ok {
			continue
		}
		node := &models.ProcessNode{Process: row, Children: []*models.ProcessNode{}}
		nodes[row.PID] = node
		order = append(order, node)
	}

	parentOf := make(map[*models.ProcessNode]*models.ProcessNode, len(order))
	roots := make([]*models.ProcessNode, 0, len(order))
	for _, node := range order {
		ppid := node.ParentPID
		if ppid != nil && *ppid != node.PID {
			if parent, ok := nodes[*ppid]; ok && !wouldCycle(parentOf, node, parent) {
				parent.Children = append(parent.Children, node)
				parentOf[node] = parent
				continue
			}
		}
		roots = append(roots, node)
	}

	for _, node := range order {
		node.HasChildren = len(node.Children) > 0
	}

	return roots
}

// wouldCycle reports whether attaching child under parent would close a
// parent_pid cycle. Attachments already made form chains, so walking up
// terminates.
func wouldCycle(parentOf map[*models.ProcessNode]*models.ProcessNode, child, parent *models.ProcessNode) bool {
	for p := parent; p != nil; p = parentOf[p] {
		if p == child {
			return true
		}
	}
	return false
}
