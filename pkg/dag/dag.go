// Package dag builds and validates the workflow graph: node/edge
// indexing, duplicate and dangling-reference checks, Kahn-reduction
// cycle detection, and connectivity.
package dag

import (
	"fmt"
	"sort"

	"github.com/dagline/dagline/pkg/models"
)

// Graph is the indexed, validated form of a models.Workflow, built
// once and consumed by both pkg/engine (scheduling) and the recovery
// planner.
type Graph struct {
	Workflow *models.Workflow

	Nodes    map[string]*models.Node
	Children map[string][]string // nodeID -> outgoing target IDs
	InDegree map[string]int      // nodeID -> number of incoming edges

	EdgesBySource map[string][]*models.Edge
	EdgesByTarget map[string][]*models.Edge
	ParentsByNode map[string][]*models.Node
}

// Build indexes a workflow without validating it. Callers that need a
// guaranteed-valid graph should call Validate first.
func Build(wf *models.Workflow) *Graph {
	g := &Graph{
		Workflow:      wf,
		Nodes:         make(map[string]*models.Node, len(wf.Nodes)),
		Children:      make(map[string][]string),
		InDegree:      make(map[string]int, len(wf.Nodes)),
		EdgesBySource: make(map[string][]*models.Edge),
		EdgesByTarget: make(map[string][]*models.Edge),
		ParentsByNode: make(map[string][]*models.Node),
	}

	for _, n := range wf.Nodes {
		g.Nodes[n.ID] = n
		g.InDegree[n.ID] = 0
		g.ParentsByNode[n.ID] = nil
	}

	for _, e := range wf.Edges {
		// Loop edges are scheduler-level re-submission metadata (spec
		// SPEC_FULL §4): they never participate in the static
		// in-degree/children graph the scheduler drains, only in the
		// lookup indexes below, so the engine can find and fire them
		// without the acyclicity/scheduling machinery ever seeing a
		// back-edge.
		if e.Loop == nil {
			g.Children[e.SourceNodeID] = append(g.Children[e.SourceNodeID], e.TargetNodeID)
			g.InDegree[e.TargetNodeID]++
		}

		g.EdgesBySource[e.SourceNodeID] = append(g.EdgesBySource[e.SourceNodeID], e)
		g.EdgesByTarget[e.TargetNodeID] = append(g.EdgesByTarget[e.TargetNodeID], e)

		if parent := g.Nodes[e.SourceNodeID]; parent != nil {
			g.ParentsByNode[e.TargetNodeID] = append(g.ParentsByNode[e.TargetNodeID], parent)
		}
	}

	return g
}

// BuildAndValidate builds the graph and runs every check in Validate.
func BuildAndValidate(wf *models.Workflow) (*Graph, error) {
	g := Build(wf)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate runs the document-validation rules in order: a non-empty
// node list, duplicate IDs, dangling edge endpoints, duplicate edges,
// acyclicity, connectivity, and kind-specific config checks. It returns
// the first violation. Every violation except a cycle is wrapped in
// models.ErrWorkflowInvalid; a cycle is returned as a
// *models.ValidationError naming the stalled nodes.
func (g *Graph) Validate() error {
	if len(g.Workflow.Nodes) == 0 {
		return fmt.Errorf("%w: workflow has no nodes", models.ErrWorkflowInvalid)
	}

	if err := g.checkDuplicateNodeIDs(); err != nil {
		return err
	}
	if err := g.checkEdgeEndpoints(); err != nil {
		return err
	}
	if err := g.checkDuplicateEdges(); err != nil {
		return err
	}
	if err := g.checkAcyclic(); err != nil {
		return err
	}
	if err := g.checkConnectivity(); err != nil {
		return err
	}
	if err := g.checkNodeConfigs(); err != nil {
		return err
	}
	return nil
}

func (g *Graph) checkDuplicateNodeIDs() error {
	seen := make(map[string]bool, len(g.Workflow.Nodes))
	for _, n := range g.Workflow.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node with empty id", models.ErrWorkflowInvalid)
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: %w (id=%s)", models.ErrWorkflowInvalid, models.ErrDuplicateNodeID, n.ID)
		}
		seen[n.ID] = true
	}
	return nil
}

func (g *Graph) checkEdgeEndpoints() error {
	for _, e := range g.Workflow.Edges {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: %v", models.ErrWorkflowInvalid, err)
		}
		if g.Nodes[e.SourceNodeID] == nil {
			return fmt.Errorf("%w: %w: edge source %q", models.ErrWorkflowInvalid, models.ErrNodeNotFound, e.SourceNodeID)
		}
		if g.Nodes[e.TargetNodeID] == nil {
			return fmt.Errorf("%w: %w: edge target %q", models.ErrWorkflowInvalid, models.ErrNodeNotFound, e.TargetNodeID)
		}
	}
	return nil
}

func (g *Graph) checkDuplicateEdges() error {
	seen := make(map[string]bool)
	for _, e := range g.Workflow.Edges {
		key := e.SourceNodeID + "->" + e.TargetNodeID
		if seen[key] && e.Loop == nil {
			return fmt.Errorf("%w: %w (%s)", models.ErrWorkflowInvalid, models.ErrDuplicateEdge, key)
		}
		seen[key] = true
	}
	return nil
}

// checkAcyclic runs Kahn's reduction over the graph minus any loop
// edges (SPEC_FULL §4 — loop edges are scheduler-level re-submission
// metadata, never part of the static acyclicity check). If the
// reduction stalls before exhausting every node, the stalled set is
// named in the returned error.
func (g *Graph) checkAcyclic() error {
	inDegree := make(map[string]int, len(g.Nodes))
	children := make(map[string][]string, len(g.Nodes))
	for id := range g.Nodes {
		inDegree[id] = 0
	}
	for _, e := range g.Workflow.Edges {
		if e.Loop != nil {
			continue
		}
		children[e.SourceNodeID] = append(children[e.SourceNodeID], e.TargetNodeID)
		inDegree[e.TargetNodeID]++
	}

	queue := make([]string, 0, len(g.Nodes))
	for id, d := range inDegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, childID := range children[id] {
			inDegree[childID]--
			if inDegree[childID] == 0 {
				queue = append(queue, childID)
			}
		}
	}

	if visited != len(g.Nodes) {
		var stalled []string
		for id, d := range inDegree {
			if d > 0 {
				stalled = append(stalled, id)
			}
		}
		sort.Strings(stalled)
		return &models.ValidationError{
			Field:   "edges",
			Message: fmt.Sprintf("%v: nodes %v never reach in-degree 0", models.ErrCyclicGraph, stalled),
			NodeIDs: stalled,
		}
	}
	return nil
}

// checkConnectivity rejects a node with neither incoming nor outgoing
// edges when the workflow has more than one node (spec §4.1 rule 4):
// such a node would run as an isolated root that no edge ties to the
// rest of the graph.
func (g *Graph) checkConnectivity() error {
	if len(g.Workflow.Nodes) == 1 {
		return nil
	}
	hasOutgoing := make(map[string]bool)
	for _, e := range g.Workflow.Edges {
		hasOutgoing[e.SourceNodeID] = true
	}
	for id := range g.Nodes {
		if g.InDegree[id] == 0 && !hasOutgoing[id] {
			return fmt.Errorf("%w: %w: %s", models.ErrWorkflowInvalid, models.ErrDisconnectedNode, id)
		}
	}
	return nil
}

func (g *Graph) checkNodeConfigs() error {
	for _, n := range g.Workflow.Nodes {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("%w: %v", models.ErrWorkflowInvalid, err)
		}
	}
	return nil
}

// Leaves returns nodes with no outgoing edges — the terminal set whose
// completion ends the execution.
func (g *Graph) Leaves() []*models.Node {
	hasOutgoing := make(map[string]bool)
	for _, e := range g.Workflow.Edges {
		hasOutgoing[e.SourceNodeID] = true
	}
	var leaves []*models.Node
	for _, n := range g.Workflow.Nodes {
		if !hasOutgoing[n.ID] {
			leaves = append(leaves, n)
		}
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].ID < leaves[j].ID })
	return leaves
}

// Roots returns nodes with no incoming edges — the initial ready set.
func (g *Graph) Roots() []*models.Node {
	var roots []*models.Node
	for id, n := range g.Nodes {
		if g.InDegree[id] == 0 {
			roots = append(roots, n)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].ID < roots[j].ID })
	return roots
}

// Priority returns node metadata's "priority" field, defaulting to 0.
// Read by SortByPriority; the scheduler does not call either when it
// submits a ready set, so priority has no effect on execution order.
func Priority(n *models.Node) int {
	if n.Metadata == nil {
		return 0
	}
	switch v := n.Metadata["priority"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// SortByPriority orders nodes highest-priority-first, stable on ID for
// ties so test fixtures are deterministic.
func SortByPriority(nodes []*models.Node) []*models.Node {
	sorted := make([]*models.Node, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := Priority(sorted[i]), Priority(sorted[j])
		if pi != pj {
			return pi > pj
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
