package models

import "fmt"

// NodeKind enumerates the eight node kinds spec §3 allows.
type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindHTTP    NodeKind = "http"
	NodeKindLog     NodeKind = "log"
	NodeKindScript  NodeKind = "script"
	NodeKindIf      NodeKind = "if"
	NodeKindMerge   NodeKind = "merge"
	NodeKindWait    NodeKind = "wait"
	NodeKindEnd     NodeKind = "end"
)

// ValidNodeKind reports whether k is one of the eight recognized kinds.
func ValidNodeKind(k string) bool {
	switch NodeKind(k) {
	case NodeKindTrigger, NodeKindHTTP, NodeKindLog, NodeKindScript,
		NodeKindIf, NodeKindMerge, NodeKindWait, NodeKindEnd:
		return true
	}
	return false
}

// RetryPolicy configures node-level retry behavior (spec §3).
type RetryPolicy struct {
	MaxAttempts   int     `json:"maxAttempts"`
	BackoffBaseMs int64   `json:"backoffBaseMs"`
	BackoffFactor float64 `json:"backoffFactor"`
}

// Node is a single vertex in a workflow DAG (spec §3).
type Node struct {
	ID          string                 `json:"id" validate:"required"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type" validate:"required"`
	Config      map[string]interface{} `json:"config"`
	TimeoutMs   int64                  `json:"timeout,omitempty"`
	Retry       *RetryPolicy           `json:"retry,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Edge is a directed connection between two nodes, with an optional
// boolean condition expression evaluated by pkg/expr.
type Edge struct {
	SourceNodeID string `json:"sourceNodeId" validate:"required"`
	TargetNodeID string `json:"targetNodeId" validate:"required"`
	Condition    string `json:"condition,omitempty"`

	// Loop marks a back-edge allowed to bypass the static acyclicity
	// check; see SPEC_FULL.md §4. Set from the edge's `loop` field when
	// the workflow document is decoded. nil for ordinary edges.
	Loop *LoopConfig `json:"loop,omitempty"`
}

// LoopConfig bounds how many times a loop edge may re-fire its target.
type LoopConfig struct {
	MaxIterations int `json:"maxIterations"`
}

// Workflow is the declarative DAG document of spec §3.
type Workflow struct {
	ID               string                 `json:"id" validate:"required"`
	Name             string                 `json:"name" validate:"required"`
	Version          string                 `json:"version,omitempty"`
	TenantID         string                 `json:"tenantId,omitempty"`
	Nodes            []*Node                `json:"nodes" validate:"required,min=1,dive"`
	Edges            []*Edge                `json:"edges"`
	GlobalVariables  map[string]interface{} `json:"globalVariables,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Validate performs the kind-specific config checks spec §4.1 rule 5
// describes. Structural checks (uniqueness, endpoints, acyclicity,
// connectivity) live in pkg/dag since they require the whole graph.
func (n *Node) Validate() error {
	if n.ID == "" {
		return &ValidationError{Field: "id", Message: "node id is required"}
	}
	if !ValidNodeKind(n.Type) {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown node kind %q", n.Type)}
	}

	switch NodeKind(n.Type) {
	case NodeKindHTTP:
		url, _ := n.Config["url"].(string)
		if url == "" {
			return &ValidationError{Field: "config.url", Message: "http node requires a non-empty url", NodeIDs: []string{n.ID}}
		}
	case NodeKindScript:
		code, _ := n.Config["code"].(string)
		if code == "" {
			return &ValidationError{Field: "config.code", Message: "script node requires non-empty code", NodeIDs: []string{n.ID}}
		}
	case NodeKindIf:
		// condition defaults to true when absent — no hard requirement.
	}

	return nil
}

// Validate checks edge-local invariants (non-empty endpoints, no
// duplicate pairing is checked by pkg/dag which sees the whole set).
func (e *Edge) Validate() error {
	if e.SourceNodeID == "" || e.TargetNodeID == "" {
		return &ValidationError{Field: "edge", Message: "edge requires sourceNodeId and targetNodeId"}
	}
	return nil
}
