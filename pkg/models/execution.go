package models

import "time"

// ExecutionStatus is the lifecycle state of a running workflow instance
// (spec §3).
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether s can never transition again.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// NodeResultStatus is the outcome of a single node's run (spec §3).
type NodeResultStatus string

const (
	NodeResultSuccess NodeResultStatus = "success"
	NodeResultFailed  NodeResultStatus = "failed"
	NodeResultWaiting NodeResultStatus = "waiting"
)

// NodeResult is the append-only (except RetryCount) record of one
// node's execution within one ExecutionContext (spec §3).
type NodeResult struct {
	NodeID     string                 `json:"nodeId"`
	Status     NodeResultStatus       `json:"status"`
	Output     map[string]interface{} `json:"output,omitempty"`
	ErrorKind  ErrorKind              `json:"errorKind,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Stack      string                 `json:"stack,omitempty"`
	StartedAt  time.Time              `json:"startedAt"`
	EndedAt    time.Time              `json:"endedAt,omitempty"`
	DurationMs int64                  `json:"durationMs"`
	RetryCount int                    `json:"retryCount"`

	// WaitTicket is set when Status == NodeResultWaiting.
	WaitTicket string `json:"waitTicket,omitempty"`
}

// ExecutionContext is the per-running-instance state of spec §3.
// Input is immutable after creation; Globals may be read (never
// written) by scripts per the script node's contract.
type ExecutionContext struct {
	ExecutionID string                 `json:"executionId"`
	WorkflowID  string                 `json:"workflowId"`
	TenantID    string                 `json:"tenantId"`
	Status      ExecutionStatus        `json:"status"`
	Input       map[string]interface{} `json:"input"`
	Globals     map[string]interface{} `json:"globals"`
	Results     map[string]*NodeResult `json:"results"`
	StartedAt   time.Time              `json:"startedAt"`
	EndedAt     time.Time              `json:"endedAt,omitempty"`
	Error       string                 `json:"error,omitempty"`
	FailedNode  string                 `json:"failedNode,omitempty"`

	// RecoveredFrom references the checkpoint's original execution id
	// when this context was produced by the recovery planner (C8).
	RecoveredFrom string `json:"recoveredFrom,omitempty"`
}

// Checkpoint is the durable snapshot sufficient to reconstruct the
// scheduler's state for one execution (spec §3, §4.7, §4.8).
type Checkpoint struct {
	ExecutionID    string                  `json:"executionId"`
	WorkflowID     string                  `json:"workflowId"`
	TenantID       string                  `json:"tenantId"`
	Workflow       *Workflow               `json:"workflow"`
	Status         ExecutionStatus         `json:"status"`
	InDegree       map[string]int          `json:"inDegree"`
	Completed      map[string]bool         `json:"completed"`
	Results        map[string]*NodeResult  `json:"results"`
	Input          map[string]interface{}  `json:"input"`
	Globals        map[string]interface{}  `json:"globals"`
	Error          string                  `json:"error,omitempty"`
	Timestamp      time.Time               `json:"timestamp"`
}

// NodeResultRef is a lightweight reference form of a NodeResult:
// status inline, payload externalized. Nothing in the module uses it:
// a Checkpoint carries full NodeResults with every output inline.
type NodeResultRef struct {
	NodeID           string           `json:"nodeId"`
	Status           NodeResultStatus `json:"status"`
	ExternalPayload  string           `json:"externalPayload,omitempty"` // content-addressed id
	InlineOutput     map[string]interface{} `json:"inlineOutput,omitempty"`
}
