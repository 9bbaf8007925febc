// Package checkpoint implements the Checkpoint Writer (C7) and
// Recovery Planner (C8): a bun/Postgres-backed durable record of every
// execution's in-degree snapshot and per-node results, sufficient to
// rebuild a scheduler run after a process restart.
package checkpoint

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// JSONMap mirrors the teacher's JSONBMap: a jsonb column carrying an
// arbitrary document (workflow snapshot, in-degree map, variables).
type JSONMap map[string]interface{}

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONMap)
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		*j = make(JSONMap)
		return nil
	}
	if len(b) == 0 {
		*j = make(JSONMap)
		return nil
	}
	return json.Unmarshal(b, j)
}

// ExecutionModel is the durable row backing one models.ExecutionContext.
// WorkflowDoc carries the full workflow document so the recovery
// planner never needs a live workflow-definition store to rebuild a
// graph (spec §4.8).
type ExecutionModel struct {
	bun.BaseModel `bun:"table:dagline_executions,alias:ex"`

	ExecutionID   string    `bun:"execution_id,pk" json:"executionId"`
	WorkflowID    string    `bun:"workflow_id,notnull" json:"workflowId"`
	TenantID      string    `bun:"tenant_id" json:"tenantId"`
	WorkflowDoc   JSONMap   `bun:"workflow_doc,type:jsonb,notnull" json:"workflowDoc"`
	Status        string    `bun:"status,notnull" json:"status"`
	InDegree      JSONMap   `bun:"in_degree,type:jsonb,notnull,default:'{}'" json:"inDegree"`
	Completed     JSONMap   `bun:"completed,type:jsonb,notnull,default:'{}'" json:"completed"`
	Input         JSONMap   `bun:"input,type:jsonb,default:'{}'" json:"input"`
	Globals       JSONMap   `bun:"globals,type:jsonb,default:'{}'" json:"globals"`
	Error         string    `bun:"error" json:"error,omitempty"`
	RecoveredFrom string    `bun:"recovered_from" json:"recoveredFrom,omitempty"`
	StartedAt     time.Time `bun:"started_at,notnull" json:"startedAt"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

func (ExecutionModel) TableName() string { return "dagline_executions" }

// NodeResultModel is one node's durable completion record, keyed by
// (execution_id, node_id) so a re-finish (retry then eventual success)
// overwrites rather than accumulates rows.
type NodeResultModel struct {
	bun.BaseModel `bun:"table:dagline_node_results,alias:nr"`

	ExecutionID string    `bun:"execution_id,pk" json:"executionId"`
	NodeID      string    `bun:"node_id,pk" json:"nodeId"`
	Status      string    `bun:"status,notnull" json:"status"`
	Output      JSONMap   `bun:"output,type:jsonb" json:"output,omitempty"`
	ErrorKind   string    `bun:"error_kind" json:"errorKind,omitempty"`
	Error       string    `bun:"error" json:"error,omitempty"`
	RetryCount  int       `bun:"retry_count,notnull,default:0" json:"retryCount"`
	WaitTicket  string    `bun:"wait_ticket" json:"waitTicket,omitempty"`
	StartedAt   time.Time `bun:"started_at,notnull" json:"startedAt"`
	EndedAt     time.Time `bun:"ended_at" json:"endedAt,omitempty"`
	DurationMs  int64     `bun:"duration_ms,notnull,default:0" json:"durationMs"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

func (NodeResultModel) TableName() string { return "dagline_node_results" }
