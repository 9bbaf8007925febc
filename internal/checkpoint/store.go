package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/dagline/dagline/pkg/engine"
	"github.com/dagline/dagline/pkg/models"
)

var _ engine.CheckpointWriter = (*Store)(nil)

// Store is a bun/Postgres-backed implementation of engine.CheckpointWriter,
// grounded on the teacher's ExecutionRepository (same Create/Update/
// transactional shape), generalized from the workflow-engine's own
// execution schema to the Checkpoint/NodeResult documents of spec §3/§7.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the store's two tables if they don't already exist.
// A hand-rolled CREATE TABLE IF NOT EXISTS is deliberately simpler than
// the teacher's embedded-migrations machinery (`storage.Migrator`):
// this package owns exactly two tables and has no versioned schema
// history to replay.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*ExecutionModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create dagline_executions: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*NodeResultModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create dagline_node_results: %w", err)
	}
	return nil
}

func toJSONMap(v interface{}) (JSONMap, error) {
	if v == nil {
		return JSONMap{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := make(JSONMap)
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromJSONMap(m JSONMap, out interface{}) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// StartExecution inserts the initial durable row for a launching
// execution, embedding the full workflow document so recovery never
// depends on a separate, possibly-mutated workflow store.
func (s *Store) StartExecution(ctx context.Context, workflow *models.Workflow, ec *models.ExecutionContext) error {
	workflowDoc, err := toJSONMap(workflow)
	if err != nil {
		return fmt.Errorf("encode workflow: %w", err)
	}
	input, err := toJSONMap(ec.Input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	globals, err := toJSONMap(ec.Globals)
	if err != nil {
		return fmt.Errorf("encode globals: %w", err)
	}

	row := &ExecutionModel{
		ExecutionID:   ec.ExecutionID,
		WorkflowID:    ec.WorkflowID,
		TenantID:      ec.TenantID,
		WorkflowDoc:   workflowDoc,
		Status:        string(ec.Status),
		InDegree:      JSONMap{},
		Completed:     JSONMap{},
		Input:         input,
		Globals:       globals,
		RecoveredFrom: ec.RecoveredFrom,
		StartedAt:     ec.StartedAt,
		UpdatedAt:     time.Now(),
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert execution checkpoint: %w", err)
	}
	return nil
}

// NodeStart is a lightweight liveness touch: spec §4.7's durability
// requirement binds NodeFinish, not NodeStart, so this only bumps
// updated_at for operator visibility into in-flight nodes.
func (s *Store) NodeStart(ctx context.Context, executionID string, node *models.Node, inputSnapshot map[string]interface{}) error {
	_, err := s.db.NewUpdate().
		Model((*ExecutionModel)(nil)).
		Set("updated_at = ?", time.Now()).
		Where("execution_id = ?", executionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("touch execution checkpoint: %w", err)
	}
	return nil
}

// NodeFinish persists the node's result and the in-degree snapshot in
// one transaction. The scheduler must not fan out to N's successors
// until this call returns (spec §4.7's ordering guarantee).
func (s *Store) NodeFinish(ctx context.Context, executionID string, node *models.Node, result *models.NodeResult, inDegreeSnapshot map[string]int) error {
	output, err := toJSONMap(result.Output)
	if err != nil {
		return fmt.Errorf("encode node output: %w", err)
	}
	inDegree, err := toJSONMap(inDegreeSnapshot)
	if err != nil {
		return fmt.Errorf("encode in-degree snapshot: %w", err)
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := &NodeResultModel{
			ExecutionID: executionID,
			NodeID:      node.ID,
			Status:      string(result.Status),
			Output:      output,
			ErrorKind:   string(result.ErrorKind),
			Error:       result.Error,
			RetryCount:  result.RetryCount,
			WaitTicket:  result.WaitTicket,
			StartedAt:   result.StartedAt,
			EndedAt:     result.EndedAt,
			DurationMs:  result.DurationMs,
			UpdatedAt:   time.Now(),
		}
		_, err := tx.NewInsert().Model(row).
			On("CONFLICT (execution_id, node_id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("output = EXCLUDED.output").
			Set("error_kind = EXCLUDED.error_kind").
			Set("error = EXCLUDED.error").
			Set("retry_count = EXCLUDED.retry_count").
			Set("wait_ticket = EXCLUDED.wait_ticket").
			Set("started_at = EXCLUDED.started_at").
			Set("ended_at = EXCLUDED.ended_at").
			Set("duration_ms = EXCLUDED.duration_ms").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert node result: %w", err)
		}

		completed := JSONMap{}
		if result.Status == models.NodeResultSuccess {
			completed[node.ID] = true
		}
		_, err = tx.NewUpdate().
			Model((*ExecutionModel)(nil)).
			Set("in_degree = ?", inDegree).
			Set("completed = completed || ?", completed).
			Set("updated_at = ?", time.Now()).
			Where("execution_id = ?", executionID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update in-degree snapshot: %w", err)
		}
		return nil
	})
}

// FinishExecution marks the execution's terminal status.
func (s *Store) FinishExecution(ctx context.Context, executionID string, status models.ExecutionStatus, errMessage string) error {
	_, err := s.db.NewUpdate().
		Model((*ExecutionModel)(nil)).
		Set("status = ?", string(status)).
		Set("error = ?", errMessage).
		Set("updated_at = ?", time.Now()).
		Where("execution_id = ?", executionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("finish execution checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reconstructs a models.Checkpoint for executionID,
// the persisted form the recovery planner rebuilds a run from (spec
// §4.8).
func (s *Store) LoadCheckpoint(ctx context.Context, executionID string) (*models.Checkpoint, error) {
	row := &ExecutionModel{}
	err := s.db.NewSelect().Model(row).Where("execution_id = ?", executionID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", models.ErrExecutionNotFound, executionID)
		}
		return nil, fmt.Errorf("load execution checkpoint: %w", err)
	}

	var results []*NodeResultModel
	err = s.db.NewSelect().Model(&results).Where("execution_id = ?", executionID).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load node results: %w", err)
	}

	workflow := &models.Workflow{}
	if err := fromJSONMap(row.WorkflowDoc, workflow); err != nil {
		return nil, fmt.Errorf("decode workflow document: %w", err)
	}
	inDegree := map[string]int{}
	if err := fromJSONMap(row.InDegree, &inDegree); err != nil {
		return nil, fmt.Errorf("decode in-degree snapshot: %w", err)
	}
	completed := map[string]bool{}
	if err := fromJSONMap(row.Completed, &completed); err != nil {
		return nil, fmt.Errorf("decode completed set: %w", err)
	}

	resultMap := make(map[string]*models.NodeResult, len(results))
	for _, r := range results {
		output := map[string]interface{}(r.Output)
		resultMap[r.NodeID] = &models.NodeResult{
			NodeID:     r.NodeID,
			Status:     models.NodeResultStatus(r.Status),
			Output:     output,
			ErrorKind:  models.ErrorKind(r.ErrorKind),
			Error:      r.Error,
			StartedAt:  r.StartedAt,
			EndedAt:    r.EndedAt,
			DurationMs: r.DurationMs,
			RetryCount: r.RetryCount,
			WaitTicket: r.WaitTicket,
		}
	}

	return &models.Checkpoint{
		ExecutionID: row.ExecutionID,
		WorkflowID:  row.WorkflowID,
		TenantID:    row.TenantID,
		Workflow:    workflow,
		Status:      models.ExecutionStatus(row.Status),
		InDegree:    inDegree,
		Completed:   completed,
		Results:     resultMap,
		Input:       map[string]interface{}(row.Input),
		Globals:     map[string]interface{}(row.Globals),
		Error:       row.Error,
		Timestamp:   row.UpdatedAt,
	}, nil
}

// ListRecoverable returns the execution ids left in a non-terminal
// status by an unclean shutdown (spec §4.8: "running" or "waiting").
func (s *Store) ListRecoverable(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*ExecutionModel)(nil)).
		Column("execution_id").
		Where("status IN (?)", bun.In([]string{string(models.ExecutionStatusRunning), string(models.ExecutionStatusWaiting)})).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list recoverable executions: %w", err)
	}
	return ids, nil
}
