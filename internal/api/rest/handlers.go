package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dagline/dagline/internal/logger"
	"github.com/dagline/dagline/pkg/dag"
	"github.com/dagline/dagline/pkg/engine"
	"github.com/dagline/dagline/pkg/models"
)

// ExecutionReader is the read path a GET /executions/{id} needs — the
// same narrow-interface-in-the-consumer pattern as
// engine.CheckpointWriter and cache.CheckpointLoader.
type ExecutionReader interface {
	LoadCheckpoint(ctx context.Context, executionID string) (*models.Checkpoint, error)
}

// Recoverer is the subset of internal/checkpoint.RecoveryPlanner the
// resume endpoint needs.
type Recoverer interface {
	Recover(ctx context.Context, executionID string, opts *engine.ExecutionOptions) (*models.ExecutionContext, error)
}

// ExecutionHandlers adapts spec.md §6's "REST transport... Their
// interfaces are specified where the core consumes them" boundary:
// launch, resume, and execution-history inspection over the
// engine.Scheduler and the checkpoint read path, grounded on the
// teacher's ExecutionHandlers (same constructor-injected-dependency,
// bind-then-dispatch-then-respond shape).
type ExecutionHandlers struct {
	scheduler *engine.Scheduler
	reader    ExecutionReader
	recoverer Recoverer
	logger    *logger.Logger
}

func NewExecutionHandlers(scheduler *engine.Scheduler, reader ExecutionReader, recoverer Recoverer, log *logger.Logger) *ExecutionHandlers {
	return &ExecutionHandlers{scheduler: scheduler, reader: reader, recoverer: recoverer, logger: log}
}

// LaunchRequest is the POST /executions body: a workflow document
// plus the input/globals scopes Launch's signature takes directly.
type LaunchRequest struct {
	Workflow *models.Workflow       `json:"workflow" binding:"required"`
	Input    map[string]interface{} `json:"input"`
	Globals  map[string]interface{} `json:"globals"`
	Strict   bool                   `json:"strict"`
}

// HandleLaunchExecution launches a new execution of the posted
// workflow document and returns its initial ExecutionContext. Launch
// runs the whole graph to completion, suspension, or failure before
// returning (spec §4.6), so this handler's response reflects whatever
// terminal or waiting state the run reached by the time Launch
// returns rather than merely "accepted".
func (h *ExecutionHandlers) HandleLaunchExecution(c *gin.Context) {
	var req LaunchRequest
	if bindJSON(c, &req) != nil {
		return
	}

	opts := &engine.ExecutionOptions{StrictMode: req.Strict}
	ec, err := h.scheduler.Launch(c.Request.Context(), req.Workflow, req.Input, req.Globals, opts)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "launch failed", "error", err)
		respondAPIErrorWithRequestID(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, ec)
}

// ResumeWaitRequest is POST /executions/{id}/resume's body: the
// ticket identifying the suspended wait node plus its resume payload
// (spec §4.6).
type ResumeWaitRequest struct {
	WaitTicket string                 `json:"waitTicket" binding:"required"`
	Payload    map[string]interface{} `json:"payload"`
}

// HandleResumeWait resumes a suspended wait node in a still-live,
// in-process execution (the WaitRegistry fast path). It does not
// attempt crash recovery — see HandleRecoverExecution for that.
func (h *ExecutionHandlers) HandleResumeWait(c *gin.Context) {
	executionID, ok := getParam(c, "id")
	if !ok {
		return
	}
	var req ResumeWaitRequest
	if bindJSON(c, &req) != nil {
		return
	}

	if err := h.scheduler.Resume(c.Request.Context(), executionID, req.WaitTicket, req.Payload); err != nil {
		h.logger.ErrorContext(c.Request.Context(), "resume failed", "execution_id", executionID, "error", err)
		respondAPIErrorWithRequestID(c, err)
		return
	}

	respondJSON(c, http.StatusAccepted, gin.H{"executionId": executionID, "status": "resumed"})
}

// HandleRecoverExecution rebuilds executionID from its latest durable
// checkpoint and resumes it under a fresh execution id (spec §4.8,
// the C8 Recovery Planner, exposed over HTTP for an operator or a
// startup sweep to drive by hand).
func (h *ExecutionHandlers) HandleRecoverExecution(c *gin.Context) {
	executionID, ok := getParam(c, "id")
	if !ok {
		return
	}

	ec, err := h.recoverer.Recover(c.Request.Context(), executionID, nil)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "recovery failed", "execution_id", executionID, "error", err)
		respondAPIErrorWithRequestID(c, err)
		return
	}

	respondJSON(c, http.StatusAccepted, ec)
}

// ExecutionHistory is GET /executions/{id}'s response: the execution's
// current status plus its per-node result history, the inspection
// surface SPEC_FULL.md's supplemented-features section names.
type ExecutionHistory struct {
	ExecutionID string                            `json:"executionId"`
	WorkflowID  string                            `json:"workflowId"`
	Status      models.ExecutionStatus            `json:"status"`
	Error       string                            `json:"error,omitempty"`
	Results     map[string]*models.NodeResult     `json:"results"`
}

// HandleValidateWorkflow runs C1 structural validation only (no
// execution), the REST counterpart to the CLI's `validate` subcommand
// (spec §6).
func (h *ExecutionHandlers) HandleValidateWorkflow(c *gin.Context) {
	var workflow models.Workflow
	if bindJSON(c, &workflow) != nil {
		return
	}

	if _, err := dag.BuildAndValidate(&workflow); err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"valid": true})
}

func (h *ExecutionHandlers) HandleGetExecution(c *gin.Context) {
	executionID, ok := getParam(c, "id")
	if !ok {
		return
	}

	cp, err := h.reader.LoadCheckpoint(c.Request.Context(), executionID)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ExecutionHistory{
		ExecutionID: cp.ExecutionID,
		WorkflowID:  cp.WorkflowID,
		Status:      cp.Status,
		Error:       cp.Error,
		Results:     cp.Results,
	})
}
