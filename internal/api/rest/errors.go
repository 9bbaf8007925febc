package rest

import (
	"errors"
	"net/http"

	"github.com/dagline/dagline/pkg/models"
)

// APIError is the envelope every error response is serialized as,
// grounded on the teacher's rest.APIError (same Code/Message/Details
// shape, same HTTPStatus-excluded-from-JSON trick).
type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func NewAPIErrorWithDetails(code, message string, httpStatus int, details map[string]interface{}) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: httpStatus}
}

var (
	ErrInvalidJSON      = NewAPIError("INVALID_JSON", "invalid JSON in request body", http.StatusBadRequest)
	ErrMissingParameter = NewAPIError("MISSING_PARAMETER", "required parameter is missing", http.StatusBadRequest)
	ErrInternalServer   = NewAPIError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
)

// TranslateError maps a domain error into the APIError the handler
// should respond with, mirroring the teacher's errors.go dispatch
// table but scoped to dagline's own sentinel errors.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var ve *models.ValidationError
	if errors.As(err, &ve) {
		details := map[string]interface{}{"field": ve.Field}
		if len(ve.NodeIDs) > 0 {
			details["nodeIds"] = ve.NodeIDs
		}
		return NewAPIErrorWithDetails("VALIDATION_FAILED", ve.Message, http.StatusBadRequest, details)
	}

	var ne *models.NodeError
	if errors.As(err, &ne) {
		return NewAPIErrorWithDetails("NODE_EXECUTION_FAILED", ne.Message, http.StatusUnprocessableEntity, map[string]interface{}{
			"nodeId": ne.NodeID,
			"kind":   string(ne.Kind),
		})
	}

	switch {
	case errors.Is(err, models.ErrWorkflowInvalid), errors.Is(err, models.ErrCyclicGraph),
		errors.Is(err, models.ErrDisconnectedNode), errors.Is(err, models.ErrDuplicateNodeID),
		errors.Is(err, models.ErrDuplicateEdge):
		return NewAPIError("INVALID_WORKFLOW", err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrNodeNotFound), errors.Is(err, models.ErrEdgeNotFound):
		return NewAPIError("NOT_FOUND", err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrExecutionNotFound):
		return NewAPIError("EXECUTION_NOT_FOUND", err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrExecutionTerminal):
		return NewAPIError("EXECUTION_TERMINAL", err.Error(), http.StatusConflict)
	case errors.Is(err, models.ErrWaitTicketNotFound):
		return NewAPIError("WAIT_TICKET_NOT_FOUND", err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrCheckpointCorrupt):
		return NewAPIError("CHECKPOINT_CORRUPT", err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, models.ErrExecutorNotFound):
		return NewAPIError("EXECUTOR_NOT_FOUND", err.Error(), http.StatusBadRequest)
	}

	return NewAPIError("INTERNAL_ERROR", "an unexpected error occurred", http.StatusInternalServerError)
}
