// Package builtin implements the eight node-kind executors spec §4.5
// names: trigger, http, log, script, if, merge, wait, end.
package builtin

import (
	"time"

	"github.com/dagline/dagline/pkg/models"
)

func success(nodeID string, start time.Time, output map[string]interface{}) *models.NodeResult {
	end := time.Now()
	return &models.NodeResult{
		NodeID:     nodeID,
		Status:     models.NodeResultSuccess,
		Output:     output,
		StartedAt:  start,
		EndedAt:    end,
		DurationMs: end.Sub(start).Milliseconds(),
	}
}

func failed(nodeID string, start time.Time, kind models.ErrorKind, message string, output map[string]interface{}) *models.NodeResult {
	end := time.Now()
	return &models.NodeResult{
		NodeID:     nodeID,
		Status:     models.NodeResultFailed,
		Output:     output,
		ErrorKind:  kind,
		Error:      message,
		StartedAt:  start,
		EndedAt:    end,
		DurationMs: end.Sub(start).Milliseconds(),
	}
}

func waiting(nodeID string, start time.Time, ticket string, output map[string]interface{}) *models.NodeResult {
	return &models.NodeResult{
		NodeID:     nodeID,
		Status:     models.NodeResultWaiting,
		Output:     output,
		StartedAt:  start,
		WaitTicket: ticket,
	}
}
