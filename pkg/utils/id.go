package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateRunID generates a run ID with a timestamp prefix, e.g.
// "run-20260824-153012-1a2b3c4d".
func GenerateRunID() string {
	timestamp := time.Now().Format("20060102-150405")
	return fmt.Sprintf("run-%s-%s", timestamp, uuid.NewString()[:8])
}

// GenerateAlertID generates an alert ID with a type prefix, e.g.
// "alert-port_scan-1a2b3c4d".
func GenerateAlertID(threatType string) string {
	return fmt.Sprintf("alert-%s-%s", threatType, uuid.NewString()[:8])
}

// GenerateWorkflowID generates a workflow ID from the workflow type and an
// incrementing counter maintained by the caller.
func GenerateWorkflowID(workflowType string, seq int) string {
	return fmt.Sprintf("wf-%s-%d", workflowType, seq)
}
