package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditIntegrityScan verifies the audit trail invariants.
	TaskAuditIntegrityScan = "audit:integrity"
)

// AuditIntegrityPayload bounds the scan to the most recent window.
type AuditIntegrityPayload struct {
	WindowHours int `json:"window_hours"`
}

// NewAuditIntegrityTask constructs an Asynq task.
func NewAuditIntegrityTask(windowHours int) (*asynq.Task, error) {
	data, err := json.Marshal(AuditIntegrityPayload{WindowHours: windowHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditIntegrityScan, data), nil
}
