package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDashboardWarmup pre-populates dashboard caches for every tenant.
	TaskDashboardWarmup = "dashboard:warmup"
)

// DashboardWarmupPayload configures a warmup run. An empty TenantID warms
// every tenant discovered in the ledger.
type DashboardWarmupPayload struct {
	TenantID string `json:"tenantId,omitempty"`
}

// NewDashboardWarmupTask constructs an Asynq task.
func NewDashboardWarmupTask(payload DashboardWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, data), nil
}
