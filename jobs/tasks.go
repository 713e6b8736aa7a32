package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSummaryWarmup pre-computes the daily summary cache.
	TaskSummaryWarmup = "summary:warmup"
	// TaskLowStockScan inspects the catalog for products below minimum stock.
	TaskLowStockScan = "inventory:lowstock"
	// TaskIdempotencyCleanup prunes request keys past their retention window.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// SummaryWarmupPayload selects the business date to warm. An empty date means
// the current business day.
type SummaryWarmupPayload struct {
	Date string `json:"date,omitempty"`
}

// NewSummaryWarmupTask constructs an Asynq task.
func NewSummaryWarmupTask(payload SummaryWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSummaryWarmup, data), nil
}

// NewLowStockScanTask constructs an Asynq task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
