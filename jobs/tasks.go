package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityScan checks backorder counters against the registry.
	TaskIntegrityScan = "integrity:scan"
	// TaskViewsInvalidate bumps view cache versions.
	TaskViewsInvalidate = "views:invalidate"
)

// IntegrityScanPayload scopes an integrity scan run.
type IntegrityScanPayload struct {
	Scope string `json:"scope"`
}

// NewIntegrityScanTask constructs an Asynq task.
func NewIntegrityScanTask(scope string) (*asynq.Task, error) {
	data, err := json.Marshal(IntegrityScanPayload{Scope: scope})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityScan, data), nil
}

// ViewsInvalidatePayload lists the views to bump.
type ViewsInvalidatePayload struct {
	Views []string `json:"views"`
}

// NewViewsInvalidateTask constructs an Asynq task.
func NewViewsInvalidateTask(views ...cache.View) (*asynq.Task, error) {
	payload := ViewsInvalidatePayload{Views: make([]string, 0, len(views))}
	for _, v := range views {
		payload.Views = append(payload.Views, string(v))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskViewsInvalidate, data), nil
}
