package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/fulfillment/internal/jobs"
	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
)

// ViewsInvalidateJob bumps view versions for out-of-process writers.
type ViewsInvalidateJob struct {
	Views   cache.Invalidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewViewsInvalidateJob initialises the handler.
func NewViewsInvalidateJob(views cache.Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *ViewsInvalidateJob {
	return &ViewsInvalidateJob{Views: views, Logger: logger, Metrics: metrics}
}

// Handle bumps every named view. Unknown view names are not retried.
func (j *ViewsInvalidateJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Views == nil {
		return errors.New("views invalidate: handler not configured")
	}
	var payload ViewsInvalidatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("views invalidate payload: %v: %w", err, asynq.SkipRetry)
	}
	views, err := cache.ParseViews(payload.Views)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if len(views) == 0 {
		return nil
	}
	tracker := j.Metrics.Track(TaskViewsInvalidate)
	defer func() {
		err = tracker.End(err)
	}()
	if err := j.Views.Invalidate(ctx, views...); err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Debug("views invalidated", slog.Any("views", payload.Views))
	}
	return nil
}
