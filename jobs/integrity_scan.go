package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fulfillment/internal/integrity"
	jobmetrics "github.com/odyssey-erp/fulfillment/internal/jobs"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// DefaultIntegrityLockTTL bounds how long one worker may hold the scan lock.
const DefaultIntegrityLockTTL = 5 * time.Minute

// IntegrityScanner is the scan the job runs.
type IntegrityScanner interface {
	Scan(ctx context.Context) (integrity.Report, error)
}

// IntegrityScanJob runs the scan on one worker at a time.
type IntegrityScanJob struct {
	Scanner IntegrityScanner
	Locker  *redislock.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	LockTTL time.Duration
}

// NewIntegrityScanJob initialises the integrity scan handler.
func NewIntegrityScanJob(scanner IntegrityScanner, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics, ttl time.Duration) *IntegrityScanJob {
	if ttl <= 0 {
		ttl = DefaultIntegrityLockTTL
	}
	return &IntegrityScanJob{Scanner: scanner, Locker: locker, Logger: logger, Metrics: metrics, LockTTL: ttl}
}

// Handle executes the scan.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Scanner == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	logger := j.logger().With(slog.String("scope", payload.Scope))

	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, shared.IntegrityScanLockKey(payload.Scope), j.LockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.Info("integrity scan already running elsewhere")
			j.Metrics.SkipLocked(TaskIntegrityScan)
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil && !errors.Is(rerr, redislock.ErrLockNotHeld) {
				logger.Warn("release integrity lock", slog.Any("error", rerr))
			}
		}()
	}

	tracker := j.Metrics.Track(TaskIntegrityScan)
	defer func() {
		err = tracker.End(err)
	}()

	start := time.Now()
	report, err := j.Scanner.Scan(ctx)
	if err != nil {
		logger.Error("integrity scan failed", slog.Any("error", err))
		return err
	}
	for kind, count := range report.ByKind {
		j.Metrics.AddViolations(string(kind), count)
	}
	logger.Info("completed integrity scan",
		slog.Int("violations", len(report.Violations)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
