package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/integrity"
	jobmetrics "github.com/odyssey-erp/fulfillment/internal/jobs"
	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type countingScanner struct {
	calls  int
	report integrity.Report
	err    error
}

func (s *countingScanner) Scan(ctx context.Context) (integrity.Report, error) {
	s.calls++
	return s.report, s.err
}

type recordingInvalidator struct {
	views []cache.View
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, views ...cache.View) error {
	r.views = append(r.views, views...)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLocker(t *testing.T) *redislock.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redislock.New(client)
}

func TestIntegrityScanSkipsWhenLocked(t *testing.T) {
	locker := newLocker(t)
	scanner := &countingScanner{}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewIntegrityScanJob(scanner, locker, discardLogger(), metrics, time.Minute)
	task, err := NewIntegrityScanTask("")
	require.NoError(t, err)

	held, err := locker.Obtain(context.Background(), shared.IntegrityScanLockKey(""), time.Minute, nil)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Zero(t, scanner.calls)

	require.NoError(t, held.Release(context.Background()))
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, scanner.calls)

	again, err := locker.Obtain(context.Background(), shared.IntegrityScanLockKey(""), time.Minute, nil)
	require.NoError(t, err, "lock released after run")
	require.NoError(t, again.Release(context.Background()))
}

func TestIntegrityScanReportsFailures(t *testing.T) {
	scanner := &countingScanner{err: errors.New("db down")}
	job := NewIntegrityScanJob(scanner, newLocker(t), discardLogger(), nil, 0)
	task, err := NewIntegrityScanTask("warehouse-1")
	require.NoError(t, err)

	require.EqualError(t, job.Handle(context.Background(), task), "db down")
	require.Equal(t, DefaultIntegrityLockTTL, job.LockTTL)
}

func TestIntegrityScanRejectsBadPayload(t *testing.T) {
	job := NewIntegrityScanJob(&countingScanner{}, nil, discardLogger(), nil, 0)
	err := job.Handle(context.Background(), asynq.NewTask(TaskIntegrityScan, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestViewsInvalidateJob(t *testing.T) {
	inv := &recordingInvalidator{}
	job := NewViewsInvalidateJob(inv, discardLogger(), nil)

	task, err := NewViewsInvalidateTask(cache.ViewSales, cache.ViewBackorders)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []cache.View{cache.ViewSales, cache.ViewBackorders}, inv.views)

	err = job.Handle(context.Background(), asynq.NewTask(TaskViewsInvalidate, []byte(`{"views":["orders"]}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskViewsInvalidate, []byte(`nope`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, discardLogger()).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0}`, rr.Body.String())
}

func TestEnqueueOptionsPerTaskType(t *testing.T) {
	require.Len(t, EnqueueOptions(TaskIntegrityScan), 3)
	require.Len(t, EnqueueOptions(TaskViewsInvalidate), 3)
	require.Len(t, EnqueueOptions("unknown"), 1)

	var client *Client
	_, err := client.Enqueue(context.Background(), asynq.NewTask(TaskViewsInvalidate, nil))
	require.Error(t, err)
	require.NoError(t, client.Close())
}
