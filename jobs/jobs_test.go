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

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeStock struct {
	rows  []inventory.DriftRow
	reset map[inventory.StockKey]int64
	err   error
}

func (f *fakeStock) FindStockDrift(ctx context.Context) ([]inventory.DriftRow, error) {
	return f.rows, f.err
}

func (f *fakeStock) ResetBalance(ctx context.Context, key inventory.StockKey, qty int64) error {
	if f.reset == nil {
		f.reset = map[inventory.StockKey]int64{}
	}
	f.reset[key] = qty
	return nil
}

type fakeLedger struct {
	rows []ledger.IntegrityRow
}

func (f *fakeLedger) FindBalanceDrift(ctx context.Context) ([]ledger.IntegrityRow, error) {
	return f.rows, nil
}

func TestInventoryReconcileRepairsOnlyWhenAsked(t *testing.T) {
	key := inventory.StockKey{ProductID: 10, WarehouseID: 1}
	src := &fakeStock{rows: []inventory.DriftRow{{Key: key, Balance: 12, Recorded: 9}}}
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	handler := NewInventoryReconcileHandler(src, discardLogger(), metrics)

	task, err := NewInventoryReconcileTask(time.Now(), false)
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Empty(t, src.reset)

	task, err = NewInventoryReconcileTask(time.Now(), true)
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, int64(9), src.reset[key])

	count, err := testutil.GatherAndCount(reg, "odyssey_jobs_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestInventoryReconcileFailureIsCounted(t *testing.T) {
	src := &fakeStock{err: errors.New("db down")}
	reg := prometheus.NewRegistry()
	handler := NewInventoryReconcileHandler(src, discardLogger(), jobmetrics.NewMetrics(reg))

	task, err := NewInventoryReconcileTask(time.Now(), false)
	require.NoError(t, err)
	require.Error(t, handler(context.Background(), task))

	count, err := testutil.GatherAndCount(reg, "odyssey_jobs_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestLedgerIntegrityReportsDrift(t *testing.T) {
	src := &fakeLedger{rows: []ledger.IntegrityRow{
		{AccountID: 1, Stored: decimal.NewFromInt(600), Posted: decimal.NewFromInt(500)},
		{AccountID: 4, Stored: decimal.Zero, Posted: decimal.NewFromInt(-20)},
	}}
	reg := prometheus.NewRegistry()
	handler := NewLedgerIntegrityHandler(src, discardLogger(), jobmetrics.NewMetrics(reg))

	task, err := NewLedgerIntegrityTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))

	families, err := reg.Gather()
	require.NoError(t, err)
	var drift float64
	for _, family := range families {
		if family.GetName() == "odyssey_consistency_drift_total" {
			drift = family.GetMetric()[0].GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(2), drift)
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	handler := NewLedgerIntegrityHandler(&fakeLedger{}, discardLogger(), nil)
	err := handler(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewMuxSkipsIncompleteHandlers(t *testing.T) {
	called := false
	mux := NewMux([]TaskHandler{
		{Type: TaskLedgerIntegrity, Handler: func(ctx context.Context, t *asynq.Task) error {
			called = true
			return nil
		}},
		{Type: TaskInventoryReconcile},
	})
	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(TaskLedgerIntegrity, nil)))
	require.True(t, called)
	require.Error(t, mux.ProcessTask(context.Background(), asynq.NewTask(TaskInventoryReconcile, nil)))
}

type stubEnqueuer struct {
	taskType string
	repair   bool
}

func (s *stubEnqueuer) Enqueue(ctx context.Context, taskType string, repair bool) (*asynq.TaskInfo, error) {
	if taskType != TaskInventoryReconcile && taskType != TaskLedgerIntegrity {
		return nil, shared.Validation("unknown task %q", taskType)
	}
	s.taskType, s.repair = taskType, repair
	return &asynq.TaskInfo{ID: "t-1", Type: taskType, Queue: QueueDefault}, nil
}

func TestHandlerEnqueue(t *testing.T) {
	client := &stubEnqueuer{}
	h := &Handler{client: client, logger: discardLogger()}
	r := chi.NewRouter()
	h.MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/"+TaskInventoryReconcile+"?repair=1", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, TaskInventoryReconcile, client.taskType)
	require.True(t, client.repair)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/mail:send", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())
}

func TestDefaultJobMetricsAreShared(t *testing.T) {
	require.Same(t, jobmetrics.NewMetrics(nil), jobmetrics.NewMetrics(nil))
}
