package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokoku/pos-core/internal/inventory"
	jobmetrics "github.com/tokoku/pos-core/internal/jobs"
)

type stubVerifier struct {
	out []inventory.Discrepancy
	err error
}

func (s stubVerifier) VerifyLedger(context.Context) ([]inventory.Discrepancy, error) {
	return s.out, s.err
}

func TestLedgerVerifyJobReportsWithoutFailing(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewLedgerVerifyJob(stubVerifier{out: []inventory.Discrepancy{
		{StockID: 1, ProductID: 2, BranchID: 3, Quantity: 5, LedgerQuantity: 4},
	}}, nil, metrics)

	task, err := NewLedgerVerifyTask(LedgerVerifyPayload{RequestedBy: 9})
	require.NoError(t, err)
	assert.NoError(t, job.Handle(context.Background(), task))
}

func TestLedgerVerifyJobPropagatesStoreError(t *testing.T) {
	boom := errors.New("db down")
	job := NewLedgerVerifyJob(stubVerifier{err: boom}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerVerify, nil))
	assert.ErrorIs(t, err, boom)
}

func TestLedgerVerifyJobSkipsMalformedPayload(t *testing.T) {
	job := NewLedgerVerifyJob(stubVerifier{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerVerify, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

type stubInspector struct{}

func (stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 3}, nil
}

func TestHandlerEnqueuesLedgerVerify(t *testing.T) {
	enq := &stubEnqueuer{}
	r := chi.NewRouter()
	NewHandler(stubInspector{}, &Client{client: enq}, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/ledger-verify", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskLedgerVerify, enq.tasks[0].Type())

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var health queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, queueHealth{Queue: QueueDefault, Pending: 3}, health)
}

func TestHandlerWithoutClientIsUnavailable(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil, nil).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/ledger-verify", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
