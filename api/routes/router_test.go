package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mpsync/api/controllers"
	"github.com/angelmondragon/mpsync/internal/jobs"
	"github.com/angelmondragon/mpsync/pkg/config"
	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/lock"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/metrics"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type recordingQueue struct {
	job    enums.JobName
	params jobs.Params
	id     uuid.UUID
	err    error
}

func (q *recordingQueue) Enqueue(_ context.Context, job enums.JobName, params jobs.Params) (uuid.UUID, error) {
	if q.err != nil {
		return uuid.Nil, q.err
	}
	q.job, q.params = job, params
	q.id = uuid.New()
	return q.id, nil
}

type memResponses struct{ data map[string]string }

func (m *memResponses) Get(_ context.Context, key string) (string, error) {
	return m.data[key], nil
}

func (m *memResponses) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memResponses) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func testConfig(token string) *config.Config {
	return &config.Config{App: config.AppConfig{Env: "dev", APIToken: token, CORSOrigins: []string{"http://localhost:3000"}}}
}

func newTestRouter(t *testing.T, queue *recordingQueue, pingErr error) http.Handler {
	t.Helper()
	locked := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	reg := prometheus.NewRegistry()
	return NewRouter(RouterParams{
		Config:    testConfig("secret"),
		Logger:    logger.Nop(),
		Pingers:   map[string]controllers.Pinger{"db": stubPinger{}, "redis": stubPinger{err: pingErr}},
		Responses: &memResponses{data: map[string]string{}},
		Tasks:     queue,
		Locks: func(_ context.Context, name string) (lock.State, error) {
			if name == "missing" {
				return lock.State{}, nil
			}
			return lock.State{IsLocked: true, LockedAt: &locked, Custom: "running update_orders"}, nil
		},
		Gatherer: reg,
		HTTP:     metrics.NewHTTPMetrics(reg),
	})
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, &recordingQueue{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestReadyReportsFailingDependency(t *testing.T) {
	router := newTestRouter(t, &recordingQueue{}, errors.New("connection refused"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &recordingQueue{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mpsync_http_requests_total{method="GET",route="/health/live",status="200"} 1`)
}

func TestEnqueueTask(t *testing.T) {
	queue := &recordingQueue{}
	router := newTestRouter(t, queue, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks",
		strings.NewReader(`{"job":"update_orders","params":{"credential_id":3,"days":7}}`))
	req.Header.Set("X-MPS-Token", "secret")
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, enums.JobUpdateOrders, queue.job)
	assert.Equal(t, jobs.Params{CredentialID: 3, Days: 7}, queue.params)

	var body struct {
		Data struct {
			TaskID string `json:"task_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, queue.id.String(), body.Data.TaskID)
}

func TestEnqueueTaskRejectsUnknownJob(t *testing.T) {
	router := newTestRouter(t, &recordingQueue{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks",
		strings.NewReader(`{"job":"reindex_everything","params":{"credential_id":3}}`))
	req.Header.Set("X-MPS-Token", "secret")
	req.Header.Set("Idempotency-Key", "k2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueTaskPropagatesQueueFailure(t *testing.T) {
	queue := &recordingQueue{err: pkgerrors.New(pkgerrors.CodeDependency, "publish sync task")}
	router := newTestRouter(t, queue, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks",
		strings.NewReader(`{"job":"update_stocks","params":{"credential_id":3}}`))
	req.Header.Set("X-MPS-Token", "secret")
	req.Header.Set("Idempotency-Key", "k3")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLockStateRequiresToken(t *testing.T) {
	router := newTestRouter(t, &recordingQueue{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/locks/credential:abc", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/locks/credential:abc", nil)
	req.Header.Set("X-MPS-Token", "secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data lock.State `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Data.IsLocked)
	assert.Equal(t, "running update_orders", body.Data.Custom)
}

func TestEnqueueTaskReplaysIdempotentRequest(t *testing.T) {
	queue := &recordingQueue{}
	router := newTestRouter(t, queue, nil)

	var ids []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks",
			strings.NewReader(`{"job":"update_stocks","params":{"credential_id":4}}`))
		req.Header.Set("X-MPS-Token", "secret")
		req.Header.Set("Idempotency-Key", "same")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusAccepted, rec.Code)
		ids = append(ids, rec.Body.String())
	}
	assert.Equal(t, ids[0], ids[1])
}
