package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/vipdiag/vipdiag/pkg/coordinator"
	"github.com/vipdiag/vipdiag/pkg/detector"
	"github.com/vipdiag/vipdiag/pkg/models"
	"github.com/vipdiag/vipdiag/pkg/report"
	"github.com/vipdiag/vipdiag/pkg/sampler"
	"github.com/vipdiag/vipdiag/pkg/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()

	ctrl := gomock.NewController(t)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	registry := sampler.NewRegistry()
	registry.Register(sampler.KindSystem, func(_ *sampler.Config, _ *zap.Logger) (sampler.Sampler, error) {
		ms := sampler.NewMockSampler(ctrl)
		ms.EXPECT().Poll(gomock.Any()).DoAndReturn(func(context.Context) (*sampler.Snapshot, error) {
			return &sampler.Snapshot{
				Timestamp: time.Now(),
				Sets: []sampler.PointSet{{
					Tags:   map[string]string{},
					Values: map[string]float64{"system.load1": 0.5},
				}},
			}, nil
		}).AnyTimes()
		ms.EXPECT().Close().Return(nil).AnyTimes()

		return ms, nil
	})

	coord := coordinator.New(st, registry, zap.NewNop())
	det := detector.New(st, nil, zap.NewNop())
	asm := report.NewAssembler(st, zap.NewNop())

	server := httptest.NewServer(NewServer(coord, st, det, asm, zap.NewNop()).Handler())
	t.Cleanup(server.Close)

	return server, st
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))

	return v
}

func startBody(runID string) map[string]any {
	return map[string]any{
		"run_id":   runID,
		"interval": "50ms",
		"timeout":  "20ms",
		"samplers": []map[string]any{{"kind": "system", "name": "local"}},
	}
}

func TestRunEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	// Empty store lists no runs.
	resp := doJSON(t, http.MethodGet, server.URL+"/api/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]models.Run](t, resp))

	// Unknown run is a 404.
	resp = doJSON(t, http.MethodGet, server.URL+"/api/runs/ghost", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Start a run.
	resp = doJSON(t, http.MethodPost, server.URL+"/api/runs", startBody("run-1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	run := decode[models.Run](t, resp)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, models.RunActive, run.Status)

	// A second start conflicts.
	resp = doJSON(t, http.MethodPost, server.URL+"/api/runs", startBody("run-2"))
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Reports are refused while the run is active.
	resp = doJSON(t, http.MethodGet, server.URL+"/api/runs/run-1/report", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Deleting the active run is refused.
	resp = doJSON(t, http.MethodDelete, server.URL+"/api/runs/run-1", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Give the sampler a couple of ticks, then stop.
	time.Sleep(120 * time.Millisecond)

	resp = doJSON(t, http.MethodPost, server.URL+"/api/runs/run-1/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.RunCompleted, decode[models.Run](t, resp).Status)

	// Stopping again conflicts: the run slot is free.
	resp = doJSON(t, http.MethodPost, server.URL+"/api/runs/run-1/stop", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Collected metrics are queryable.
	resp = doJSON(t, http.MethodGet, server.URL+"/api/runs/run-1/metrics?name=system.load1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decode[[]models.MetricPoint](t, resp))

	// Analyze and fetch findings and the report.
	resp = doJSON(t, http.MethodPost, server.URL+"/api/runs/run-1/analyze", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, server.URL+"/api/runs/run-1/findings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, server.URL+"/api/runs/run-1/report", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc := decode[report.Document](t, resp)
	assert.Equal(t, "run-1", doc.Run.ID)
	assert.NotEmpty(t, doc.Summaries)

	// Delete now succeeds and the run is gone.
	resp = doJSON(t, http.MethodDelete, server.URL+"/api/runs/run-1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, server.URL+"/api/runs/run-1", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartRunBadRequests(t *testing.T) {
	server, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/runs", bytes.NewBufferString("{not json"))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// No samplers.
	resp = doJSON(t, http.MethodPost, server.URL+"/api/runs", map[string]any{"interval": "1s"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Timeout not shorter than interval.
	body := startBody("run-x")
	body["timeout"] = "2s"
	body["interval"] = "1s"
	resp = doJSON(t, http.MethodPost, server.URL+"/api/runs", body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsQueryValidation(t *testing.T) {
	server, st := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRun(ctx, &models.Run{
		ID: "run-1", StartedAt: time.Now(), Status: models.RunActive,
	}))

	resp := doJSON(t, http.MethodGet, server.URL+"/api/runs/run-1/metrics?start=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, server.URL+"/api/runs/run-1/metrics?tag=nocolon", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, server.URL+"/api/runs/ghost/metrics", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	url := fmt.Sprintf("%s/api/runs/run-1/metrics?start=%s&tag=host:amphora-1",
		server.URL, time.Now().UTC().Format(time.RFC3339))
	resp = doJSON(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]models.MetricPoint](t, resp))
}

func TestAnalyzeRequiresCompletedRun(t *testing.T) {
	server, st := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRun(ctx, &models.Run{
		ID: "run-1", StartedAt: time.Now(), Status: models.RunActive,
	}))

	resp := doJSON(t, http.MethodPost, server.URL+"/api/runs/run-1/analyze", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}
