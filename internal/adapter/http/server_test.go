package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/firms-fire-etl/internal/adapter/http"
	"github.com/couchcryptid/firms-fire-etl/internal/domain"
	"github.com/couchcryptid/firms-fire-etl/internal/pipeline"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockPoints struct {
	points    []domain.FirePoint
	err       error
	lastLimit int
}

func (m *mockPoints) Latest(_ context.Context, limit int) ([]domain.FirePoint, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.points[:min(limit, len(m.points))], nil
}

type mockRuns struct {
	res pipeline.Result
	ok  bool
}

func (m mockRuns) LastResult() (pipeline.Result, bool) { return m.res, m.ok }

var fixedNow = time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)

func newTestServer(readyErr error, points *mockPoints, runs httpadapter.RunReporter) *httpadapter.Server {
	if points == nil {
		points = &mockPoints{}
	}
	return httpadapter.NewServer(httpadapter.Options{
		Addr:    ":0",
		Version: "1.0.0",
		Ready:   &mockReadiness{err: readyErr},
		Points:  points,
		Runs:    runs,
		Clock:   clockwork.NewFakeClockAt(fixedNow),
	}, slog.Default())
}

func get(srv http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(newTestServer(nil, nil, nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(newTestServer(nil, nil, nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(newTestServer(fmt.Errorf("no successful ingestion run yet"), nil, nil), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no successful ingestion run yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(newTestServer(nil, nil, nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatus(t *testing.T) {
	rec := get(newTestServer(nil, nil, nil), "/api/status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
		"status": "running",
		"service": "NASA FIRMS Fire Monitor",
		"timestamp": "2025-01-15T08:00:00Z",
		"version": "1.0.0"
	}`, rec.Body.String())
}

func TestStatusIncludesLastRun(t *testing.T) {
	runs := mockRuns{ok: true, res: pipeline.Result{RunID: "run-1", Pairs: 24, Inserted: 5, Skipped: 2}}
	rec := get(newTestServer(nil, nil, runs), "/api/status")

	var body struct {
		Status  string          `json:"status"`
		LastRun pipeline.Result `json:"last_run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "running", body.Status)
	assert.Equal(t, "run-1", body.LastRun.RunID)
	assert.Equal(t, 24, body.LastRun.Pairs)
	assert.Equal(t, 5, body.LastRun.Inserted)
}

func TestFires(t *testing.T) {
	points := &mockPoints{points: []domain.FirePoint{
		{ID: 2, Lat: 36.62, Lng: 117.32, Time: time.Date(2025, 1, 10, 1, 30, 0, 0, time.UTC)},
		{ID: 1, Lat: 30.1, Lng: 117, Time: time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)},
	}}

	rec := get(newTestServer(nil, points, nil), "/api/fires?limit=1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, points.lastLimit)
	assert.JSONEq(t, `{
		"count": 1,
		"data": [{"id": 2, "lat": 36.62, "lng": 117.32, "time": "2025-01-10T01:30:00Z"}]
	}`, rec.Body.String())
}

func TestFiresLimit(t *testing.T) {
	cases := []struct {
		name      string
		query     string
		wantCode  int
		wantLimit int
	}{
		{"default", "", http.StatusOK, 200},
		{"explicit", "?limit=50", http.StatusOK, 50},
		{"clamped", "?limit=100000", http.StatusOK, 5000},
		{"zero", "?limit=0", http.StatusBadRequest, 0},
		{"negative", "?limit=-3", http.StatusBadRequest, 0},
		{"not a number", "?limit=ten", http.StatusBadRequest, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			points := &mockPoints{}
			rec := get(newTestServer(nil, points, nil), "/api/fires"+tc.query)

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantLimit, points.lastLimit)
		})
	}
}

func TestFiresEmptyStoreReturnsEmptyArray(t *testing.T) {
	rec := get(newTestServer(nil, &mockPoints{}, nil), "/api/fires")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count": 0, "data": []}`, rec.Body.String())
}

func TestFiresStoreErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"unavailable", fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"other", errors.New("scan failed"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(newTestServer(nil, &mockPoints{err: tc.err}, nil), "/api/fires")

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}
