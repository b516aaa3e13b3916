package firms

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/firms-fire-etl/internal/domain"
	"github.com/couchcryptid/firms-fire-etl/internal/observability"
)

const (
	testAPIKey  = "test-map-key"
	testCountry = "CHN"
	testDate    = "2025-01-05"

	viirsCSV = "latitude,longitude,bright_ti4,scan,track,acq_date,acq_time,satellite,instrument,confidence,version,bright_ti5,frp,daynight\n" +
		"36.62,117.32,330.5,0.39,0.36,2025-01-05,0130,N,VIIRS,n,2.0NRT,280.1,4.21,N\n" +
		"30.11,110.02,341.2,0.41,0.37,2025-01-05,0542,N,VIIRS,h,2.0NRT,290.3,12.80,D\n"
)

func testClient(baseURL string, retries int) *Client {
	return &Client{
		apiKey:     testAPIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		retries:    retries,
		retryWait:  time.Millisecond,
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_Fetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, testCountry, q.Get("country"))
		assert.Equal(t, testDate, q.Get("date"))
		assert.Equal(t, testAPIKey, q.Get("api_key"))
		assert.Equal(t, "VIIRS_SNPP_NRT", q.Get("source"))
		assert.Equal(t, "csv", q.Get("fmt"))

		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, viirsCSV)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	rows, err := c.Fetch(context.Background(), testCountry, testDate, domain.SourceVIIRSSNPPNRT)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "36.62", rows[0]["latitude"])
	assert.Equal(t, "117.32", rows[0]["longitude"])
	assert.Equal(t, "2025-01-05", rows[0]["acq_date"])
	assert.Equal(t, "0130", rows[0]["acq_time"])
	assert.Equal(t, "12.80", rows[1]["frp"])
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.FetchRequests.WithLabelValues("VIIRS_SNPP_NRT", "success")), 0)
}

func TestClient_Fetch_FailSoft(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		class   FetchClass
		status  int
	}{
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "internal", http.StatusInternalServerError)
			},
			class:  ClassHTTPStatus,
			status: http.StatusInternalServerError,
		},
		{
			name: "http 403",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			class:  ClassHTTPStatus,
			status: http.StatusForbidden,
		},
		{
			name: "error body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "Error: Invalid MAP_KEY.")
			},
			class: ClassFormat,
		},
		{
			name: "missing header",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "Invalid MAP_KEY.\n")
			},
			class: ClassFormat,
		},
		{
			name: "garbled csv",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "latitude,longitude,acq_date\n\"36.6,117.3,2025-01-05\n")
			},
			class: ClassFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := testClient(srv.URL, 0)
			rows, err := c.Fetch(context.Background(), testCountry, testDate, domain.SourceMODISNRT)
			assert.Empty(t, rows)
			require.Error(t, err)

			var fe *FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.class, fe.Class)
			assert.Equal(t, tt.status, fe.Status)
			assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.FetchRequests.WithLabelValues("MODIS_NRT", string(tt.class))), 0)
		})
	}
}

func TestClient_Fetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := testClient(srv.URL, 0)
	c.httpClient.Timeout = 50 * time.Millisecond

	rows, err := c.Fetch(context.Background(), testCountry, testDate, domain.SourceMODISNRT)
	assert.Empty(t, rows)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ClassTimeout, fe.Class)
}

func TestClient_Fetch_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "  \n")
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	rows, err := c.Fetch(context.Background(), testCountry, testDate, domain.SourceMODISNRT)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.FetchRequests.WithLabelValues("MODIS_NRT", "empty")), 0)
}

func TestClient_Fetch_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, viirsCSV)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 1)
	rows, err := c.Fetch(context.Background(), testCountry, testDate, domain.SourceVIIRSSNPPNRT)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, int32(2), calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.FetchRetries), 0)
}

func TestClient_Fetch_RetryBudgetIsBounded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 1)
	_, err := c.Fetch(context.Background(), testCountry, testDate, domain.SourceMODISNRT)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Fetch_DoesNotRetryPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, "Invalid API call: error")
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	_, err := c.Fetch(context.Background(), testCountry, testDate, domain.SourceMODISNRT)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Fetch_InvalidInput(t *testing.T) {
	c := testClient("http://127.0.0.1:0", 0)

	_, err := c.Fetch(context.Background(), testCountry, testDate, domain.Source("GOES_NRT"))
	assert.ErrorIs(t, err, domain.ErrUnknownSource)

	_, err = c.Fetch(context.Background(), testCountry, "05/01/2025", domain.SourceMODISNRT)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid request date")
}

func TestFetchError_Retryable(t *testing.T) {
	assert.True(t, (&FetchError{Class: ClassTimeout}).Retryable())
	assert.True(t, (&FetchError{Class: ClassNetwork}).Retryable())
	assert.True(t, (&FetchError{Class: ClassHTTPStatus, Status: 503}).Retryable())
	assert.True(t, (&FetchError{Class: ClassHTTPStatus, Status: 429}).Retryable())
	assert.False(t, (&FetchError{Class: ClassHTTPStatus, Status: 404}).Retryable())
	assert.False(t, (&FetchError{Class: ClassFormat}).Retryable())
}

func TestClassifyTransport(t *testing.T) {
	assert.Equal(t, ClassTimeout, classifyTransport(context.DeadlineExceeded).Class)
	assert.Equal(t, ClassNetwork, classifyTransport(errors.New("connection refused")).Class)

	orig := &FetchError{Class: ClassFormat, Err: errUpstream}
	assert.Same(t, orig, classifyTransport(orig))
}
