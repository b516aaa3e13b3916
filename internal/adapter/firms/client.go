package firms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/firms-fire-etl/internal/domain"
	"github.com/couchcryptid/firms-fire-etl/internal/observability"
)

const (
	// DefaultBaseURL is the FIRMS country CSV endpoint.
	DefaultBaseURL = "https://firms.modaps.eosdis.nasa.gov/api/country/csv/"

	defaultRetryWait = time.Second
	maxBodyBytes     = 64 << 20
)

// ClientConfig configures a Client.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Retries int // extra attempts for transient failures
}

// Client fetches fire detections from the FIRMS country API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retries    int
	retryWait  time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a FIRMS API client.
func NewClient(cfg ClientConfig, metrics *observability.Metrics, logger *slog.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   base,
		retries:   cfg.Retries,
		retryWait: defaultRetryWait,
		metrics:   metrics,
		logger:    logger,
	}
}

// Fetch returns the detections for one (country, date, source) triple.
//
// Fetch is fail-soft: whenever it returns an error the row slice is empty, and
// the error (a *FetchError for upstream failures) is informational. The
// failure class is logged and counted here so callers only need to skip the pair.
func (c *Client) Fetch(ctx context.Context, country, date string, source domain.Source) ([]domain.RawRow, error) {
	if _, err := domain.ParseSource(string(source)); err != nil {
		return nil, err
	}
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid request date %q: %w", date, err)
	}

	params := url.Values{
		"country": {country},
		"date":    {date},
		"api_key": {c.apiKey},
		"source":  {string(source)},
		"fmt":     {"csv"},
	}
	fullURL := c.baseURL + "?" + params.Encode()

	start := time.Now()
	var rows []domain.RawRow
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			c.metrics.FetchRetries.Inc()
			c.logger.Debug("retrying firms request", "source", source, "date", date, "attempt", attempt)
		}
		r, err := c.doRequest(ctx, fullURL)
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) && !fe.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		rows = r
		return nil
	}

	var policy backoff.BackOff = backoff.NewConstantBackOff(c.retryWait)
	policy = backoff.WithMaxRetries(policy, uint64(max(c.retries, 0)))
	err := backoff.Retry(op, backoff.WithContext(policy, ctx))
	c.metrics.FetchDuration.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())

	if err != nil {
		fe := classifyTransport(err)
		c.metrics.FetchRequests.WithLabelValues(string(source), string(fe.Class)).Inc()
		c.logger.Warn("firms fetch failed",
			"class", fe.Class,
			"status", fe.Status,
			"source", source,
			"date", date,
			"attempts", attempt,
			"error", fe.Err,
		)
		return nil, fe
	}

	outcome := "success"
	if len(rows) == 0 {
		outcome = "empty"
	}
	c.metrics.FetchRequests.WithLabelValues(string(source), outcome).Inc()
	c.logger.Debug("firms fetch complete", "source", source, "date", date, "rows", len(rows))
	return rows, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.RawRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &FetchError{Class: ClassNetwork, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{
			Class:  ClassHTTPStatus,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected response: %s", bytes.TrimSpace(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransport(err)
	}
	return parseBody(body)
}

// parseBody applies the FIRMS body conventions: blank means no detections,
// any mention of "error" is an upstream error message.
func parseBody(body []byte) ([]domain.RawRow, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if bytes.Contains(bytes.ToLower(body), []byte("error")) {
		return nil, &FetchError{Class: ClassFormat, Err: fmt.Errorf("%w: %.120s", errUpstream, body)}
	}
	rows, err := ParseCSV(bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Class: ClassFormat, Err: err}
	}
	return rows, nil
}
