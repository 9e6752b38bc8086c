// Package supabase implements port.Store on Supabase through its PostgREST
// API. The tables match the PostgreSQL migrations in infra/postgres.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/boddenberg/crm-api-go/internal/infra/observability"
	"github.com/boddenberg/crm-api-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
	metrics        *observability.Metrics
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
		metrics:        metrics,
	}
}

// response is a fully read PostgREST reply.
type response struct {
	status int
	body   []byte
	header http.Header
}

// postgrestError is the JSON error body PostgREST returns on failure.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusError is a non-2xx reply. 4xx replies are permanent: retrying the
// same request cannot change the outcome.
type statusError struct {
	Status int
	Code   string
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase returned status %d: %s", e.Status, e.Body)
}

// do executes an authenticated request against /rest/v1/{path}.
func (c *Client) do(ctx context.Context, method, path string, payload any, prefer string) (*response, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, resilience.Permanent(err)
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, resilience.Permanent(err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		se := &statusError{Status: resp.StatusCode, Body: string(raw)}
		var pe postgrestError
		if json.Unmarshal(raw, &pe) == nil {
			se.Code = pe.Code
		}
		if resp.StatusCode < 500 {
			return nil, resilience.Permanent(se)
		}
		return nil, se
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return &response{status: resp.StatusCode, body: raw, header: resp.Header}, nil
}

// call runs do under the circuit breaker with retries.
func (c *Client) call(ctx context.Context, service, method, path string, payload any, prefer string) (*response, error) {
	var out *response
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			var err error
			out, err = c.do(ctx, method, path, payload, prefer)
			return err
		})
	})
	if err != nil {
		// 4xx replies are answers about the data, not backend failures.
		if !resilience.IsPermanent(err) {
			c.metrics.IncrStoreError("supabase", service)
		}
		return nil, &domain.ErrExternalService{Service: "supabase/" + service, Err: err}
	}
	return out, nil
}

// ping checks that PostgREST answers at all.
func (c *Client) ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "identities?select=id&limit=1", nil, "")
	return err
}

// parseContentRange returns the total of a "0-9/42" or "*/0" header.
func parseContentRange(v string) (int, error) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, fmt.Errorf("invalid content-range %q", v)
	}
	total := v[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("content-range without total %q", v)
	}
	return strconv.Atoi(total)
}

// pgErrorCode extracts the PostgreSQL error code from a wrapped statusError.
func pgErrorCode(err error) string {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
