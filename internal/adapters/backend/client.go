package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/ports"
	"github.com/samirrijal/locus/internal/pkg/metrics"
)

const maxErrorBodySize = 64 * 1024

var _ ports.Backend = (*Client)(nil)

var tracer = otel.Tracer("github.com/samirrijal/locus/internal/adapters/backend")

// Config configures the REST client of the location-history backend.
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the backend's /api/v1 endpoints.
// Requests are rate limited, retried on 429 and guarded by a circuit breaker.
type Client struct {
	base           *url.URL
	apiKey         string
	http           *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
	cb             *gobreaker.CircuitBreaker[*response]
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// New builds a client. Zero config values fall back to sensible defaults.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend: unsupported scheme %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}

	return &Client{
		base:           base,
		apiKey:         cfg.APIKey,
		http:           &http.Client{Timeout: cfg.Timeout},
		limiter:        rate.NewLimiter(limit, cfg.Burst),
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
		cb:             newBreaker("locus-backend"),
	}, nil
}

// do sends one logical request and decodes a JSON body into out when out is non-nil.
// endpoint is a stable label for metrics and traces.
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body, out any) (http.Header, error) {
	ctx, span := tracer.Start(ctx, "backend."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		))
	defer span.End()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("backend: encode %s body: %w", endpoint, err)
		}
	}

	start := time.Now()
	resp, err := c.cb.Execute(func() (*response, error) {
		return c.send(ctx, method, path, query, payload)
	})
	metrics.BackendRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		label := "error"
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			label = "rejected"
			err = fmt.Errorf("%w: %w", domain.ErrBackend, err)
		case resp != nil:
			label = strconv.Itoa(resp.status)
		}
		metrics.BackendRequests.WithLabelValues(endpoint, label).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.BackendRequests.WithLabelValues(endpoint, strconv.Itoa(resp.status)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.status))

	if out != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%w: decode %s response: %v", domain.ErrBackend, endpoint, err)
		}
	}
	return resp.header, nil
}

// send performs the HTTP exchange, backing off exponentially on 429.
// Non-2xx responses come back as both a response and a mapped error.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte) (*response, error) {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
		if err != nil {
			return nil, fmt.Errorf("backend: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrBackend, method, path, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: rate limited (429) on %s", domain.ErrBackend, path)
			if attempt == c.maxRetries {
				break
			}
			backoff := c.retryBaseDelay * time.Duration(1<<attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, perr := strconv.Atoi(ra); perr == nil && secs > 0 {
					backoff = time.Duration(secs) * time.Second
				}
			}
			slog.Warn("backend rate limited, backing off",
				"path", path, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := readBody(resp)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", domain.ErrBackend, path, err)
		}
		out := &response{status: resp.StatusCode, header: resp.Header, body: body}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return out, statusError(method, path, resp.StatusCode, body)
		}
		return out, nil
	}
	return nil, lastErr
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return io.ReadAll(resp.Body)
	}
	limited := io.LimitReader(resp.Body, maxErrorBodySize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(body) > maxErrorBodySize {
		body = append(body[:maxErrorBodySize], []byte("...(truncated)")...)
	}
	return body, nil
}

type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func (e errorBody) text() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Error != "":
		return e.Error
	case len(e.Errors) > 0:
		return strings.Join(e.Errors, "; ")
	}
	return ""
}

// statusError maps an HTTP status to the engine's error kinds.
func statusError(method, path string, status int, body []byte) error {
	var eb errorBody
	msg := ""
	if json.Unmarshal(body, &eb) == nil {
		msg = eb.text()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, method, path)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if msg == "" {
			msg = "rejected by server"
		}
		return &domain.ValidationError{Message: msg}
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s %s: unauthorized (%d)", domain.ErrBackend, method, path, status)
	}
	return fmt.Errorf("%w: %s %s returned %d: %s", domain.ErrBackend, method, path, status, msg)
}
