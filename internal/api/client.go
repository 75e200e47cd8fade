package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/mailagent/internal/instrumentation"
	"github.com/teemow/mailagent/internal/logging"
)

const (
	// DefaultTimeout is the default per-request timeout for backend calls.
	DefaultTimeout = 15 * time.Second

	// maxResponseBytes caps how much of a backend response is read.
	maxResponseBytes = 1 << 20
)

// Client talks to the Mail Agent backend. It is a thin JSON/HTTP client;
// retry policy and polling cadence belong to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (used in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used by the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithInstrumentation attaches metrics and tracing to every backend call.
// Each call gets a span and a request counter/duration sample labeled with
// the operation and outcome. Both may be nil.
func WithInstrumentation(metrics *instrumentation.Metrics, tracer trace.Tracer) Option {
	return func(c *Client) {
		c.metrics = metrics
		c.tracer = tracer
	}
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL cannot be empty")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend base URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GmailAuthConfig fetches the OAuth authorization parameters for Gmail.
func (c *Client) GmailAuthConfig(ctx context.Context) (*GmailAuthConfig, error) {
	var cfg GmailAuthConfig
	if err := c.do(ctx, "auth.config", http.MethodGet, "/api/v1/auth/gmail/config", nil, &cfg); err != nil {
		return nil, err
	}
	if cfg.AuthURL == "" || cfg.ClientID == "" {
		return nil, &Error{Op: "auth.config", Err: fmt.Errorf("backend returned incomplete auth config")}
	}
	return &cfg, nil
}

// ExchangeGmailCode exchanges an authorization code for a connected Gmail
// account. The state is forwarded so the backend can bind the exchange to
// the attempt it issued the redirect for.
func (c *Client) ExchangeGmailCode(ctx context.Context, code, state string) (*GmailConnection, error) {
	req := struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}{Code: code, State: state}

	var conn GmailConnection
	if err := c.do(ctx, "auth.exchange", http.MethodPost, "/api/v1/auth/gmail/exchange", req, &conn); err != nil {
		return nil, err
	}
	c.logger.Info("gmail code exchanged",
		logging.Operation("auth.exchange"),
		logging.UserHash(conn.Email),
		logging.Status(logging.StatusSuccess),
	)
	return &conn, nil
}

// CreateLinkingCode requests a fresh Telegram linking code. Any previously
// issued code for the session is invalidated by the backend.
func (c *Client) CreateLinkingCode(ctx context.Context) (*LinkingCode, error) {
	var code LinkingCode
	if err := c.do(ctx, "linking.create", http.MethodPost, "/api/v1/telegram/linking-code", nil, &code); err != nil {
		return nil, err
	}
	if code.Code == "" {
		return nil, &Error{Op: "linking.create", Err: fmt.Errorf("backend returned empty linking code")}
	}
	return &code, nil
}

// LinkingStatus polls the verification status of a linking code.
func (c *Client) LinkingStatus(ctx context.Context, code string) (*LinkingStatus, error) {
	if code == "" {
		return nil, &Error{Op: "linking.status", Err: fmt.Errorf("code cannot be empty")}
	}
	var status LinkingStatus
	path := "/api/v1/telegram/linking-code/" + code
	if err := c.do(ctx, "linking.status", http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CompleteOnboarding marks onboarding as finished. The backend treats this
// as idempotent; calling it again for a completed session succeeds.
func (c *Client) CompleteOnboarding(ctx context.Context) error {
	return c.do(ctx, "onboarding.complete", http.MethodPost, "/api/v1/onboarding/complete", nil, nil)
}

// do performs a single backend call, wrapping the round trip in a span and
// recording the request metric.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	start := time.Now()

	var span trace.Span
	if c.tracer != nil {
		ctx, span = instrumentation.StartSpan(ctx, c.tracer, "backend."+op,
			attribute.String(instrumentation.AttrOperation, op))
		defer span.End()
	}

	err := c.roundTrip(ctx, op, method, path, body, out)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	if span != nil {
		if err != nil {
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
	}
	c.metrics.RecordBackendRequest(ctx, op, status, time.Since(start))

	if err != nil {
		attrs := []any{
			logging.Operation(op),
			logging.Status(logging.StatusError),
			logging.Err(err),
		}
		// The trace id ties the log line to the span when tracing is on.
		if traceID := instrumentation.GetTraceID(ctx); traceID != "" {
			attrs = append(attrs, slog.String("trace_id", traceID))
		}
		c.logger.Warn("backend request failed", attrs...)
	}

	return err
}

// roundTrip performs a single JSON request/response round trip against the
// backend.
func (c *Client) roundTrip(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("backend error: %s", errorMessage(data))}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}
	return nil
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return "empty response body"
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
