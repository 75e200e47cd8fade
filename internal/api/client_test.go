package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/teemow/mailagent/internal/instrumentation"
)

func TestNewClient(t *testing.T) {
	t.Run("empty base URL", func(t *testing.T) {
		_, err := NewClient("")
		assert.Error(t, err)
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		c, err := NewClient("http://localhost:8080/")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080", c.BaseURL())
	})
}

func TestGmailAuthConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/auth/gmail/config", r.URL.Path)
		_ = json.NewEncoder(w).Encode(GmailAuthConfig{
			AuthURL:     "https://accounts.google.com/o/oauth2/auth",
			ClientID:    "client-123",
			RedirectURI: "http://127.0.0.1:8765/oauth/callback",
			Scopes:      []string{"https://www.googleapis.com/auth/gmail.readonly"},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	cfg, err := c.GmailAuthConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "client-123", cfg.ClientID)
	assert.Len(t, cfg.Scopes, 1)
}

func TestGmailAuthConfig_Incomplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(GmailAuthConfig{})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.GmailAuthConfig(context.Background())
	assert.Error(t, err)
}

func TestExchangeGmailCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/auth/gmail/exchange", r.URL.Path)

		var req struct {
			Code  string `json:"code"`
			State string `json:"state"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "auth-code", req.Code)
		assert.Equal(t, "state-token", req.State)

		_ = json.NewEncoder(w).Encode(GmailConnection{
			Email:        "user@example.com",
			SessionToken: "session-abc",
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	conn, err := c.ExchangeGmailCode(context.Background(), "auth-code", "state-token")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", conn.Email)
	assert.Equal(t, "session-abc", conn.SessionToken)
}

func TestExchangeGmailCode_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.ExchangeGmailCode(context.Background(), "bad-code", "state")
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "auth.exchange", apiErr.Op)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "invalid_grant")
}

func TestCreateLinkingCode(t *testing.T) {
	expires := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/telegram/linking-code", r.URL.Path)
		_ = json.NewEncoder(w).Encode(LinkingCode{
			Code:      "A1B2C3",
			ExpiresAt: expires,
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	code, err := c.CreateLinkingCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A1B2C3", code.Code)
	assert.False(t, code.Verified)
	assert.True(t, code.ExpiresAt.Equal(expires))
}

func TestCreateLinkingCode_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(LinkingCode{})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.CreateLinkingCode(context.Background())
	assert.Error(t, err)
}

func TestLinkingStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/telegram/linking-code/A1B2C3", r.URL.Path)
		_ = json.NewEncoder(w).Encode(LinkingStatus{
			Verified:         true,
			TelegramID:       424242,
			TelegramUsername: "someuser",
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	status, err := c.LinkingStatus(context.Background(), "A1B2C3")
	require.NoError(t, err)
	assert.True(t, status.Verified)
	assert.Equal(t, int64(424242), status.TelegramID)
	assert.Equal(t, "someuser", status.TelegramUsername)
}

func TestLinkingStatus_EmptyCode(t *testing.T) {
	c, err := NewClient("http://localhost:1")
	require.NoError(t, err)

	_, err = c.LinkingStatus(context.Background(), "")
	assert.Error(t, err)
}

func TestCompleteOnboarding_Idempotent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/v1/onboarding/complete", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	require.NoError(t, c.CompleteOnboarding(context.Background()))
	require.NoError(t, c.CompleteOnboarding(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = c.GmailAuthConfig(ctx)
	assert.Error(t, err)
}

// instrumentedClient builds a client whose spans and metrics land in
// in-memory recorders.
func instrumentedClient(t *testing.T, baseURL string) (*Client, *tracetest.SpanRecorder, sdkmetric.Reader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = meterProvider.Shutdown(context.Background())
	})
	metrics, err := instrumentation.NewMetrics(meterProvider.Meter("test"))
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = tracerProvider.Shutdown(context.Background())
	})

	c, err := NewClient(baseURL, WithInstrumentation(metrics, tracerProvider.Tracer("test")))
	require.NoError(t, err)
	return c, recorder, reader
}

func collectedMetricNames(t *testing.T, reader sdkmetric.Reader) []string {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var names []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
		}
	}
	return names
}

func TestDo_Instrumented(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, recorder, reader := instrumentedClient(t, srv.URL)
	require.NoError(t, c.CompleteOnboarding(context.Background()))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "backend.onboarding.complete", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	names := collectedMetricNames(t, reader)
	assert.Contains(t, names, "mailagent_backend_requests_total")
	assert.Contains(t, names, "mailagent_backend_request_duration_seconds")
}

func TestDo_InstrumentedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, recorder, reader := instrumentedClient(t, srv.URL)
	require.Error(t, c.CompleteOnboarding(context.Background()))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	names := collectedMetricNames(t, reader)
	assert.Contains(t, names, "mailagent_backend_requests_total")
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "error field", body: `{"error":"bad_state"}`, want: "bad_state"},
		{name: "message field", body: `{"message":"try again"}`, want: "try again"},
		{name: "plain text", body: "not found", want: "not found"},
		{name: "empty", body: "", want: "empty response body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorMessage([]byte(tt.body)))
		})
	}
}
