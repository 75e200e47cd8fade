package instrumentation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the onboarding flow.
type Metrics struct {
	// Wizard metrics
	wizardStepsTotal metric.Int64Counter

	// OAuth metrics
	oauthAttemptsTotal metric.Int64Counter

	// Telegram linking metrics
	linkingCodesIssued metric.Int64Counter
	linkingPollsTotal  metric.Int64Counter

	// Backend API metrics
	backendRequestsTotal   metric.Int64Counter
	backendRequestDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments using the provided meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.wizardStepsTotal, err = meter.Int64Counter(
		"mailagent_wizard_steps_total",
		metric.WithDescription("Total number of wizard step transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	m.oauthAttemptsTotal, err = meter.Int64Counter(
		"mailagent_oauth_attempts_total",
		metric.WithDescription("Total number of Gmail OAuth handshake attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	m.linkingCodesIssued, err = meter.Int64Counter(
		"mailagent_linking_codes_issued_total",
		metric.WithDescription("Total number of Telegram linking codes issued"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, err
	}

	m.linkingPollsTotal, err = meter.Int64Counter(
		"mailagent_linking_polls_total",
		metric.WithDescription("Total number of Telegram linking status polls"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, err
	}

	m.backendRequestsTotal, err = meter.Int64Counter(
		"mailagent_backend_requests_total",
		metric.WithDescription("Total number of backend API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.backendRequestDuration, err = meter.Float64Histogram(
		"mailagent_backend_request_duration_seconds",
		metric.WithDescription("Backend API request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordWizardStep records a transition onto the named wizard step.
func (m *Metrics) RecordWizardStep(ctx context.Context, step string) {
	if m == nil || m.wizardStepsTotal == nil {
		return
	}
	m.wizardStepsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
	))
}

// RecordOAuthAttempt records the outcome of an OAuth handshake attempt.
func (m *Metrics) RecordOAuthAttempt(ctx context.Context, result string) {
	if m == nil || m.oauthAttemptsTotal == nil {
		return
	}
	m.oauthAttemptsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordLinkingCodeIssued records the issuance of a Telegram linking code.
func (m *Metrics) RecordLinkingCodeIssued(ctx context.Context) {
	if m == nil || m.linkingCodesIssued == nil {
		return
	}
	m.linkingCodesIssued.Add(ctx, 1)
}

// RecordLinkingPoll records a Telegram linking status poll and its outcome.
func (m *Metrics) RecordLinkingPoll(ctx context.Context, status string) {
	if m == nil || m.linkingPollsTotal == nil {
		return
	}
	m.linkingPollsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordBackendRequest records a backend API call with its duration and status.
func (m *Metrics) RecordBackendRequest(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	if m.backendRequestsTotal != nil {
		m.backendRequestsTotal.Add(ctx, 1, attrs)
	}
	if m.backendRequestDuration != nil {
		m.backendRequestDuration.Record(ctx, duration.Seconds(), attrs)
	}
}
