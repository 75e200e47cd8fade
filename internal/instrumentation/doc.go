// Package instrumentation provides OpenTelemetry metrics and tracing for the
// onboarding flow.
//
// A Provider owns the meter and tracer providers and is configured through
// environment variables (see DefaultConfig). Metrics cover wizard step
// transitions, OAuth attempts, Telegram linking activity and backend API
// calls. All Record methods are safe to call on a nil Metrics, so callers
// never need to guard against disabled instrumentation.
package instrumentation
