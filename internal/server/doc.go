// Package server provides the HTTP surfaces of the agent.
//
// CallbackServer is a loopback listener that captures the OAuth redirect
// from Google's consent screen and hands its query string to the flow
// coordinator. MetricsServer exposes Prometheus metrics on a dedicated
// port, and HealthChecker provides liveness and readiness probes for both.
package server
