// Package api provides the HTTP client for the Mail Agent backend.
//
// The backend is an external collaborator: it holds OAuth client secrets,
// exchanges authorization codes, issues Telegram linking codes and records
// onboarding completion. This package only shapes requests and responses;
// polling cadence, retries and state transitions are owned by the callers
// (see the oauthflow, linking and wizard packages).
//
// All operations take a context.Context and return typed *Error values that
// carry the failed operation and HTTP status for error handling decisions.
package api
