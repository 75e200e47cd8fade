package oauthflow

import (
	"errors"
	"time"
)

// Phase is the coordinator's position in the handshake lifecycle.
type Phase int

const (
	// PhaseIdle means no authorization attempt is in flight.
	PhaseIdle Phase = iota

	// PhaseAwaitingRedirect means an authorization URL has been handed out
	// and the coordinator is waiting for the provider to send the user back.
	PhaseAwaitingRedirect

	// PhaseResolved means the last attempt completed successfully.
	PhaseResolved

	// PhaseRejected means the last attempt failed; the user may retry,
	// which starts a fresh attempt with a fresh state token.
	PhaseRejected
)

// String returns the phase name for logging.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingRedirect:
		return "awaiting_redirect"
	case PhaseResolved:
		return "resolved"
	case PhaseRejected:
		return "rejected"
	}
	return "unknown"
}

// Sentinel errors for callback rejection. All of them are recoverable: the
// wizard stays on the Gmail step and the user retries with a fresh attempt.
var (
	// ErrNoPendingAttempt means a callback arrived with no authorization
	// attempt on record, for example a replayed or refreshed callback URL
	// after the original attempt was already consumed.
	ErrNoPendingAttempt = errors.New("no pending authorization attempt")

	// ErrStateMismatch means the returned state token does not match the
	// one generated for the pending attempt. This is the CSRF defense.
	ErrStateMismatch = errors.New("state token mismatch")

	// ErrMissingParameters means the callback lacked the code or state
	// query parameter.
	ErrMissingParameters = errors.New("callback missing required parameters")

	// ErrProviderDenied means the provider returned an error instead of an
	// authorization code (for example the user cancelled the consent screen).
	ErrProviderDenied = errors.New("authorization denied by provider")
)

// pendingHandshake is the durable record of an in-flight authorization
// attempt. It is written to disk before the user's browser navigates away so
// that the returning callback can be validated by a fresh process.
type pendingHandshake struct {
	// State is the opaque token bound to exactly one attempt
	State string `json:"state"`

	// AttemptID identifies the attempt in logs without exposing the state
	AttemptID string `json:"attemptId"`

	// ReturnStep is the wizard step to land on after the redirect
	ReturnStep int `json:"returnStep"`

	// CreatedAt is when the attempt was started
	CreatedAt time.Time `json:"createdAt"`
}
