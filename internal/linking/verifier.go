package linking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/mailagent/internal/api"
	"github.com/teemow/mailagent/internal/logging"
)

// Backend is the subset of the api client the verifier needs.
type Backend interface {
	CreateLinkingCode(ctx context.Context) (*api.LinkingCode, error)
	LinkingStatus(ctx context.Context, code string) (*api.LinkingStatus, error)
}

// Verifier issues Telegram linking codes and checks their confirmation
// status. It is a pure request/response primitive: it owns no timer, so the
// caller controls polling cadence, backoff and cancellation, and tests stay
// deterministic.
type Verifier struct {
	backend Backend
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	current *api.LinkingCode
	result  *PollResult
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// WithLogger sets the logger used by the verifier.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// NewVerifier creates a verifier backed by the given backend client.
func NewVerifier(backend Backend, opts ...Option) (*Verifier, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}

	v := &Verifier{
		backend: backend,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// IssueCode requests a fresh linking code from the backend. Any previously
// issued code is invalidated: only the most recently issued code can ever
// verify successfully, and a late poll response for a superseded code is
// discarded.
func (v *Verifier) IssueCode(ctx context.Context) (*api.LinkingCode, error) {
	code, err := v.backend.CreateLinkingCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to issue linking code: %w", err)
	}

	v.mu.Lock()
	v.current = code
	v.result = nil
	v.mu.Unlock()

	v.logger.Info("linking code issued",
		logging.Operation("linking.issue"),
		slog.String("code", logging.SanitizeCode(code.Code)),
		slog.Time("expires_at", code.ExpiresAt),
	)

	return code, nil
}

// PollOnce performs a single verification check for the current code.
//
// It is a no-op returning StatusExpired when the code's expiry has passed;
// no network request is made in that case. A confirmed code stays confirmed
// on subsequent calls without further requests.
func (v *Verifier) PollOnce(ctx context.Context) (PollResult, error) {
	v.mu.Lock()
	if v.current == nil {
		v.mu.Unlock()
		return PollResult{Status: StatusNone}, ErrNoCode
	}
	if v.result != nil && v.result.Status == StatusConfirmed {
		result := *v.result
		v.mu.Unlock()
		return result, nil
	}
	code := v.current.Code
	expiresAt := v.current.ExpiresAt
	v.mu.Unlock()

	if v.now().After(expiresAt) {
		v.logger.Debug("linking code expired",
			logging.Operation("linking.poll"),
			slog.String("code", logging.SanitizeCode(code)),
		)
		return PollResult{Status: StatusExpired}, nil
	}

	status, err := v.backend.LinkingStatus(ctx, code)
	if err != nil {
		return PollResult{Status: StatusIssued}, fmt.Errorf("failed to poll linking status: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// The code may have been reissued while the request was in flight; a
	// late response for the old code must not mutate state.
	if v.current == nil || v.current.Code != code {
		return PollResult{Status: StatusNone}, ErrCodeSuperseded
	}

	if !status.Verified {
		return PollResult{Status: StatusIssued}, nil
	}

	result := PollResult{
		Status:           StatusConfirmed,
		TelegramID:       status.TelegramID,
		TelegramUsername: status.TelegramUsername,
	}
	v.result = &result

	v.logger.Info("linking code confirmed",
		logging.Operation("linking.poll"),
		slog.String("code", logging.SanitizeCode(code)),
		slog.String("telegram_username", status.TelegramUsername),
		logging.Status(logging.StatusSuccess),
	)

	return result, nil
}

// Status returns the lifecycle status without touching the network.
func (v *Verifier) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.current == nil {
		return StatusNone
	}
	if v.result != nil && v.result.Status == StatusConfirmed {
		return StatusConfirmed
	}
	if v.now().After(v.current.ExpiresAt) {
		return StatusExpired
	}
	return StatusIssued
}

// Code returns the current linking code value, or empty when none is issued.
func (v *Verifier) Code() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return ""
	}
	return v.current.Code
}

// ExpiresAt returns the current code's expiry, or the zero time when none
// is issued.
func (v *Verifier) ExpiresAt() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return time.Time{}
	}
	return v.current.ExpiresAt
}

// Reset discards the current code and any confirmation result.
func (v *Verifier) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = nil
	v.result = nil
}
