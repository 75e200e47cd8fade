package linking

import "errors"

// Status is the verifier's position in the linking-code lifecycle.
type Status int

const (
	// StatusNone means no code has been issued yet.
	StatusNone Status = iota

	// StatusIssued means a code is outstanding and not yet confirmed.
	StatusIssued

	// StatusConfirmed means the bot confirmed the current code.
	StatusConfirmed

	// StatusExpired means the current code passed its expiry without being
	// confirmed. A new code must be issued; expired codes are never
	// revalidated.
	StatusExpired
)

// String returns the status name for logging.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusIssued:
		return "issued"
	case StatusConfirmed:
		return "confirmed"
	case StatusExpired:
		return "expired"
	}
	return "unknown"
}

// Sentinel errors for linking operations.
var (
	// ErrNoCode means PollOnce was called before any code was issued.
	ErrNoCode = errors.New("no linking code issued")

	// ErrCodeSuperseded means a poll response arrived for a code that has
	// been replaced by a newer one; the response is discarded.
	ErrCodeSuperseded = errors.New("linking code superseded")
)

// PollResult is the outcome of a single poll.
type PollResult struct {
	// Status is the lifecycle status after the poll
	Status Status

	// TelegramID is the linked Telegram user ID, set when confirmed
	TelegramID int64

	// TelegramUsername is the linked Telegram handle, set when confirmed
	TelegramUsername string
}
