package api

import (
	"fmt"
	"time"
)

// GmailAuthConfig describes what the client needs to start a Gmail
// authorization attempt: the provider's authorization endpoint, the OAuth
// client identity and the scopes to request. The backend owns the client
// secret; it is never sent to this client.
type GmailAuthConfig struct {
	// AuthURL is the provider's authorization endpoint
	AuthURL string `json:"authUrl"`

	// TokenURL is the provider's token endpoint (used by the backend only,
	// echoed here for completeness)
	TokenURL string `json:"tokenUrl,omitempty"`

	// ClientID is the public OAuth client identifier
	ClientID string `json:"clientId"`

	// RedirectURI is where the provider sends the user back
	RedirectURI string `json:"redirectUri"`

	// Scopes are the Gmail scopes to request
	Scopes []string `json:"scopes"`
}

// GmailConnection is the backend's confirmation that a Gmail account has
// been connected for this user.
type GmailConnection struct {
	// Email is the address of the connected Gmail account
	Email string `json:"email"`

	// SessionToken authenticates subsequent requests for this onboarding
	// session
	SessionToken string `json:"sessionToken"`

	// GoogleAccessToken is a short-lived token scoped to reading the
	// account's profile and labels, used to suggest folder rules. Optional.
	GoogleAccessToken string `json:"googleAccessToken,omitempty"`
}

// LinkingCode is a short-lived code the user relays to the Telegram bot to
// prove control of both endpoints.
type LinkingCode struct {
	// Code is the 6-character linking code
	Code string `json:"code"`

	// ExpiresAt is when the code stops being accepted
	ExpiresAt time.Time `json:"expiresAt"`

	// Verified reports whether the bot has confirmed the code yet
	Verified bool `json:"verified"`
}

// LinkingStatus is the result of polling a linking code.
type LinkingStatus struct {
	// Verified reports whether the bot has confirmed the code
	Verified bool `json:"verified"`

	// TelegramID is the numeric Telegram user ID, set once verified
	TelegramID int64 `json:"telegramId,omitempty"`

	// TelegramUsername is the Telegram handle, set once verified
	TelegramUsername string `json:"telegramUsername,omitempty"`
}

// Error represents an error returned by a backend operation
type Error struct {
	// Op is the operation that failed (e.g., "exchange", "linking.status")
	Op string

	// StatusCode is the HTTP status code, if a response was received
	StatusCode int

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("api %s (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("api %s: %v", e.Op, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Err
}
