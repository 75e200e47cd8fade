// Package oauthflow coordinates the Gmail OAuth handshake across a full
// navigation boundary.
//
// Connecting Gmail sends the user's browser to an external consent screen,
// so the handshake cannot be modeled as an awaited in-process call. Instead
// the coordinator persists the attempt's state token to disk before handing
// out the authorization URL, and validates the returning callback against
// that durable record. A fresh process can therefore resume an attempt it
// did not start.
//
// The state token is the sole CSRF defense: a callback whose state does not
// exactly match the pending attempt is rejected. Attempts are single-use:
// the pending record is consumed before the code exchange is interpreted, so
// replaying a callback URL can never trigger a second exchange.
package oauthflow
