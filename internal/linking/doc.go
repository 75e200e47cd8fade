// Package linking verifies Telegram bot links via short-lived codes.
//
// The user relays a 6-character code from the client to the bot; the bot
// reports it to the backend; the client polls until the code is confirmed or
// its 10-minute validity runs out. The verifier deliberately owns no timer:
// polling cadence, backoff and cancellation belong to the caller, which
// keeps the request/response contract synchronously testable.
//
// Only the most recently issued code can verify. Reissuing invalidates the
// previous code, and a poll response that arrives after its code has been
// superseded is discarded rather than applied.
package linking
