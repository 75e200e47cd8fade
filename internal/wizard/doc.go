// Package wizard sequences the onboarding flow as a finite-state machine
// over the progress store, the OAuth coordinator and the linking verifier.
//
// The controller is the sole owner of the step cursor. On construction it
// performs exactly one synchronous load of persisted progress and clamps
// the stored step to the furthest step the connection flags justify, so a
// tampered or corrupted cursor can never skip a connection gate. The gates
// themselves are re-checked on every transition attempt, not just at
// restore time.
//
// Stale progress (older than the store's threshold) is restored but held
// behind a resume-or-restart decision that the UI layer surfaces to the
// user; the controller supplies the mechanism, not the policy.
package wizard
