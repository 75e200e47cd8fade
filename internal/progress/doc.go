// Package progress persists onboarding wizard progress across process
// restarts.
//
// The snapshot is a single JSON file keyed by a fixed name under the user
// config directory. Age is derived from the embedded LastUpdated timestamp,
// not from file metadata, so copying the file between machines keeps the
// staleness semantics intact.
//
// The store deliberately fails soft on every path: a corrupt snapshot is
// erased and reported as absent, and a failed save is logged and swallowed.
// Losing resumability must never block the onboarding flow.
package progress
