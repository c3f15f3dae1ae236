// Package gate implements the guarded cancellation path for active alerts.
//
// A Gate verifies a presented secret against a SecretStore, tracks
// consecutive failures and locks itself after the configured maximum.
// While locked, further attempts are rejected without consulting the store.
// The gate never force-cancels by itself, the engine owns the lockout
// auto-cancel policy.
package gate
