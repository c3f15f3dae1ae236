// Package broadcast implements the periodic location sampling loop that
// runs while an alert is active.
//
// Each loop instance owns its timer and its own teardown, stopping one
// alert's loop can never leak into another alert. Sampling failures are
// logged and skipped, the loop keeps trying for the alert's entire active
// lifetime.
package broadcast
