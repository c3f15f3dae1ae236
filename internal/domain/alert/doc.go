// Package alert contains core domain types for the emergency alert business logic.
//
// It defines the alert lifecycle states with their transition rules, the
// Record describing a single alert episode, and the immutable value types
// attached to a record: location samples, contact references and the
// append-only notification and cancellation logs. Clone helpers avoid
// leaking internal references.
package alert
