// Package eventbus provides in-process publish/subscribe plumbing between
// the alert engine and presentation-layer listeners.
//
// Delivery is per-subscriber ordered and never blocks the publisher: each
// subscriber gets a buffered queue drained by its own goroutine, and events
// that would overflow the queue are dropped and counted. Sinks are purely
// observational, the engine stays correct without any of them.
package eventbus
