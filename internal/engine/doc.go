// Package engine owns the canonical state of one alert episode per user
// session and composes the countdown timer, the location broadcast loop,
// the contact notifier and the cancellation gate around it.
//
// All record mutations funnel through the engine's transition methods under
// a single mutex, so a tick, a cancellation request and a resolve call
// arriving together are applied in a well-defined order. I/O (location
// fixes, notification fan-out) happens outside the lock, cancellation
// stays responsive while a fan-out is in flight.
package engine
