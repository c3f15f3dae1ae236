// Package countdown implements the cancellable pre-send countdown timer.
//
// A Timer fires exactly one terminal event, expiry or cancellation, never
// both and never neither. When a cancellation request and the zero-crossing
// tick race, cancellation wins if it is observed before the tick callback
// begins executing.
package countdown
