// Package session defines the interactive alert-engine command.
//
// The command wires the alert engine to a simulated location provider and
// a console notification channel, then drives it from a line-based command
// loop: arm, abort, cancel, resolve, acknowledge, status and history.
package session
