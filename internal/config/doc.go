// Package config defines the alert engine settings and provides helpers to
// load, validate and save them in YAML format.
//
// The Config type holds the countdown, broadcast and lockout timings plus
// the history file location.
package config
