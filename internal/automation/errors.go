package automation

import "errors"

var (
	// ErrNotFound is returned when a device has no automation state.
	ErrNotFound = errors.New("automation: state not found")

	// ErrInvalidDevice is returned for an empty device id.
	ErrInvalidDevice = errors.New("automation: invalid device id")

	// ErrInvalidConfig marks a rejected threshold, sustain, or restart
	// time. The prior valid configuration is retained.
	ErrInvalidConfig = errors.New("automation: invalid configuration")

	// ErrNotEnabled is returned when a tick targets a device whose
	// automation is disabled.
	ErrNotEnabled = errors.New("automation: not enabled")
)
