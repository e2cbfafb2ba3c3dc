package device

import "errors"

var (
	// ErrNotFound is returned when a device id has no registration.
	ErrNotFound = errors.New("device: not found")

	// ErrInvalidID is returned when a device has an empty id.
	ErrInvalidID = errors.New("device: invalid id")

	// ErrInvalidName is returned when a device has an empty name.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidAdapter is returned when a device names no adapter.
	ErrInvalidAdapter = errors.New("device: invalid adapter")

	// ErrDuplicateID is returned when a registration reuses an id.
	ErrDuplicateID = errors.New("device: duplicate id")

	// ErrNoAdapter is returned when no capability adapter is registered
	// for a device's adapter name.
	ErrNoAdapter = errors.New("device: no adapter for type")

	// ErrCommandFailed marks a power command the device did not confirm.
	// Callers keep their last confirmed state and retry next tick.
	ErrCommandFailed = errors.New("device: command failed")
)
