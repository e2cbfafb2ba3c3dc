package mqttplug

import "errors"

var (
	// ErrInvalidAddress indicates a device address that is not valid JSON
	// for this adapter.
	ErrInvalidAddress = errors.New("mqttplug: invalid device address")

	// ErrNoTelemetry indicates no telemetry has been received for the plug
	// since the adapter started.
	ErrNoTelemetry = errors.New("mqttplug: no telemetry received")

	// ErrPlugOffline indicates the plug is unavailable or its telemetry has
	// gone stale.
	ErrPlugOffline = errors.New("mqttplug: plug offline")

	// ErrCommandTimeout indicates no acknowledgement arrived within the
	// command timeout. The plug may or may not have switched.
	ErrCommandTimeout = errors.New("mqttplug: command not acknowledged")

	// ErrCommandRejected indicates the plug acknowledged the command with a
	// failure.
	ErrCommandRejected = errors.New("mqttplug: command rejected")

	// ErrNotConnected indicates the MQTT client is not connected.
	ErrNotConnected = errors.New("mqttplug: mqtt client not connected")
)
