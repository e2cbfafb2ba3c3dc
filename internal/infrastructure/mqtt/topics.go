package mqtt

import "fmt"

// Topic prefixes for the PlugPilot MQTT hierarchy.
//
// Plug adapters use the flat scheme: plugpilot/{category}/{plug_id}.
// The daemon publishes its own canonical state under plugpilot/core.
const (
	// TopicPrefix is the base for all plug adapter topics.
	TopicPrefix = "plugpilot"

	// TopicPrefixCore is the base for daemon-published topics.
	TopicPrefixCore = "plugpilot/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "plugpilot/system"
)

// Topics provides builders for PlugPilot MQTT topics. Using these helpers
// keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.PlugState("dryer-garage")
//	// Returns: "plugpilot/state/dryer-garage"
type Topics struct{}

// PlugTelemetry returns the topic a plug publishes sensor readings on.
//
// Example: plugpilot/telemetry/dryer-garage
func (Topics) PlugTelemetry(plugID string) string {
	return fmt.Sprintf("%s/telemetry/%s", TopicPrefix, plugID)
}

// PlugState returns the topic a plug publishes relay state changes on.
//
// Example: plugpilot/state/dryer-garage
func (Topics) PlugState(plugID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, plugID)
}

// PlugCommand returns the topic the daemon publishes power commands on.
//
// Example: plugpilot/command/dryer-garage
func (Topics) PlugCommand(plugID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, plugID)
}

// PlugAck returns the topic a plug acknowledges commands on.
//
// Example: plugpilot/ack/dryer-garage
func (Topics) PlugAck(plugID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, plugID)
}

// PlugAvailability returns the plug's broker-managed availability topic.
// Plug firmware sets an LWT here, so "offline" appears without the plug's
// cooperation.
//
// Example: plugpilot/availability/dryer-garage
func (Topics) PlugAvailability(plugID string) string {
	return fmt.Sprintf("%s/availability/%s", TopicPrefix, plugID)
}

// CoreDeviceState returns the canonical per-device state topic published by
// the daemon after it has processed a plug update.
//
// Example: plugpilot/core/device/dryer-garage/state
func (Topics) CoreDeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefixCore, deviceID)
}

// CoreAutomationEvent returns the topic for automation transitions.
//
// Example: plugpilot/core/automation/dryer-garage/standby
func (Topics) CoreAutomationEvent(deviceID, event string) string {
	return fmt.Sprintf("%s/automation/%s/%s", TopicPrefixCore, deviceID, event)
}

// SystemStatus returns the daemon status topic, also used for the LWT.
//
// Example: plugpilot/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllPlugTelemetry returns a pattern matching every plug's telemetry.
//
// Pattern: plugpilot/telemetry/+
func (Topics) AllPlugTelemetry() string {
	return fmt.Sprintf("%s/telemetry/+", TopicPrefix)
}

// AllPlugStates returns a pattern matching every plug's state updates.
//
// Pattern: plugpilot/state/+
func (Topics) AllPlugStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllPlugAcks returns a pattern matching every plug's command acks.
//
// Pattern: plugpilot/ack/+
func (Topics) AllPlugAcks() string {
	return fmt.Sprintf("%s/ack/+", TopicPrefix)
}

// AllPlugAvailability returns a pattern matching every plug's availability.
//
// Pattern: plugpilot/availability/+
func (Topics) AllPlugAvailability() string {
	return fmt.Sprintf("%s/availability/+", TopicPrefix)
}

// AllTopics returns a pattern matching all PlugPilot traffic.
// Use with caution.
//
// Pattern: plugpilot/#
func (Topics) AllTopics() string {
	return "plugpilot/#"
}
