package mqttplug

import (
	"encoding/json"
	"fmt"
	"strings"
)

// telemetryMessage is a plug's sensor report. Channels the plug does not
// measure are omitted.
type telemetryMessage struct {
	Power   *float64 `json:"power,omitempty"`   // watts
	Voltage *float64 `json:"voltage,omitempty"` // volts
	Current *float64 `json:"current,omitempty"` // amps
	State   string   `json:"state,omitempty"`   // on, off
}

// stateMessage is a relay state report, published on change.
type stateMessage struct {
	State string `json:"state"` // on, off
}

// commandMessage switches a plug's relay. CommandID correlates the
// acknowledgement.
type commandMessage struct {
	CommandID string `json:"command_id"`
	Action    string `json:"action"` // on, off
}

// ackMessage confirms or rejects a command.
type ackMessage struct {
	CommandID string `json:"command_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// availabilityMessage reports broker-visible reachability, typically via the
// plug's last will.
type availabilityMessage struct {
	Status string `json:"status"` // online, offline
}

// addressConfig is the adapter-specific portion of a device's address.
// PlugID is the topic segment identifying the plug; when omitted the
// device ID is used.
type addressConfig struct {
	PlugID string `json:"plug_id,omitempty"`
}

// plugIDFromTopic extracts the plug identifier from the final topic segment.
func plugIDFromTopic(topic string) (string, error) {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return "", fmt.Errorf("malformed plug topic %q", topic)
	}
	return topic[idx+1:], nil
}

// resolvePlugID maps a device address to its plug topic segment.
func resolvePlugID(deviceID string, address json.RawMessage) (string, error) {
	if len(address) == 0 {
		return deviceID, nil
	}
	var addr addressConfig
	if err := json.Unmarshal(address, &addr); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if addr.PlugID == "" {
		return deviceID, nil
	}
	return addr.PlugID, nil
}
