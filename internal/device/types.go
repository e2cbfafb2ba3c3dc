package device

import (
	"encoding/json"
	"time"
)

// PowerState is a plug's reported relay state.
type PowerState string

const (
	PowerOn      PowerState = "on"
	PowerOff     PowerState = "off"
	PowerUnknown PowerState = "unknown"
)

// Device is one controllable smart plug.
//
// Address carries adapter-specific routing (an MQTT topic fragment, a LAN
// IP, a cloud device id) as raw JSON; the core never interprets it, only
// hands it to the adapter named by Adapter.
type Device struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Adapter   string          `json:"adapter"`
	Address   json.RawMessage `json:"address"`
	Online    bool            `json:"online"`
	LastSeen  *time.Time      `json:"last_seen,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DeepCopy returns an independent copy safe to hand outside the registry.
func (d *Device) DeepCopy() *Device {
	copied := *d
	if d.Address != nil {
		copied.Address = make(json.RawMessage, len(d.Address))
		copy(copied.Address, d.Address)
	}
	if d.LastSeen != nil {
		seen := *d.LastSeen
		copied.LastSeen = &seen
	}
	return &copied
}

// Validate checks the fields the core depends on.
func (d *Device) Validate() error {
	if d.ID == "" {
		return ErrInvalidID
	}
	if d.Name == "" {
		return ErrInvalidName
	}
	if d.Adapter == "" {
		return ErrInvalidAdapter
	}
	return nil
}
