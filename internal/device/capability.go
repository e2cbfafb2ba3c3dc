package device

import "context"

// Reading is one poll of a plug's sensors. Power, voltage, and current are
// nil when the plug does not report that channel or is unreachable.
type Reading struct {
	Power   *float64 // watts
	Voltage *float64 // volts
	Current *float64 // amps
	State   PowerState
	Online  bool
}

// Capability is the full control surface the core requires of a plug.
//
// The core is polymorphic over this interface: it never branches on vendor
// identity. One adapter implements it per transport (MQTT, local WiFi,
// cloud API); the adapter owns all protocol detail.
type Capability interface {
	// PowerState returns the last known relay state. Returns PowerUnknown
	// rather than an error when the state cannot be determined.
	PowerState(ctx context.Context, dev *Device) (PowerState, error)

	// SetPower switches the relay. An error means the command was not
	// confirmed; the device may or may not have switched.
	SetPower(ctx context.Context, dev *Device, on bool) error

	// ReadPower polls the plug's sensors.
	ReadPower(ctx context.Context, dev *Device) (Reading, error)

	// IsOnline reports whether the plug is reachable.
	IsOnline(ctx context.Context, dev *Device) bool
}

// Adapters routes capability calls by a device's adapter name.
type Adapters struct {
	byName map[string]Capability
}

// NewAdapters creates an empty adapter table.
func NewAdapters() *Adapters {
	return &Adapters{byName: make(map[string]Capability)}
}

// Register binds an adapter name to its capability implementation.
// Registration happens at startup, before any dispatch; the table is
// read-only afterwards.
func (a *Adapters) Register(name string, cap Capability) {
	a.byName[name] = cap
}

// For returns the capability serving the device's adapter.
func (a *Adapters) For(dev *Device) (Capability, error) {
	cap, ok := a.byName[dev.Adapter]
	if !ok {
		return nil, ErrNoAdapter
	}
	return cap, nil
}
