// Package device holds the plug inventory and the capability contract that
// vendor adapters implement.
//
// The core never speaks a device protocol itself. Every power command and
// sensor poll goes through Capability, dispatched by the adapter name on
// the device record; adapters own all transport detail.
package device
