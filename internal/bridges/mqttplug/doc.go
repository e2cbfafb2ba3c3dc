// Package mqttplug adapts MQTT-attached smart plugs to the core's
// device capability interface.
//
// The adapter owns all MQTT protocol detail for plugs: it subscribes to the
// plug telemetry, state, ack, and availability topics, maintains a last-known
// snapshot per plug, and translates SetPower calls into command messages
// correlated to acknowledgements by command ID.
//
// Reads are served from the snapshot cache rather than a round trip; a plug
// whose telemetry has gone stale is reported offline so the poller records a
// gap instead of repeating the last value.
//
// Topic scheme and payloads:
//
//	plugpilot/telemetry/<plug>     {"power":42.5,"voltage":230.1,"state":"on"}
//	plugpilot/state/<plug>         {"state":"off"}
//	plugpilot/command/<plug>       {"command_id":"<uuid>","action":"on"}
//	plugpilot/ack/<plug>           {"command_id":"<uuid>","success":true}
//	plugpilot/availability/<plug>  {"status":"online"}
package mqttplug
