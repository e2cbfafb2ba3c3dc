// Package mqtt provides MQTT client connectivity for the PlugPilot daemon.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// PlugPilot uses MQTT as the transport between the daemon and MQTT-capable
// smart plugs (Tasmota, ESPHome, and similar firmware). The broker decouples
// the daemon from plug firmware details.
//
//	PlugPilot Daemon <-> MQTT Broker <-> Smart Plugs
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all plug telemetry
//	err = client.Subscribe(mqtt.Topics{}.AllPlugTelemetry(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a power command
//	topic := mqtt.Topics{}.PlugCommand("dryer-garage")
//	client.Publish(topic, []byte(`{"power":"on"}`), 1, false)
package mqtt
