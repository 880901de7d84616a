// Package mqtt provides MQTT client connectivity for the Tellstick gateway.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - The Home Assistant topic layout
//
// # Architecture
//
// The gateway publishes decoded RF traffic as Home Assistant entities and
// receives commands on per-entity set topics:
//
//	Tellstick Net ↔ gateway ↔ MQTT Broker ↔ Home Assistant
//
// # Security Considerations
//
//   - TLS should be enabled when the broker is not on localhost (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	topics := mqtt.NewTopics("homeassistant", "tellstick", mac)
//	client, err := mqtt.Connect(cfg.MQTT, topics.Status())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.AllSets(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
