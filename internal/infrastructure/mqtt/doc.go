// Package mqtt provides MQTT client connectivity for the State Store.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after reconnect
//   - Last Will and Testament (LWT) on the room status topic
//   - Room-scoped topic builders (see Topics)
//
// The State Store uses MQTT to mirror its table onto the building's message
// bus: every accepted change is published retained under the room's state
// topics, and panels or bridges write state by publishing to the set topic.
//
//	State Table → bridge → MQTT Broker → panels, loggers, other cores
//
// # Security Considerations
//
//   - TLS should be enabled outside development (cfg.Broker.TLS=true)
//   - Credentials are validated against the broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Room.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.Set(), 1,
//	    func(topic string, payload []byte) error {
//	        return handleSet(payload)
//	    })
package mqtt
