// Package mqtt publishes authgate security events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Event publishing with the configured QoS
//   - A retained presence topic with Last Will and Testament
//
// # Topics
//
//	<prefix>/security/<event_type>   non-retained JSON event
//	<prefix>/system/status           retained online/offline status
//
// # Security Considerations
//
//   - Use TLS (mqtt.broker.tls=true) outside local development
//   - Payloads carry masked identifiers only, never passwords or tokens
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishSecurityEvent("account_locked", payload)
package mqtt
