// Package logging provides structured logging for the Gray Logic State Store.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	table := statestore.New(statestore.WithLogger(logger.Component("statestore")))
//
// *Logger satisfies the small Logger interfaces declared by statestore,
// bridge, telemetry, and the MQTT and InfluxDB clients.
//
// Never log the room auth token, JWT secret, or MQTT password.
package logging
