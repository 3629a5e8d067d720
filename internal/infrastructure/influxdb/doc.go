// Package influxdb provides InfluxDB connectivity for the State Store.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched non-blocking point writes, and health monitoring.
// The telemetry package uses it to keep a history of every accepted state
// change outside the in-memory table.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) {
//	    logger.Warn("influxdb write failed", "error", err)
//	})
//
// # Error Handling
//
// Writes never return errors; batch failures arrive on the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
