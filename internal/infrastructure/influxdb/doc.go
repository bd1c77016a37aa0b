// Package influxdb writes authgate security events to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched point writes and health monitoring.
//
// # Measurements
//
//	auth_events  tags: event, outcome  fields: count, user_id
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAuthEvent("account_locked", userID, time.Now())
//
// # Error Handling
//
// Writes are non-blocking; batch errors arrive through SetOnError.
// Connection and health check errors are returned directly.
package influxdb
