// Package influxdb records Tellstick traffic in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched writes and health monitoring.
//
// # Measurements
//
//   - tellstick_sensor: tags protocol, model, sensor_id; one field per value
//   - tellstick_command: tags protocol, model, house, unit; field method
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteEvent(ev)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are reported via a
// callback. Connection and health check errors are returned directly.
package influxdb
