// Package influxdb records packpilot run metrics in InfluxDB v2.
//
// Two measurements are written through the non-blocking, batching write API:
//
//	task_runs     tags: device, scenario, state   fields: attempts, elapsed_ms
//	step_timings  tags: device, scenario, step, outcome   fields: polls, elapsed_ms, attempt
//
// MetricsSink turns engine events into these points so the supervisor only
// has to register it with the event dispatcher.
package influxdb
