// Package sensorstream simulates a fleet of IoT sensors and streams
// their readings, anomaly events and alerts to subscribers.
//
// # Pipeline
//
// Data flows through four stages driven by a single tick loop:
//
//	SensorRegistry -> StreamBroker -> AnomalyDetector -> AlertManager
//
// The registry samples each sensor when its interval is due, the broker
// fans frames out to subscribers over bounded queues, the detector runs
// range, rate-of-change and k-sigma rules over a sliding window and the
// alert manager dedupes anomaly events into alerts with cooldown-based
// resolution.
//
// # Consumers
//
// Subscribers attach in-process via broker subscriptions, remotely over
// the WebSocket gateway (output/websocket), or through the optional NATS
// mirror (output/natsbridge). Every frame is JSON with a "type" field:
// reading, alert or sensor_list.
//
// # Entry point
//
// cmd/sensorstream wires the pipeline from a JSON or YAML config file
// and exposes Prometheus metrics plus a health endpoint.
package sensorstream
