package realtime

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName  = "vidsync.realtime"
	tracerName = "vidsync.realtime"
)

// Metrics provides OpenTelemetry instruments for the connection lifecycle
type Metrics struct {
	connectAttempts  metric.Int64Counter
	stateTransitions metric.Int64Counter
	reconnectDelay   metric.Float64Histogram
	messagesReceived metric.Int64Counter
	protocolErrors   metric.Int64Counter
	pollFetches      metric.Int64Counter
	heartbeatsSent   metric.Int64Counter
}

// NewMetrics creates the realtime instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	connectAttempts, err := meter.Int64Counter(
		"realtime_connect_attempts_total",
		metric.WithDescription("Total number of duplex handshake attempts"),
	)
	if err != nil {
		return nil, err
	}

	stateTransitions, err := meter.Int64Counter(
		"realtime_state_transitions_total",
		metric.WithDescription("Total number of connection state transitions"),
	)
	if err != nil {
		return nil, err
	}

	reconnectDelay, err := meter.Float64Histogram(
		"realtime_reconnect_delay_seconds",
		metric.WithDescription("Scheduled delay before a reconnect attempt"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	messagesReceived, err := meter.Int64Counter(
		"realtime_messages_received_total",
		metric.WithDescription("Total number of update messages delivered to handlers"),
	)
	if err != nil {
		return nil, err
	}

	protocolErrors, err := meter.Int64Counter(
		"realtime_protocol_errors_total",
		metric.WithDescription("Total number of malformed messages dropped"),
	)
	if err != nil {
		return nil, err
	}

	pollFetches, err := meter.Int64Counter(
		"realtime_poll_fetches_total",
		metric.WithDescription("Total number of polling requests"),
	)
	if err != nil {
		return nil, err
	}

	heartbeatsSent, err := meter.Int64Counter(
		"realtime_heartbeats_sent_total",
		metric.WithDescription("Total number of heartbeat pings sent"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		connectAttempts:  connectAttempts,
		stateTransitions: stateTransitions,
		reconnectDelay:   reconnectDelay,
		messagesReceived: messagesReceived,
		protocolErrors:   protocolErrors,
		pollFetches:      pollFetches,
		heartbeatsSent:   heartbeatsSent,
	}, nil
}

// RecordConnectAttempt records the outcome of a duplex handshake
func (m *Metrics) RecordConnectAttempt(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.connectAttempts.Add(ctx, 1, metric.WithAttributes(outcome(success)))
}

// RecordStateChange records a transition into state over transport
func (m *Metrics) RecordStateChange(ctx context.Context, state State, transport Transport) {
	if m == nil {
		return
	}
	m.stateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", string(state)),
		attribute.String("transport", string(transport)),
	))
}

// RecordReconnectDelay records the delay chosen for a reconnect attempt
func (m *Metrics) RecordReconnectDelay(ctx context.Context, attempt int, delay time.Duration) {
	if m == nil {
		return
	}
	m.reconnectDelay.Record(ctx, delay.Seconds(), metric.WithAttributes(
		attribute.Int("attempt", attempt),
	))
}

// RecordMessage records an update delivered for topic
func (m *Metrics) RecordMessage(ctx context.Context, transport Transport, topic string) {
	if m == nil {
		return
	}
	m.messagesReceived.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transport", string(transport)),
		attribute.String("topic", topic),
	))
}

// RecordProtocolError records a dropped malformed message
func (m *Metrics) RecordProtocolError(ctx context.Context, transport Transport) {
	if m == nil {
		return
	}
	m.protocolErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transport", string(transport)),
	))
}

// RecordPollFetch records one polling request
func (m *Metrics) RecordPollFetch(ctx context.Context, topic string, success bool) {
	if m == nil {
		return
	}
	m.pollFetches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		outcome(success),
	))
}

// RecordHeartbeat records a ping sent
func (m *Metrics) RecordHeartbeat(ctx context.Context) {
	if m == nil {
		return
	}
	m.heartbeatsSent.Add(ctx, 1)
}

func outcome(success bool) attribute.KeyValue {
	if success {
		return attribute.String("outcome", "success")
	}
	return attribute.String("outcome", "failure")
}
