// Package observe records voxtrip session metrics through the OpenTelemetry
// Metrics API. [InitProvider] bridges them to a Prometheus registry that the
// session owner can expose on /metrics.
//
// Tests should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/rbright/voxtrip"

// Metrics holds the session instruments. All fields are safe for concurrent use.
type Metrics struct {
	// FramesSent counts audio frames handed to the relay connection.
	FramesSent metric.Int64Counter

	// FramesDropped counts frames not sent. Use with attribute "reason".
	FramesDropped metric.Int64Counter

	// Sessions counts finished sessions. Use with attribute "outcome".
	Sessions metric.Int64Counter

	// Errors counts session failures. Use with attribute "kind".
	Errors metric.Int64Counter

	// MalformedMessages counts inbound relay messages that broke the contract.
	MalformedMessages metric.Int64Counter

	// FinalizeDuration is the time from end-of-stream to the relay closing.
	FinalizeDuration metric.Float64Histogram

	// SessionDuration is the time from start to a terminal state.
	SessionDuration metric.Float64Histogram

	// ActiveSessions is 1 while a session owner is running.
	ActiveSessions metric.Int64UpDownCounter
}

var finalizeBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30,
}

var sessionBuckets = []float64{
	1, 2.5, 5, 10, 20, 30, 60, 120, 300,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesSent, err = m.Int64Counter("voxtrip.frames.sent",
		metric.WithDescription("Audio frames handed to the relay connection."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voxtrip.frames.dropped",
		metric.WithDescription("Audio frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("voxtrip.sessions",
		metric.WithDescription("Finished sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Errors, err = m.Int64Counter("voxtrip.errors",
		metric.WithDescription("Session failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.MalformedMessages, err = m.Int64Counter("voxtrip.protocol.malformed",
		metric.WithDescription("Inbound relay messages that did not match the protocol."),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("voxtrip.finalize.duration",
		metric.WithDescription("Time from end-of-stream until the relay closed."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(finalizeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("voxtrip.session.duration",
		metric.WithDescription("Time from session start to a terminal state."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxtrip.active_sessions",
		metric.WithDescription("Number of running capture sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide instance backed by the global
// provider. Call it after [InitProvider] so instruments bind to the exporter.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Discard returns instruments that record nothing.
func Discard() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return m
}

// RecordFrameSent increments the sent-frame counter.
func (m *Metrics) RecordFrameSent(ctx context.Context) {
	m.FramesSent.Add(ctx, 1)
}

// RecordFramesDropped adds n dropped frames for reason.
func (m *Metrics) RecordFramesDropped(ctx context.Context, reason string, n int64) {
	if n <= 0 {
		return
	}
	m.FramesDropped.Add(ctx, n, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordMalformed increments the malformed-message counter.
func (m *Metrics) RecordMalformed(ctx context.Context) {
	m.MalformedMessages.Add(ctx, 1)
}

// RecordError increments the error counter for kind.
func (m *Metrics) RecordError(ctx context.Context, kind string) {
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordFinalize observes one finalize latency.
func (m *Metrics) RecordFinalize(ctx context.Context, d time.Duration) {
	m.FinalizeDuration.Record(ctx, d.Seconds())
}

// SessionStarted marks one session as active.
func (m *Metrics) SessionStarted(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// SessionFinished records the outcome and duration and clears the active mark.
func (m *Metrics) SessionFinished(ctx context.Context, outcome string, d time.Duration) {
	m.ActiveSessions.Add(ctx, -1)
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.SessionDuration.Record(ctx, d.Seconds())
}
