// Package observe exposes the listener's OpenTelemetry metrics. A Prometheus
// exporter bridge (see InitProvider) makes them scrapeable on /metrics.
// Tests should build Metrics with NewMetrics over their own provider.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/good-listener/wakelistener"

// Metrics holds the metric instruments. The underlying OTel types are safe
// for concurrent use.
type Metrics struct {
	// WakeDetections counts triggers by attribute.String("phrase", ...).
	WakeDetections metric.Int64Counter

	// Sessions counts recording sessions by trigger and outcome.
	Sessions metric.Int64Counter

	// UtteranceDuration records the length of accepted utterances.
	UtteranceDuration metric.Float64Histogram

	FrameOverflows metric.Int64Counter

	// ScorerErrors counts scoring failures by attribute.String("scorer", ...).
	ScorerErrors metric.Int64Counter

	PersistErrors metric.Int64Counter

	// EngineState is 0 idle, 1 recording, 2 conversation window.
	EngineState metric.Int64Gauge

	HTTPRequestDuration metric.Float64Histogram
}

// utteranceBuckets are in seconds, up to the recording cap.
var utteranceBuckets = []float64{0.5, 1, 2, 3, 5, 10, 20, 30, 60, 120}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.WakeDetections, err = m.Int64Counter("wakelistener.wake.detections",
		metric.WithDescription("Wake phrase detections by phrase."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("wakelistener.sessions",
		metric.WithDescription("Recording sessions by trigger and outcome."),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("wakelistener.utterance.duration",
		metric.WithDescription("Duration of accepted utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(utteranceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FrameOverflows, err = m.Int64Counter("wakelistener.frame.overflows",
		metric.WithDescription("Frames lost to input overflow."),
	); err != nil {
		return nil, err
	}
	if met.ScorerErrors, err = m.Int64Counter("wakelistener.scorer.errors",
		metric.WithDescription("Scoring failures by scorer."),
	); err != nil {
		return nil, err
	}
	if met.PersistErrors, err = m.Int64Counter("wakelistener.persist.errors",
		metric.WithDescription("Utterances that could not be persisted."),
	); err != nil {
		return nil, err
	}
	if met.EngineState, err = m.Int64Gauge("wakelistener.engine.state",
		metric.WithDescription("Capture engine state: 0 idle, 1 recording, 2 conversation window."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("wakelistener.http.request.duration",
		metric.WithDescription("Status server request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Noop returns Metrics that record nothing.
func Noop() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return m
}

// RecordWake counts a wake detection.
func (m *Metrics) RecordWake(ctx context.Context, phrase string) {
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(attribute.String("phrase", phrase)))
}

// RecordSession counts a finished session and, when accepted, its duration.
func (m *Metrics) RecordSession(ctx context.Context, trigger, outcome string, seconds float64, accepted bool) {
	m.Sessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("outcome", outcome),
	))
	if accepted {
		m.UtteranceDuration.Record(ctx, seconds)
	}
}

// RecordScorerError counts a scoring failure.
func (m *Metrics) RecordScorerError(ctx context.Context, scorer string) {
	m.ScorerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("scorer", scorer)))
}
