package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		t.Fatalf("metric %s not found", name)
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is %T, want Sum[int64]", name, m.Data)
	}
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestRecordWake(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordWake(ctx, "hey_jarvis")
	m.RecordWake(ctx, "hey_jarvis")
	m.RecordWake(ctx, "computer")

	rm := collect(t, reader)
	if v := counterValue(t, rm, "wakelistener.wake.detections", attribute.String("phrase", "hey_jarvis")); v != 2 {
		t.Errorf("hey_jarvis detections = %d, want 2", v)
	}
}

func TestRecordSession(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSession(ctx, "wake", "completed", 3.2, true)
	m.RecordSession(ctx, "conversation", "no_speech", 0, false)

	rm := collect(t, reader)
	if v := counterValue(t, rm, "wakelistener.sessions",
		attribute.String("trigger", "wake"), attribute.String("outcome", "completed")); v != 1 {
		t.Errorf("completed wake sessions = %d, want 1", v)
	}

	h := findMetric(rm, "wakelistener.utterance.duration")
	if h == nil {
		t.Fatal("duration histogram missing")
	}
	hist := h.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("histogram should hold only the accepted utterance: %+v", hist.DataPoints)
	}
}

func TestRecordScorerError(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordScorerError(context.Background(), "activity")

	rm := collect(t, reader)
	if v := counterValue(t, rm, "wakelistener.scorer.errors", attribute.String("scorer", "activity")); v != 1 {
		t.Errorf("activity errors = %d, want 1", v)
	}
}

func TestNoop(t *testing.T) {
	m := Noop()
	m.RecordWake(context.Background(), "x")
	m.FrameOverflows.Add(context.Background(), 1)
}

func TestMiddlewareRecordsDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}

	rm := collect(t, reader)
	if findMetric(rm, "wakelistener.http.request.duration") == nil {
		t.Error("request duration not recorded")
	}
}
