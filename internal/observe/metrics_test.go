package observe_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mtkresearch/breeze-asr-go/internal/observe"
)

// newTestMetrics returns a Metrics instance backed by a manual reader so
// tests can collect and inspect recorded data points.
func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metrics and returns the one with the given name, or
// fails the test when it was never recorded.
func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %q not found", name)
	return metricdata.Metrics{}
}

func TestNewMetrics_CreatesAllInstruments(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m.RecognitionDuration == nil || m.VADDuration == nil || m.BatchDuration == nil {
		t.Error("histogram instrument is nil")
	}
	if m.SegmentsFinalized == nil || m.AudioSeconds == nil || m.SilenceNotices == nil {
		t.Error("counter instrument is nil")
	}
	if m.RecognitionErrors == nil || m.BackpressureRejections == nil {
		t.Error("error counter instrument is nil")
	}
	if m.ActiveSessions == nil || m.HTTPRequestDuration == nil {
		t.Error("gauge or HTTP instrument is nil")
	}
}

func TestRecordSegment_CountsReasonAndAudio(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSegment(ctx, "silence-timeout", 2*time.Second)
	m.RecordSegment(ctx, "silence-timeout", time.Second)
	m.RecordSegment(ctx, "max-length", 4*time.Second)

	segs := collect(t, reader, "breeze.segments.finalized")
	sum, ok := segs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", segs.Data)
	}
	byReason := map[string]int64{}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value("reason"); ok {
			byReason[v.AsString()] = dp.Value
		}
	}
	if byReason["silence-timeout"] != 2 || byReason["max-length"] != 1 {
		t.Errorf("unexpected reason counts: %v", byReason)
	}

	audio := collect(t, reader, "breeze.audio.ingested")
	fsum, ok := audio.Data.(metricdata.Sum[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", audio.Data)
	}
	var total float64
	for _, dp := range fsum.DataPoints {
		total += dp.Value
	}
	if total != 7 {
		t.Errorf("expected 7 audio seconds, got %v", total)
	}
}

func TestRecordRecognition_ErrorIncrementsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRecognition(ctx, "whispercpp", 100*time.Millisecond, nil)
	m.RecordRecognition(ctx, "whispercpp", 200*time.Millisecond, errors.New("boom"))

	dur := collect(t, reader, "breeze.recognition.duration")
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", dur.Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("expected 2 latency samples, got %d", count)
	}

	errs := collect(t, reader, "breeze.recognition.errors")
	sum, ok := errs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", errs.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("expected 1 recognition error, got %d", total)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := observe.DefaultMetrics()
	b := observe.DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics must return the same pointer")
	}
}
