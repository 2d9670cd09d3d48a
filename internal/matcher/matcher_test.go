package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/tarxiv/tarxiv/internal/detection"
)

func TestHaversineKnownSeparation(t *testing.T) {
	// Two points separated by exactly 1 arcsec of declination at dec=0.
	sep := Haversine(10.0, 0.0, 10.0, 1.0/3600.0)
	if sep < 0.99 || sep > 1.01 {
		t.Errorf("expected ~1 arcsec, got %f", sep)
	}
}

func TestHaversineZeroForIdenticalPoints(t *testing.T) {
	sep := Haversine(123.4, -5.6, 123.4, -5.6)
	if sep > 1e-9 {
		t.Errorf("expected ~0, got %f", sep)
	}
}

func TestMatcherIngestBuffersCrossSurveyPairWithinRadius(t *testing.T) {
	m := New(Config{Window: time.Hour, RadiusArcsec: 5, SinkTopic: "xmatch-candidates"}, nil, nil)

	a := detection.DetectionEvent{ObjID: "ATLAS25aaa", Source: detection.SourceATLAS, RADeg: 10.0, DecDeg: 20.0, Timestamp: time.Now()}
	b := detection.DetectionEvent{ObjID: "ZTF25bbb", Source: detection.SourceZTF, RADeg: 10.0, DecDeg: 20.0 + 1.0/3600.0, Timestamp: time.Now()}

	if err := m.Ingest(context.Background(), a); err != nil {
		t.Fatalf("ingest a: %v", err)
	}
	if err := m.Ingest(context.Background(), b); err != nil {
		t.Fatalf("ingest b: %v", err)
	}
	if m.window.Len() != 2 {
		t.Errorf("expected 2 buffered detections, got %d", m.window.Len())
	}
}

func TestMatcherIgnoresSameSourcePairs(t *testing.T) {
	m := New(Config{Window: time.Hour, RadiusArcsec: 5, SinkTopic: "xmatch-candidates"}, nil, nil)

	a := detection.DetectionEvent{ObjID: "ATLAS25aaa", Source: detection.SourceATLAS, RADeg: 10.0, DecDeg: 20.0, Timestamp: time.Now()}
	b := detection.DetectionEvent{ObjID: "ATLAS25bbb", Source: detection.SourceATLAS, RADeg: 10.0, DecDeg: 20.0, Timestamp: time.Now()}

	_ = m.Ingest(context.Background(), a)
	_ = m.Ingest(context.Background(), b)

	// No crash, no candidate emitted (bus is nil so we can't directly
	// observe; the absence-of-panic plus window size is our signal).
	if m.window.Len() != 2 {
		t.Errorf("expected both same-source detections buffered, got %d", m.window.Len())
	}
}

func TestWindowPrunesExpiredEntries(t *testing.T) {
	w := NewWindow(10 * time.Millisecond)
	w.insert(detection.DetectionEvent{ObjID: "a", Source: detection.SourceATLAS, DecDeg: 1.0, Timestamp: time.Now()})

	time.Sleep(20 * time.Millisecond)

	live := w.candidates(bucketKey(1.0), bucketSpan(5), time.Now())
	if len(live) != 0 {
		t.Errorf("expected expired entry pruned, got %d live", len(live))
	}
}

func TestBucketSpanGrowsWithRadius(t *testing.T) {
	if bucketSpan(1) > bucketSpan(100) {
		t.Error("expected larger radius to require larger or equal span")
	}
}
