package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/tarxiv/tarxiv/internal/catalog"
	"github.com/tarxiv/tarxiv/internal/detection"
	"github.com/tarxiv/tarxiv/internal/schema"
	"github.com/tarxiv/tarxiv/internal/sources"
)

func stockedDummy(objNames ...string) *sources.DummyAdapter {
	d := sources.NewDummyAdapter()
	for _, name := range objNames {
		d.Stock(name, &schema.SurveyMeta{Identifier: schema.Identifier{Name: name}}, schema.LightCurve{{MJD: 60000}})
	}
	return d
}

func newTestReconciler(store *catalog.Fake) *Reconciler {
	adapters := map[detection.Source]sources.Adapter{
		detection.SourceATLAS: stockedDummy("ATLAS25aaa"),
		detection.SourceZTF:   stockedDummy("ZTF25bbb"),
	}
	cfg := Config{XMatchIDLen: 6, AssociatedSources: map[detection.Source][]string{
		detection.SourceATLAS: {"atlas"},
		detection.SourceZTF:   {"ztf"},
	}}
	return New(cfg, store, adapters, nil, nil, nil)
}

func sampleCandidate() detection.MatchCandidate {
	a := detection.DetectionEvent{ObjID: "ATLAS25aaa", Source: detection.SourceATLAS, RADeg: 10, DecDeg: 20, Timestamp: time.Now()}
	b := detection.DetectionEvent{ObjID: "ZTF25bbb", Source: detection.SourceZTF, RADeg: 10, DecDeg: 20, Timestamp: time.Now()}
	return detection.NewMatchCandidate(a, b, 1.0)
}

func TestReconcilerMintsNewHit(t *testing.T) {
	store := catalog.NewFake()
	r := newTestReconciler(store)

	if err := r.Handle(context.Background(), sampleCandidate()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var found []string
	_ = store.Transaction(func(tx catalog.Transactor) error {
		ids, _ := tx.FindHitsByIdentifiers("xmatch", "hits", []string{"ATLAS25aaa", "ZTF25bbb"})
		found = ids
		return nil
	})
	if len(found) != 1 {
		t.Fatalf("expected 1 hit, got %d: %v", len(found), found)
	}
	if found[0][:4] != "TXV-" {
		t.Errorf("expected TXV- prefixed id, got %s", found[0])
	}
}

func TestReconcilerExtendsExistingHit(t *testing.T) {
	store := catalog.NewFake()
	r := newTestReconciler(store)

	first := sampleCandidate()
	if err := r.Handle(context.Background(), first); err != nil {
		t.Fatalf("first handle: %v", err)
	}

	// A third detection (LSST) matches ATLAS25aaa again.
	atlasEv := detection.DetectionEvent{ObjID: "ATLAS25aaa", Source: detection.SourceATLAS, RADeg: 10, DecDeg: 20, Timestamp: time.Now()}
	lsstEv := detection.DetectionEvent{ObjID: "LSST25ccc", Source: detection.SourceLSST, RADeg: 10, DecDeg: 20, Timestamp: time.Now()}
	mc := detection.NewMatchCandidate(atlasEv, lsstEv, 1.0)

	r.adapters[detection.SourceLSST] = stockedDummy("LSST25ccc")
	if err := r.Handle(context.Background(), mc); err != nil {
		t.Fatalf("second handle: %v", err)
	}

	var found []string
	_ = store.Transaction(func(tx catalog.Transactor) error {
		ids, _ := tx.FindHitsByIdentifiers("xmatch", "hits", []string{"LSST25ccc"})
		found = ids
		return nil
	})
	if len(found) != 1 {
		t.Fatalf("expected the LSST detection to extend the existing hit, got %v", found)
	}
}

func TestReconcilerDuplicateCrossMatchDoesNotError(t *testing.T) {
	store := catalog.NewFake()
	r := newTestReconciler(store)

	mc := sampleCandidate()
	if err := r.Handle(context.Background(), mc); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	// Replaying the exact same pair should hit the "len(diff)==0" branch
	// and be swallowed, not propagated.
	if err := r.Handle(context.Background(), mc); err != nil {
		t.Fatalf("duplicate handle should not return an error, got: %v", err)
	}
}

func TestBase36RoundTrip(t *testing.T) {
	for _, n := range []uint64{0, 1, 35, 36, 1000, 999999} {
		enc := Base36(n, 6)
		if got := ParseBase36(enc); got != n {
			t.Errorf("Base36(%d) = %q, ParseBase36 back = %d", n, enc, got)
		}
	}
}

func TestBase36ZeroPadsToWidth(t *testing.T) {
	if enc := Base36(5, 6); enc != "000005" {
		t.Errorf("expected zero-padded width 6, got %q", enc)
	}
}
