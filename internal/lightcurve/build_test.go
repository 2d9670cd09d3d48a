package lightcurve

import (
	"context"
	"testing"
	"time"

	"github.com/tarxiv/tarxiv/internal/catalog"
	"github.com/tarxiv/tarxiv/internal/detection"
	"github.com/tarxiv/tarxiv/internal/schema"
	"github.com/tarxiv/tarxiv/internal/sources"
)

func f(v float64) *float64 { return &v }

func newTestBuilder(store *catalog.Fake, tns, atlas *sources.DummyAdapter) *Builder {
	cfg := Config{
		ObjPriorDays:  30,
		ObjActiveDays: 180,
		AssociatedSources: map[detection.Source][]string{
			detection.SourceTNS:   {"tns"},
			detection.SourceATLAS: {"atlas"},
		},
	}
	secondary := map[detection.Source]sources.Adapter{detection.SourceATLAS: atlas}
	return NewBuilder(cfg, tns, secondary, store, nil, nil, nil)
}

func stockAnchor(tns *sources.DummyAdapter, objName string, raDeg, decDeg float64, discoveryDate string) {
	tns.Stock(objName, &schema.SurveyMeta{
		Identifier: schema.Identifier{Name: objName, Source: "tns"},
		Fields: map[string][]schema.ValueWithSource{
			"ra_deg":         {{Value: raDeg, Source: "tns"}},
			"dec_deg":        {{Value: decDeg, Source: "tns"}},
			"discovery_date": {{Value: discoveryDate, Source: "tns"}},
		},
	}, nil)
}

func TestBuildObjectAnchorMissingReturnsEmpty(t *testing.T) {
	store := catalog.NewFake()
	tns := sources.NewDummyAdapter()
	atlas := sources.NewDummyAdapter()
	b := newTestBuilder(store, tns, atlas)

	meta, lc, summary, err := b.BuildObject(context.Background(), "2024unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(meta.Identifiers) != 0 || lc != nil || summary.Status != "" {
		t.Fatalf("expected zero values for an anchor miss, got meta=%v lc=%v summary=%v", meta, lc, summary)
	}
}

func TestBuildObjectMergesSecondaryAndPersists(t *testing.T) {
	store := catalog.NewFake()
	tns := sources.NewDummyAdapter()
	atlas := sources.NewDummyAdapter()
	b := newTestBuilder(store, tns, atlas)

	stockAnchor(tns, "2024abc", 10.0, 20.0, "2024-01-01 00:00:00")

	discMJD := timeToMJD(mustParse(t, "2024-01-01 00:00:00"))
	atlas.Stock("2024abc", &schema.SurveyMeta{Identifier: schema.Identifier{Name: "ATLAS24abc", Source: "atlas"}}, schema.LightCurve{
		{MJD: discMJD - 1, Mag: f(18.5), MagErr: f(0.05), Filter: "o", Detection: 1, Survey: "atlas", Night: "n1"},
		{MJD: discMJD + 1, Mag: f(17.8), MagErr: f(0.04), Filter: "o", Detection: 1, Survey: "atlas", Night: "n2"},
		{MJD: discMJD - 5, Limit: f(19.0), Filter: "o", Detection: 0, Survey: "atlas", Night: "n0"},
	})

	meta, lc, summary, err := b.BuildObject(context.Background(), "2024abc")
	if err != nil {
		t.Fatalf("build object: %v", err)
	}
	if len(meta.Identifiers) != 2 {
		t.Fatalf("expected tns + atlas identifiers, got %v", meta.Identifiers)
	}
	if len(lc) != 3 {
		t.Fatalf("expected all 3 rows within the time window, got %d", len(lc))
	}
	if len(meta.PeakMag) != 1 || meta.PeakMag[0].Value.(float64) != 17.8 {
		t.Errorf("expected peak mag 17.8, got %v", meta.PeakMag)
	}
	if summary.Status != schema.StatusNewEntry {
		t.Errorf("expected new_entry status, got %s", summary.Status)
	}

	raw, err := store.Get(context.Background(), "tns", "objects", "2024abc")
	if err != nil || raw == nil {
		t.Fatalf("expected object to be persisted, err=%v raw=%v", err, raw)
	}

	// A second build against the now-persisted record should report
	// updated_entry since a previous version exists (identical fields
	// here produce an empty changes map, but status still reflects that
	// a prior document was found).
	_, _, summary2, err := b.BuildObject(context.Background(), "2024abc")
	if err != nil {
		t.Fatalf("second build object: %v", err)
	}
	if summary2.Status != schema.StatusUpdatedEntry {
		t.Errorf("expected updated_entry on second build, got %s", summary2.Status)
	}
}

func mustParse(t *testing.T, s string) time.Time {
	tm, err := parseFlexibleTime(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return tm
}
