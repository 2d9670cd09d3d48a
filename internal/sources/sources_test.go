package sources

import (
	"context"
	"testing"

	"github.com/tarxiv/tarxiv/internal/schema"
)

func TestNormalizeLightCurveSignFlip(t *testing.T) {
	bad := -15.2
	badErr := 0.1
	rows := []schema.LightCurveRow{{Mag: &bad, MagErr: &badErr, Filter: "g", Survey: "atlas"}}

	lc := normalizeLightCurve(rows)

	if *lc[0].Mag != 15.2 {
		t.Errorf("expected sign-flip to 15.2, got %f", *lc[0].Mag)
	}
	if lc[0].Detection != 1 {
		t.Errorf("expected detection=1, got %d", lc[0].Detection)
	}
}

func TestNormalizeLightCurveLimitOnly(t *testing.T) {
	limit := 19.5
	rows := []schema.LightCurveRow{{Limit: &limit, Filter: "g", Survey: "ztf"}}

	lc := normalizeLightCurve(rows)

	if lc[0].Detection != 0 {
		t.Errorf("expected detection=0 for limit-only row, got %d", lc[0].Detection)
	}
	if lc[0].Mag != nil {
		t.Error("expected nil mag for non-detection row")
	}
}

func TestDedupeATLASExposures(t *testing.T) {
	rows := schema.LightCurve{
		{MJD: 60000.1, TelUnit: "01a", Night: "12345"},
		{MJD: 60000.1, TelUnit: "01a", Night: "12345"}, // duplicate exposure
		{MJD: 60000.2, TelUnit: "01a", Night: "12346"},
	}

	deduped := dedupeATLASExposures(rows)

	if len(deduped) != 2 {
		t.Errorf("expected 2 rows after dedup, got %d", len(deduped))
	}
}

func TestAtlasNightFromExpname(t *testing.T) {
	if night := atlasNightFromExpname("01a12345o0512c"); night != "12345" {
		t.Errorf("expected night 12345, got %s", night)
	}
}

func TestDummyAdapterFetchByCoordNoStock(t *testing.T) {
	d := NewDummyAdapter()
	_, _, err := d.FetchByCoord(context.Background(), "ATLAS25aaa", 10, 20, 15)
	if err != ErrSurveyMetaMissing {
		t.Errorf("expected ErrSurveyMetaMissing, got %v", err)
	}
}

func TestDummyAdapterFetchByCoordStocked(t *testing.T) {
	d := NewDummyAdapter()
	meta := &schema.SurveyMeta{Identifier: schema.Identifier{Name: "ATLAS25aaa", Source: "test"}}
	lc := schema.LightCurve{{MJD: 60000, Filter: "g", Survey: "test"}}
	d.Stock("ATLAS25aaa", meta, lc)

	gotMeta, gotLC, err := d.FetchByCoord(context.Background(), "ATLAS25aaa", 10, 20, 15)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMeta.Identifier.Name != "ATLAS25aaa" {
		t.Errorf("unexpected identifier: %+v", gotMeta.Identifier)
	}
	if len(gotLC) != 1 {
		t.Errorf("expected 1 light curve row, got %d", len(gotLC))
	}
}
