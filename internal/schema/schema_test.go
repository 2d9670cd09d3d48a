package schema

import "testing"

func TestCleanMetaDropsEmptyFields(t *testing.T) {
	meta := NewObjectMetadata()
	meta.Identifiers = append(meta.Identifiers, Identifier{Name: "ATLAS25aaa", Source: "atlas"})
	meta.Redshift = append(meta.Redshift, ValueWithSource{Value: 0.02, Source: "tns"})

	clean := CleanMeta(meta)

	if _, ok := clean["identifiers"]; !ok {
		t.Error("expected identifiers to survive CleanMeta")
	}
	if _, ok := clean["redshift"]; !ok {
		t.Error("expected redshift to survive CleanMeta")
	}
	if _, ok := clean["host_name"]; ok {
		t.Error("expected empty host_name to be dropped")
	}
	if _, ok := clean["object_type"]; ok {
		t.Error("expected empty object_type to be dropped")
	}
}

func TestMergeObjectMetaDedupesValues(t *testing.T) {
	meta := NewObjectMetadata()
	sm := SurveyMeta{
		Identifier: Identifier{Name: "ATLAS25aaa", Source: "atlas"},
		Fields: map[string][]ValueWithSource{
			"object_type": {{Value: "SN Ia", Source: "atlas"}},
		},
	}
	citations := []CitationSource{{Name: "atlas", Bibcode: "2018PASP..130f4505T"}}

	meta = MergeObjectMeta(meta, sm, citations)
	meta = MergeObjectMeta(meta, sm, citations)

	if len(meta.Identifiers) != 1 {
		t.Errorf("expected identifier dedup, got %d", len(meta.Identifiers))
	}
	if len(meta.ObjectType) != 1 {
		t.Errorf("expected object_type dedup, got %d", len(meta.ObjectType))
	}
	if len(meta.Sources) != 1 {
		t.Errorf("expected citation dedup, got %d", len(meta.Sources))
	}
}

func TestDiffObjectMetaNewEntry(t *testing.T) {
	next := NewObjectMetadata()
	next.Identifiers = append(next.Identifiers, Identifier{Name: "ATLAS25aaa", Source: "atlas"})

	summary := DiffObjectMeta(nil, next, false, "2025-01-01 00:00:00")

	if summary.Status != StatusNewEntry {
		t.Errorf("expected new_entry, got %s", summary.Status)
	}
	if !summary.HasSubstantiveChanges() {
		t.Error("expected substantive changes for a fresh identifier")
	}
}

func TestDiffObjectMetaNoChange(t *testing.T) {
	meta := NewObjectMetadata()
	meta.Identifiers = append(meta.Identifiers, Identifier{Name: "ATLAS25aaa", Source: "atlas"})

	summary := DiffObjectMeta(&meta, meta, true, "2025-01-01 00:00:00")

	if summary.Status != StatusUpdatedEntry {
		t.Errorf("expected updated_entry, got %s", summary.Status)
	}
	if summary.HasSubstantiveChanges() {
		t.Error("expected no substantive changes when nothing changed")
	}
}

func TestDeg2SexagesimalFormat(t *testing.T) {
	ra, dec := Deg2Sexagesimal(180.0, -29.999)
	if ra == "" || dec == "" {
		t.Fatal("expected non-empty sexagesimal strings")
	}
	if dec[0] != '-' {
		t.Errorf("expected negative dec sign, got %s", dec)
	}
}
