package catalog

import (
	"context"
	"testing"
)

func TestFieldPredicateValidateRejectsInjection(t *testing.T) {
	cases := []string{"SN Ia'; DROP TABLE hits; --", "foo/*comment*/bar", "foo--bar"}
	for _, lit := range cases {
		p := FieldPredicate{Field: "object_type", Op: "=", Literal: lit}
		if err := p.Validate(); err == nil {
			t.Errorf("expected rejection for literal %q", lit)
		}
	}
}

func TestFieldPredicateValidateRejectsBadOp(t *testing.T) {
	p := FieldPredicate{Field: "object_type", Op: "!=", Literal: "SN Ia"}
	if err := p.Validate(); err == nil {
		t.Error("expected rejection for disallowed operator")
	}
}

func TestFieldPredicateValidateAcceptsClean(t *testing.T) {
	p := FieldPredicate{Field: "object_type", Op: "=", Literal: "SN Ia"}
	if err := p.Validate(); err != nil {
		t.Errorf("unexpected rejection: %v", err)
	}
}

func TestFieldPredicateValidateAcceptsInAndLike(t *testing.T) {
	cases := []FieldPredicate{
		{Field: "object_type", Op: "IN", Literal: "SN Ia,SN Ib,SN Ic"},
		{Field: "object_type", Op: "LIKE", Literal: "%SN Ia%"},
	}
	for _, p := range cases {
		if err := p.Validate(); err != nil {
			t.Errorf("unexpected rejection for op %q: %v", p.Op, err)
		}
	}
}

func TestSatisfiesClauseRendersInAsListLiteral(t *testing.T) {
	p := FieldPredicate{Field: "object_type", Op: "IN", Literal: "SN Ia,SN Ib"}
	got := p.satisfiesClause()
	want := "x.value IN ['SN Ia', 'SN Ib']"
	if got != want {
		t.Errorf("satisfiesClause() = %q, want %q", got, want)
	}
}

func TestSatisfiesClauseRendersLikePattern(t *testing.T) {
	p := FieldPredicate{Field: "object_type", Op: "LIKE", Literal: "%SN Ia%"}
	got := p.satisfiesClause()
	want := "x.value LIKE '%SN Ia%'"
	if got != want {
		t.Errorf("satisfiesClause() = %q, want %q", got, want)
	}
}

func TestFakeUpsertGetRoundTrip(t *testing.T) {
	f := NewFake()
	type doc struct {
		Name string `json:"name"`
	}
	if err := f.Upsert(context.Background(), "tns", "objects", "ATLAS25aaa", doc{Name: "ATLAS25aaa"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	raw, err := f.Get(context.Background(), "tns", "objects", "ATLAS25aaa")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if raw == nil {
		t.Fatal("expected document, got nil")
	}
}

func TestFakeGetMissingReturnsNilNil(t *testing.T) {
	f := NewFake()
	raw, err := f.Get(context.Background(), "tns", "objects", "missing")
	if err != nil || raw != nil {
		t.Errorf("expected (nil, nil) for missing doc, got (%v, %v)", raw, err)
	}
}

func TestFakeConeSearchFiltersByRadius(t *testing.T) {
	f := NewFake()
	type doc struct {
		RADeg  float64 `json:"ra_deg"`
		DecDeg float64 `json:"dec_deg"`
	}
	_ = f.Upsert(context.Background(), "tns", "objects", "near", doc{RADeg: 10.0, DecDeg: 20.0})
	_ = f.Upsert(context.Background(), "tns", "objects", "far", doc{RADeg: 100.0, DecDeg: -50.0})

	hits, err := f.ConeSearch(10.0, 20.0, 5)
	if err != nil {
		t.Fatalf("cone search: %v", err)
	}
	if len(hits) != 1 || hits[0].ObjectID != "near" {
		t.Errorf("expected only 'near' hit, got %+v", hits)
	}
}

func TestFakeTransactionFindHitsByIdentifiers(t *testing.T) {
	f := NewFake()
	hit := map[string]any{
		"identifiers": []map[string]string{{"name": "ATLAS25aaa", "source": "atlas"}},
	}
	_ = f.Upsert(context.Background(), "xmatch", "hits", "TXV-2026-000001", hit)

	var found []string
	err := f.Transaction(func(tx Transactor) error {
		ids, err := tx.FindHitsByIdentifiers("xmatch", "hits", []string{"ATLAS25aaa", "ZTF25bbb"})
		found = ids
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if len(found) != 1 || found[0] != "TXV-2026-000001" {
		t.Errorf("expected to find TXV-2026-000001, got %v", found)
	}
}
