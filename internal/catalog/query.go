package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tarxiv/tarxiv/internal/matcher"
)

// ConeHit is one result of a declination-prefiltered, haversine-ranked
// cone search over the objects catalog.
type ConeHit struct {
	ObjectID         string  `json:"id"`
	RADeg            float64 `json:"ra_deg"`
	DecDeg           float64 `json:"dec_deg"`
	SeparationArcsec float64 `json:"separation_arcsec"`
}

type coneRow struct {
	ID     string  `json:"id"`
	RADeg  float64 `json:"ra_deg"`
	DecDeg float64 `json:"dec_deg"`
}

// ConeSearch finds catalog objects within radiusArcsec of (raDeg,
// decDeg). A N1QL declination-range prefilter (mirroring the
// `WHERE dec_deg BETWEEN ...` idiom xmatch/finders.py's Spark SQL
// uses) narrows the candidate set; final distance evaluation and
// sorting happens in Go via matcher.Haversine so the join formula has
// a single source of truth shared with internal/matcher.
func (s *Store) ConeSearch(ctx context.Context, raDeg, decDeg, radiusArcsec float64) ([]ConeHit, error) {
	decSpan := radiusArcsec/3600.0 + 1e-6
	stmt := fmt.Sprintf(
		"SELECT META(o).id AS id, o.ra_deg AS ra_deg, o.dec_deg AS dec_deg "+
			"FROM `tarxiv`.`tns`.`objects` AS o "+
			"WHERE o.dec_deg BETWEEN %f AND %f",
		decDeg-decSpan, decDeg+decSpan,
	)

	result, err := s.cluster.Query(stmt, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: cone prefilter query: %w", err)
	}
	defer result.Close()

	var hits []ConeHit
	for result.Next() {
		var row coneRow
		if err := result.Row(&row); err != nil {
			return nil, fmt.Errorf("catalog: cone prefilter scan: %w", err)
		}
		sep := matcher.Haversine(raDeg, decDeg, row.RADeg, row.DecDeg)
		if sep <= radiusArcsec {
			hits = append(hits, ConeHit{ObjectID: row.ID, RADeg: row.RADeg, DecDeg: row.DecDeg, SeparationArcsec: sep})
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("catalog: cone prefilter iteration: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].SeparationArcsec < hits[j].SeparationArcsec })
	return hits, nil
}

// ActiveObjects returns the ids of catalog objects with a
// discovery_date or reporting_date within activeDays of now, driving
// internal/lightcurve.Sweeper's periodic re-fetch of still-evolving
// transients.
func (s *Store) ActiveObjects(ctx context.Context, activeDays int) ([]string, error) {
	stmt := fmt.Sprintf(
		"SELECT META(o).id AS id FROM `tarxiv`.`tns`.`objects` AS o "+
			"WHERE ANY d IN o.discovery_date SATISFIES "+
			"STR_TO_MILLIS(d.value) >= (NOW_MILLIS() - (%d * 86400000)) END "+
			"OR ANY r IN o.reporting_date SATISFIES "+
			"STR_TO_MILLIS(r.value) >= (NOW_MILLIS() - (%d * 86400000)) END",
		activeDays, activeDays,
	)

	result, err := s.cluster.Query(stmt, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: active objects query: %w", err)
	}
	defer result.Close()

	var ids []string
	for result.Next() {
		var row struct {
			ID string `json:"id"`
		}
		if err := result.Row(&row); err != nil {
			return nil, fmt.Errorf("catalog: active objects scan: %w", err)
		}
		ids = append(ids, row.ID)
	}
	return ids, result.Err()
}

// FieldPredicate builds an `ANY x IN <field> SATISFIES x.value <op>
// <literal> END` N1QL fragment for ad hoc field queries (e.g. "find
// all objects with object_type containing SN Ia").
//
// For Op == "IN", Literal is a comma-separated list of values
// (e.g. "SN Ia,SN Ib,SN Ic"), rendered as a N1QL list literal. For
// Op == "LIKE", Literal is the full LIKE pattern including any `%`
// wildcards (e.g. "%SN Ia%").
type FieldPredicate struct {
	Field   string // e.g. "object_type"
	Op      string // "=", ">", "<", ">=", "<=", "IN", "LIKE"
	Literal string // value(s) to compare against, quoted as N1QL literal(s)
}

var allowedOps = map[string]bool{
	"=": true, ">": true, "<": true, ">=": true, "<=": true, "IN": true, "LIKE": true,
}

// forbiddenSubstrings blocks the classic N1QL/SQL injection vectors:
// statement terminators and comment delimiters that would let a
// literal escape the SATISFIES clause it's quoted into.
var forbiddenSubstrings = []string{";", "--", "/*", "*/"}

// Validate rejects predicates with disallowed operators or literals
// containing injection-prone substrings, before any query is issued.
func (p FieldPredicate) Validate() error {
	if p.Field == "" {
		return fmt.Errorf("catalog: empty field predicate")
	}
	if !allowedOps[p.Op] {
		return fmt.Errorf("catalog: disallowed operator %q", p.Op)
	}
	for _, bad := range forbiddenSubstrings {
		if strings.Contains(p.Literal, bad) {
			return fmt.Errorf("catalog: literal contains forbidden substring %q", bad)
		}
	}
	return nil
}

// Cursor iterates rows returned by QueryByField.
type Cursor struct {
	rows []json.RawMessage
	pos  int
}

// Next advances the cursor, returning false when exhausted.
func (c *Cursor) Next() bool {
	if c.pos >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

// Row decodes the current row into dst.
func (c *Cursor) Row(dst any) error {
	return json.Unmarshal(c.rows[c.pos-1], dst)
}

// satisfiesClause renders the "x.value <op> <literal>" half of the
// ANY/SATISFIES predicate, handling IN's list-literal and LIKE's
// pattern-literal shapes alongside the plain comparison operators.
func (p FieldPredicate) satisfiesClause() string {
	switch p.Op {
	case "IN":
		parts := strings.Split(p.Literal, ",")
		quoted := make([]string, len(parts))
		for i, v := range parts {
			quoted[i] = fmt.Sprintf("'%s'", strings.TrimSpace(v))
		}
		return fmt.Sprintf("x.value IN [%s]", strings.Join(quoted, ", "))
	case "LIKE":
		return fmt.Sprintf("x.value LIKE '%s'", p.Literal)
	default:
		return fmt.Sprintf("x.value %s '%s'", p.Op, p.Literal)
	}
}

// QueryByField runs a validated FieldPredicate against the objects
// catalog and returns a Cursor over META().id plus the matching field
// array element.
func (s *Store) QueryByField(ctx context.Context, p FieldPredicate) (*Cursor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(
		"SELECT META(o).id AS id FROM `tarxiv`.`tns`.`objects` AS o "+
			"WHERE ANY x IN o.`%s` SATISFIES %s END",
		p.Field, p.satisfiesClause(),
	)

	result, err := s.cluster.Query(stmt, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: field query: %w", err)
	}
	defer result.Close()

	var rows []json.RawMessage
	for result.Next() {
		var row json.RawMessage
		if err := result.Row(&row); err != nil {
			return nil, fmt.Errorf("catalog: field query scan: %w", err)
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("catalog: field query iteration: %w", err)
	}

	return &Cursor{rows: rows}, nil
}
