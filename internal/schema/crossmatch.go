package schema

import "time"

// CrossMatchHit is the document persisted in the `hits` collection by
// the match reconciler, ports new_xmatch_transaction's meta dict.
// Invariants (spec.md §3): every name in Identifiers is unique within
// the document; len(Identifiers) >= 2; every source referenced in
// Identifiers also appears in Sources.
type CrossMatchHit struct {
	Schema      string            `json:"schema"`
	Identifiers []Identifier      `json:"identifiers"`
	Coords      []HitCoord        `json:"coords"`
	Timestamps  []HitTimestamp    `json:"timestamps"`
	Sources     []CitationSource  `json:"sources"`
	UpdatedAt   string            `json:"updated_at"`
}

// HitCoord is one side's coordinate entry within a CrossMatchHit.
type HitCoord struct {
	RADeg  float64 `json:"ra_deg"`
	DecDeg float64 `json:"dec_deg"`
	RAHMS  string  `json:"ra_hms"`
	DecDMS string  `json:"dec_dms"`
	Source string  `json:"source"`
}

// HitTimestamp is one side's detection timestamp within a CrossMatchHit.
type HitTimestamp struct {
	Value  time.Time `json:"value"`
	Source string    `json:"source"`
}

// IdxCounter is the per-year monotonic counter document (`idx`
// collection, keyed by year string) xmatch_id minting increments
// inside the same transaction as the hit insert.
type IdxCounter struct {
	CurrentIdx uint64 `json:"current_idx"`
}

const hitSchemaURL = "https://github.com/astrocatalogs/schema/README.md"

// NewCrossMatchHit builds a fresh CrossMatchHit from two detection
// sides plus their citation sources, stamping UpdatedAt to now.
func NewCrossMatchHit(c1, c2 HitCoord, id1, id2 Identifier, ts1, ts2 HitTimestamp, citations []CitationSource, now time.Time) CrossMatchHit {
	return CrossMatchHit{
		Schema:      hitSchemaURL,
		Identifiers: []Identifier{id1, id2},
		Coords:      []HitCoord{c1, c2},
		Timestamps:  []HitTimestamp{ts1, ts2},
		Sources:     citations,
		UpdatedAt:   formatUpdatedAt(now),
	}
}

// formatUpdatedAt ports the "%Y-%m-%d %H:%M:%S"-shaped timestamp
// new_xmatch_transaction writes: datetime.now() there is naive, so its
// isoformat() carries no "+00:00" offset for the ".replace" to touch —
// the result never gains a "Z" suffix. Matches spec.md's "YYYY-MM-DD
// HH:MM:SS" rendering exactly.
func formatUpdatedAt(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02 15:04:05")
}
