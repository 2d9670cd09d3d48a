// Package detection defines the DetectionEvent and MatchCandidate wire
// types shared by every survey adapter, the spatial matcher, and the
// reconciler, plus the Kafka-backed bus that carries them between those
// components.
package detection

import "time"

// Source identifies the survey or broker a detection originated from.
type Source string

const (
	SourceATLAS  Source = "atlas"
	SourceZTF    Source = "ztf"
	SourceASASSN Source = "asas-sn"
	SourceLSST   Source = "lsst"
	SourceTNS    Source = "tns"
	SourceTest   Source = "test"
)

// DetectionEvent is a single survey detection of a transient at a point
// in time and sky position. Immutable once produced.
type DetectionEvent struct {
	ObjID     string    `json:"obj_id"`
	Source    Source    `json:"source"`
	RADeg     float64   `json:"ra_deg"`
	DecDeg    float64   `json:"dec_deg"`
	Timestamp time.Time `json:"timestamp"`
}

// MatchCandidate is the cartesian product of two DetectionEvents from
// distinct surveys that satisfied the matcher's angular-distance join
// predicate. Ephemeral — published once to the hits sink topic and
// consumed by the reconciler.
//
// The ordering invariant ObjID1 < ObjID2 (lexicographic) and
// Source1 != Source2 must hold for every candidate the matcher emits;
// NewMatchCandidate enforces it.
type MatchCandidate struct {
	ObjID1     string    `json:"obj_id_1"`
	Source1    Source    `json:"source_1"`
	RADeg1     float64   `json:"ra_deg_1"`
	DecDeg1    float64   `json:"dec_deg_1"`
	Timestamp1 time.Time `json:"timestamp_1"`

	ObjID2     string    `json:"obj_id_2"`
	Source2    Source    `json:"source_2"`
	RADeg2     float64   `json:"ra_deg_2"`
	DecDeg2    float64   `json:"dec_deg_2"`
	Timestamp2 time.Time `json:"timestamp_2"`

	SeparationArcsec float64 `json:"separation_arcsec"`
}

// NewMatchCandidate builds a MatchCandidate from two detections,
// ordering them so the lexicographically smaller obj_id is always side
// 1. Panics if a, b share a source — callers must have already
// filtered same-survey pairs before calling this.
func NewMatchCandidate(a, b DetectionEvent, separationArcsec float64) MatchCandidate {
	if a.Source == b.Source {
		panic("detection: NewMatchCandidate called with same-survey pair")
	}
	if b.ObjID < a.ObjID {
		a, b = b, a
	}
	return MatchCandidate{
		ObjID1:     a.ObjID,
		Source1:    a.Source,
		RADeg1:     a.RADeg,
		DecDeg1:    a.DecDeg,
		Timestamp1: a.Timestamp,

		ObjID2:     b.ObjID,
		Source2:    b.Source,
		RADeg2:     b.RADeg,
		DecDeg2:    b.DecDeg,
		Timestamp2: b.Timestamp,

		SeparationArcsec: separationArcsec,
	}
}

// Identifiers returns the pair's two obj_ids in canonical order.
func (m MatchCandidate) Identifiers() (string, string) {
	return m.ObjID1, m.ObjID2
}
