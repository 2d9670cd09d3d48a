// Package schema holds the canonical object-metadata and light-curve
// shapes shared by every survey adapter and the fusion/reconciler
// pipelines, along with the static citation-source registry.
//
// Ports the shape of original_source/tarxiv/data_sources.py's
// obj_meta dict and utils.clean_meta.
package schema

import "time"

// ValueWithSource is a scalar field value tagged with the citation
// source that contributed it. ObjectMetadata fields are lists of these
// so that multiple surveys can each contribute their own view without
// overwriting another's.
type ValueWithSource struct {
	Value  any    `json:"value"`
	Source string `json:"source"`
}

// DatedValue extends ValueWithSource with an ISO-8601 date string
// (space-separated, UTC, second precision) for fields like
// discovery_date/reporting_date/latest_detection.
type DatedValue struct {
	Value   any     `json:"value"`
	Date    string  `json:"date,omitempty"`
	MagRate float64 `json:"mag_rate,omitempty"`
	Filter  string  `json:"filter,omitempty"`
	Source  string  `json:"source"`
}

// Identifier names one contributing survey's designation for an
// object.
type Identifier struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// Coord is a sky position contributed by one survey, carried in both
// decimal-degree and sexagesimal form.
type Coord struct {
	RADeg  float64 `json:"ra_deg"`
	DecDeg float64 `json:"dec_deg"`
	RAHMS  string  `json:"ra_hms"`
	DecDMS string  `json:"dec_dms"`
	Source string  `json:"source"`
}

// Timestamp is an instant contributed by one survey (e.g. a discovery
// or reporting time), tagged with its source.
type Timestamp struct {
	Value  time.Time `json:"value"`
	Source string    `json:"source"`
}

// ObjectMetadata is the canonical per-object schema. Every field is a
// list so that independent surveys can each append their own
// contribution without clobbering another's; duplicate
// (value, source) pairs within a field are never retained.
type ObjectMetadata struct {
	Identifiers []Identifier `json:"identifiers"`

	RADeg  []ValueWithSource `json:"ra_deg"`
	DecDeg []ValueWithSource `json:"dec_deg"`
	RAHMS  []ValueWithSource `json:"ra_hms"`
	DecDMS []ValueWithSource `json:"dec_dms"`

	ObjectType     []ValueWithSource `json:"object_type"`
	DiscoveryDate  []ValueWithSource `json:"discovery_date"`
	ReportingDate  []ValueWithSource `json:"reporting_date"`
	ReportingGroup []ValueWithSource `json:"reporting_group"`
	Redshift       []ValueWithSource `json:"redshift"`
	HostName       []ValueWithSource `json:"host_name"`

	PeakMag            []DatedValue `json:"peak_mag"`
	LatestDetection    []DatedValue `json:"latest_detection"`
	LatestNonDetection []DatedValue `json:"latest_nondetection"`

	Sources []CitationSource `json:"sources"`
}

// NewObjectMetadata returns an ObjectMetadata with every field
// initialized to an empty (non-nil) slice, matching the canonical
// schema's starting point before any adapter contributes.
func NewObjectMetadata() ObjectMetadata {
	return ObjectMetadata{
		Identifiers:        []Identifier{},
		RADeg:              []ValueWithSource{},
		DecDeg:             []ValueWithSource{},
		RAHMS:              []ValueWithSource{},
		DecDMS:             []ValueWithSource{},
		ObjectType:         []ValueWithSource{},
		DiscoveryDate:      []ValueWithSource{},
		ReportingDate:      []ValueWithSource{},
		ReportingGroup:     []ValueWithSource{},
		Redshift:           []ValueWithSource{},
		HostName:           []ValueWithSource{},
		PeakMag:            []DatedValue{},
		LatestDetection:    []DatedValue{},
		LatestNonDetection: []DatedValue{},
		Sources:            []CitationSource{},
	}
}

// LightCurveRow is one photometric measurement, either a detection
// (mag/mag_err populated) or a non-detection (limit populated).
type LightCurveRow struct {
	MJD       float64  `json:"mjd"`
	Mag       *float64 `json:"mag,omitempty"`
	MagErr    *float64 `json:"mag_err,omitempty"`
	Limit     *float64 `json:"limit,omitempty"`
	FWHM      *float64 `json:"fwhm,omitempty"`
	Filter    string   `json:"filter"`
	Detection int      `json:"detection"`
	TelUnit   string   `json:"tel_unit"`
	Survey    string   `json:"survey"`
	Night     string   `json:"night,omitempty"`
}

// IsDetection reports whether the row is flagged as a detection
// (Detection == 1); adapters set that flag when normalizing rows.
func (r LightCurveRow) IsDetection() bool {
	return r.Detection == 1
}

// LightCurve is a time-ordered set of rows for one object.
type LightCurve []LightCurveRow

// SurveyMeta is what a survey's Pull contract returns for the meta
// half of fetch_by_coord: a partial ObjectMetadata-shaped payload plus
// the identifier this survey assigned the object.
type SurveyMeta struct {
	Identifier Identifier
	Fields     map[string][]ValueWithSource
}

// CitationSource is a static registry entry describing a contributing
// data source (survey, catalog, or broker).
type CitationSource struct {
	Name      string `json:"name"`
	Bibcode   string `json:"bibcode,omitempty"`
	Reference string `json:"reference,omitempty"`
	Alias     string `json:"alias,omitempty"`
}

// ChangeSummary reports the result of diffing a freshly-built
// ObjectMetadata against the previously persisted version, restricted
// to the fields {identifiers, object_type, host_name, redshift,
// latest_detection}.
type ChangeSummary struct {
	Status    string         `json:"status"` // "new_entry" | "updated_entry"
	Timestamp string         `json:"timestamp"`
	Changes   map[string]any `json:"changes,omitempty"`
}

const (
	StatusNewEntry     = "new_entry"
	StatusUpdatedEntry = "updated_entry"
)

// HasSubstantiveChanges reports whether Changes carries anything
// beyond bookkeeping (status + timestamp), per spec §4.4: "Publish the
// ChangeSummary to the downstream bus only when it carries substantive
// changes."
func (c ChangeSummary) HasSubstantiveChanges() bool {
	return len(c.Changes) > 0
}
