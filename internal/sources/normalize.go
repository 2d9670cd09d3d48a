package sources

import (
	"math"
	"sort"
	"strconv"

	"github.com/tarxiv/tarxiv/internal/schema"
)

// normalizeLightCurve applies the magnitude sanity and detection rules
// common to every adapter, per spec.md §4.1:
//   - negative magnitudes with |mag| > 10 are sign-flip artifacts,
//     replaced with their absolute value.
//   - rows whose quality flag is "bad" are dropped before this is
//     ever called (survey-specific, handled by each adapter's parser).
//   - detection is 1 iff both mag and mag_err are finite; 0 if only a
//     limit is present.
func normalizeLightCurve(rows []schema.LightCurveRow) schema.LightCurve {
	out := make(schema.LightCurve, 0, len(rows))
	for _, r := range rows {
		if r.Mag != nil && *r.Mag < -10 {
			abs := math.Abs(*r.Mag)
			r.Mag = &abs
		}

		if r.Mag != nil && r.MagErr != nil && !math.IsNaN(*r.Mag) && !math.IsNaN(*r.MagErr) &&
			!math.IsInf(*r.Mag, 0) && !math.IsInf(*r.MagErr, 0) {
			r.Detection = 1
		} else {
			r.Detection = 0
			r.Mag = nil
			r.MagErr = nil
		}

		out = append(out, r)
	}
	return out
}

// dedupeATLASExposures drops rows sharing the same exposure-derived
// (tel_unit, night, mjd) key, keeping the first occurrence, per
// spec.md §4.1's "For ATLAS, per-exposure duplicates are dropped."
func dedupeATLASExposures(rows schema.LightCurve) schema.LightCurve {
	seen := make(map[string]bool, len(rows))
	out := make(schema.LightCurve, 0, len(rows))
	for _, r := range rows {
		key := r.TelUnit + "|" + r.Night + "|" + formatMJDKey(r.MJD)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func formatMJDKey(mjd float64) string {
	return strconv.FormatFloat(mjd, 'f', 6, 64)
}

// atlasNightFromExpname extracts the night key from an ATLAS exposure
// name: the original_source slices expname[3:8] (after a 3-char unit
// prefix).
func atlasNightFromExpname(expname string) string {
	if len(expname) < 8 {
		return expname
	}
	return expname[3:8]
}

// atlasUnitFromExpname extracts the telescope unit prefix from an
// ATLAS exposure name (expname[:3] in the original).
func atlasUnitFromExpname(expname string) string {
	if len(expname) < 3 {
		return expname
	}
	return expname[:3]
}

// sortByMJD orders light curve rows ascending by MJD, the canonical
// time ordering for LightCurve per spec.md §3.
func sortByMJD(rows schema.LightCurve) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].MJD < rows[j].MJD })
}
