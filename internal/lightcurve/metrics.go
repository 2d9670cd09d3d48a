package lightcurve

import (
	"sort"

	"github.com/tarxiv/tarxiv/internal/schema"
)

// DerivedMetrics computes peak_mag, latest_detection (with mag_rate),
// and latest_nondetection, grouped by (filter, survey), porting
// data_sources.py's append_dynamic_values. The survey=="atlas" nightly
// -median mag_rate branch is preserved verbatim in meaning — not
// generalized to other surveys — per the REDESIGN FLAGS' open
// question (DESIGN.md records the decision).
func DerivedMetrics(lc schema.LightCurve) (peakMag, latestDetection, latestNonDetection []schema.DatedValue) {
	if len(lc) == 0 {
		return nil, nil, nil
	}

	type groupKey struct{ filter, survey string }
	groups := make(map[groupKey][]schema.LightCurveRow)
	var order []groupKey
	for _, row := range lc {
		k := groupKey{row.Filter, row.Survey}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], row)
	}

	for _, k := range order {
		rows := groups[k]

		var detections, nonDetections []schema.LightCurveRow
		for _, r := range rows {
			if r.IsDetection() {
				detections = append(detections, r)
			} else {
				nonDetections = append(nonDetections, r)
			}
		}

		if len(detections) > 0 {
			peak := detections[0]
			for _, r := range detections[1:] {
				if r.Mag != nil && (peak.Mag == nil || *r.Mag < *peak.Mag) {
					peak = r
				}
			}
			if peak.Mag != nil {
				peakMag = append(peakMag, schema.DatedValue{
					Value:  *peak.Mag,
					Date:   formatMJDDate(peak.MJD),
					Filter: k.filter,
					Source: peak.Survey,
				})
			}

			working := append([]schema.LightCurveRow(nil), detections...)
			if len(nonDetections) > 0 {
				working = appendRisingFromBelowLimit(working, nonDetections)
			}
			working = dedupByMJD(working)
			sort.Slice(working, func(i, j int) bool { return working[i].MJD < working[j].MJD })

			recent := working[len(working)-1]
			var rate *float64
			if k.survey == "atlas" {
				rate = atlasNightlyRate(working)
			} else {
				rate = pointwiseRate(working)
			}
			if recent.Mag != nil {
				dv := schema.DatedValue{
					Value:  *recent.Mag,
					Date:   formatMJDDate(recent.MJD),
					Filter: k.filter,
					Source: recent.Survey,
				}
				if rate != nil {
					dv.MagRate = *rate
				}
				latestDetection = append(latestDetection, dv)
			}
		}

		if len(nonDetections) > 0 {
			nondet := nonDetections[0]
			for _, r := range nonDetections[1:] {
				if r.MJD > nondet.MJD {
					nondet = r
				}
			}
			if nondet.Limit != nil {
				latestNonDetection = append(latestNonDetection, schema.DatedValue{
					Value:  *nondet.Limit,
					Date:   formatMJDDate(nondet.MJD),
					Filter: k.filter,
					Source: nondet.Survey,
				})
			}
		}
	}

	return peakMag, latestDetection, latestNonDetection
}

// appendRisingFromBelowLimit prepends the most recent non-detection
// that occurred before the earliest detection and whose limit is
// fainter than that detection's magnitude — i.e. a real rise from
// below the detection limit — as a synthetic detection row so the
// mag_rate calculation below picks it up. Ports the
// "valid_non_dets"/earliest_det block of append_dynamic_values.
func appendRisingFromBelowLimit(detections, nonDetections []schema.LightCurveRow) []schema.LightCurveRow {
	earliest := detections[0]
	for _, r := range detections[1:] {
		if r.MJD < earliest.MJD {
			earliest = r
		}
	}
	if earliest.Mag == nil {
		return detections
	}

	var best *schema.LightCurveRow
	for i := range nonDetections {
		nd := nonDetections[i]
		if nd.Limit == nil {
			continue
		}
		if nd.MJD <= earliest.MJD && *nd.Limit >= *earliest.Mag {
			if best == nil || nd.MJD > best.MJD {
				ndCopy := nd
				best = &ndCopy
			}
		}
	}
	if best == nil {
		return detections
	}

	synthetic := *best
	synthetic.Mag = best.Limit
	synthetic.Detection = 1
	return append(detections, synthetic)
}

func dedupByMJD(rows []schema.LightCurveRow) []schema.LightCurveRow {
	seen := make(map[float64]bool, len(rows))
	out := make([]schema.LightCurveRow, 0, len(rows))
	for _, r := range rows {
		if seen[r.MJD] {
			continue
		}
		seen[r.MJD] = true
		out = append(out, r)
	}
	return out
}

// pointwiseRate returns the magnitude rate of the last row relative to
// the second-to-last, or nil if there is only one row. Ports the
// non-ATLAS branch: `-(mag.diff() / mjd.diff())`.
func pointwiseRate(rows []schema.LightCurveRow) *float64 {
	if len(rows) < 2 {
		return nil
	}
	last := rows[len(rows)-1]
	prev := rows[len(rows)-2]
	if last.Mag == nil || prev.Mag == nil || last.MJD == prev.MJD {
		return nil
	}
	rate := -(*last.Mag - *prev.Mag) / (last.MJD - prev.MJD)
	return &rate
}

// atlasNightlyRate computes the last row's mag_rate from per-night
// median mjd/mag diffs, porting the survey=="atlas" branch of
// append_dynamic_values.
func atlasNightlyRate(rows []schema.LightCurveRow) *float64 {
	type night struct {
		key        string
		medianMJD  float64
		medianMag  float64
	}

	byNight := make(map[string][]schema.LightCurveRow)
	var nightOrder []string
	for _, r := range rows {
		if _, ok := byNight[r.Night]; !ok {
			nightOrder = append(nightOrder, r.Night)
		}
		byNight[r.Night] = append(byNight[r.Night], r)
	}

	nights := make([]night, 0, len(nightOrder))
	for _, key := range nightOrder {
		group := byNight[key]
		mjds := make([]float64, 0, len(group))
		mags := make([]float64, 0, len(group))
		for _, r := range group {
			mjds = append(mjds, r.MJD)
			if r.Mag != nil {
				mags = append(mags, *r.Mag)
			}
		}
		if len(mags) == 0 {
			continue
		}
		nights = append(nights, night{key: key, medianMJD: median(mjds), medianMag: median(mags)})
	}
	sort.Slice(nights, func(i, j int) bool { return nights[i].medianMJD < nights[j].medianMJD })

	if len(nights) < 2 {
		return nil
	}
	last := nights[len(nights)-1]
	prev := nights[len(nights)-2]
	if last.medianMJD == prev.medianMJD {
		return nil
	}
	rate := -(last.medianMag - prev.medianMag) / (last.medianMJD - prev.medianMJD)
	return &rate
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
