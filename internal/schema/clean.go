package schema

import "reflect"

// CleanMeta drops every list-valued field left empty after merging,
// so the persisted document only carries fields that some survey
// actually contributed. Ports utils.clean_meta's
// `{k: v for k, v in obj_meta.items() if v != []}`.
func CleanMeta(meta ObjectMetadata) map[string]any {
	out := make(map[string]any)

	add := func(key string, v any) {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice && rv.Len() == 0 {
			return
		}
		out[key] = v
	}

	add("identifiers", meta.Identifiers)
	add("ra_deg", meta.RADeg)
	add("dec_deg", meta.DecDeg)
	add("ra_hms", meta.RAHMS)
	add("dec_dms", meta.DecDMS)
	add("object_type", meta.ObjectType)
	add("discovery_date", meta.DiscoveryDate)
	add("reporting_date", meta.ReportingDate)
	add("reporting_group", meta.ReportingGroup)
	add("redshift", meta.Redshift)
	add("host_name", meta.HostName)
	add("peak_mag", meta.PeakMag)
	add("latest_detection", meta.LatestDetection)
	add("latest_nondetection", meta.LatestNonDetection)
	add("sources", meta.Sources)

	return out
}
