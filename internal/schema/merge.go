package schema

// MergeObjectMeta folds one adapter's SurveyMeta contribution into an
// accumulating ObjectMetadata, appending the adapter's citation
// sources and each contributed field value. Ports
// data_sources.py's Survey.update_object_meta.
//
// Duplicate (value, source) pairs are never appended twice, per
// spec's "Field lists never contain duplicate source+value pairs."
func MergeObjectMeta(meta ObjectMetadata, sm SurveyMeta, citations []CitationSource) ObjectMetadata {
	meta.Identifiers = appendIdentifier(meta.Identifiers, sm.Identifier)

	for _, c := range citations {
		meta.Sources = appendCitation(meta.Sources, c)
	}

	for field, values := range sm.Fields {
		switch field {
		case "ra_deg":
			meta.RADeg = appendValues(meta.RADeg, values)
		case "dec_deg":
			meta.DecDeg = appendValues(meta.DecDeg, values)
		case "ra_hms":
			meta.RAHMS = appendValues(meta.RAHMS, values)
		case "dec_dms":
			meta.DecDMS = appendValues(meta.DecDMS, values)
		case "object_type":
			meta.ObjectType = appendValues(meta.ObjectType, values)
		case "discovery_date":
			meta.DiscoveryDate = appendValues(meta.DiscoveryDate, values)
		case "reporting_date":
			meta.ReportingDate = appendValues(meta.ReportingDate, values)
		case "reporting_group":
			meta.ReportingGroup = appendValues(meta.ReportingGroup, values)
		case "redshift":
			meta.Redshift = appendValues(meta.Redshift, values)
		case "host_name":
			meta.HostName = appendValues(meta.HostName, values)
		}
	}

	return meta
}

func appendValues(dst []ValueWithSource, add []ValueWithSource) []ValueWithSource {
	for _, v := range add {
		dup := false
		for _, existing := range dst {
			if existing.Source == v.Source && existing.Value == v.Value {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

func appendIdentifier(dst []Identifier, id Identifier) []Identifier {
	if id.Name == "" {
		return dst
	}
	for _, existing := range dst {
		if existing.Name == id.Name && existing.Source == id.Source {
			return dst
		}
	}
	return append(dst, id)
}

func appendCitation(dst []CitationSource, c CitationSource) []CitationSource {
	for _, existing := range dst {
		if existing.Name == c.Name {
			return dst
		}
	}
	return append(dst, c)
}
