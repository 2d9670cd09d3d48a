package schema

import (
	"fmt"
	"reflect"
)

// diffedFields is the restricted field set spec §4.4 step 6 diffs:
// "restricted to the fields {identifiers, object_type, host_name,
// redshift, latest_detection}."
var diffedFields = []string{"identifiers", "object_type", "host_name", "redshift", "latest_detection"}

// DiffObjectMeta structurally diffs prev (the stored ObjectMetadata, or
// the zero value if none was stored) against next, restricted to the
// fields {identifiers, object_type, host_name, redshift,
// latest_detection}. Additions and value changes are collected;
// reorderings are ignored. now is the ISO-8601 timestamp to stamp the
// summary with.
//
// Replaces deepdiff's structural diff in the original pipeline with an
// explicit field-wise comparison, since the restricted field set is
// small and fixed.
func DiffObjectMeta(prev *ObjectMetadata, next ObjectMetadata, hadPrev bool, now string) ChangeSummary {
	status := StatusUpdatedEntry
	if !hadPrev {
		status = StatusNewEntry
	}

	changes := map[string]any{}

	var prevVal ObjectMetadata
	if prev != nil {
		prevVal = *prev
	}

	if added := diffIdentifiers(prevVal.Identifiers, next.Identifiers); len(added) > 0 {
		changes["identifiers"] = added
	}
	if d, ok := diffValueList(prevVal.ObjectType, next.ObjectType); ok {
		changes["object_type"] = d
	}
	if d, ok := diffValueList(prevVal.HostName, next.HostName); ok {
		changes["host_name"] = d
	}
	if d, ok := diffValueList(prevVal.Redshift, next.Redshift); ok {
		changes["redshift"] = d
	}
	if d, ok := diffDatedList(prevVal.LatestDetection, next.LatestDetection); ok {
		changes["latest_detection"] = d
	}

	return ChangeSummary{
		Status:    status,
		Timestamp: now,
		Changes:   changes,
	}
}

func diffIdentifiers(prev, next []Identifier) []Identifier {
	var added []Identifier
	for _, n := range next {
		found := false
		for _, p := range prev {
			if p.Name == n.Name && p.Source == n.Source {
				found = true
				break
			}
		}
		if !found {
			added = append(added, n)
		}
	}
	return added
}

func diffValueList(prev, next []ValueWithSource) ([]ValueWithSource, bool) {
	var added []ValueWithSource
	for _, n := range next {
		found := false
		for _, p := range prev {
			if p.Source == n.Source && fmt.Sprint(p.Value) == fmt.Sprint(n.Value) {
				found = true
				break
			}
		}
		if !found {
			added = append(added, n)
		}
	}
	return added, len(added) > 0
}

func diffDatedList(prev, next []DatedValue) ([]DatedValue, bool) {
	if reflect.DeepEqual(prev, next) {
		return nil, false
	}

	var added []DatedValue
	for _, n := range next {
		found := false
		for _, p := range prev {
			if p.Source == n.Source && p.Filter == n.Filter && fmt.Sprint(p.Value) == fmt.Sprint(n.Value) {
				found = true
				break
			}
		}
		if !found {
			added = append(added, n)
		}
	}
	return added, len(added) > 0
}
