package schema

import (
	"strings"
	"testing"
	"time"
)

func TestFormatUpdatedAtHasNoZSuffix(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	got := formatUpdatedAt(now)
	want := "2025-01-01 12:00:00"
	if got != want {
		t.Fatalf("formatUpdatedAt() = %q, want %q", got, want)
	}
	if strings.ContainsAny(got, "ZT") {
		t.Fatalf("formatUpdatedAt() = %q, must not contain a Z or T", got)
	}
}

func TestNewCrossMatchHitUpdatedAtRendering(t *testing.T) {
	now := time.Date(2025, 6, 15, 3, 4, 5, 0, time.UTC)

	id1 := Identifier{Name: "ATLAS25aaa", Source: "atlas"}
	id2 := Identifier{Name: "ZTF25bbb", Source: "ztf"}
	hit := NewCrossMatchHit(HitCoord{}, HitCoord{}, id1, id2, HitTimestamp{}, HitTimestamp{}, nil, now)

	if hit.UpdatedAt != "2025-06-15 03:04:05" {
		t.Fatalf("UpdatedAt = %q, want %q", hit.UpdatedAt, "2025-06-15 03:04:05")
	}
}
