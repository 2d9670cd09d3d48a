// Package checkpoint provides state snapshotting and restoration for the
// spatial stream matcher. A checkpoint captures the matcher's
// declination-bucketed partition windows so a restart can resume
// matching without re-ingesting the full lookback window from the
// detection bus.
package checkpoint

import (
	"time"

	"github.com/google/uuid"
)

// Trigger describes what caused a checkpoint to be created.
type Trigger string

const (
	TriggerManual   Trigger = "manual"   // Explicit operator request
	TriggerPeriodic Trigger = "periodic" // Every N detections processed
	TriggerShutdown Trigger = "shutdown" // Graceful shutdown
)

// Checkpoint represents a point-in-time snapshot of matcher state.
type Checkpoint struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Trigger   Trigger   `json:"trigger"`
	Note      string    `json:"note,omitempty"`

	State *State `json:"state"`

	ByteSize       int64 `json:"byte_size"`
	DetectionCount int   `json:"detection_count"`
	PartitionCount int   `json:"partition_count"`
}

// State holds the matcher's restorable partition windows.
type State struct {
	Partitions []PartitionState `json:"partitions"`
}

// PartitionState is the buffered detection set for one declination
// bucket, plus the high-water MJD already processed for that bucket.
type PartitionState struct {
	Bucket       int64               `json:"bucket"` // floor(dec_deg * 1000)
	HighWaterMJD float64             `json:"high_water_mjd"`
	Detections   []BufferedDetection `json:"detections"`
}

// BufferedDetection is a detection still inside the matcher's active
// window, retained so it keeps participating in spatial joins against
// later arrivals until it ages out.
type BufferedDetection struct {
	DetectionID string    `json:"detection_id"`
	Survey      string    `json:"survey"`
	RADeg       float64   `json:"ra_deg"`
	DecDeg      float64   `json:"dec_deg"`
	MJD         float64   `json:"mjd"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Summary returns a human-readable summary of the checkpoint.
func (c *Checkpoint) Summary() string {
	return c.ID.String()[:8] + " | " +
		c.CreatedAt.Format("2006-01-02 15:04") + " | " +
		string(c.Trigger) + " | " +
		formatCount(c.PartitionCount, "partition") + ", " +
		formatCount(c.DetectionCount, "detection")
}

func formatCount(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return itoa(n) + " " + unit + "s"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
