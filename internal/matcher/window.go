package matcher

import (
	"math"
	"sync"
	"time"

	"github.com/tarxiv/tarxiv/internal/checkpoint"
	"github.com/tarxiv/tarxiv/internal/detection"
)

// decBucketScale is the quantization applied to dec_deg before bucketing
// (floor(dec_deg*1000)), giving a bucket width of 0.001 deg — fine
// enough that the radii this pipeline deals with (tens of arcseconds)
// never span more than a handful of adjacent buckets.
const decBucketScale = 1000.0

// bucketKey returns the declination-band bucket for a given dec_deg.
func bucketKey(decDeg float64) int64 {
	return int64(math.Floor(decDeg * decBucketScale))
}

// bucketSpan returns how many buckets on either side of a detection's own
// bucket must be probed to cover a search radius of radiusArcsec at the
// detection's declination (the projection of RA separation onto the sky
// is cosine-compressed at high declination, but dec separation itself is
// not, so a flat arcsec->bucket conversion is always conservative).
func bucketSpan(radiusArcsec float64) int64 {
	degrees := radiusArcsec / 3600.0
	span := int64(degrees*decBucketScale) + 1
	if span < 1 {
		span = 1
	}
	return span
}

// entry is one buffered detection inside a bucket's ring.
type entry struct {
	ev  detection.DetectionEvent
	mjd float64
}

// Window is an in-memory partitioned map of recent detections, keyed by
// declination bucket, replacing the teacher domain's streaming-SQL join
// with the explicit partitioned-map design REDESIGN FLAGS mandates. Each
// bucket holds a ring of events within [now-W, now]; old events are
// pruned lazily on access rather than by a background sweep.
type Window struct {
	mu      sync.Mutex
	buckets map[int64][]entry
	width   time.Duration
}

// NewWindow creates a Window retaining detections for the given
// lookback duration.
func NewWindow(width time.Duration) *Window {
	return &Window{
		buckets: make(map[int64][]entry),
		width:   width,
	}
}

// candidates returns a copy of every still-live detection in the
// buckets spanning [key-span, key+span], pruning expired entries from
// each bucket it visits as a side effect.
func (w *Window) candidates(key, span int64, now time.Time) []entry {
	cutoff := now.Add(-w.width)
	var out []entry
	for b := key - span; b <= key+span; b++ {
		bucket, ok := w.buckets[b]
		if !ok {
			continue
		}
		live := bucket[:0:0]
		for _, e := range bucket {
			if e.ev.Timestamp.Before(cutoff) {
				continue
			}
			live = append(live, e)
		}
		w.buckets[b] = live
		out = append(out, live...)
	}
	return out
}

// insert appends a detection to its bucket.
func (w *Window) insert(ev detection.DetectionEvent) {
	key := bucketKey(ev.DecDeg)
	mjd := float64(ev.Timestamp.Unix())/86400.0 + 40587.0 // MJD 40587 = Unix epoch
	w.buckets[key] = append(w.buckets[key], entry{ev: ev, mjd: mjd})
}

// Len returns the total number of buffered detections across all
// buckets (for tests and metrics).
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.buckets {
		n += len(b)
	}
	return n
}

// Snapshot serializes the window's contents into a checkpoint.State for
// persistence, implementing checkpoint.StateProvider's payload shape.
func (w *Window) Snapshot() *checkpoint.State {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := &checkpoint.State{}
	for bucket, events := range w.buckets {
		if len(events) == 0 {
			continue
		}
		ps := checkpoint.PartitionState{Bucket: bucket}
		for _, e := range events {
			ps.Detections = append(ps.Detections, checkpoint.BufferedDetection{
				DetectionID: e.ev.ObjID,
				Survey:      string(e.ev.Source),
				RADeg:       e.ev.RADeg,
				DecDeg:      e.ev.DecDeg,
				MJD:         e.mjd,
				ReceivedAt:  e.ev.Timestamp,
			})
			if e.mjd > ps.HighWaterMJD {
				ps.HighWaterMJD = e.mjd
			}
		}
		state.Partitions = append(state.Partitions, ps)
	}
	return state
}

// Restore repopulates the window from a persisted checkpoint.State,
// used on startup to avoid losing in-flight windows across a restart.
// Duplicate emissions after a restore are acceptable per spec's
// at-least-once delivery semantics.
func (w *Window) Restore(state *checkpoint.State) {
	if state == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, ps := range state.Partitions {
		for _, bd := range ps.Detections {
			w.buckets[ps.Bucket] = append(w.buckets[ps.Bucket], entry{
				ev: detection.DetectionEvent{
					ObjID:     bd.DetectionID,
					Source:    detection.Source(bd.Survey),
					RADeg:     bd.RADeg,
					DecDeg:    bd.DecDeg,
					Timestamp: bd.ReceivedAt,
				},
				mjd: bd.MJD,
			})
		}
	}
}
