// Package matcher implements the spatial stream matcher: it consumes
// DetectionEvents from every survey adapter and emits MatchCandidates
// for pairs of detections from different surveys that land within a
// configurable radius of one another, inside a rolling time window.
package matcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tarxiv/tarxiv/internal/checkpoint"
	"github.com/tarxiv/tarxiv/internal/detection"
)

// Config configures the matcher's join predicate.
type Config struct {
	Window       time.Duration // lookback window W
	RadiusArcsec float64       // R_arcsec
	SinkTopic    string        // kafka topic match candidates are published to
}

// Matcher folds incoming DetectionEvents into a declination-bucketed
// Window and emits MatchCandidates to a Bus for every pair that
// satisfies the join predicate (different survey, within radius, within
// the lookback window).
type Matcher struct {
	cfg    Config
	window *Window
	bus    *detection.Bus
	logger *slog.Logger

	mu         sync.Mutex
	processed  int
	checkpoint *checkpoint.Checkpointer
}

// New creates a Matcher. bus may be nil (as in tests); candidates are
// then computed but not published anywhere.
func New(cfg Config, bus *detection.Bus, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		cfg:    cfg,
		window: NewWindow(cfg.Window),
		bus:    bus,
		logger: logger,
	}
}

// UseCheckpointer wires a checkpointer for periodic/shutdown snapshots
// and restores any persisted state immediately.
func (m *Matcher) UseCheckpointer(cp *checkpoint.Checkpointer) error {
	m.checkpoint = cp
	cp.SetProvider(checkpoint.StateProviderFunc(m.CheckpointState))

	latest, err := cp.Latest()
	if err != nil {
		return err
	}
	if latest != nil {
		m.window.Restore(latest.State)
		m.logger.Info("matcher restored window from checkpoint",
			"partitions", latest.PartitionCount, "detections", latest.DetectionCount)
	}
	return nil
}

// CheckpointState implements checkpoint.StateProvider.
func (m *Matcher) CheckpointState() (*checkpoint.State, error) {
	return m.window.Snapshot(), nil
}

// Ingest folds a single detection into the window, probes neighboring
// buckets for partner detections from other surveys, and emits a
// MatchCandidate for every pair satisfying the join predicate. The
// incoming detection is inserted into its own bucket after the probe so
// it cannot match itself.
func (m *Matcher) Ingest(ctx context.Context, ev detection.DetectionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	key := bucketKey(ev.DecDeg)
	span := bucketSpan(m.cfg.RadiusArcsec)

	partners := m.window.candidates(key, span, now)
	for _, p := range partners {
		if p.ev.Source == ev.Source {
			continue
		}
		sep := Haversine(ev.RADeg, ev.DecDeg, p.ev.RADeg, p.ev.DecDeg)
		if sep > m.cfg.RadiusArcsec {
			continue
		}

		mc := detection.NewMatchCandidate(ev, p.ev, sep)
		if m.bus != nil {
			if err := m.bus.PublishCandidate(m.cfg.SinkTopic, mc); err != nil {
				m.logger.Error("publish match candidate failed",
					"obj_id_1", mc.ObjID1, "obj_id_2", mc.ObjID2, "error", err)
			}
		}
	}

	m.window.insert(ev)

	m.processed++
	if m.checkpoint != nil {
		m.checkpoint.OnDetection()
	}

	return ctx.Err()
}

// Run drains detections from in, calling Ingest for each, until ctx is
// cancelled or in is closed. On cancellation it takes a final shutdown
// checkpoint before returning, ensuring in-flight windows are flushed
// cleanly (ports the teacher's cancellable long-running loop pattern
// from internal/email/poller.go and internal/mqtt/publisher.go).
func (m *Matcher) Run(ctx context.Context, in <-chan detection.DetectionEvent) error {
	for {
		select {
		case <-ctx.Done():
			m.flushShutdown()
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				m.flushShutdown()
				return nil
			}
			if err := m.Ingest(ctx, ev); err != nil && err != context.Canceled {
				m.logger.Error("ingest failed", "obj_id", ev.ObjID, "error", err)
			}
		}
	}
}

func (m *Matcher) flushShutdown() {
	if m.checkpoint == nil {
		return
	}
	if _, err := m.checkpoint.CreateShutdown(); err != nil {
		m.logger.Error("shutdown checkpoint failed", "error", err)
	}
}
