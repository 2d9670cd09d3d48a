package lightcurve

import (
	"context"
	"log/slog"
	"time"
)

// activeObjectsSource is satisfied by *catalog.Store; narrowed to the
// one query Sweeper needs.
type activeObjectsSource interface {
	ActiveObjects(ctx context.Context, activeDays int) ([]string, error)
}

// Sweeper periodically rebuilds every object still within its active
// window, catching survey updates that never triggered a mail alert or
// a reconciler hit — the periodic-sweep entry point named in
// SPEC_FULL.md §10.
type Sweeper struct {
	builder    *Builder
	store      activeObjectsSource
	activeDays int
	interval   time.Duration
	logger     *slog.Logger
}

// NewSweeper builds a Sweeper. activeDays should match the builder's
// configured ObjActiveDays so the sweep and the per-object time window
// agree on what "active" means.
func NewSweeper(builder *Builder, store activeObjectsSource, activeDays int, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{builder: builder, store: store, activeDays: activeDays, interval: interval, logger: logger}
}

// Run blocks, sweeping once immediately and then every interval, until
// ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.sweepOnce(ctx); err != nil {
		s.logger.Error("active-object sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweepOnce(ctx); err != nil {
				s.logger.Error("active-object sweep failed", "error", err)
			}
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) error {
	names, err := s.store.ActiveObjects(ctx, s.activeDays)
	if err != nil {
		return err
	}

	s.logger.Info("sweeping active objects", "count", len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, _, _, err := s.builder.BuildObject(ctx, name); err != nil {
			s.logger.Error("sweep rebuild failed", "obj_name", name, "error", err)
		}
	}
	return nil
}
