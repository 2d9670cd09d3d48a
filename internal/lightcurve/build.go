// Package lightcurve fuses one object's per-survey contributions into
// the canonical schema.ObjectMetadata/LightCurve pair and persists the
// result, porting original_source/tarxiv/pipeline.py's
// TNSPipeline.get_object/upsert_object and data_sources.py's
// append_dynamic_values into Go.
package lightcurve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tarxiv/tarxiv/internal/config"
	"github.com/tarxiv/tarxiv/internal/detection"
	"github.com/tarxiv/tarxiv/internal/notify"
	"github.com/tarxiv/tarxiv/internal/schema"
	"github.com/tarxiv/tarxiv/internal/sources"
)

const (
	scopeTNS            = "tns"
	collectionObjects   = "objects"
	collectionLightCurves = "lightcurves"
)

// secondaryOrder fixes the fusion order of the non-anchor surveys so
// that MergeObjectMeta's field lists come out deterministic run to
// run, matching the original's fixed atlas/ztf/asas_sn call sequence.
var secondaryOrder = []detection.Source{detection.SourceATLAS, detection.SourceZTF, detection.SourceASASSN}

// objectStore is the persistence surface BuildObject needs — satisfied
// by both *catalog.Store and *catalog.Fake.
type objectStore interface {
	Get(ctx context.Context, scope, collection, key string) (json.RawMessage, error)
	Upsert(ctx context.Context, scope, collection, key string, doc any) error
}

// Config carries the time-window and citation parameters BuildObject
// needs, ported from config.yml's tns block and per-survey
// associated_sources lists.
type Config struct {
	ObjPriorDays      int // P: how far before discovery_date photometry is kept
	ObjActiveDays     int // A: how far after discovery_date photometry is kept
	AssociatedSources map[detection.Source][]string
}

// Builder assembles and persists canonical object records for one TNS
// anchor name at a time.
type Builder struct {
	cfg       Config
	tns       sources.Adapter
	secondary map[detection.Source]sources.Adapter
	store     objectStore
	registry  *schema.Registry
	notifier  *notify.Publisher
	logger    *slog.Logger
}

// NewBuilder wires a Builder. secondary need not contain every
// detection.Source — any survey absent from the map is simply skipped
// during fusion.
func NewBuilder(cfg Config, tns sources.Adapter, secondary map[detection.Source]sources.Adapter, store objectStore, registry *schema.Registry, notifier *notify.Publisher, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{cfg: cfg, tns: tns, secondary: secondary, store: store, registry: registry, notifier: notifier, logger: logger}
}

// NewConfigFromTNS adapts a config.TNSConfig plus the per-survey
// associated_sources blocks into a lightcurve.Config.
func NewConfigFromTNS(tnsCfg config.TNSConfig, assoc map[detection.Source][]string) Config {
	return Config{ObjPriorDays: tnsCfg.ObjPriorDays, ObjActiveDays: tnsCfg.ObjActiveDays, AssociatedSources: assoc}
}

type pullResult struct {
	source detection.Source
	meta   *schema.SurveyMeta
	lc     schema.LightCurve
	err    error
}

// BuildObject anchors on the TNS adapter for primaryName, fans out to
// the secondary survey adapters, fuses and time-windows the result,
// diffs it against the previously persisted record, persists the new
// record, and publishes a change notice when the diff is substantive.
// An anchor miss (TNS has never heard of primaryName) returns empty
// zero values and a nil error, porting get_object's `return {}, {}`.
func (b *Builder) BuildObject(ctx context.Context, primaryName string) (schema.ObjectMetadata, schema.LightCurve, schema.ChangeSummary, error) {
	tnsMeta, _, err := b.tns.FetchByCoord(ctx, primaryName, 0, 0, 0)
	if err != nil && err != sources.ErrSurveyLightCurveMissing {
		if err == sources.ErrSurveyMetaMissing {
			return schema.ObjectMetadata{}, nil, schema.ChangeSummary{}, nil
		}
		return schema.ObjectMetadata{}, nil, schema.ChangeSummary{}, fmt.Errorf("lightcurve: tns fetch %s: %w", primaryName, err)
	}
	if tnsMeta == nil {
		return schema.ObjectMetadata{}, nil, schema.ChangeSummary{}, nil
	}

	raDeg, decDeg, ok := anchorCoords(tnsMeta)
	if !ok {
		return schema.ObjectMetadata{}, nil, schema.ChangeSummary{}, fmt.Errorf("lightcurve: tns meta for %s missing coordinates", primaryName)
	}

	results := b.fetchSecondary(ctx, primaryName, raDeg, decDeg)

	meta := schema.NewObjectMetadata()
	meta = schema.MergeObjectMeta(meta, *tnsMeta, b.citationsFor(detection.SourceTNS))

	var lc schema.LightCurve
	for _, src := range secondaryOrder {
		res, ok := results[src]
		if !ok || res.err != nil {
			continue
		}
		if res.meta != nil {
			meta = schema.MergeObjectMeta(meta, *res.meta, b.citationsFor(src))
		}
		lc = append(lc, res.lc...)
	}

	sanitizeMagnitudes(lc)

	discMJD, hasDisc := discoveryMJD(tnsMeta)
	if hasDisc {
		lc = windowLightCurve(lc, discMJD, b.cfg.ObjPriorDays, b.cfg.ObjActiveDays)
	}

	peak, latestDet, latestNondet := DerivedMetrics(lc)
	meta.PeakMag = peak
	meta.LatestDetection = latestDet
	meta.LatestNonDetection = latestNondet

	prevRaw, err := b.store.Get(ctx, scopeTNS, collectionObjects, primaryName)
	if err != nil {
		return schema.ObjectMetadata{}, nil, schema.ChangeSummary{}, fmt.Errorf("lightcurve: get previous object %s: %w", primaryName, err)
	}
	var prev schema.ObjectMetadata
	hadPrev := prevRaw != nil
	if hadPrev {
		if uerr := json.Unmarshal(prevRaw, &prev); uerr != nil {
			return schema.ObjectMetadata{}, nil, schema.ChangeSummary{}, fmt.Errorf("lightcurve: decode previous object %s: %w", primaryName, uerr)
		}
	}

	now := time.Now().UTC().Truncate(time.Second).Format("2006-01-02 15:04:05")
	summary := schema.DiffObjectMeta(&prev, meta, hadPrev, now)

	cleaned := schema.CleanMeta(meta)
	if err := b.store.Upsert(ctx, scopeTNS, collectionObjects, primaryName, cleaned); err != nil {
		return schema.ObjectMetadata{}, nil, schema.ChangeSummary{}, fmt.Errorf("lightcurve: upsert object %s: %w", primaryName, err)
	}
	if err := b.store.Upsert(ctx, scopeTNS, collectionLightCurves, primaryName, lc); err != nil {
		return schema.ObjectMetadata{}, nil, schema.ChangeSummary{}, fmt.Errorf("lightcurve: upsert light curve %s: %w", primaryName, err)
	}

	if b.notifier != nil && summary.HasSubstantiveChanges() {
		payload := map[string]any{"obj_name": primaryName, "status": summary.Status, "timestamp": summary.Timestamp, "changes": summary.Changes}
		if err := b.notifier.Publish(notify.TopicTNS, payload); err != nil {
			b.logger.Error("tns change notice publish failed", "obj_name", primaryName, "error", err)
		}
	}

	b.logger.Info("built object", "obj_name", primaryName, "status", summary.Status, "n_lc_rows", len(lc))

	return meta, lc, summary, nil
}

// fetchSecondary launches one goroutine per secondary adapter writing
// into a pre-sized map, joined by a WaitGroup — spec.md §5's "per-
// adapter Pull calls may be issued concurrently", each carrying its
// own timeout via the adapter's own httpkit client.
func (b *Builder) fetchSecondary(ctx context.Context, objName string, raDeg, decDeg float64) map[detection.Source]pullResult {
	results := make(map[detection.Source]pullResult, len(secondaryOrder))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, src := range secondaryOrder {
		adapter, ok := b.secondary[src]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(src detection.Source, adapter sources.Adapter) {
			defer wg.Done()
			meta, lc, err := adapter.FetchByCoord(ctx, objName, raDeg, decDeg, 0)
			if err != nil && err != sources.ErrSurveyLightCurveMissing {
				if err != sources.ErrSurveyMetaMissing {
					b.logger.Warn("secondary survey fetch failed", "source", src, "obj_name", objName, "error", err)
				}
			}
			mu.Lock()
			results[src] = pullResult{source: src, meta: meta, lc: lc, err: err}
			mu.Unlock()
		}(src, adapter)
	}

	wg.Wait()
	return results
}

func (b *Builder) citationsFor(src detection.Source) []schema.CitationSource {
	if b.registry == nil {
		return nil
	}
	return b.registry.LookupMany(b.cfg.AssociatedSources[src])
}

func anchorCoords(meta *schema.SurveyMeta) (raDeg, decDeg float64, ok bool) {
	ra, raOK := firstFloat(meta.Fields["ra_deg"])
	dec, decOK := firstFloat(meta.Fields["dec_deg"])
	return ra, dec, raOK && decOK
}

func firstFloat(vals []schema.ValueWithSource) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	switch v := vals[0].Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	default:
		return 0, false
	}
}

// discoveryMJD extracts discovery_date and converts it to an MJD.
func discoveryMJD(meta *schema.SurveyMeta) (float64, bool) {
	vals, ok := meta.Fields["discovery_date"]
	if !ok || len(vals) == 0 {
		return 0, false
	}
	s, ok := vals[0].Value.(string)
	if !ok || s == "" {
		return 0, false
	}
	t, err := parseFlexibleTime(s)
	if err != nil {
		return 0, false
	}
	return timeToMJD(t), true
}

// sanitizeMagnitudes flips spuriously negative mag/limit values back
// positive when |value| > 10, ports pipeline.py's
// `abs(val) if abs(val) > 10 else val` sanity pass.
func sanitizeMagnitudes(lc schema.LightCurve) {
	for i := range lc {
		if lc[i].Mag != nil && math.Abs(*lc[i].Mag) > 10 {
			v := math.Abs(*lc[i].Mag)
			lc[i].Mag = &v
		}
		if lc[i].Limit != nil && math.Abs(*lc[i].Limit) > 10 {
			v := math.Abs(*lc[i].Limit)
			lc[i].Limit = &v
		}
	}
}

// windowLightCurve keeps rows within [discMJD-priorDays,
// discMJD+activeDays], porting pipeline.py's time cut.
func windowLightCurve(lc schema.LightCurve, discMJD float64, priorDays, activeDays int) schema.LightCurve {
	out := make(schema.LightCurve, 0, len(lc))
	for _, row := range lc {
		if (discMJD-row.MJD) <= float64(priorDays) && (row.MJD-discMJD) <= float64(activeDays) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MJD < out[j].MJD })
	return out
}

const mjdEpochUnix = -3506716800 // 1858-11-17T00:00:00Z, seconds since Unix epoch

func timeToMJD(t time.Time) float64 {
	return float64(t.UTC().Unix()-mjdEpochUnix) / 86400.0
}

func mjdToTime(mjd float64) time.Time {
	epoch := time.Unix(mjdEpochUnix, 0).UTC()
	days := math.Trunc(mjd)
	frac := mjd - days
	return epoch.AddDate(0, 0, int(days)).Add(time.Duration(frac * 86400 * float64(time.Second)))
}

func formatMJDDate(mjd float64) string {
	return mjdToTime(mjd).Format("2006-01-02 15:04:05")
}

var flexibleTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseFlexibleTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range flexibleTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
