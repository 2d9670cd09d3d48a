// Package reconciler consumes MatchCandidates from the spatial matcher
// and reconciles them into persisted CrossMatchHit documents, porting
// original_source/tarxiv/xmatch/finders.py's TarxivXMatchProcessing and
// new_xmatch_transaction into Go control flow over catalog.Store.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tarxiv/tarxiv/internal/catalog"
	"github.com/tarxiv/tarxiv/internal/detection"
	"github.com/tarxiv/tarxiv/internal/notify"
	"github.com/tarxiv/tarxiv/internal/schema"
	"github.com/tarxiv/tarxiv/internal/sources"
)

// ErrDuplicateCrossMatch is returned when a hit already contains both
// identifiers of an incoming candidate — a pipeline-invariant
// violation, never retried (ports TarxivPipelineError's duplicate
// cross-match case).
var ErrDuplicateCrossMatch = errors.New("reconciler: duplicate cross-match")

const (
	scopeXMatch     = "xmatch"
	collectionHits  = "hits"
	collectionAlert = "alerts"
	collectionIdx   = "idx"
)

// Config configures one Reconciler instance.
type Config struct {
	XMatchIDLen int // width of the base-36 counter segment
	// AssociatedSources maps each detection.Source to the citation keys
	// (sources.json entries) that should be cited whenever that survey
	// contributes to a hit (ports config.yaml's per-survey
	// "associated_sources" list).
	AssociatedSources map[detection.Source][]string
}

// Reconciler folds MatchCandidates into catalog.Store, one candidate
// at a time. It is safe to run many Reconcilers concurrently against
// the same store, each a separate consumer-group member in group
// xmatch_group — Couchbase's transaction CAS retries absorb collisions
// between them on the idx counter and on existing hit documents.
type Reconciler struct {
	cfg      Config
	store    transactor
	adapters map[detection.Source]sources.Adapter
	registry *schema.Registry
	notifier *notify.Publisher
	logger   *slog.Logger
}

// transactor is satisfied by both *catalog.Store and *catalog.Fake,
// letting tests swap in the in-memory double.
type transactor interface {
	Transaction(fn func(tx catalog.Transactor) error) error
}

// New builds a Reconciler. adapters must have an entry for every
// detection.Source that can appear in an incoming MatchCandidate, used
// to pull each side's raw alert payload for provenance replay.
func New(cfg Config, store transactor, adapters map[detection.Source]sources.Adapter, registry *schema.Registry, notifier *notify.Publisher, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{cfg: cfg, store: store, adapters: adapters, registry: registry, notifier: notifier, logger: logger}
}

// side is one half of a MatchCandidate, with its sexagesimal
// coordinates and raw alert payload already resolved — the Go
// equivalent of finders.py's detection_1/detection_2 dicts plus
// alert_1/alert_2.
type side struct {
	objID     string
	source    detection.Source
	raDeg     float64
	decDeg    float64
	timestamp time.Time
	raHMS     string
	decDMS    string
	alert     []byte
}

// Handle processes one MatchCandidate end to end: steps 1-5 of
// SPEC_FULL.md §8. It never returns an error for a poison message
// (duplicate cross-match, or any transaction failure) — those are
// logged and swallowed so the caller always commits the Kafka offset,
// per spec.md §7's "never retry, never block the partition" rule.
// Only ctx cancellation propagates as an error, since that case must
// NOT commit the offset.
func (r *Reconciler) Handle(ctx context.Context, mc detection.MatchCandidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s1, err := r.resolveSide(ctx, mc.ObjID1, mc.Source1, mc.RADeg1, mc.DecDeg1, mc.Timestamp1)
	if err != nil {
		r.logger.Error("resolve side 1 failed", "obj_id", mc.ObjID1, "error", err)
		return nil
	}
	s2, err := r.resolveSide(ctx, mc.ObjID2, mc.Source2, mc.RADeg2, mc.DecDeg2, mc.Timestamp2)
	if err != nil {
		r.logger.Error("resolve side 2 failed", "obj_id", mc.ObjID2, "error", err)
		return nil
	}

	xmatchID, notice, err := r.runTransaction(s1, s2)
	if err != nil {
		if errors.Is(err, ErrDuplicateCrossMatch) {
			r.logger.Error("duplicate cross-match, not retried",
				"obj_id_1", s1.objID, "obj_id_2", s2.objID, "error", err)
			return nil
		}
		r.logger.Error("xmatch transaction failed", "obj_id_1", s1.objID, "obj_id_2", s2.objID, "error", err)
		return nil
	}

	if r.notifier != nil {
		go func() {
			payload := map[string]any{"xmatch_id": xmatchID}
			for k, v := range notice {
				payload[k] = v
			}
			if err := r.notifier.Publish(notify.TopicXMatch, payload); err != nil {
				r.logger.Error("xmatch change notice publish failed", "xmatch_id", xmatchID, "error", err)
			}
		}()
	}

	return nil
}

func (r *Reconciler) resolveSide(ctx context.Context, objID string, src detection.Source, raDeg, decDeg float64, ts time.Time) (side, error) {
	raHMS, decDMS := schema.Deg2Sexagesimal(raDeg, decDeg)

	adapter, ok := r.adapters[src]
	if !ok {
		return side{}, fmt.Errorf("no adapter registered for source %q", src)
	}
	alert, err := adapter.PullAlert(ctx, objID)
	if err != nil {
		return side{}, fmt.Errorf("pull alert for %s: %w", objID, err)
	}

	return side{
		objID: objID, source: src, raDeg: raDeg, decDeg: decDeg, timestamp: ts,
		raHMS: raHMS, decDMS: decDMS, alert: alert,
	}, nil
}

// runTransaction is the Go rendering of new_xmatch_transaction.
func (r *Reconciler) runTransaction(s1, s2 side) (string, map[string]any, error) {
	var xmatchID string
	var notice map[string]any

	err := r.store.Transaction(func(tx catalog.Transactor) error {
		ids, err := tx.FindHitsByIdentifiers(scopeXMatch, collectionHits, []string{s1.objID, s2.objID})
		if err != nil {
			return fmt.Errorf("find hits: %w", err)
		}

		switch {
		case len(ids) == 0:
			id, meta, err := r.mintNewHit(tx, s1, s2)
			if err != nil {
				return err
			}
			xmatchID = id
			notice = hitToNotice(meta)
			return nil

		default:
			if len(ids) > 1 {
				r.logger.Warn("multiple hit documents matched the same identifier",
					"offending_ids", []string{s1.objID, s2.objID}, "colliding_xmatch_ids", ids)
			}
			id := ids[0]
			meta, err := r.extendHit(tx, id, s1, s2)
			if err != nil {
				return err
			}
			xmatchID = id
			notice = hitToNotice(meta)
			return nil
		}
	})
	if err != nil {
		return "", nil, err
	}
	return xmatchID, notice, nil
}

func (r *Reconciler) mintNewHit(tx catalog.Transactor, s1, s2 side) (string, schema.CrossMatchHit, error) {
	year := fmt.Sprintf("%d", time.Now().Year())

	raw, err := tx.Get(scopeXMatch, collectionIdx, year)
	var counter schema.IdxCounter
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return "", schema.CrossMatchHit{}, fmt.Errorf("get idx counter: %w", err)
	}
	if err == nil {
		if uerr := unmarshalJSON(raw, &counter); uerr != nil {
			return "", schema.CrossMatchHit{}, fmt.Errorf("decode idx counter: %w", uerr)
		}
	}
	counter.CurrentIdx++

	if errors.Is(err, catalog.ErrNotFound) {
		if ierr := tx.Insert(scopeXMatch, collectionIdx, year, counter); ierr != nil {
			return "", schema.CrossMatchHit{}, fmt.Errorf("insert idx counter: %w", ierr)
		}
	} else {
		if rerr := tx.Replace(scopeXMatch, collectionIdx, year, counter); rerr != nil {
			return "", schema.CrossMatchHit{}, fmt.Errorf("replace idx counter: %w", rerr)
		}
	}

	xmatchID := fmt.Sprintf("TXV-%s-%s", year, Base36(counter.CurrentIdx, r.cfg.XMatchIDLen))

	citations := r.citationsFor(s1.source, s2.source)
	hit := schema.NewCrossMatchHit(
		hitCoord(s1), hitCoord(s2),
		schema.Identifier{Name: s1.objID, Source: string(s1.source)},
		schema.Identifier{Name: s2.objID, Source: string(s2.source)},
		hitTimestamp(s1), hitTimestamp(s2),
		citations, time.Now(),
	)

	if err := tx.Insert(scopeXMatch, collectionHits, xmatchID, hit); err != nil {
		return "", schema.CrossMatchHit{}, fmt.Errorf("insert hit: %w", err)
	}
	if err := tx.Insert(scopeXMatch, collectionAlert, s1.objID, rawJSON(s1.alert)); err != nil {
		return "", schema.CrossMatchHit{}, fmt.Errorf("insert alert 1: %w", err)
	}
	if err := tx.Insert(scopeXMatch, collectionAlert, s2.objID, rawJSON(s2.alert)); err != nil {
		return "", schema.CrossMatchHit{}, fmt.Errorf("insert alert 2: %w", err)
	}

	r.logger.Info("new crossmatched detection",
		"xmatch_id", xmatchID,
		"surveys", []string{string(s1.source), string(s2.source)},
		"identifiers", []string{s1.objID, s2.objID},
	)

	return xmatchID, hit, nil
}

func (r *Reconciler) extendHit(tx catalog.Transactor, xmatchID string, s1, s2 side) (schema.CrossMatchHit, error) {
	raw, err := tx.Get(scopeXMatch, collectionHits, xmatchID)
	if err != nil {
		return schema.CrossMatchHit{}, fmt.Errorf("get hit %s: %w", xmatchID, err)
	}
	var hit schema.CrossMatchHit
	if err := unmarshalJSON(raw, &hit); err != nil {
		return schema.CrossMatchHit{}, fmt.Errorf("decode hit %s: %w", xmatchID, err)
	}

	known := make(map[string]bool, len(hit.Identifiers))
	for _, id := range hit.Identifiers {
		known[id.Name] = true
	}

	var newSide *side
	switch {
	case !known[s1.objID] && !known[s2.objID]:
		// Neither id known: shouldn't happen given FindHitsByIdentifiers
		// just matched one of them, but treat conservatively as the
		// reconciler-logic-failed case from the original.
		return schema.CrossMatchHit{}, fmt.Errorf("hit %s matched neither identifier %s/%s", xmatchID, s1.objID, s2.objID)
	case !known[s1.objID]:
		newSide = &s1
	case !known[s2.objID]:
		newSide = &s2
	default:
		return schema.CrossMatchHit{}, fmt.Errorf("%w: offending ids %s, %s", ErrDuplicateCrossMatch, s1.objID, s2.objID)
	}

	hit.Identifiers = append(hit.Identifiers, schema.Identifier{Name: newSide.objID, Source: string(newSide.source)})
	hit.Coords = append(hit.Coords, hitCoord(*newSide))
	hit.Timestamps = append(hit.Timestamps, hitTimestamp(*newSide))
	hit.Sources = appendCitations(hit.Sources, r.citationsFor(newSide.source))
	hit.UpdatedAt = time.Now().UTC().Truncate(time.Second).Format("2006-01-02 15:04:05")

	if err := tx.Replace(scopeXMatch, collectionHits, xmatchID, hit); err != nil {
		return schema.CrossMatchHit{}, fmt.Errorf("replace hit %s: %w", xmatchID, err)
	}
	if err := tx.Insert(scopeXMatch, collectionAlert, newSide.objID, rawJSON(newSide.alert)); err != nil {
		return schema.CrossMatchHit{}, fmt.Errorf("insert alert for %s: %w", newSide.objID, err)
	}

	r.logger.Info("new hit for existing detection",
		"xmatch_id", xmatchID, "new_id", newSide.objID, "new_source", newSide.source)

	return hit, nil
}

func (r *Reconciler) citationsFor(sources ...detection.Source) []schema.CitationSource {
	var keys []string
	for _, s := range sources {
		keys = append(keys, r.cfg.AssociatedSources[s]...)
	}
	if r.registry == nil {
		return nil
	}
	return r.registry.LookupMany(keys)
}

func appendCitations(existing []schema.CitationSource, add []schema.CitationSource) []schema.CitationSource {
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[c.Name] = true
	}
	for _, c := range add {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		existing = append(existing, c)
	}
	return existing
}

func hitCoord(s side) schema.HitCoord {
	return schema.HitCoord{RADeg: s.raDeg, DecDeg: s.decDeg, RAHMS: s.raHMS, DecDMS: s.decDMS, Source: string(s.source)}
}

func hitTimestamp(s side) schema.HitTimestamp {
	return schema.HitTimestamp{Value: s.timestamp, Source: string(s.source)}
}

// hitToNotice flattens a hit into the change-notice payload shape
// finders.py publishes to Hopskotch ({"xmatch_id": ...} | meta).
func hitToNotice(hit schema.CrossMatchHit) map[string]any {
	return map[string]any{
		"identifiers": hit.Identifiers,
		"coords":      hit.Coords,
		"timestamps":  hit.Timestamps,
		"sources":     hit.Sources,
		"updated_at":  hit.UpdatedAt,
	}
}
