package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tarxiv/tarxiv/internal/detection"
	"github.com/tarxiv/tarxiv/internal/schema"
)

// DummyAdapter is the TEST source used by the cross-match scenario
// tests (spec.md §8, S1-S6): a fully in-memory adapter with no
// external transport, driven entirely by Push and stocked with
// canned coordinate lookups for FetchByCoord.
type DummyAdapter struct {
	mu      sync.Mutex
	lookups map[string]dummyLookup
}

type dummyLookup struct {
	meta *schema.SurveyMeta
	lc   schema.LightCurve
}

// NewDummyAdapter returns an empty DummyAdapter.
func NewDummyAdapter() *DummyAdapter {
	return &DummyAdapter{lookups: make(map[string]dummyLookup)}
}

// Stock registers the meta/light-curve FetchByCoord should return for
// a given object name, for use by tests driving scenarios S1-S6.
func (d *DummyAdapter) Stock(objName string, meta *schema.SurveyMeta, lc schema.LightCurve) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups[objName] = dummyLookup{meta: meta, lc: lc}
}

func (d *DummyAdapter) Name() detection.Source { return detection.SourceTest }

// IngestAlerts never produces on its own; test code publishes
// DetectionEvents directly onto the shared bus to drive scenarios.
func (d *DummyAdapter) IngestAlerts(ctx context.Context, out chan<- detection.DetectionEvent) error {
	<-ctx.Done()
	return nil
}

func (d *DummyAdapter) FetchByCoord(ctx context.Context, objName string, raDeg, decDeg, radiusArcsec float64) (*schema.SurveyMeta, schema.LightCurve, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.lookups[objName]
	if !ok {
		return nil, nil, ErrSurveyMetaMissing
	}
	if len(entry.lc) == 0 {
		return entry.meta, nil, ErrSurveyLightCurveMissing
	}
	return entry.meta, entry.lc, nil
}

func (d *DummyAdapter) PullAlert(ctx context.Context, objName string) (json.RawMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.lookups[objName]
	if !ok {
		return nil, ErrSurveyMetaMissing
	}
	payload, err := json.Marshal(map[string]any{
		"obj_id":    objName,
		"source":    "test",
		"pulled_at": time.Now().UTC().Format("2006-01-02 15:04:05"),
		"meta":      entry.meta,
	})
	if err != nil {
		return nil, fmt.Errorf("dummy: marshal alert: %w", err)
	}
	return payload, nil
}
