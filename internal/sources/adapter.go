// Package sources implements the per-survey adapters: one per external
// transient survey (ATLAS, ZTF, ASAS-SN, LSST, TNS) plus a dummy test
// adapter used by the matcher/reconciler's scenario tests. Each adapter
// normalizes its survey's payload shape into the canonical
// schema.ObjectMetadata/LightCurve form.
package sources

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/tarxiv/tarxiv/internal/detection"
	"github.com/tarxiv/tarxiv/internal/schema"
)

// ErrSurveyMetaMissing means the survey has no match at the queried
// coordinates. Not an error condition — callers should treat the
// object as simply absent from that survey.
var ErrSurveyMetaMissing = errors.New("sources: survey meta missing")

// ErrSurveyLightCurveMissing means the survey matched the object but
// has no photometry to return. Recoverable — the caller should still
// use survey_meta.
var ErrSurveyLightCurveMissing = errors.New("sources: survey light curve missing")

// Adapter is implemented by every per-survey data source. FetchByCoord
// is the Pull contract (spec.md §4.1); IngestAlerts is the Push
// contract.
type Adapter interface {
	Name() detection.Source

	// IngestAlerts runs the adapter's long-running alert-stream loop,
	// forwarding normalized DetectionEvents to out until ctx is
	// cancelled. Restartable: the adapter re-attaches at the
	// transport's last acknowledged position (consumer group offset
	// or IMAP \Seen flag) rather than owning its own cursor.
	IngestAlerts(ctx context.Context, out chan<- detection.DetectionEvent) error

	// FetchByCoord returns this survey's view of the object at
	// (raDeg, decDeg), if any, within radiusArcsec. Returns
	// ErrSurveyMetaMissing or ErrSurveyLightCurveMissing via
	// errors.Is for the classified failure cases; any other error is
	// a transport/parse failure, non-fatal to the caller.
	FetchByCoord(ctx context.Context, objName string, raDeg, decDeg float64, radiusArcsec float64) (*schema.SurveyMeta, schema.LightCurve, error)

	// PullAlert fetches the full raw alert payload for objName, for
	// provenance replay (persisted verbatim into the alerts
	// collection).
	PullAlert(ctx context.Context, objName string) (json.RawMessage, error)
}
