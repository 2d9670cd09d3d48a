package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/tarxiv/tarxiv/internal/config"
	"github.com/tarxiv/tarxiv/internal/detection"
	"github.com/tarxiv/tarxiv/internal/httpkit"
	"github.com/tarxiv/tarxiv/internal/schema"
)

// TNSAdapter interfaces with the Transient Name Server API, ports
// original_source/tarxiv/data_sources.py's TNS class. TNS has no
// native push transport of its own in this pipeline — new object
// names arrive via the mail listener (internal/mail), which then
// drives FetchByCoord/PullAlert for the named object — so
// IngestAlerts simply blocks until shutdown.
//
// Every request is gated by a rate limiter (a ticker, not a sleep) per
// spec.md §5's "rate_limit" — the original's time.sleep before every
// request.
type TNSAdapter struct {
	client  *http.Client
	cfg     config.TNSConfig
	marker  string
	apiKey  string
	limiter *time.Ticker
}

// NewTNSAdapter builds a TNS adapter. tnsID/tnsType/tnsName populate
// the tns_marker identification header TNS requires of API clients.
func NewTNSAdapter(cfg config.TNSConfig, tnsType, tnsName string) *TNSAdapter {
	markerJSON, _ := json.Marshal(map[string]any{
		"tns_id": os.Getenv("TARXIV_TNS_ID"),
		"type":   tnsType,
		"name":   tnsName,
	})

	rateLimit := time.Duration(cfg.RateLimit) * time.Millisecond
	if rateLimit <= 0 {
		rateLimit = time.Second
	}

	return &TNSAdapter{
		client:  httpkit.NewClient(httpkit.WithTimeout(30*time.Second), httpkit.WithRetry(3, 2*time.Second)),
		cfg:     cfg,
		marker:  "tns_marker" + string(markerJSON),
		apiKey:  os.Getenv("TARXIV_TNS_API_KEY"),
		limiter: time.NewTicker(rateLimit),
	}
}

// Close stops the rate limiter's ticker.
func (t *TNSAdapter) Close() { t.limiter.Stop() }

func (t *TNSAdapter) Name() detection.Source { return detection.SourceTNS }

// IngestAlerts never produces on its own; new TNS names are pushed in
// by internal/mail's alert listener calling FetchByCoord/PullAlert
// directly.
func (t *TNSAdapter) IngestAlerts(ctx context.Context, out chan<- detection.DetectionEvent) error {
	<-ctx.Done()
	return nil
}

func (t *TNSAdapter) waitRateLimit(ctx context.Context) error {
	select {
	case <-t.limiter.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchByCoord's ra/dec arguments are unused for TNS: the object name
// alone is sufficient to query get/object, per
// original_source's TNS.get_object(obj_name) signature.
func (t *TNSAdapter) FetchByCoord(ctx context.Context, objName string, raDeg, decDeg, radiusArcsec float64) (*schema.SurveyMeta, schema.LightCurve, error) {
	raw, err := t.getObject(ctx, objName)
	if err != nil {
		return nil, nil, err
	}

	fields := map[string][]schema.ValueWithSource{
		"ra_deg":          {{Value: raw.RADeg, Source: "tns"}},
		"dec_deg":         {{Value: raw.DecDeg, Source: "tns"}},
		"ra_hms":          {{Value: raw.RA, Source: "tns"}},
		"dec_dms":         {{Value: raw.Dec, Source: "tns"}},
		"object_type":     {{Value: raw.NamePrefix, Source: "tns"}, {Value: raw.ObjectType.Name, Source: "tns"}},
		"discovery_date":  {{Value: raw.DiscoveryDate, Source: "tns"}},
		"reporting_group": {{Value: raw.ReportingGroup.GroupName, Source: "tns"}},
	}
	if raw.Redshift != nil {
		fields["redshift"] = []schema.ValueWithSource{{Value: *raw.Redshift, Source: "tns"}}
	}
	if raw.HostName != nil {
		fields["host_name"] = []schema.ValueWithSource{{Value: *raw.HostName, Source: "tns"}}
	}

	meta := &schema.SurveyMeta{
		Identifier: schema.Identifier{Name: raw.ObjName, Source: "tns"},
		Fields:     fields,
	}

	// TNS never returns photometry — no light curve to report.
	return meta, nil, ErrSurveyLightCurveMissing
}

func (t *TNSAdapter) PullAlert(ctx context.Context, objName string) (json.RawMessage, error) {
	raw, err := t.getObject(ctx, objName)
	if err != nil && err != ErrSurveyLightCurveMissing {
		return nil, err
	}
	return json.Marshal(raw)
}

func (t *TNSAdapter) getObject(ctx context.Context, objName string) (*tnsObject, error) {
	if err := t.waitRateLimit(ctx); err != nil {
		return nil, err
	}

	objReq, err := json.Marshal(map[string]any{
		"objid": "", "objname": objName, "photometry": "0", "spectra": "0",
	})
	if err != nil {
		return nil, fmt.Errorf("tns: marshal object request: %w", err)
	}

	form := url.Values{"api_key": {t.apiKey}, "data": {string(objReq)}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL+"/api/get/object", bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return nil, fmt.Errorf("tns: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", t.marker)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tns: request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return nil, ErrSurveyMetaMissing
	}

	var envelope struct {
		Data *tnsObject `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("tns: decode response: %w", err)
	}
	if envelope.Data == nil {
		return nil, ErrSurveyMetaMissing
	}

	return envelope.Data, nil
}

type tnsObject struct {
	ObjName    string  `json:"objname"`
	RADeg      float64 `json:"radeg"`
	DecDeg     float64 `json:"decdeg"`
	RA         string  `json:"ra"`
	Dec        string  `json:"dec"`
	NamePrefix string  `json:"name_prefix"`
	ObjectType struct {
		Name string `json:"name"`
	} `json:"object_type"`
	DiscoveryDate  string `json:"discoverydate"`
	ReportingGroup struct {
		GroupName string `json:"group_name"`
	} `json:"reporting_group"`
	Redshift *float64 `json:"redshift"`
	HostName *string  `json:"hostname"`
}
