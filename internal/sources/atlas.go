package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tarxiv/tarxiv/internal/config"
	"github.com/tarxiv/tarxiv/internal/detection"
	"github.com/tarxiv/tarxiv/internal/httpkit"
	"github.com/tarxiv/tarxiv/internal/schema"
)

// ATLASAdapter interfaces with the ATLAS Transient Web Server, ports
// original_source/tarxiv/data_sources.py's ATLAS class. ATLAS has no
// native push feed of its own in the original pipeline — new objects
// reach the system via the TNS-driven mail listener — so IngestAlerts
// blocks until shutdown.
type ATLASAdapter struct {
	client *http.Client
	cfg    config.SurveyConfig
	token  string
}

func NewATLASAdapter(cfg config.SurveyConfig) *ATLASAdapter {
	return &ATLASAdapter{
		client: httpkit.NewClient(httpkit.WithTimeout(30*time.Second), httpkit.WithRetry(3, time.Second)),
		cfg:    cfg,
		token:  os.Getenv("TARXIV_ATLAS_TOKEN"),
	}
}

func (a *ATLASAdapter) Name() detection.Source { return detection.SourceATLAS }

func (a *ATLASAdapter) IngestAlerts(ctx context.Context, out chan<- detection.DetectionEvent) error {
	<-ctx.Done()
	return nil
}

func (a *ATLASAdapter) authHeader(req *http.Request) {
	req.Header.Set("Authorization", "Token "+a.token)
}

func (a *ATLASAdapter) FetchByCoord(ctx context.Context, objName string, raDeg, decDeg, radiusArcsec float64) (*schema.SurveyMeta, schema.LightCurve, error) {
	form := url.Values{
		"ra": {fmt.Sprintf("%f", raDeg)}, "dec": {fmt.Sprintf("%f", decDeg)},
		"radius": {fmt.Sprintf("%f", radiusArcsec)}, "requestType": {"nearest"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL+"/cone/", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, fmt.Errorf("atlas: build cone request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	a.authHeader(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("atlas: cone request: %w", err)
	}
	var cone atlasConeResponse
	decErr := json.NewDecoder(resp.Body).Decode(&cone)
	httpkit.DrainAndClose(resp.Body, 1<<20)
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("atlas: cone status %d", resp.StatusCode)
	}
	if decErr != nil || cone.Object == "" {
		return nil, nil, ErrSurveyMetaMissing
	}

	objReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.URL+"/objects/", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("atlas: build object request: %w", err)
	}
	objReq.URL.RawQuery = url.Values{"objects": {cone.Object}}.Encode()
	a.authHeader(objReq)

	objResp, err := a.client.Do(objReq)
	if err != nil {
		return nil, nil, fmt.Errorf("atlas: object request: %w", err)
	}
	defer httpkit.DrainAndClose(objResp.Body, 1<<20)

	if objResp.StatusCode == http.StatusGatewayTimeout {
		meta := atlasMeta(cone.Object, 0, 0, nil)
		return meta, nil, ErrSurveyLightCurveMissing
	}
	if objResp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("atlas: object status %d", objResp.StatusCode)
	}

	var results []atlasObjectResult
	if err := json.NewDecoder(objResp.Body).Decode(&results); err != nil || len(results) == 0 {
		return nil, nil, ErrSurveyLightCurveMissing
	}
	result := results[0]

	var redshift *schema.ValueWithSource
	if len(result.SherlockCrossmatches) > 0 && result.SherlockCrossmatches[0].Z != nil {
		redshift = &schema.ValueWithSource{Value: *result.SherlockCrossmatches[0].Z, Source: "sherlock"}
	}

	meta := atlasMeta(result.Object.ID, result.Object.RA, result.Object.Dec, redshift)
	if result.Object.AtlasDesignation != "" {
		meta.Identifier = schema.Identifier{Name: result.Object.ID, Source: "atlas"}
	}

	rows := make([]schema.LightCurveRow, 0, len(result.LC)+len(result.LCNonDets))
	for _, d := range result.LC {
		if d.Dup == -1 {
			continue
		}
		mag, magErr, limit := d.Mag, d.MagErr, d.Mag5Sig
		rows = append(rows, schema.LightCurveRow{
			MJD: d.MJD, Mag: &mag, MagErr: &magErr, Limit: &limit,
			Filter: d.Filter, Detection: 1, Survey: "atlas",
			TelUnit: atlasUnitFromExpname(d.ExpName), Night: atlasNightFromExpname(d.ExpName),
		})
	}
	for _, n := range result.LCNonDets {
		limit := n.Mag5Sig
		rows = append(rows, schema.LightCurveRow{
			MJD: n.MJD, Limit: &limit, Filter: n.Filter, Detection: 0, Survey: "atlas",
			TelUnit: atlasUnitFromExpname(n.ExpName), Night: atlasNightFromExpname(n.ExpName),
		})
	}

	lc := normalizeLightCurve(rows)
	lc = dedupeATLASExposures(lc)
	sortByMJD(lc)
	return meta, lc, nil
}

func atlasMeta(id string, ra, dec float64, redshift *schema.ValueWithSource) *schema.SurveyMeta {
	fields := map[string][]schema.ValueWithSource{
		"ra_deg":  {{Value: ra, Source: "atlas"}},
		"dec_deg": {{Value: dec, Source: "atlas"}},
	}
	if redshift != nil {
		fields["redshift"] = []schema.ValueWithSource{*redshift}
	}
	return &schema.SurveyMeta{
		Identifier: schema.Identifier{Name: id, Source: "atlas"},
		Fields:     fields,
	}
}

func (a *ATLASAdapter) PullAlert(ctx context.Context, objName string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.URL+"/objects/", nil)
	if err != nil {
		return nil, fmt.Errorf("atlas: build request: %w", err)
	}
	req.URL.RawQuery = url.Values{"objects": {objName}}.Encode()
	a.authHeader(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("atlas: request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("atlas: unexpected status %d", resp.StatusCode)
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("atlas: read alert: %w", err)
	}
	return json.RawMessage(buf), nil
}

type atlasConeResponse struct {
	Object string `json:"object"`
}

type atlasObjectResult struct {
	Object struct {
		ID               string  `json:"id"`
		RA               float64 `json:"ra"`
		Dec              float64 `json:"dec"`
		AtlasDesignation string  `json:"atlas_designation"`
	} `json:"object"`
	SherlockCrossmatches []struct {
		Z *float64 `json:"z"`
	} `json:"sherlock_crossmatches"`
	LC        []atlasDetectionRow `json:"lc"`
	LCNonDets []atlasNonDetRow    `json:"lcnondets"`
}

type atlasDetectionRow struct {
	MJD     float64 `json:"mjd"`
	Mag     float64 `json:"mag"`
	MagErr  float64 `json:"magerr"`
	Mag5Sig float64 `json:"mag5sig"`
	Filter  string  `json:"filter"`
	ExpName string  `json:"expname"`
	Dup     int     `json:"dup"`
}

type atlasNonDetRow struct {
	MJD     float64 `json:"mjd"`
	Mag5Sig float64 `json:"mag5sig"`
	Filter  string  `json:"filter"`
	ExpName string  `json:"expname"`
}
