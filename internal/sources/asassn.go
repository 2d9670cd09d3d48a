package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tarxiv/tarxiv/internal/config"
	"github.com/tarxiv/tarxiv/internal/detection"
	"github.com/tarxiv/tarxiv/internal/httpkit"
	"github.com/tarxiv/tarxiv/internal/schema"
)

// ASASSNAdapter interfaces with ASAS-SN SkyPatrol, ports
// original_source/tarxiv/data_sources.py's ASAS_SN class. SkyPatrol's
// ADQL client is Python-only, so the cone-search query is issued as a
// plain REST POST against the configured URL instead.
type ASASSNAdapter struct {
	client *http.Client
	cfg    config.SurveyConfig
	kafka  kafkaIngest
}

// NewASASSNAdapter builds an ASAS-SN adapter against cfg.
func NewASASSNAdapter(cfg config.SurveyConfig, logger *slog.Logger) *ASASSNAdapter {
	return &ASASSNAdapter{
		client: httpkit.NewClient(httpkit.WithTimeout(30*time.Second), httpkit.WithRetry(3, time.Second)),
		cfg:    cfg,
		kafka:  newKafkaIngest(cfg, detection.SourceASASSN, logger, decodeASASSNAlert),
	}
}

func (a *ASASSNAdapter) Name() detection.Source { return detection.SourceASASSN }

func (a *ASASSNAdapter) IngestAlerts(ctx context.Context, out chan<- detection.DetectionEvent) error {
	return a.kafka.run(ctx, out)
}

func decodeASASSNAlert(raw []byte) (detection.DetectionEvent, error) {
	m, err := decodeJSONMap(raw)
	if err != nil {
		return detection.DetectionEvent{}, err
	}
	return detection.DetectionEvent{
		ObjID:     fmt.Sprint(m["asas_sn_id"]),
		Source:    detection.SourceASASSN,
		RADeg:     toFloat(m["ra_deg"]),
		DecDeg:    toFloat(m["dec_deg"]),
		Timestamp: mjdToTime(toFloat(m["mjd"])),
	}, nil
}

func (a *ASASSNAdapter) FetchByCoord(ctx context.Context, objName string, raDeg, decDeg, radiusArcsec float64) (*schema.SurveyMeta, schema.LightCurve, error) {
	body, err := json.Marshal(map[string]any{
		"ra_deg": raDeg, "dec_deg": decDeg, "radius_arcsec": radiusArcsec,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("asas-sn: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL+"/cone_search", bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("asas-sn: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("asas-sn: request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, ErrSurveyMetaMissing
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("asas-sn: unexpected status %d", resp.StatusCode)
	}

	var payload asassnResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("asas-sn: decode response: %w", err)
	}
	if payload.ID == "" {
		return nil, nil, ErrSurveyMetaMissing
	}

	meta := &schema.SurveyMeta{
		Identifier: schema.Identifier{Name: payload.ID, Source: "asas-sn"},
		Fields: map[string][]schema.ValueWithSource{
			"ra_deg":  {{Value: payload.RADeg, Source: "asas-sn"}},
			"dec_deg": {{Value: payload.DecDeg, Source: "asas-sn"}},
		},
	}

	if len(payload.LightCurve) == 0 {
		return meta, nil, ErrSurveyLightCurveMissing
	}

	rows := make([]schema.LightCurveRow, 0, len(payload.LightCurve))
	for _, p := range payload.LightCurve {
		if p.Quality == "B" {
			continue
		}
		row := schema.LightCurveRow{
			MJD:     p.MJD,
			Filter:  p.Filter,
			TelUnit: valueOr(p.Camera, "main"),
			Survey:  "asas-sn",
			Night:   "none",
		}
		if p.MagErr > 99 {
			limit := p.Mag
			row.Limit = &limit
		} else {
			mag, magErr := p.Mag, p.MagErr
			row.Mag, row.MagErr = &mag, &magErr
		}
		rows = append(rows, row)
	}

	lc := normalizeLightCurve(rows)
	sortByMJD(lc)
	return meta, lc, nil
}

// PullAlert fetches the raw per-object payload for provenance replay,
// by ASAS-SN's own assigned id rather than a coordinate search.
func (a *ASASSNAdapter) PullAlert(ctx context.Context, objName string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.URL+"/object/"+objName, nil)
	if err != nil {
		return nil, fmt.Errorf("asas-sn: build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asas-sn: request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrSurveyMetaMissing
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asas-sn: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("asas-sn: read alert: %w", err)
	}
	return json.RawMessage(data), nil
}

type asassnResponse struct {
	ID         string             `json:"asas_sn_id"`
	RADeg      float64            `json:"ra_deg"`
	DecDeg     float64            `json:"dec_deg"`
	LightCurve []asassnPhotometry `json:"lightcurve"`
}

type asassnPhotometry struct {
	MJD     float64 `json:"mjd"`
	Mag     float64 `json:"mag"`
	MagErr  float64 `json:"mag_err"`
	Filter  string  `json:"filter"`
	Camera  string  `json:"camera"`
	Quality string  `json:"quality"`
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
