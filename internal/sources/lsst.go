package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/tarxiv/tarxiv/internal/config"
	"github.com/tarxiv/tarxiv/internal/detection"
	"github.com/tarxiv/tarxiv/internal/httpkit"
	"github.com/tarxiv/tarxiv/internal/schema"
)

// LSSTAdapter interfaces with the Rubin/LSST alert stream. Not present
// in original_source (the Python pipeline predates LSST's survey
// start) but named in spec.md's Source enum; modeled on the ZTF
// adapter's Fink-style cone-search/objects split since both are
// alert-broker REST APIs fronting a Kafka firehose.
type LSSTAdapter struct {
	client *http.Client
	cfg    config.SurveyConfig
	kafka  kafkaIngest
}

func NewLSSTAdapter(cfg config.SurveyConfig, logger *slog.Logger) *LSSTAdapter {
	return &LSSTAdapter{
		client: httpkit.NewClient(httpkit.WithTimeout(30*time.Second), httpkit.WithRetry(3, time.Second)),
		cfg:    cfg,
		kafka:  newKafkaIngest(cfg, detection.SourceLSST, logger, decodeLSSTAlert),
	}
}

func (l *LSSTAdapter) Name() detection.Source { return detection.SourceLSST }

func (l *LSSTAdapter) IngestAlerts(ctx context.Context, out chan<- detection.DetectionEvent) error {
	return l.kafka.run(ctx, out)
}

func decodeLSSTAlert(raw []byte) (detection.DetectionEvent, error) {
	m, err := decodeJSONMap(raw)
	if err != nil {
		return detection.DetectionEvent{}, err
	}
	diaSource, _ := m["diaSource"].(map[string]any)
	return detection.DetectionEvent{
		ObjID:     fmt.Sprint(diaSource["diaObjectId"]),
		Source:    detection.SourceLSST,
		RADeg:     toFloat(diaSource["ra"]),
		DecDeg:    toFloat(diaSource["decl"]),
		Timestamp: mjdToTime(toFloat(diaSource["midPointMjdTai"])),
	}, nil
}

func (l *LSSTAdapter) FetchByCoord(ctx context.Context, objName string, raDeg, decDeg, radiusArcsec float64) (*schema.SurveyMeta, schema.LightCurve, error) {
	payload, err := json.Marshal(map[string]any{"ra": raDeg, "dec": decDeg, "radius_arcsec": radiusArcsec})
	if err != nil {
		return nil, nil, fmt.Errorf("lsst: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.URL+"/conesearch", bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("lsst: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("lsst: request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, ErrSurveyMetaMissing
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("lsst: unexpected status %d", resp.StatusCode)
	}

	var payloadResp lsstObjectResponse
	if err := json.NewDecoder(resp.Body).Decode(&payloadResp); err != nil {
		return nil, nil, fmt.Errorf("lsst: decode response: %w", err)
	}
	if payloadResp.DiaObjectID == "" {
		return nil, nil, ErrSurveyMetaMissing
	}

	meta := &schema.SurveyMeta{
		Identifier: schema.Identifier{Name: payloadResp.DiaObjectID, Source: "lsst"},
		Fields: map[string][]schema.ValueWithSource{
			"ra_deg":  {{Value: payloadResp.RA, Source: "lsst"}},
			"dec_deg": {{Value: payloadResp.Dec, Source: "lsst"}},
		},
	}

	if len(payloadResp.Sources) == 0 {
		return meta, nil, ErrSurveyLightCurveMissing
	}

	rows := make([]schema.LightCurveRow, 0, len(payloadResp.Sources))
	for _, s := range payloadResp.Sources {
		row := schema.LightCurveRow{
			MJD: s.MidPointMJD, Filter: s.Band, TelUnit: "main", Survey: "lsst", Night: "none",
		}
		if s.PSFFlux > 0 && s.PSFFluxErr > 0 {
			mag, magErr := fluxToMag(s.PSFFlux), fluxErrToMagErr(s.PSFFlux, s.PSFFluxErr)
			row.Mag, row.MagErr = &mag, &magErr
		} else {
			limit := fluxToMag(s.PSFFluxErr * 5)
			row.Limit = &limit
		}
		rows = append(rows, row)
	}

	lc := normalizeLightCurve(rows)
	sortByMJD(lc)
	return meta, lc, nil
}

func (l *LSSTAdapter) PullAlert(ctx context.Context, objName string) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]any{"diaObjectId": objName})
	if err != nil {
		return nil, fmt.Errorf("lsst: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.URL+"/object", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("lsst: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lsst: request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lsst: unexpected status %d", resp.StatusCode)
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("lsst: read alert: %w", err)
	}
	return json.RawMessage(buf), nil
}

type lsstObjectResponse struct {
	DiaObjectID string            `json:"diaObjectId"`
	RA          float64           `json:"ra"`
	Dec         float64           `json:"decl"`
	Sources     []lsstDiaSourceLC `json:"sources"`
}

type lsstDiaSourceLC struct {
	MidPointMJD float64 `json:"midPointMjdTai"`
	Band        string  `json:"band"`
	PSFFlux     float64 `json:"psFlux"`
	PSFFluxErr  float64 `json:"psFluxErr"`
}

// fluxToMag/fluxErrToMagErr convert LSST's nanojansky flux units to
// the AB magnitude system (m = -2.5*log10(flux_nJy) + 31.4).
func fluxToMag(fluxNJy float64) float64 {
	if fluxNJy <= 0 {
		return 99
	}
	return -2.5*math.Log10(fluxNJy) + 31.4
}

func fluxErrToMagErr(flux, fluxErr float64) float64 {
	if flux <= 0 {
		return 0
	}
	return 1.0857 * fluxErr / flux
}
