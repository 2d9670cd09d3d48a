package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tarxiv/tarxiv/internal/config"
	"github.com/tarxiv/tarxiv/internal/detection"
	"github.com/tarxiv/tarxiv/internal/httpkit"
	"github.com/tarxiv/tarxiv/internal/schema"
)

// ZTFAdapter interfaces with the ZTF Fink broker's REST API, ports
// original_source/tarxiv/data_sources.py's ZTF class.
type ZTFAdapter struct {
	client *http.Client
	cfg    config.SurveyConfig
	kafka  kafkaIngest
}

func NewZTFAdapter(cfg config.SurveyConfig, logger *slog.Logger) *ZTFAdapter {
	return &ZTFAdapter{
		client: httpkit.NewClient(httpkit.WithTimeout(30*time.Second), httpkit.WithRetry(3, time.Second)),
		cfg:    cfg,
		kafka:  newKafkaIngest(cfg, detection.SourceZTF, logger, decodeZTFAlert),
	}
}

func (z *ZTFAdapter) Name() detection.Source { return detection.SourceZTF }

func (z *ZTFAdapter) IngestAlerts(ctx context.Context, out chan<- detection.DetectionEvent) error {
	return z.kafka.run(ctx, out)
}

func decodeZTFAlert(raw []byte) (detection.DetectionEvent, error) {
	m, err := decodeJSONMap(raw)
	if err != nil {
		return detection.DetectionEvent{}, err
	}
	return detection.DetectionEvent{
		ObjID:     fmt.Sprint(m["i:objectId"]),
		Source:    detection.SourceZTF,
		RADeg:     toFloat(m["i:ra"]),
		DecDeg:    toFloat(m["i:dec"]),
		Timestamp: jdToTime(toFloat(m["i:jd"])),
	}, nil
}

func jdToTime(jd float64) time.Time { return mjdToTime(jd - 2400000.5) }

var ztfFilterMap = map[string]string{"1": "g", "2": "R", "3": "i"}

// ztfDetectionTag maps Fink's d:tag vocabulary to spec's detection int:
// valid=1, badquality dropped (not a valid row), upperlim=0.
var ztfDetectionTag = map[string]int{"valid": 1, "upperlim": 0}

func (z *ZTFAdapter) FetchByCoord(ctx context.Context, objName string, raDeg, decDeg, radiusArcsec float64) (*schema.SurveyMeta, schema.LightCurve, error) {
	conePayload, err := json.Marshal(map[string]any{
		"ra": raDeg, "dec": decDeg, "radius": radiusArcsec, "columns": "i:objectId",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ztf: marshal cone request: %w", err)
	}

	matches, err := z.postJSON(ctx, "/api/v1/conesearch", conePayload)
	if err != nil {
		return nil, nil, err
	}

	var hits []map[string]any
	if err := json.Unmarshal(matches, &hits); err != nil {
		return nil, nil, fmt.Errorf("ztf: decode conesearch response: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil, ErrSurveyMetaMissing
	}

	ztfName := fmt.Sprint(hits[0]["i:objectId"])

	objPayload, err := json.Marshal(map[string]any{
		"objectId": ztfName, "withupperlim": true, "output-format": "json",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ztf: marshal object request: %w", err)
	}

	objResp, err := z.postJSON(ctx, "/api/v1/objects", objPayload)
	if err != nil {
		return nil, nil, err
	}

	var rows []map[string]any
	if err := json.Unmarshal(objResp, &rows); err != nil {
		return nil, nil, fmt.Errorf("ztf: decode object response: %w", err)
	}
	if len(rows) == 0 {
		meta := &schema.SurveyMeta{Identifier: schema.Identifier{Name: ztfName, Source: "ztf"}}
		return meta, nil, ErrSurveyLightCurveMissing
	}

	first := rows[0]
	fields := map[string][]schema.ValueWithSource{
		"ra_deg":  {{Value: toFloat(first["i:ra"]), Source: "ztf"}},
		"dec_deg": {{Value: toFloat(first["i:dec"]), Source: "ztf"}},
	}
	var hostNames []schema.ValueWithSource
	if v, ok := first["d:mangrove_2MASS_name"]; ok && fmt.Sprint(v) != "None" && v != nil {
		hostNames = append(hostNames, schema.ValueWithSource{Value: v, Source: "magrove"})
	}
	if v, ok := first["d:mangrove_HyperLEDA_name"]; ok && fmt.Sprint(v) != "None" && v != nil {
		hostNames = append(hostNames, schema.ValueWithSource{Value: v, Source: "magrove"})
	}
	if len(hostNames) > 0 {
		fields["host_name"] = hostNames
	}

	meta := &schema.SurveyMeta{
		Identifier: schema.Identifier{Name: ztfName, Source: "ztf"},
		Fields:     fields,
	}

	lcRows := make([]schema.LightCurveRow, 0, len(rows))
	for _, r := range rows {
		tag, ok := ztfDetectionTag[fmt.Sprint(r["d:tag"])]
		if !ok {
			continue // badquality, discarded
		}
		row := schema.LightCurveRow{
			MJD:       toFloat(r["i:jd"]) - 2400000.5,
			Filter:    ztfFilterMap[fmt.Sprint(r["i:fid"])],
			TelUnit:   "main",
			Survey:    "ztf",
			Night:     "none",
			Detection: tag,
		}
		if fwhm, ok := r["i:fwhm"]; ok {
			f := toFloat(fwhm)
			row.FWHM = &f
		}
		if tag == 1 {
			mag, magErr := toFloat(r["i:magpsf"]), toFloat(r["i:sigmapsf"])
			row.Mag, row.MagErr = &mag, &magErr
		} else {
			limit := toFloat(r["i:diffmaglim"])
			row.Limit = &limit
		}
		lcRows = append(lcRows, row)
	}

	lc := normalizeLightCurve(lcRows)
	sortByMJD(lc)
	return meta, lc, nil
}

func (z *ZTFAdapter) postJSON(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.cfg.URL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ztf: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := z.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ztf: request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ztf: unexpected status %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("ztf: read response: %w", err)
	}
	return buf.Bytes(), nil
}

func (z *ZTFAdapter) PullAlert(ctx context.Context, objName string) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]any{"objectId": objName, "output-format": "json"})
	if err != nil {
		return nil, fmt.Errorf("ztf: marshal request: %w", err)
	}
	raw, err := z.postJSON(ctx, "/api/v1/objects", payload)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
