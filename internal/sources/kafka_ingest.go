package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shopify/sarama"

	"github.com/tarxiv/tarxiv/internal/config"
	"github.com/tarxiv/tarxiv/internal/detection"
)

// kafkaIngest is embedded by every survey adapter whose native alert
// stream is a Kafka topic (ZTF/Fink, LSST, ASAS-SN). It joins the
// survey's configured consumer group with
// enable.auto.commit=false/offset reset=earliest (spec.md §4.1: "on
// restart the adapter re-attaches at the last acknowledged position")
// and converts each raw payload via a survey-specific decode function.
type kafkaIngest struct {
	brokers []string
	topics  []string
	groupID string
	source  detection.Source
	logger  *slog.Logger

	decode func(raw []byte) (detection.DetectionEvent, error)
}

func newKafkaIngest(cfg config.SurveyConfig, source detection.Source, logger *slog.Logger, decode func([]byte) (detection.DetectionEvent, error)) kafkaIngest {
	brokers := []string{cfg.KafkaEndpoint}
	return kafkaIngest{
		brokers: brokers,
		topics:  cfg.KafkaTopics,
		groupID: cfg.KafkaGroupID,
		source:  source,
		logger:  logger,
		decode:  decode,
	}
}

func (k kafkaIngest) run(ctx context.Context, out chan<- detection.DetectionEvent) error {
	if k.groupID == "" || len(k.topics) == 0 {
		<-ctx.Done()
		return nil
	}

	group, err := detection.NewConsumerGroup(k.brokers, k.groupID)
	if err != nil {
		return fmt.Errorf("%s: join consumer group: %w", k.source, err)
	}
	defer group.Close()

	return detection.RunConsumerGroup(ctx, group, k.topics, k.logger, func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		ev, err := k.decode(msg.Value)
		if err != nil {
			return fmt.Errorf("%s: decode alert: %w", k.source, err)
		}
		select {
		case out <- ev:
		case <-ctx.Done():
		}
		return nil
	})
}

// mjdToTime converts a modified Julian date to an instant (UTC).
func mjdToTime(mjd float64) time.Time {
	const mjdEpochUnix = -3506716800.0 // 1858-11-17T00:00:00Z in Unix seconds
	seconds := mjdEpochUnix + mjd*86400.0
	return time.Unix(int64(seconds), int64((seconds-float64(int64(seconds)))*1e9)).UTC()
}

// decodeJSONMap is a convenience for adapters whose Kafka payload is a
// flat JSON object.
func decodeJSONMap(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
