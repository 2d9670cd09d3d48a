package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Shopify/sarama"
)

// Bus is the Kafka-backed transport for DetectionEvents and
// MatchCandidates. Adapters publish DetectionEvents through it; the
// matcher and reconciler consume from it via per-component consumer
// groups with manual offset commit.
type Bus struct {
	producer sarama.SyncProducer
	logger   *slog.Logger
}

// NewBus dials brokers and returns a Bus whose producer requires acks
// from all in-sync replicas before a publish is considered durable.
func NewBus(brokers []string, logger *slog.Logger) (*Bus, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("detection: new producer: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{producer: producer, logger: logger}, nil
}

// Close releases the underlying producer connection.
func (b *Bus) Close() error {
	return b.producer.Close()
}

// PublishDetection sends a DetectionEvent to topic, keyed by obj_id so
// all detections for the same object land on the same partition.
func (b *Bus) PublishDetection(topic string, ev DetectionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("detection: marshal event: %w", err)
	}
	_, _, err = b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(ev.ObjID),
		Value: sarama.ByteEncoder(payload),
	})
	return err
}

// PublishCandidate sends a MatchCandidate to the hits sink topic, keyed
// by ObjID1 per spec (§4.2: "MatchCandidate records published to the
// spark-sink topic keyed by obj_id_1").
func (b *Bus) PublishCandidate(topic string, mc MatchCandidate) error {
	payload, err := json.Marshal(mc)
	if err != nil {
		return fmt.Errorf("detection: marshal candidate: %w", err)
	}
	_, _, err = b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(mc.ObjID1),
		Value: sarama.ByteEncoder(payload),
	})
	return err
}

// ConsumerGroupHandler adapts a per-message callback to
// sarama.ConsumerGroupHandler. ConsumeClaim marks each message on the
// session after the callback returns, whether or not the callback
// returned an error, except when the callback fails after the session
// context was cancelled: that message is left unmarked and ConsumeClaim
// returns. The callback does not mark messages itself.
type ConsumerGroupHandler struct {
	OnMessage func(ctx context.Context, msg *sarama.ConsumerMessage) error
	logger    *slog.Logger
}

func (h *ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *ConsumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.OnMessage(sess.Context(), msg); err != nil {
				if sess.Context().Err() != nil {
					// Shutdown interrupted this message: leave it
					// unmarked so it is redelivered after restart.
					return nil
				}
				if h.logger != nil {
					h.logger.Error("consume claim: handler failed",
						"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
						"error", err,
					)
				}
				// Per spec: commit offset after successful transaction OR
				// after a terminal error is logged — either way the
				// pipeline must not block on a single bad message.
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

// NewConsumerGroup joins groupID against brokers with
// enable.auto.commit=false and offset reset=earliest, per spec §5/§8.
func NewConsumerGroup(brokers []string, groupID string) (sarama.ConsumerGroup, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Return.Errors = true

	return sarama.NewConsumerGroup(brokers, groupID, cfg)
}

// RunConsumerGroup joins group on topics and dispatches each claimed
// message to onMessage until ctx is cancelled. It reconnects to a new
// session automatically after each rebalance, following the standard
// sarama.ConsumerGroup usage pattern of looping Consume in a for loop.
func RunConsumerGroup(ctx context.Context, group sarama.ConsumerGroup, topics []string, logger *slog.Logger, onMessage func(ctx context.Context, msg *sarama.ConsumerMessage) error) error {
	handler := &ConsumerGroupHandler{OnMessage: onMessage, logger: logger}

	go func() {
		for err := range group.Errors() {
			if logger != nil {
				logger.Error("consumer group error", "error", err)
			}
		}
	}()

	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("detection: consume: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
