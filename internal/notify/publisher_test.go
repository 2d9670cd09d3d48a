package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/Shopify/sarama/mocks"
)

func testPublisher(t *testing.T) (*Publisher, *mocks.SyncProducer) {
	t.Helper()
	producer := mocks.NewSyncProducer(t, nil)
	t.Cleanup(func() { _ = producer.Close() })
	return &Publisher{producer: producer, logger: slog.Default()}, producer
}

func TestPublishStampsTimestampOnObjectNotices(t *testing.T) {
	p, producer := testPublisher(t)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope map[string]any
		if err := json.Unmarshal(val, &envelope); err != nil {
			return err
		}
		if _, ok := envelope["timestamp"]; !ok {
			return fmt.Errorf("published notice has no timestamp field: %s", val)
		}
		return nil
	})

	if err := p.Publish(TopicTNS, map[string]any{"obj_name": "2024abc"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestPublishReturnsErrorOnSendFailure(t *testing.T) {
	p, producer := testPublisher(t)
	producer.ExpectSendMessageAndFail(errBroker)

	if err := p.Publish(TopicXMatch, map[string]any{"obj_id_1": "ATLAS25aaa"}); err == nil {
		t.Fatal("expected error from failed send")
	}
}

func TestPublishRejectsUnmarshalableNotice(t *testing.T) {
	p, _ := testPublisher(t)

	if err := p.Publish(TopicTNS, make(chan int)); err == nil {
		t.Fatal("expected marshal error for an unmarshalable notice")
	}
}

func TestPublishEnvelopeRoundTrips(t *testing.T) {
	// Verify that an object notice survives the JSON marshal/unmarshal
	// round trip Publish uses to build its envelope, with the original
	// fields preserved. Publish itself and the timestamp are not involved.
	notice := map[string]any{"obj_name": "2024abc", "status": "new_entry"}
	payload, err := json.Marshal(notice)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal(payload, &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope["obj_name"] != "2024abc" || envelope["status"] != "new_entry" {
		t.Fatalf("unexpected envelope: %v", envelope)
	}
}

var errBroker = &brokerError{"mock broker unavailable"}

type brokerError struct{ msg string }

func (e *brokerError) Error() string { return e.msg }
