// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from pipeline components (survey adapters,
// mail listener, matcher, reconciler, fusion) to subscribers (the
// operator API, future metrics collector). The bus is nil-safe: calling
// Publish on a nil *Bus is a no-op, so components do not need guard
// checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceAdapter identifies events from a survey source adapter
	// (ATLAS, ZTF, ASAS-SN, LSST, TNS).
	SourceAdapter = "adapter"
	// SourceMail identifies events from the IMAP alert listener.
	SourceMail = "mail"
	// SourceMatcher identifies events from the spatial stream matcher.
	SourceMatcher = "matcher"
	// SourceReconciler identifies events from the match reconciler.
	SourceReconciler = "reconciler"
	// SourceFusion identifies events from the light-curve fusion pipeline.
	SourceFusion = "fusion"
	// SourceNotify identifies events from the change-notice publisher.
	SourceNotify = "notify"
)

// Kind constants describe the type of event within a source.
const (
	// KindPollStart signals the start of a source adapter or mail poll cycle.
	// Data: none.
	KindPollStart = "poll_start"
	// KindPollComplete signals the end of a poll cycle.
	// Data: new_messages.
	KindPollComplete = "poll_complete"

	// KindDetectionIngested signals a single detection was normalized
	// and published to the detection bus.
	// Data: survey, detection_id, ra, dec.
	KindDetectionIngested = "detection_ingested"

	// KindMatchCandidate signals the matcher emitted a candidate pair.
	// Data: survey_a, survey_b, separation_arcsec.
	KindMatchCandidate = "match_candidate"
	// KindWindowEvicted signals a declination-bucket window was
	// evicted from the matcher's in-memory partition.
	// Data: bucket, evicted_count.
	KindWindowEvicted = "window_evicted"

	// KindHitCreated signals a new CrossMatchHit was minted.
	// Data: xmatch_id, survey_a, survey_b.
	KindHitCreated = "hit_created"
	// KindHitExtended signals an existing CrossMatchHit gained another
	// survey's identifier.
	// Data: xmatch_id, survey.
	KindHitExtended = "hit_extended"

	// KindObjectUpdated signals the fusion pipeline wrote a changed
	// object metadata document.
	// Data: object_name, status (new_entry|updated_entry), fields.
	KindObjectUpdated = "object_updated"

	// KindNoticePublished signals a change notice was published to the
	// subscriber bus.
	// Data: topic, object_name.
	KindNoticePublished = "notice_published"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
