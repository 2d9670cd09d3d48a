package mail

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tarxiv/tarxiv/internal/events"
)

// AlertHandler is invoked once per extracted object name. Returning an
// error leaves the source message unmarked so it is retried on the
// next poll cycle.
type AlertHandler func(ctx context.Context, objectName string) error

// Listener polls a single mailbox for unseen TNS notification emails,
// extracts candidate object names from each body, and hands them to an
// AlertHandler. It mirrors the polling-loop shape of the agent's email
// poller, but drives off IMAP's own \Seen flag as the durable
// high-water mark instead of a separately persisted UID — matching the
// one-shot, at-least-once semantics of the original IMAP monitor.
type Listener struct {
	client   *Client
	handler  AlertHandler
	interval time.Duration
	folder   string
	logger   *slog.Logger
	bus      *events.Bus
}

// NewListener creates a mailbox listener. interval controls how often
// the mailbox is polled for new unseen mail.
func NewListener(client *Client, handler AlertHandler, interval time.Duration, logger *slog.Logger, bus *events.Bus) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Listener{
		client:   client,
		handler:  handler,
		interval: interval,
		folder:   "INBOX",
		logger:   logger,
		bus:      bus,
	}
}

// Run polls until ctx is canceled. A failed poll cycle is logged and
// retried on the next tick rather than treated as fatal — the listener
// reconnects transparently via Client.ensureConnected on the IMAP
// session's next use.
func (l *Listener) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	if err := l.poll(ctx); err != nil {
		l.logger.Warn("mail poll failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.poll(ctx); err != nil {
				l.logger.Warn("mail poll failed", "error", err)
			}
		}
	}
}

// poll runs one check-and-dispatch cycle over unseen messages.
func (l *Listener) poll(ctx context.Context) error {
	l.bus.Publish(events.Event{Timestamp: pollTime(), Source: events.SourceMail, Kind: events.KindPollStart})

	messages, err := l.client.ListMessages(ctx, ListOptions{
		Folder:   l.folder,
		Unseen:   true,
		WithBody: true,
	})
	if err != nil {
		return err
	}

	var processed int
	for _, msg := range messages {
		names := ExtractAlertNames(msg.Body)
		if len(names) == 0 {
			l.logger.Warn("no alert names found in message, marking seen to avoid reprocessing",
				"uid", msg.UID, "subject", msg.Subject)
			l.markSeen(ctx, msg.UID)
			continue
		}

		var failed error
		for _, name := range names {
			if err := l.handler(ctx, name); err != nil {
				failed = errors.Join(failed, err)
				l.logger.Error("alert handler failed", "object", name, "uid", msg.UID, "error", err)
			}
		}

		if failed != nil {
			// Leave unseen: the next poll cycle retries this message.
			continue
		}

		l.markSeen(ctx, msg.UID)
		processed++
	}

	l.bus.Publish(events.Event{
		Timestamp: pollTime(),
		Source:    events.SourceMail,
		Kind:      events.KindPollComplete,
		Data:      map[string]any{"new_messages": processed},
	})

	return nil
}

func (l *Listener) markSeen(ctx context.Context, uid uint32) {
	err := l.client.MarkMessages(ctx, MarkAction{
		UIDs:   []uint32{uid},
		Folder: l.folder,
		Flag:   "seen",
		Add:    true,
	})
	if err != nil {
		l.logger.Warn("failed to mark message seen", "uid", uid, "error", err)
	}
}

// pollTime is a seam so tests can avoid depending on wall-clock time
// if they ever stub the event bus; production code always calls
// time.Now.
var pollTime = time.Now
