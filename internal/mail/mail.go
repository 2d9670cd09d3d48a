// Package mail implements the IMAP alert listener: it watches a mailbox
// for TNS (and other survey) notification emails, scrapes candidate
// object names out of each message body, and hands them off to the
// pipeline for a TNS lookup. It replaces the agent's general-purpose
// multi-account email tool surface with the single-mailbox, read-only
// listener spec.md §6 describes.
package mail

import (
	"io"
	"time"

	"github.com/emersion/go-imap/v2"
)

// drainLiteral reads and discards the contents of an IMAP literal
// reader. Used when a fetch response carries a section we don't need
// (e.g. flags-only fetches that still surface a body section item).
func drainLiteral(r imap.LiteralReader) {
	if r == nil {
		return
	}
	_, _ = io.Copy(io.Discard, r)
}

// Envelope is the summary metadata for a mailbox message.
type Envelope struct {
	UID     uint32
	Date    time.Time
	From    string
	To      []string
	Subject string
	Flags   []string
	Size    uint32
}

// Message is a fetched message with its raw body attached, ready for
// alert-name extraction.
type Message struct {
	Envelope
	Body []byte
}

// ListOptions controls ListMessages behavior.
type ListOptions struct {
	// Folder is the mailbox to list from. Default: "INBOX".
	Folder string
	// Unseen restricts the listing to unseen messages only.
	Unseen bool
	// WithBody fetches the full body (via BODY.PEEK[], which does not
	// set \Seen) in addition to envelope metadata.
	WithBody bool
}

// MarkAction describes a flag operation on one or more messages.
type MarkAction struct {
	UIDs   []uint32
	Folder string
	Flag   string
	Add    bool
}

var validFlags = map[string]string{
	"seen":     `\Seen`,
	"flagged":  `\Flagged`,
	"answered": `\Answered`,
}

// ValidFlag reports whether the given flag name is supported and
// returns the corresponding IMAP flag string.
func ValidFlag(name string) (string, bool) {
	f, ok := validFlags[name]
	return f, ok
}
