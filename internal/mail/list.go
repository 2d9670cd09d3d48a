package mail

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// ListMessages returns matching messages from the specified folder,
// oldest-first. When opts.Unseen is true, only messages without the
// \Seen flag are returned. When opts.WithBody is true, the full body is
// fetched via BODY.PEEK[], which does not itself set \Seen — callers
// that later decide the message was successfully handled must mark it
// \Seen explicitly via MarkMessages.
func (c *Client) ListMessages(ctx context.Context, opts ListOptions) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	folder := opts.Folder
	if folder == "" {
		folder = "INBOX"
	}

	if _, err := c.selectFolder(folder); err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{}
	if opts.Unseen {
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
	}

	searchCmd := c.client.UIDSearch(criteria, nil)
	searchData, err := searchCmd.Wait()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", folder, err)
	}

	allUIDs := searchData.AllUIDs()
	if len(allUIDs) == 0 {
		return nil, nil
	}

	uidSet := imap.UIDSet{}
	for _, uid := range allUIDs {
		uidSet.AddNum(uid)
	}

	return c.fetchMessages(uidSet, opts.WithBody)
}

// fetchMessages fetches envelope (and optionally body) data for the
// given UIDs. Caller must hold c.mu and have a selected folder.
func (c *Client) fetchMessages(uidSet imap.UIDSet, withBody bool) ([]Message, error) {
	fetchOpts := &imap.FetchOptions{
		UID:        true,
		Envelope:   true,
		Flags:      true,
		RFC822Size: true,
	}
	if withBody {
		fetchOpts.BodySection = []*imap.FetchItemBodySection{{Peek: true}}
	}

	fetchCmd := c.client.Fetch(uidSet, fetchOpts)

	var messages []Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		m, err := c.parseMessageData(msg)
		if err != nil {
			c.logger.Debug("skipping message", "error", err)
			continue
		}
		messages = append(messages, m)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	// Oldest-first by UID.
	sort.Slice(messages, func(i, j int) bool { return messages[i].UID < messages[j].UID })

	return messages, nil
}

// parseMessageData extracts a Message from IMAP fetch response items.
func (c *Client) parseMessageData(msg *imapclient.FetchMessageData) (Message, error) {
	var m Message

	for {
		item := msg.Next()
		if item == nil {
			break
		}

		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			m.UID = uint32(data.UID)
		case imapclient.FetchItemDataFlags:
			for _, f := range data.Flags {
				m.Flags = append(m.Flags, string(f))
			}
		case imapclient.FetchItemDataRFC822Size:
			m.Size = uint32(data.Size)
		case imapclient.FetchItemDataEnvelope:
			if data.Envelope != nil {
				m.Date = data.Envelope.Date
				m.Subject = data.Envelope.Subject
				if len(data.Envelope.From) > 0 {
					m.From = formatAddress(data.Envelope.From[0])
				}
				for _, addr := range data.Envelope.To {
					m.To = append(m.To, formatAddress(addr))
				}
			}
		case imapclient.FetchItemDataBodySection:
			if data.Literal != nil {
				body, err := io.ReadAll(data.Literal)
				if err != nil {
					drainLiteral(data.Literal)
				} else {
					m.Body = body
				}
			}
		}
	}

	if m.UID == 0 {
		return m, fmt.Errorf("message missing UID")
	}

	return m, nil
}

// formatAddress formats an IMAP address as "Name <user@host>" or just
// "user@host" if no name is set.
func formatAddress(addr imap.Address) string {
	email := addr.Addr()
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, email)
	}
	return email
}
