package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/pollwatch/internal/source"
)

// IMAPClient wraps go-imap v2 for connecting to and querying IMAP servers.
// Each operation dials its own connection; no connection state is shared.
type IMAPClient struct {
	host     string
	port     string
	username string
	password string
	tls      bool
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(host, port, username, password string, tls bool) *IMAPClient {
	return &IMAPClient{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
	}
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout on the returned client.
func (c *IMAPClient) Connect(_ context.Context) (*imapclient.Client, error) {
	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, &source.TransientError{
			Op:  "connecting to IMAP " + addr,
			Err: err,
		}
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &source.AuthError{
			Provider: "mailbox",
			Message: fmt.Sprintf(
				"authentication failed for %s: %v", c.username, err,
			),
		}
	}

	return client, nil
}

// ListChanges selects folder and returns messages with UIDs above
// sinceUID, oldest first, capped at limit, along with the folder's
// current UIDVALIDITY.
//
// When expectValidity is non-zero and differs from the server's value,
// every stored UID is meaningless and ErrCursorInvalid is returned.
func (c *IMAPClient) ListChanges(
	ctx context.Context,
	folder string,
	sinceUID uint32,
	expectValidity uint32,
	limit int,
) ([]Message, uint32, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = client.Logout().Wait() }()

	selData, err := client.Select(folder, nil).Wait()
	if err != nil {
		return nil, 0, fmt.Errorf("selecting %s: %w", folder, err)
	}

	validity := selData.UIDValidity
	if expectValidity != 0 && expectValidity != validity {
		return nil, validity, fmt.Errorf(
			"UIDVALIDITY changed from %d to %d: %w",
			expectValidity, validity, source.ErrCursorInvalid,
		)
	}

	var uidRange imap.UIDSet
	uidRange.AddRange(imap.UID(sinceUID+1), 0)

	searchData, err := client.UIDSearch(&imap.SearchCriteria{
		UID: []imap.UIDSet{uidRange},
	}, nil).Wait()
	if err != nil {
		return nil, validity, fmt.Errorf("searching %s: %w", folder, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, validity, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	// Take the oldest messages first so the cursor's high-water mark
	// stays contiguous; the remainder is picked up next cycle.
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}

	uidSet := imap.UIDSetNum(uids...)

	fetchOpts := &imap.FetchOptions{
		Envelope:   true,
		Flags:      true,
		UID:        true,
		RFC822Size: true,
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var messages []Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			// Skipping one message would let the cursor's high-water
			// mark advance past it, dropping it for good. Fail the
			// whole batch; the next cycle retries from the same mark.
			return nil, validity, &source.TransientError{
				Op:  "collecting message data from " + folder,
				Err: err,
			}
		}

		messages = append(messages, messageFromBuffer(buf))
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, validity, fmt.Errorf("fetching messages: %w", err)
	}

	return messages, validity, nil
}

// FetchMessage selects folder and fetches the full message body for the
// given UID, parsing it into a ParsedMessage.
func (c *IMAPClient) FetchMessage(
	ctx context.Context, folder string, uid uint32,
) (*ParsedMessage, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", folder, err)
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))

	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}

	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		RFC822Size:  true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found in %s", uid, folder)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message data: %w", err)
	}

	parsed := &ParsedMessage{
		Message: messageFromBuffer(buf),
	}

	rawBody := buf.FindBodySection(bodySection)
	if rawBody != nil {
		textBody, htmlBody, attachments := parseMIMEBody(rawBody)
		parsed.TextBody = textBody
		parsed.HTMLBody = htmlBody
		parsed.Attachments = attachments
	}

	if err := fetchCmd.Close(); err != nil {
		return parsed, fmt.Errorf("closing fetch: %w", err)
	}

	return parsed, nil
}

// messageFromBuffer extracts a Message from a FetchMessageBuffer.
func messageFromBuffer(buf *imapclient.FetchMessageBuffer) Message {
	msg := Message{
		UID:  uint32(buf.UID),
		Size: buf.RFC822Size,
	}

	if buf.Envelope != nil {
		msg.MessageID = buf.Envelope.MessageID
		msg.Subject = buf.Envelope.Subject
		msg.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			if from.Name != "" {
				msg.From = from.Name
			} else {
				msg.From = from.Addr()
			}
		}
	}

	for _, flag := range buf.Flags {
		msg.Flags = append(msg.Flags, string(flag))
	}

	return msg
}

// parseMIMEBody parses a raw RFC 2822 message body using go-message and
// extracts the text/plain body, text/html body, and attachments. This is
// the explicit accessor for attachment content at the adapter boundary;
// callers never dig into provider payloads themselves.
func parseMIMEBody(raw []byte) (
	textBody string, htmlBody string, attachments []Attachment,
) {
	reader := bytes.NewReader(raw)

	mr, err := mail.CreateReader(reader)
	if err != nil {
		// If parsing fails, treat the whole thing as plain text.
		return string(raw), "", nil
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				textBody = string(body)
			case strings.HasPrefix(contentType, "text/html"):
				htmlBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			attachments = append(attachments, Attachment{
				Filename: filename,
				Size:     int64(len(body)),
				MIMEType: contentType,
				Content:  body,
			})
		}
	}

	return textBody, htmlBody, attachments
}
