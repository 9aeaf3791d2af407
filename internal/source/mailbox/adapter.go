// Package mailbox adapts an IMAP mailbox to the provider listing
// contract. The continuation cursor is the folder's UIDVALIDITY plus a
// UID high-water mark; a UIDVALIDITY change from the server invalidates
// the cursor and forces a full resync.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/nhle/pollwatch/internal/source"
)

// imapSession is the slice of IMAPClient the adapter consumes.
type imapSession interface {
	ListChanges(
		ctx context.Context,
		folder string,
		sinceUID, expectValidity uint32,
		limit int,
	) ([]Message, uint32, error)
	FetchMessage(ctx context.Context, folder string, uid uint32) (*ParsedMessage, error)
}

// Adapter implements source.Lister and source.Detailer for an IMAP
// mailbox.
type Adapter struct {
	session  imapSession
	host     string
	maxItems int

	// uids maps the URIs of the most recent listing back to their UIDs
	// so Attachments can fetch by UID. URIs prefer Message-IDs, which
	// the fetch commands cannot address directly.
	uids map[string]uint32
}

// NewAdapter creates a mailbox adapter over its own client handle.
// maxItems bounds how many messages one cycle may process.
func NewAdapter(host, port, username, password string, tls bool, maxItems int) *Adapter {
	return &Adapter{
		session:  NewIMAPClient(host, port, username, password, tls),
		host:     host,
		maxItems: maxItems,
	}
}

// List enumerates messages in folder with UIDs above the cursor's
// high-water mark. Mailbox listings are single-page: the cap on items
// per cycle bounds the page, and anything beyond it is picked up next
// cycle because the cursor only advances past processed messages.
func (a *Adapter) List(ctx context.Context, folder, cursor string) (*source.Page, error) {
	validity, lastUID, err := parseCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, source.ErrCursorInvalid)
	}

	messages, serverValidity, err := a.session.ListChanges(
		ctx, folder, lastUID, validity, a.maxItems,
	)
	if err != nil {
		return nil, err
	}

	a.uids = make(map[string]uint32, len(messages))

	page := &source.Page{}
	maxUID := lastUID
	for _, msg := range messages {
		item := a.toItem(folder, msg)
		page.Items = append(page.Items, item)
		a.uids[item.URI] = msg.UID
		maxUID = max(maxUID, msg.UID)
	}
	page.Cursor = formatCursor(serverValidity, maxUID)

	return page, nil
}

// FetchPage is never reachable for mailbox listings; List returns no
// next-page link.
func (a *Adapter) FetchPage(_ context.Context, link string) (*source.Page, error) {
	return nil, errors.New("mailbox listings are single-page: no link " + link)
}

// Attachments expands one listed message into attachment metadata by
// fetching and parsing its full MIME body. Only items from the most
// recent listing can be expanded.
func (a *Adapter) Attachments(
	ctx context.Context, folder string, item source.Item,
) ([]source.AttachmentInfo, error) {
	if item.Kind != source.KindContent {
		return nil, nil
	}

	uid, ok := a.uids[item.URI]
	if !ok {
		return nil, fmt.Errorf("message %s not present in the current listing", item.URI)
	}

	parsed, err := a.session.FetchMessage(ctx, folder, uid)
	if err != nil {
		return nil, err
	}

	return attachmentInfos(parsed), nil
}

// attachmentInfos strips attachment content down to metadata.
func attachmentInfos(parsed *ParsedMessage) []source.AttachmentInfo {
	var infos []source.AttachmentInfo
	for _, att := range parsed.Attachments {
		infos = append(infos, source.AttachmentInfo{
			Filename: att.Filename,
			Size:     att.Size,
			MIMEType: att.MIMEType,
		})
	}
	return infos
}

// toItem normalizes one message. The URI prefers the Message-ID, which
// is stable across UIDVALIDITY resets; messages without one fall back
// to their UID. A \Deleted flag marks the item as a deletion marker.
func (a *Adapter) toItem(folder string, msg Message) source.Item {
	kind := source.KindContent
	if slices.Contains(msg.Flags, `\Deleted`) {
		kind = source.KindDeleted
	}

	return source.Item{
		URI:        a.messageURI(folder, msg),
		Name:       msg.Subject,
		Kind:       kind,
		Version:    messageVersion(msg),
		Size:       msg.Size,
		ModifiedAt: msg.Date,
	}
}

// messageURI builds the provider-unique identifier for a message.
func (a *Adapter) messageURI(folder string, msg Message) string {
	if msg.MessageID != "" {
		return fmt.Sprintf(
			"imap://%s/%s/%s", a.host, folder, sanitizeID(msg.MessageID),
		)
	}
	return fmt.Sprintf("imap://%s/%s;uid=%d", a.host, folder, msg.UID)
}

// idUnsafeChars matches characters that are not safe inside a URI segment.
var idUnsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._@-]`)

func sanitizeID(s string) string {
	return idUnsafeChars.ReplaceAllString(s, "_")
}
