package mailbox

import "time"

// Message holds the listing-relevant data of one IMAP message.
type Message struct {
	UID       uint32
	MessageID string
	Subject   string
	From      string
	Date      time.Time
	Flags     []string // \Seen, \Flagged, \Answered, \Deleted
	Size      int64
}

// ParsedMessage holds the full parsed content of a message, retrieved
// on demand through the adapter's detail accessor.
type ParsedMessage struct {
	Message     Message
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment holds one attachment's metadata and content.
type Attachment struct {
	Filename string
	Size     int64
	MIMEType string
	Content  []byte
}
