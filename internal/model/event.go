package model

import "time"

// Candidate is one observation of a remote resource during a single poll
// tick, before it has been compared against stored state.
type Candidate struct {
	URI        string
	Version    string
	ObservedAt time.Time
}

// FireDecision is the outcome of evaluating one Candidate.
type FireDecision struct {
	// IsNew is true when the resource had no stored state entry.
	IsNew bool

	// Fire is true when the candidate belongs in this tick's emitted batch.
	Fire bool
}

// ResourceSummary describes one fired resource in an emitted batch.
type ResourceSummary struct {
	URI        string    `json:"uri"`
	Name       string    `json:"name"`
	Version    string    `json:"version,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
	IsNew      bool      `json:"is_new"`

	// Attachments lists payload metadata for providers that expose it
	// (mailbox messages); empty for the rest.
	Attachments []AttachmentSummary `json:"attachments,omitempty"`
}

// AttachmentSummary is attachment metadata on a fired resource.
type AttachmentSummary struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mime_type"`
}

// BatchEvent is the output of one firing tick: the fired resources in
// provider enumeration order. Ticks with nothing to report emit no event.
type BatchEvent struct {
	ID    string            `json:"id"`
	Items []ResourceSummary `json:"items"`
	Count int               `json:"count"`
}
