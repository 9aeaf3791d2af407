package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AuthError indicates that authentication has failed or expired for a
// provider. It is returned by clients on a 401 response or a rejected login.
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// TransientError indicates a temporary provider failure (rate limiting,
// unavailability, network timeout). Callers skip the current tick and rely
// on the next scheduled one.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError.
func IsTransient(err error) bool {
	var tErr *TransientError
	return errors.As(err, &tErr)
}

// ErrCursorInvalid is returned when the provider reports that the stored
// continuation cursor is stale or expired. The caller clears the cursor
// and performs a full resync on the next tick.
var ErrCursorInvalid = errors.New("continuation cursor invalidated")

// Kind classifies an enumerated item.
type Kind string

const (
	// KindContent is a trackable resource (a file, a message).
	KindContent Kind = "content"

	// KindContainer is a folder or mailbox; never tracked.
	KindContainer Kind = "container"

	// KindDeleted is a deletion marker; never tracked.
	KindDeleted Kind = "deleted"
)

// Item is one enumerated remote resource in provider-normalized form.
type Item struct {
	// URI is the provider-unique identifier of the resource.
	URI string

	// Name is the display name (file name, message subject).
	Name string

	// Kind classifies the item; only KindContent is trackable.
	Kind Kind

	// Version is the opaque change signal for this item. Each adapter
	// normalizes its provider's strongest signal (ETag, else size, else
	// absent); consumers compare by equality only.
	Version string

	// Size is the resource size in bytes, when known.
	Size int64

	// ModifiedAt is the last modification time, falling back to the
	// creation time when the provider reports no modification time.
	ModifiedAt time.Time
}

// Page is one page of a remote listing.
type Page struct {
	Items []Item

	// NextLink, when non-empty, fetches the next page of this enumeration.
	NextLink string

	// Cursor, when non-empty, is a new continuation token. The final
	// page's cursor supersedes any intermediate ones.
	Cursor string
}

// Lister is the contract every listing provider adapter implements.
type Lister interface {
	// List starts an enumeration of target, optionally resuming from a
	// previously stored cursor. Returns ErrCursorInvalid (possibly
	// wrapped) when the provider rejects the cursor as stale.
	List(ctx context.Context, target, cursor string) (*Page, error)

	// FetchPage retrieves a subsequent page by its NextLink.
	FetchPage(ctx context.Context, link string) (*Page, error)
}

// AttachmentInfo summarizes one attachment of a fired resource. It
// carries metadata only, never content.
type AttachmentInfo struct {
	Filename string
	Size     int64
	MIMEType string
}

// Detailer is optionally implemented by adapters whose resources carry
// payloads worth summarizing. Enumeration stays cheap; the expansion
// runs only for items that fire, against the listing that produced them.
type Detailer interface {
	Attachments(ctx context.Context, target string, item Item) ([]AttachmentInfo, error)
}
