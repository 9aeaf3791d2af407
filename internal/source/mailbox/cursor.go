package mailbox

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// A mailbox cursor encodes the folder's UIDVALIDITY and the highest UID
// already processed, as "validity:uid". UIDs only mean anything within
// one UIDVALIDITY generation, so both halves travel together.

// formatCursor encodes a cursor token.
func formatCursor(validity, lastUID uint32) string {
	return fmt.Sprintf("%d:%d", validity, lastUID)
}

// parseCursor decodes a cursor token. An empty token means "no cursor";
// a malformed one is reported as invalid so the caller resyncs.
func parseCursor(cursor string) (validity, lastUID uint32, err error) {
	if cursor == "" {
		return 0, 0, nil
	}

	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed mailbox cursor %q", cursor)
	}

	v, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed mailbox cursor %q: %w", cursor, err)
	}
	u, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed mailbox cursor %q: %w", cursor, err)
	}

	return uint32(v), uint32(u), nil
}

// messageVersion derives the opaque change signal for a message: its
// size plus the sorted flag set. IMAP has no entity tag, so a flag
// change (read, flagged, answered) is what "the message changed" means
// here. Compared by equality only.
func messageVersion(msg Message) string {
	flags := make([]string, len(msg.Flags))
	copy(flags, msg.Flags)
	sort.Strings(flags)

	return fmt.Sprintf("%d/%s", msg.Size, strings.Join(flags, ","))
}
