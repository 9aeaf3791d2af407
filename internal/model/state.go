package model

import "time"

// CursorKey is the reserved StateMap key under which the provider
// continuation token is stored. It never names a real resource.
const CursorKey = "$cursor"

// StateEntry records the last observation of a single remote resource.
type StateEntry struct {
	// URI is the provider-unique identifier of the resource.
	URI string `json:"uri"`

	// Version is an opaque change signal (ETag, size, flag set, ...).
	// It is compared by equality only; no ordering is assumed.
	Version string `json:"version"`

	// FirstSeenAt is when the resource was first observed by this trigger.
	FirstSeenAt time.Time `json:"first_seen_at"`

	// LastSeenAt is when the resource was most recently observed.
	LastSeenAt time.Time `json:"last_seen_at"`
}

// StateMap is the persisted per-trigger state: every known resource URI
// mapped to its last observation, plus the reserved cursor entry.
type StateMap map[string]StateEntry

// Cursor returns the stored continuation token, or "" if none is stored.
func (m StateMap) Cursor() string {
	return m[CursorKey].Version
}

// SetCursor stores token under the reserved cursor key.
// An empty token clears the cursor instead.
func (m StateMap) SetCursor(token string, now time.Time) {
	if token == "" {
		m.ClearCursor()
		return
	}
	entry, ok := m[CursorKey]
	if !ok {
		entry = StateEntry{URI: CursorKey, FirstSeenAt: now}
	}
	entry.Version = token
	entry.LastSeenAt = now
	m[CursorKey] = entry
}

// ClearCursor removes the stored continuation token.
func (m StateMap) ClearCursor() {
	delete(m, CursorKey)
}

// IsFirstRun reports whether the map holds no resource observations yet:
// the map is empty, or contains only the reserved cursor entry. The first
// evaluation for a trigger runs in baseline mode and fires nothing.
func (m StateMap) IsFirstRun() bool {
	switch len(m) {
	case 0:
		return true
	case 1:
		_, onlyCursor := m[CursorKey]
		return onlyCursor
	}
	return false
}

// Prune removes every resource entry whose LastSeenAt is older than
// now - ttl, returning the number of entries removed. The cursor entry
// is exempt: it is refreshed on every successful enumeration and pruning
// it would force a full resync whenever resource entries expire.
// A non-positive ttl disables pruning.
func (m StateMap) Prune(ttl time.Duration, now time.Time) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-ttl)
	pruned := 0
	for uri, entry := range m {
		if uri == CursorKey {
			continue
		}
		if entry.LastSeenAt.Before(cutoff) {
			delete(m, uri)
			pruned++
		}
	}
	return pruned
}
