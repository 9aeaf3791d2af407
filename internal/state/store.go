package state

import (
	"context"
	"time"

	"github.com/nhle/pollwatch/internal/model"
)

// Store persists per-trigger state maps under opaque string keys.
//
// Distinct keys are fully independent; the surrounding system guarantees
// at most one concurrent evaluation per key, so implementations perform
// no compare-and-swap of their own.
type Store interface {
	// Read loads the state map stored under key, dropping any resource
	// entry whose LastSeenAt is older than ttl before returning.
	// A missing key yields an empty map (first run).
	Read(ctx context.Context, key string, ttl time.Duration) (model.StateMap, error)

	// Write persists the full map under key, atomically from the
	// caller's point of view.
	Write(ctx context.Context, key string, m model.StateMap) error

	// Delete removes all state stored under key.
	Delete(ctx context.Context, key string) error
}
