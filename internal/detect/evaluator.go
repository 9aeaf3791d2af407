// Package detect holds the change-detection core: the pure candidate
// evaluator and the pagination walker. Neither touches persistence.
package detect

import (
	"github.com/nhle/pollwatch/internal/model"
)

// Evaluate classifies one observed resource against recorded state and
// updates the state map in place.
//
// A candidate with no stored entry is new: it is recorded with
// FirstSeenAt = ObservedAt and fires under CREATE and CREATE_OR_UPDATE.
// A candidate whose version differs from the stored one is changed: the
// entry's version and LastSeenAt are replaced, FirstSeenAt is kept, and
// it fires under UPDATE and CREATE_OR_UPDATE. An identical version only
// touches LastSeenAt and never fires, even if unrelated metadata differs.
func Evaluate(state model.StateMap, c model.Candidate, mode model.Mode) model.FireDecision {
	existing, ok := state[c.URI]
	if !ok {
		state[c.URI] = model.StateEntry{
			URI:         c.URI,
			Version:     c.Version,
			FirstSeenAt: c.ObservedAt,
			LastSeenAt:  c.ObservedAt,
		}
		return model.FireDecision{IsNew: true, Fire: mode.FiresOnCreate()}
	}

	if existing.Version != c.Version {
		state[c.URI] = model.StateEntry{
			URI:         c.URI,
			Version:     c.Version,
			FirstSeenAt: existing.FirstSeenAt,
			LastSeenAt:  c.ObservedAt,
		}
		return model.FireDecision{Fire: mode.FiresOnUpdate()}
	}

	existing.LastSeenAt = c.ObservedAt
	state[c.URI] = existing
	return model.FireDecision{}
}
