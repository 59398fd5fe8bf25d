// Package resolve merges realtime events into local client state.
// Network jitter and reconnects can deliver events out of order, so the
// rules here are last-writer-wins on server-assigned timestamps, never on
// arrival order.
package resolve

import "time"

// Versioned is any record with a stable identity and a server-assigned,
// monotonically increasing update timestamp.
type Versioned interface {
	Identity() string
	Version() time.Time
}

// ShouldApply reports whether incoming should replace current. A missing
// current record always applies. Otherwise the comparison is strict:
// equal timestamps are duplicates and are dropped, not reapplied.
func ShouldApply[T Versioned](current *T, incoming T) bool {
	if current == nil {
		return true
	}
	return incoming.Version().After((*current).Version())
}

// Upsert applies incoming to list under the ShouldApply rule, replacing a
// stale entry in place or appending a first-seen one. Returns a new slice;
// the input is not mutated.
func Upsert[T Versioned](list []T, incoming T) []T {
	out := make([]T, len(list))
	copy(out, list)
	for i := range out {
		if out[i].Identity() == incoming.Identity() {
			if ShouldApply(&out[i], incoming) {
				out[i] = incoming
			}
			return out
		}
	}
	return append(out, incoming)
}

// MergeList folds an incoming snapshot into current state entry by entry,
// keeping whichever version of each record is newer and preserving local
// entries the snapshot does not mention.
func MergeList[T Versioned](current, incoming []T) []T {
	out := make([]T, len(current))
	copy(out, current)
	for _, in := range incoming {
		out = Upsert(out, in)
	}
	return out
}
