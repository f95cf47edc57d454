// Package clienttrack tracks which of a node's local NFS clients have
// individually completed reclaim during a grace period, and reports when
// the last expected one has — the signal the host uses to make exactly one
// try_lift_grace call per local grace window rather than one per client.
//
// Adapted from the expected/reclaimed-set bookkeeping and early-exit check
// in pkg/metadata/lock/grace.go's GracePeriodManager, trimmed of its
// timer-based exit and state-machine getters: this package answers one
// question (has everyone reclaimed?) on behalf of the cluster-level engine,
// which owns the actual end-of-grace decision.
package clienttrack

import "sync"

// Tracker accumulates per-local-client reclaim events for a single grace
// window.
type Tracker struct {
	mu        sync.Mutex
	active    bool
	expected  map[string]bool
	reclaimed map[string]bool
}

// New returns an idle Tracker.
func New() *Tracker {
	return &Tracker{expected: make(map[string]bool), reclaimed: make(map[string]bool)}
}

// Start begins tracking a new grace window for the given set of local
// client IDs expected to reclaim. A no-op if a window is already active, so
// a duplicate maybe_start_grace wake does not reset progress already made.
func (t *Tracker) Start(expectedClientIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active {
		return
	}

	t.active = true
	t.expected = make(map[string]bool, len(expectedClientIDs))
	for _, id := range expectedClientIDs {
		t.expected[id] = true
	}
	t.reclaimed = make(map[string]bool)
}

// MarkReclaimed records that clientID has completed reclaim. It returns
// true exactly once per window: when this call observes that every
// expected client has now reclaimed. The caller should treat a true return
// as "call done/try_lift_grace now".
func (t *Tracker) MarkReclaimed(clientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active || !t.expected[clientID] {
		return false
	}

	t.reclaimed[clientID] = true
	if len(t.reclaimed) < len(t.expected) {
		return false
	}

	t.active = false
	return true
}

// Active reports whether a grace window is currently being tracked.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Reset discards any in-progress window, used when the host forces grace
// to end (e.g. end_grace called directly without every client reclaiming).
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.active = false
	t.expected = make(map[string]bool)
	t.reclaimed = make(map[string]bool)
	t.mu.Unlock()
}
