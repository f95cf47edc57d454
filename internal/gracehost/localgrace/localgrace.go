// Package localgrace mirrors the grace engine's per-node flags in memory so
// the hot per-request path never blocks on the object store.
//
// Adapted from the active-bool-under-mutex shape of
// internal/adapter/nfs/v4/state/grace.go's GracePeriodState, trimmed of its
// local timer: in this protocol an epoch's lifetime is driven by the
// distributed grace engine (another node's done/lift call can end it), not
// by a fixed local duration, so there is nothing for a timer to count down.
package localgrace

import "sync"

// LocalGrace caches the two facts the per-request path needs without a
// network round trip: whether this node is currently enforcing grace, and
// which reclaim epoch (R) it is tracking, if any.
type LocalGrace struct {
	mu        sync.RWMutex
	enforcing bool
	epoch     uint64 // 0 when not tracking an active reclaim epoch
}

// New returns a LocalGrace with enforcing=false and no tracked epoch.
func New() *LocalGrace {
	return &LocalGrace{}
}

// ResyncEnforcing updates the cached enforcing flag. Called after every
// successful set_enforcing.
func (g *LocalGrace) ResyncEnforcing(enforcing bool) {
	g.mu.Lock()
	g.enforcing = enforcing
	g.mu.Unlock()
}

// IsEnforcing reports the cached enforcing flag. This is the hot path:
// GraceEnforcing must never block on the object store.
func (g *LocalGrace) IsEnforcing() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enforcing
}

// EnterEpoch records that local grace processing has begun for the given
// reclaim epoch. Returns false if the node was already tracking this exact
// epoch (maybe_start_grace is idempotent: a duplicate notify for the same R
// must not re-trigger client-record copying).
func (g *LocalGrace) EnterEpoch(epoch uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch == epoch {
		return false
	}
	g.epoch = epoch
	return true
}

// Epoch returns the reclaim epoch (R) currently tracked, or 0 if none.
// end_grace uses this to name the old recovery object being retired.
func (g *LocalGrace) Epoch() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.epoch
}

// ExitEpoch clears the tracked epoch once end_grace has completed.
func (g *LocalGrace) ExitEpoch() {
	g.mu.Lock()
	g.epoch = 0
	g.mu.Unlock()
}
