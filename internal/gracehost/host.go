// Package gracehost binds graceengine operations to host lifecycle events,
// implementing the contracts from spec.md §4.2: init, read_clids,
// maybe_start_grace, set_enforcing/grace_enforcing, try_lift_grace,
// end_grace, shutdown, and is_member. The NFS server itself — its recovery
// databases, its client and lock state — is out of scope; Adapter only
// calls out to the host through the narrow HostServer contract below.
package gracehost

import (
	"context"
	"errors"
	"fmt"

	"github.com/nfscluster/gracekeeper/internal/gracehost/clienttrack"
	"github.com/nfscluster/gracekeeper/internal/gracehost/localgrace"
	"github.com/nfscluster/gracekeeper/internal/logger"
	"github.com/nfscluster/gracekeeper/pkg/graceengine"
	"github.com/nfscluster/gracekeeper/pkg/objectstore"
)

// HostServer is the narrow set of host callbacks the adapter needs. Every
// field is optional; a nil field is simply not called.
type HostServer struct {
	// CurrentClientIDs returns the server-assigned client IDs for all
	// clients currently confirmed in the old recovery database, to be
	// copied into the new one at the start of a local grace period.
	CurrentClientIDs func() []uint64

	// CopyClientRecords copies confirmed client records from the old
	// recovery object name to the new one. Recovery-database content
	// itself is out of scope here; this is a named hook only.
	CopyClientRecords func(oldRec, newRec string) error

	// RemoveRecoveryObject deletes a retired recovery object, called from
	// end_grace once the old epoch's reclaim window has closed.
	RemoveRecoveryObject func(rec string) error

	// WakeReaper is called after each notify, once MaybeStartGrace has run,
	// to prompt the host's background reaper goroutine to re-evaluate grace
	// state.
	WakeReaper func()
}

// recoveryObjectName formats the `rec-<epoch>:<nodeid>` naming convention
// from spec.md §4.2.
func recoveryObjectName(epoch uint64, nodeid string) string {
	return fmt.Sprintf("rec-%d:%s", epoch, nodeid)
}

// Adapter implements the host integration contracts on top of one
// graceengine.Engine.
type Adapter struct {
	engine   *graceengine.Engine
	notifier objectstore.Notifier // may be nil: watch is then a no-op
	nodeid   string
	host     HostServer

	local   *localgrace.LocalGrace
	clients *clienttrack.Tracker

	watchCookie string
}

// New constructs an Adapter bound to one node's identity.
func New(engine *graceengine.Engine, notifier objectstore.Notifier, nodeid string, host HostServer) *Adapter {
	return &Adapter{
		engine:   engine,
		notifier: notifier,
		nodeid:   nodeid,
		host:     host,
		local:    localgrace.New(),
		clients:  clienttrack.New(),
	}
}

// Init implements the init contract: ensure the grace object exists,
// verify cluster membership, and install the notify watch.
func (a *Adapter) Init(ctx context.Context) error {
	if err := a.engine.Create(ctx); err != nil {
		var ee *graceengine.EngineError
		if !errors.As(err, &ee) || ee.Code != graceengine.CodeAlreadyExists {
			return fmt.Errorf("gracehost init: %w", err)
		}
	}

	member, err := a.IsMember(ctx)
	if err != nil {
		return fmt.Errorf("gracehost init: checking membership: %w", err)
	}
	if !member {
		return fmt.Errorf("gracehost init: node %q is not a cluster member", a.nodeid)
	}

	if a.notifier == nil {
		return nil
	}

	cookie, err := a.notifier.Watch(ctx, a.engine.ObjectName(), func() {
		a.onNotify(ctx)
	})
	if err != nil {
		return fmt.Errorf("gracehost init: installing watch: %w", err)
	}
	a.watchCookie = cookie
	return nil
}

func (a *Adapter) onNotify(ctx context.Context) {
	if err := a.MaybeStartGrace(ctx); err != nil {
		logger.Warn("maybe_start_grace after notify failed", "nodeid", a.nodeid, "error", err)
	}
	if a.host.WakeReaper != nil {
		a.host.WakeReaper()
	}
}

// ReadClids implements the read_clids contract. ok reports whether reclaim
// is currently allowed (R > 0); when false, oldRec is empty.
func (a *Adapter) ReadClids(ctx context.Context) (newRec, oldRec string, ok bool, err error) {
	c, r, err := a.engine.Join(ctx, a.nodeid)
	if err != nil {
		return "", "", false, err
	}

	newRec = recoveryObjectName(c, a.nodeid)
	if r == 0 {
		return newRec, "", false, nil
	}
	return newRec, recoveryObjectName(r, a.nodeid), true, nil
}

// MaybeStartGrace implements the maybe_start_grace contract: read epochs,
// and if a reclaim epoch is open and this node has not yet entered local
// grace for it, copy client records and start tracking local reclaim.
func (a *Adapter) MaybeStartGrace(ctx context.Context) error {
	c, r, err := a.engine.Epochs(ctx)
	if err != nil {
		return err
	}
	if r == 0 {
		return nil
	}
	if !a.local.EnterEpoch(r) {
		return nil
	}

	if a.host.CopyClientRecords != nil {
		oldRec := recoveryObjectName(r, a.nodeid)
		newRec := recoveryObjectName(c, a.nodeid)
		if err := a.host.CopyClientRecords(oldRec, newRec); err != nil {
			return fmt.Errorf("maybe_start_grace: copying client records: %w", err)
		}
	}

	var clientIDs []uint64
	if a.host.CurrentClientIDs != nil {
		clientIDs = a.host.CurrentClientIDs()
	}
	expected := make([]string, len(clientIDs))
	for i, id := range clientIDs {
		expected[i] = fmt.Sprintf("%d", id)
	}
	a.clients.Start(expected)

	return nil
}

// SetEnforcing implements the set_enforcing contract.
func (a *Adapter) SetEnforcing(ctx context.Context, on bool) (c, r uint64, err error) {
	if on {
		c, r, err = a.engine.EnforcingOn(ctx, a.nodeid)
	} else {
		c, r, err = a.engine.EnforcingOff(ctx, a.nodeid)
	}
	if err != nil {
		return 0, 0, err
	}
	a.local.ResyncEnforcing(on)
	return c, r, nil
}

// GraceEnforcing implements the grace_enforcing contract: the hot
// per-request path, served entirely from the in-memory mirror.
func (a *Adapter) GraceEnforcing() bool {
	return a.local.IsEnforcing()
}

// ClientReclaimed records that a local NFS client (identified by its
// server-assigned client ID) has completed reclaim. Once every client
// expected for the current local grace window has reclaimed, it calls
// try_lift_grace on the node's behalf exactly once.
func (a *Adapter) ClientReclaimed(ctx context.Context, clientID uint64) (liftedClusterWide bool, err error) {
	if !a.clients.MarkReclaimed(fmt.Sprintf("%d", clientID)) {
		return false, nil
	}
	return a.TryLiftGrace(ctx)
}

// TryLiftGrace implements the try_lift_grace contract directly: call done
// for this node, and report whether the grace period is now lifted
// cluster-wide.
func (a *Adapter) TryLiftGrace(ctx context.Context) (liftedClusterWide bool, err error) {
	_, r, err := a.engine.Done(ctx, a.nodeid)
	if err != nil {
		return false, err
	}
	return r == 0, nil
}

// EndGrace implements the end_grace contract: stop enforcing locally, then
// remove the retired recovery object for the epoch that just closed.
func (a *Adapter) EndGrace(ctx context.Context) error {
	retiredEpoch := a.local.Epoch()

	if _, _, err := a.SetEnforcing(ctx, false); err != nil {
		return fmt.Errorf("end_grace: %w", err)
	}

	a.local.ExitEpoch()
	a.clients.Reset()

	if retiredEpoch == 0 || a.host.RemoveRecoveryObject == nil {
		return nil
	}
	if err := a.host.RemoveRecoveryObject(recoveryObjectName(retiredEpoch, a.nodeid)); err != nil {
		return fmt.Errorf("end_grace: removing retired recovery object: %w", err)
	}
	return nil
}

// Shutdown implements the shutdown contract: best-effort force-join to
// signal intent to rejoin on restart, then uninstall the watch.
func (a *Adapter) Shutdown(ctx context.Context) error {
	if _, _, err := a.engine.JoinForce(ctx, a.nodeid); err != nil {
		logger.Warn("shutdown: force-join failed", "nodeid", a.nodeid, "error", err)
	}

	if a.notifier != nil && a.watchCookie != "" {
		if err := a.notifier.Unwatch(a.watchCookie); err != nil {
			return fmt.Errorf("shutdown: uninstalling watch: %w", err)
		}
	}
	return nil
}

// IsMember implements the is_member contract.
func (a *Adapter) IsMember(ctx context.Context) (bool, error) {
	return a.engine.Member(ctx, a.nodeid)
}
