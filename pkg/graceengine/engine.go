// Package graceengine implements the coordinated NFSv4 grace-period
// protocol over a single shared object in a remote object store.
//
// Deployment model: a cluster runs several stateless NFS server processes,
// each embedding one Engine bound to the same named grace object. When a
// process restarts, it has no memory of which clients it served before —
// but every process agrees, through the grace object's compare-and-swap
// history, on the current epoch (C), whether a grace period is active (R),
// and which nodes are still recovering. No node ever needs to contact any
// other node directly; all coordination is mediated by the object store.
// The NFS server itself, and its per-client recovery databases, are out of
// scope for this package (see spec.md §1 Non-goals) — callers supply them
// through the host integration adapter in internal/gracehost.
package graceengine

import (
	"context"
	"errors"
	"time"

	"github.com/nfscluster/gracekeeper/internal/logger"
	"github.com/nfscluster/gracekeeper/pkg/metrics"
	"github.com/nfscluster/gracekeeper/pkg/objectstore"
)

// Defaults for Config, applied by New when the corresponding field is its
// zero value.
const (
	DefaultMaxNodeMapEntries = 1024
	DefaultMaxRetries        = 32
	DefaultRetryBaseDelay    = 5 * time.Millisecond
	DefaultRetryMaxDelay     = 250 * time.Millisecond
)

// Config holds the engine's tunables. All fields have sane defaults
// applied by New; the zero Config is valid.
type Config struct {
	// ObjectName is the well-known name of the grace object in the
	// backing object store. One Engine is bound to exactly one grace
	// object for its lifetime.
	ObjectName string

	// MaxNodeMapEntries bounds the node-map scan performed on every read.
	// Per spec.md §9, the historical default is 1024.
	MaxNodeMapEntries int

	// MaxRetries bounds the number of version-conflict retries an
	// operation will attempt before giving up with
	// CodeRetriesExhausted. The base protocol is unbounded here
	// (spec.md §4.1); this is a defensive fairness cap, not a
	// correctness requirement (see SPEC_FULL.md §4.1).
	MaxRetries int

	// RetryBaseDelay and RetryMaxDelay configure capped exponential
	// backoff between retries.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxNodeMapEntries <= 0 {
		c.MaxNodeMapEntries = DefaultMaxNodeMapEntries
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
}

// Engine implements the grace protocol engine described in spec.md §4.1.
// It holds no state between calls beyond transient buffers freed before
// return (spec.md §5) — callers may share one Engine across goroutines.
type Engine struct {
	client   objectstore.Client
	notifier objectstore.Notifier // optional: pass nil to disable notify
	metrics  metrics.GraceMetrics // optional: pass nil for zero overhead
	cfg      Config
}

// New constructs an Engine bound to cfg.ObjectName. notifier and m may be
// nil.
func New(client objectstore.Client, notifier objectstore.Notifier, m metrics.GraceMetrics, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{client: client, notifier: notifier, metrics: m, cfg: cfg}
}

// ObjectName returns the grace object name this engine is bound to.
func (e *Engine) ObjectName() string {
	return e.cfg.ObjectName
}

// Create creates the grace object if absent, with initial state C=1, R=0,
// and an empty node map. If the object already exists, returns an
// *EngineError with Code CodeAlreadyExists, so callers can tell that case
// apart; the host adapter's Init and gracectl both treat it as success.
func (e *Engine) Create(ctx context.Context) error {
	start := time.Now()

	initial := GraceObjectState{C: 1, R: 0, Nodes: map[string]NodeFlags{}}
	_, err := e.client.Write(ctx, e.cfg.ObjectName, encodeObject(initial), objectstore.Precondition{
		Mode: objectstore.PreconditionMustNotExist,
	})
	if err != nil {
		if errors.Is(err, objectstore.ErrPreconditionFailed) {
			err = newAlreadyExistsError(e.cfg.ObjectName)
			e.recordOp("create", start, err)
			return err
		}
		e.recordOp("create", start, err)
		return err
	}

	e.bestEffortNotify(ctx, "create")
	e.recordOp("create", start, nil)
	return nil
}

// Epochs reads just the 16-byte data payload and returns (C, R).
func (e *Engine) Epochs(ctx context.Context) (c, r uint64, err error) {
	start := time.Now()

	data, _, rerr := e.client.ReadRange(ctx, e.cfg.ObjectName, 0, payloadSize)
	if rerr != nil {
		if errors.Is(rerr, objectstore.ErrObjectNotFound) {
			rerr = newNotFoundError(e.cfg.ObjectName)
		}
		e.recordOp("epochs", start, rerr)
		return 0, 0, rerr
	}

	c, r, err = decodePayload(data)
	e.recordOp("epochs", start, err)
	return c, r, err
}

// Dump reads the full grace object: payload plus node map, up to the
// configured cap. Exceeding the cap is reported as corruption, per
// spec.md §4.1.
func (e *Engine) Dump(ctx context.Context) (GraceObjectState, error) {
	start := time.Now()
	state, _, err := e.readFull(ctx)
	e.recordOp("dump", start, err)
	return state, err
}

// Start begins (or re-enters) a grace period on behalf of the given nodes.
// If R==0, opens a new epoch (R:=C, C:=C+1); if R>0, the epoch is left
// unchanged and the call degrades to an idempotent membership update. Every
// listed node is upserted into the map with Needs:=true.
func (e *Engine) Start(ctx context.Context, nodeids []string) error {
	start := time.Now()

	_, err := e.transact(ctx, "start", func(cur GraceObjectState) (GraceObjectState, bool, error) {
		next := cur.clone()
		if next.R == 0 {
			next.R = next.C
			next.C = next.C + 1
		}
		for _, id := range nodeids {
			flags := next.Nodes[id]
			flags.Needs = true
			next.Nodes[id] = flags
		}
		return next, true, nil
	})

	e.recordOp("start", start, err)
	return err
}

// Join is the node-local variant invoked at server startup. If R==0, the
// object is not modified and (C, 0) is returned, signalling no reclaim is
// allowed. If R>0, the node is inserted into the map with Needs:=true.
func (e *Engine) Join(ctx context.Context, nodeid string) (c, r uint64, err error) {
	start := time.Now()

	result, err := e.transact(ctx, "join", func(cur GraceObjectState) (GraceObjectState, bool, error) {
		if cur.R == 0 {
			return cur, false, nil
		}
		next := cur.clone()
		flags := next.Nodes[nodeid]
		flags.Needs = true
		next.Nodes[nodeid] = flags
		return next, true, nil
	})

	e.recordOp("join", start, err)
	if err != nil {
		return 0, 0, err
	}
	return result.C, result.R, nil
}

// JoinForce is the "force-start" flavor of Join, used on clean shutdown or
// host-requested start: when R==0 it is equivalent to Start for this single
// node (opening a fresh epoch); in all cases the node is marked both
// Needs:=true and Enforcing:=true, since the caller intends to enforce
// grace locally immediately.
func (e *Engine) JoinForce(ctx context.Context, nodeid string) (c, r uint64, err error) {
	start := time.Now()

	result, err := e.transact(ctx, "join_force", func(cur GraceObjectState) (GraceObjectState, bool, error) {
		next := cur.clone()
		if next.R == 0 {
			next.R = next.C
			next.C = next.C + 1
		}
		flags := next.Nodes[nodeid]
		flags.Needs = true
		flags.Enforcing = true
		next.Nodes[nodeid] = flags
		return next, true, nil
	})

	e.recordOp("join_force", start, err)
	if err != nil {
		return 0, 0, err
	}
	return result.C, result.R, nil
}

// Lift completes the grace period on behalf of the listed nodes: clears
// Needs for each, removing the node-map entry entirely if no other flag
// remains set (the "numeric" variant of the Open Question in spec.md §9 —
// see DESIGN.md). If no entry is left with Needs==true, R is reset to 0,
// ending the grace period. A nodeid absent from the map is a no-op for
// that nodeid (spec.md §9).
func (e *Engine) Lift(ctx context.Context, nodeids []string) error {
	start := time.Now()

	_, err := e.transact(ctx, "lift", func(cur GraceObjectState) (GraceObjectState, bool, error) {
		if cur.R == 0 {
			if len(cur.Nodes) != 0 {
				return GraceObjectState{}, false, newCorruptionError("R==0 but node map has %d entries", len(cur.Nodes))
			}
			return cur, false, nil
		}

		next := cur.clone()
		for _, id := range nodeids {
			flags, ok := next.Nodes[id]
			if !ok {
				continue
			}
			flags.Needs = false
			if flags.isZero() {
				delete(next.Nodes, id)
			} else {
				next.Nodes[id] = flags
			}
		}

		if !anyNeedsGrace(next.Nodes) {
			next.R = 0
		}
		return next, true, nil
	})

	e.recordOp("lift", start, err)
	return err
}

// Done is the node-local equivalent of Lift for a single node.
func (e *Engine) Done(ctx context.Context, nodeid string) (c, r uint64, err error) {
	start := time.Now()

	result, err := e.transact(ctx, "done", func(cur GraceObjectState) (GraceObjectState, bool, error) {
		if cur.R == 0 {
			if len(cur.Nodes) != 0 {
				return GraceObjectState{}, false, newCorruptionError("R==0 but node map has %d entries", len(cur.Nodes))
			}
			return cur, false, nil
		}

		next := cur.clone()
		if flags, ok := next.Nodes[nodeid]; ok {
			flags.Needs = false
			if flags.isZero() {
				delete(next.Nodes, nodeid)
			} else {
				next.Nodes[nodeid] = flags
			}
		}

		if !anyNeedsGrace(next.Nodes) {
			next.R = 0
		}
		return next, true, nil
	})

	e.recordOp("done", start, err)
	if err != nil {
		return 0, 0, err
	}
	return result.C, result.R, nil
}

// Member returns true iff nodeid's key is present in the map with
// Member==true. Used by the host to detect eviction from the externally
// maintained cluster membership roster.
func (e *Engine) Member(ctx context.Context, nodeid string) (bool, error) {
	start := time.Now()
	state, _, err := e.readFull(ctx)
	e.recordOp("member", start, err)
	if err != nil {
		return false, err
	}
	flags, ok := state.Nodes[nodeid]
	return ok && flags.Member, nil
}

// EnforcingOn flips nodeid's Enforcing flag to true.
func (e *Engine) EnforcingOn(ctx context.Context, nodeid string) (c, r uint64, err error) {
	return e.setEnforcing(ctx, "enforcing_on", nodeid, true)
}

// EnforcingOff flips nodeid's Enforcing flag to false.
func (e *Engine) EnforcingOff(ctx context.Context, nodeid string) (c, r uint64, err error) {
	return e.setEnforcing(ctx, "enforcing_off", nodeid, false)
}

func (e *Engine) setEnforcing(ctx context.Context, op, nodeid string, enforcing bool) (c, r uint64, err error) {
	start := time.Now()

	result, err := e.transact(ctx, op, func(cur GraceObjectState) (GraceObjectState, bool, error) {
		next := cur.clone()
		flags := next.Nodes[nodeid]
		flags.Enforcing = enforcing
		if flags.isZero() {
			delete(next.Nodes, nodeid)
		} else {
			next.Nodes[nodeid] = flags
		}
		return next, true, nil
	})

	e.recordOp(op, start, err)
	if err != nil {
		return 0, 0, err
	}
	return result.C, result.R, nil
}

// EnforcingCheck returns nodeid's current Enforcing flag.
func (e *Engine) EnforcingCheck(ctx context.Context, nodeid string) (bool, error) {
	start := time.Now()
	state, _, err := e.readFull(ctx)
	e.recordOp("enforcing_check", start, err)
	if err != nil {
		return false, err
	}
	flags, ok := state.Nodes[nodeid]
	return ok && flags.Enforcing, nil
}

func anyNeedsGrace(nodes map[string]NodeFlags) bool {
	for _, flags := range nodes {
		if flags.Needs {
			return true
		}
	}
	return false
}

// readFull fetches and decodes the full grace object along with the
// version observed at read time.
func (e *Engine) readFull(ctx context.Context) (GraceObjectState, string, error) {
	data, version, err := e.client.ReadFull(ctx, e.cfg.ObjectName)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return GraceObjectState{}, "", newNotFoundError(e.cfg.ObjectName)
		}
		return GraceObjectState{}, "", err
	}

	state, err := decodeObject(data, e.cfg.MaxNodeMapEntries)
	if err != nil {
		return GraceObjectState{}, "", err
	}
	return state, version, nil
}

// transact implements the read/decide/write/retry template from
// spec.md §4.1: read the object, let decide compute the next state, and
// commit it under assert_version. If decide reports changed==false, no
// write is attempted and the returned state is whatever decide returned
// (used by read-only-shaped operations like Join when R==0). On a version
// conflict the whole decision is restarted against freshly-read state, per
// "do not carry forward computed state".
func (e *Engine) transact(ctx context.Context, op string, decide func(cur GraceObjectState) (next GraceObjectState, changed bool, err error)) (GraceObjectState, error) {
	lc := logger.NewLogContext(op, e.cfg.ObjectName)
	ctx = logger.WithContext(ctx, lc)

	var lastConflict error

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		cur, version, err := e.readFull(ctx)
		if err != nil {
			return GraceObjectState{}, err
		}

		next, changed, err := decide(cur)
		if err != nil {
			return GraceObjectState{}, err
		}
		if !changed {
			return next, nil
		}

		_, werr := e.client.Write(ctx, e.cfg.ObjectName, encodeObject(next), objectstore.Precondition{
			Mode:    objectstore.PreconditionMustExist,
			Version: version,
		})
		if werr == nil {
			e.bestEffortNotify(ctx, op)
			return next, nil
		}

		if errors.Is(werr, objectstore.ErrPreconditionFailed) {
			lastConflict = werr
			if e.metrics != nil {
				e.metrics.RecordRetry(op)
			}
			logger.DebugCtx(ctx, "grace object write conflict, retrying",
				logger.Attempt(attempt), logger.MaxRetries(e.cfg.MaxRetries))
			e.backoffSleep(ctx, attempt)
			continue
		}

		return GraceObjectState{}, werr
	}

	return GraceObjectState{}, newRetriesExhaustedError(e.cfg.MaxRetries, lastConflict)
}

func (e *Engine) backoffSleep(ctx context.Context, attempt int) {
	delay := e.cfg.RetryBaseDelay << uint(attempt)
	if delay <= 0 || delay > e.cfg.RetryMaxDelay {
		delay = e.cfg.RetryMaxDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (e *Engine) bestEffortNotify(ctx context.Context, op string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, e.cfg.ObjectName); err != nil {
		if logger.FromContext(ctx) == nil {
			ctx = logger.WithContext(ctx, logger.NewLogContext(op, e.cfg.ObjectName))
		}
		logger.WarnCtx(ctx, "grace notify failed", "error", err)
		if e.metrics != nil {
			e.metrics.RecordNotifyFailure(op)
		}
	}
}

func (e *Engine) recordOp(op string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}

	code := ""
	if err != nil {
		var ee *EngineError
		if errors.As(err, &ee) {
			code = ee.Code.String()
		} else {
			code = "transport"
		}
	}
	e.metrics.RecordOperation(op, time.Since(start), code)
}
