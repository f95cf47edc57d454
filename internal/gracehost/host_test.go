package gracehost

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfscluster/gracekeeper/pkg/graceengine"
	"github.com/nfscluster/gracekeeper/pkg/objectstore"
	"github.com/nfscluster/gracekeeper/pkg/objectstore/localnotify"
	"github.com/nfscluster/gracekeeper/pkg/objectstore/memstore"
)

// encodeRawObject builds a grace object body matching the wire format from
// SPEC_FULL.md §3, for seeding a memstore.Store directly — the codec
// itself is unexported inside pkg/graceengine, and this test needs to seed
// a node's M flag, which no engine operation can set (per spec.md §9,
// membership is administered externally to the engine).
func encodeRawObject(c, r uint64, nodes map[string]byte) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], c)
	binary.LittleEndian.PutUint64(buf[8:16], r)

	countBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(countBuf, uint32(len(nodes)))
	buf = append(buf, countBuf...)

	for id, flags := range nodes {
		keyLen := make([]byte, 2)
		binary.LittleEndian.PutUint16(keyLen, uint16(len(id)))
		buf = append(buf, keyLen...)
		buf = append(buf, id...)
		buf = append(buf, flags)
	}
	return buf
}

func seedStore(t *testing.T, store *memstore.Store, name string, c, r uint64, nodes map[string]byte) {
	t.Helper()
	_, err := store.Write(context.Background(), name, encodeRawObject(c, r, nodes), objectstore.Precondition{
		Mode: objectstore.PreconditionMustNotExist,
	})
	require.NoError(t, err)
}

const flagMember = 1 << 0

func TestInitRejectsNonMember(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedStore(t, store, "grace", 1, 0, map[string]byte{})

	engine := graceengine.New(store, nil, nil, graceengine.Config{ObjectName: "grace"})
	a := New(engine, nil, "notamember", HostServer{})

	err := a.Init(ctx)
	require.Error(t, err)
}

func TestInitAcceptsMember(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedStore(t, store, "grace", 1, 0, map[string]byte{"1": flagMember})

	engine := graceengine.New(store, nil, nil, graceengine.Config{ObjectName: "grace"})
	a := New(engine, nil, "1", HostServer{})

	require.NoError(t, a.Init(ctx))

	ok, err := a.IsMember(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReadClidsNoActiveGrace(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedStore(t, store, "grace", 1, 0, map[string]byte{"1": flagMember})

	engine := graceengine.New(store, nil, nil, graceengine.Config{ObjectName: "grace"})
	a := New(engine, nil, "1", HostServer{})

	newRec, oldRec, ok, err := a.ReadClids(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, oldRec)
	assert.Equal(t, "rec-1:1", newRec)
}

// TestNotifyTriggersMaybeStartGrace exercises the full wiring promised by
// SPEC_FULL.md §4.2: another node opening a grace epoch triggers a notify,
// which wakes this node's watch callback, which runs maybe_start_grace and
// the host's WakeReaper hook.
func TestNotifyTriggersMaybeStartGrace(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedStore(t, store, "grace", 1, 0, map[string]byte{"1": flagMember})

	notifier := localnotify.New()
	engine := graceengine.New(store, notifier, nil, graceengine.Config{ObjectName: "grace"})

	var mu sync.Mutex
	var copiedOld, copiedNew string
	wakeReaperCalled := false
	done := make(chan struct{}, 1)

	host := HostServer{
		CurrentClientIDs: func() []uint64 { return []uint64{42} },
		CopyClientRecords: func(oldRec, newRec string) error {
			mu.Lock()
			copiedOld, copiedNew = oldRec, newRec
			mu.Unlock()
			return nil
		},
		WakeReaper: func() {
			mu.Lock()
			wakeReaperCalled = true
			mu.Unlock()
			select {
			case done <- struct{}{}:
			default:
			}
		},
	}

	a := New(engine, notifier, "1", host)
	require.NoError(t, a.Init(ctx))

	// Another node's engine, sharing the same store and notifier, opens a
	// reclaim epoch - this is what a restarting peer would do.
	peerEngine := graceengine.New(store, notifier, nil, graceengine.Config{ObjectName: "grace"})
	require.NoError(t, peerEngine.Start(ctx, []string{"2"}))

	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, wakeReaperCalled)
	assert.Equal(t, "rec-1:1", copiedOld)
	assert.Equal(t, "rec-2:1", copiedNew)
	assert.Equal(t, uint64(1), a.local.Epoch())
}

func TestSetEnforcingAndGraceEnforcing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedStore(t, store, "grace", 1, 0, map[string]byte{"1": flagMember})

	engine := graceengine.New(store, nil, nil, graceengine.Config{ObjectName: "grace"})
	a := New(engine, nil, "1", HostServer{})

	assert.False(t, a.GraceEnforcing())

	_, _, err := a.SetEnforcing(ctx, true)
	require.NoError(t, err)
	assert.True(t, a.GraceEnforcing())

	on, err := engine.EnforcingCheck(ctx, "1")
	require.NoError(t, err)
	assert.True(t, on)

	_, _, err = a.SetEnforcing(ctx, false)
	require.NoError(t, err)
	assert.False(t, a.GraceEnforcing())
}

func TestClientReclaimedCallsDoneOnce(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedStore(t, store, "grace", 1, 0, map[string]byte{"1": flagMember})

	engine := graceengine.New(store, nil, nil, graceengine.Config{ObjectName: "grace"})
	a := New(engine, nil, "1", HostServer{
		CurrentClientIDs: func() []uint64 { return []uint64{7, 9} },
	})

	require.NoError(t, engine.Start(ctx, []string{"1"}))
	require.NoError(t, a.MaybeStartGrace(ctx))

	lifted, err := a.ClientReclaimed(ctx, 7)
	require.NoError(t, err)
	assert.False(t, lifted)

	lifted, err = a.ClientReclaimed(ctx, 9)
	require.NoError(t, err)
	assert.True(t, lifted)

	c, r, err := engine.Epochs(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c)
	assert.Equal(t, uint64(0), r)
}

func TestEndGraceRemovesRetiredRecoveryObject(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedStore(t, store, "grace", 1, 0, map[string]byte{"1": flagMember})

	engine := graceengine.New(store, nil, nil, graceengine.Config{ObjectName: "grace"})

	var removed string
	a := New(engine, nil, "1", HostServer{
		RemoveRecoveryObject: func(rec string) error {
			removed = rec
			return nil
		},
	})

	require.NoError(t, engine.Start(ctx, []string{"1"}))
	require.NoError(t, a.MaybeStartGrace(ctx))
	_, _, err := a.SetEnforcing(ctx, true)
	require.NoError(t, err)

	require.NoError(t, a.EndGrace(ctx))

	assert.Equal(t, "rec-1:1", removed)
	assert.False(t, a.GraceEnforcing())
	assert.Equal(t, uint64(0), a.local.Epoch())
}

func TestShutdownUninstallsWatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedStore(t, store, "grace", 1, 0, map[string]byte{"1": flagMember})

	notifier := localnotify.New()
	engine := graceengine.New(store, notifier, nil, graceengine.Config{ObjectName: "grace"})
	a := New(engine, notifier, "1", HostServer{})

	require.NoError(t, a.Init(ctx))
	require.NotEmpty(t, a.watchCookie)

	require.NoError(t, a.Shutdown(ctx))

	c, r, err := engine.Epochs(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c)
	assert.Equal(t, uint64(1), r)
}
