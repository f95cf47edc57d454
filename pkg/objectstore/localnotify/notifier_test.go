package localnotify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyWakesWatcher(t *testing.T) {
	n := New()
	ctx := context.Background()

	var mu sync.Mutex
	woken := 0

	cookie, err := n.Watch(ctx, "grace", func() {
		mu.Lock()
		woken++
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NotEmpty(t, cookie)

	require.NoError(t, n.Notify(ctx, "grace"))

	mu.Lock()
	assert.Equal(t, 1, woken)
	mu.Unlock()
}

func TestNotifyOnlyWakesSameObject(t *testing.T) {
	n := New()
	ctx := context.Background()

	var mu sync.Mutex
	woken := map[string]int{}

	_, err := n.Watch(ctx, "grace-a", func() {
		mu.Lock()
		woken["a"]++
		mu.Unlock()
	})
	require.NoError(t, err)

	_, err = n.Watch(ctx, "grace-b", func() {
		mu.Lock()
		woken["b"]++
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, n.Notify(ctx, "grace-a"))

	mu.Lock()
	assert.Equal(t, 1, woken["a"])
	assert.Equal(t, 0, woken["b"])
	mu.Unlock()
}

func TestUnwatchStopsNotifications(t *testing.T) {
	n := New()
	ctx := context.Background()

	var mu sync.Mutex
	woken := 0

	cookie, err := n.Watch(ctx, "grace", func() {
		mu.Lock()
		woken++
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, n.Unwatch(cookie))
	require.NoError(t, n.Notify(ctx, "grace"))

	mu.Lock()
	assert.Equal(t, 0, woken)
	mu.Unlock()
}

func TestMultipleWatchersSameObject(t *testing.T) {
	n := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)

	_, err := n.Watch(ctx, "grace", func() { wg.Done() })
	require.NoError(t, err)
	_, err = n.Watch(ctx, "grace", func() { wg.Done() })
	require.NoError(t, err)

	require.NoError(t, n.Notify(ctx, "grace"))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for both watchers to be notified")
	}
}
