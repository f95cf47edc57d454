// Package localnotify implements objectstore.Notifier entirely in-process,
// for tests and single-binary demos that run every node's Engine inside
// one process against a shared memstore. It has the same fan-out shape as
// redisnotify but skips the network hop.
package localnotify

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type watcher struct {
	object string
	cb     func()
}

// Notifier is an in-process objectstore.Notifier: Notify wakes every
// watcher currently registered against the same object name.
type Notifier struct {
	mu       sync.Mutex
	watchers map[string]watcher // cookie -> watcher
}

// New constructs an empty Notifier.
func New() *Notifier {
	return &Notifier{watchers: make(map[string]watcher)}
}

// Notify implements objectstore.Notifier.
func (n *Notifier) Notify(_ context.Context, object string) error {
	n.mu.Lock()
	var cbs []func()
	for _, w := range n.watchers {
		if w.object == object {
			cbs = append(cbs, w.cb)
		}
	}
	n.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
	return nil
}

// Watch implements objectstore.Notifier.
func (n *Notifier) Watch(_ context.Context, object string, cb func()) (string, error) {
	cookie := uuid.NewString()

	n.mu.Lock()
	n.watchers[cookie] = watcher{object: object, cb: cb}
	n.mu.Unlock()

	return cookie, nil
}

// Unwatch implements objectstore.Notifier.
func (n *Notifier) Unwatch(cookie string) error {
	n.mu.Lock()
	delete(n.watchers, cookie)
	n.mu.Unlock()
	return nil
}
