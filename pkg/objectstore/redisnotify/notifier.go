// Package redisnotify implements objectstore.Notifier on top of Redis
// Pub/Sub. The object store itself (S3) has no push-notification
// mechanism, so best-effort notify/watch (SPEC_FULL.md §2) is carried by a
// separate channel: every mutating engine operation publishes to a
// per-object Redis channel, and watchers subscribed to it wake up and
// re-poll the object store themselves.
package redisnotify

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nfscluster/gracekeeper/internal/logger"
	"github.com/nfscluster/gracekeeper/pkg/objectstore"
)

// Notifier is a Redis Pub/Sub backed objectstore.Notifier.
type Notifier struct {
	client        *redis.Client
	channelPrefix string

	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// Config configures a Notifier.
type Config struct {
	// Client is the connected Redis client. Required.
	Client *redis.Client

	// ChannelPrefix namespaces the Pub/Sub channels used for notification,
	// e.g. "gracekeeper:notify:".
	ChannelPrefix string
}

// New constructs a Notifier from cfg.
func New(cfg Config) *Notifier {
	return &Notifier{
		client:        cfg.Client,
		channelPrefix: cfg.ChannelPrefix,
		subs:          make(map[string]*subscription),
	}
}

func (n *Notifier) channel(object string) string {
	return n.channelPrefix + object
}

// Notify implements objectstore.Notifier. A publish failure is never
// escalated to a protocol error by callers (SPEC_FULL.md §2 "best
// effort") but is returned here so the caller can log/count it.
func (n *Notifier) Notify(ctx context.Context, object string) error {
	if err := n.client.Publish(ctx, n.channel(object), "changed").Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", n.channel(object), err)
	}
	return nil
}

// Watch implements objectstore.Notifier. cb is invoked from a dedicated
// goroutine on every message received on the object's channel, until
// Unwatch is called or ctx is done. The caller is responsible for treating
// a woken watch as a hint to re-read the object, not as the new state
// itself (SPEC_FULL.md §2).
func (n *Notifier) Watch(ctx context.Context, object string, cb func()) (string, error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := n.client.Subscribe(subCtx, n.channel(object))

	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return "", fmt.Errorf("redis subscribe to %s: %w", n.channel(object), err)
	}

	cookie := uuid.NewString()

	n.mu.Lock()
	n.subs[cookie] = &subscription{pubsub: pubsub, cancel: cancel}
	n.mu.Unlock()

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
				cb()
			case <-subCtx.Done():
				return
			}
		}
	}()

	return cookie, nil
}

// Unwatch implements objectstore.Notifier.
func (n *Notifier) Unwatch(cookie string) error {
	n.mu.Lock()
	sub, ok := n.subs[cookie]
	if ok {
		delete(n.subs, cookie)
	}
	n.mu.Unlock()

	if !ok {
		logger.Debug("unwatch: unknown cookie", "cookie", cookie)
		return nil
	}

	sub.cancel()
	return sub.pubsub.Close()
}
