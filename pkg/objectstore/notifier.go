package objectstore

import "context"

// Notifier implements the object store's best-effort notify/watch channel.
// Notifies carry no payload beyond "something about this object changed";
// consumers must always re-read state rather than trust notify content.
// Delivery is neither guaranteed nor ordered.
type Notifier interface {
	// Notify broadcasts a best-effort wake-up to watchers of object.
	// Failures are logged by callers and never treated as fatal.
	Notify(ctx context.Context, object string) error

	// Watch installs cb to be invoked (on an implementation-defined
	// goroutine) whenever a notify for object is observed. Returns a
	// cookie identifying the subscription for Unwatch.
	Watch(ctx context.Context, object string, cb func()) (cookie string, err error)

	// Unwatch removes a subscription previously installed by Watch.
	Unwatch(cookie string) error
}
