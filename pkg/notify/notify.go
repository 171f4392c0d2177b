package notify

import (
	"github.com/cuemby/streamsched/pkg/types"
)

// FeedKey identifies a notification feed. Per spec §6, a stream's size
// feed is {namespaceId: stream.Namespace, category: "stream", name:
// "{streamName}Size"}.
type FeedKey struct {
	NamespaceId string
	Category    string
	Name        string
}

// StreamSizeFeed returns the feed identity a Subscriber subscribes to for
// a given stream's size notifications.
func StreamSizeFeed(streamID types.StreamId) FeedKey {
	return FeedKey{
		NamespaceId: streamID.Namespace,
		Category:    "stream",
		Name:        streamID.FeedName(),
	}
}

// Event is a notification feed payload: a stream size reading at the
// moment it was published.
type Event struct {
	Timestamp int64 // milliseconds, wall clock
	Size      int64 // bytes
}

// Handler processes one Event delivered from a feed subscription.
type Handler func(Event)

// Executor runs a delivery on its own pool. Submit must not block the
// caller on the work itself; it only blocks as long as it takes to hand
// the work off.
type Executor interface {
	Submit(func())
}

// Cancellable is returned by Subscribe and undoes the subscription.
// Cancel is best-effort: a delivery already handed to the Executor may
// still run after Cancel returns.
type Cancellable interface {
	Cancel()
}

// NotificationService is the external pub/sub system Subscribers push
// size observations through (spec §6, consumed).
type NotificationService interface {
	// Subscribe registers handler to receive events published to feed,
	// delivered on executor. A failure wraps types.ErrFeedError or
	// types.ErrFeedNotFound.
	Subscribe(feed FeedKey, handler Handler, executor Executor) (Cancellable, error)

	// Publish fans event out to every current subscriber of feed.
	Publish(feed FeedKey, event Event)
}
