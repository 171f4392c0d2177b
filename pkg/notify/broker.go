package notify

import (
	"sync"

	"github.com/cuemby/streamsched/pkg/types"
)

// subscription pairs a handler with the executor it must run on.
type subscription struct {
	id       uint64
	handler  Handler
	executor Executor
}

// Broker is an in-memory NotificationService: Publish fans an event out
// to every current subscriber of a feed, each delivered on its own
// subscription's executor. There is no cross-feed buffering; a feed with
// no subscribers simply drops the event.
type Broker struct {
	mu     sync.RWMutex
	feeds  map[FeedKey]map[uint64]*subscription
	nextID uint64
}

// NewBroker creates an empty in-memory notification broker.
func NewBroker() *Broker {
	return &Broker{
		feeds: make(map[FeedKey]map[uint64]*subscription),
	}
}

// Subscribe registers handler against feed. The returned Cancellable
// removes the subscription; Cancel is idempotent.
func (b *Broker) Subscribe(feed FeedKey, handler Handler, executor Executor) (Cancellable, error) {
	if handler == nil {
		return nil, types.ErrFeedError
	}
	if executor == nil {
		return nil, types.ErrFeedError
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.feeds[feed]
	if !ok {
		subs = make(map[uint64]*subscription)
		b.feeds[feed] = subs
	}

	b.nextID++
	id := b.nextID
	subs[id] = &subscription{id: id, handler: handler, executor: executor}

	return &cancelFunc{broker: b, feed: feed, id: id}, nil
}

// Publish fans event out to every subscriber currently registered for
// feed, each on its own subscription's executor.
func (b *Broker) Publish(feed FeedKey, event Event) {
	b.mu.RLock()
	subs := b.feeds[feed]
	handlers := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		handlers = append(handlers, s)
	}
	b.mu.RUnlock()

	for _, s := range handlers {
		handler := s.handler
		s.executor.Submit(func() {
			handler(event)
		})
	}
}

// SubscriberCount returns the number of active subscriptions on feed,
// for tests and diagnostics.
func (b *Broker) SubscriberCount(feed FeedKey) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.feeds[feed])
}

func (b *Broker) unsubscribe(feed FeedKey, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.feeds[feed]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.feeds, feed)
	}
}

type cancelFunc struct {
	broker *Broker
	feed   FeedKey
	id     uint64
	once   sync.Once
}

func (c *cancelFunc) Cancel() {
	c.once.Do(func() {
		c.broker.unsubscribe(c.feed, c.id)
	})
}
