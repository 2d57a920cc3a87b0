package realtime

import "sync"

const eventDefaultBuffer = 8

// Broadcaster fans push events out to subscribed live views.
type Broadcaster struct {
	mutex        sync.Mutex
	nextID       int64
	subscribers  map[int64]chan Event
	closed       bool
	bufferLength int
}

// NewBroadcaster constructs an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers:  make(map[int64]chan Event),
		bufferLength: eventDefaultBuffer,
	}
}

// Subscribe returns a subscription, or nil once the broadcaster is closed.
func (broadcaster *Broadcaster) Subscribe() *Subscription {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	if broadcaster.closed {
		return nil
	}
	subscriptionID := broadcaster.nextID
	broadcaster.nextID++
	eventChannel := make(chan Event, broadcaster.bufferLength)
	broadcaster.subscribers[subscriptionID] = eventChannel
	return &Subscription{
		broadcaster: broadcaster,
		identifier:  subscriptionID,
		events:      eventChannel,
	}
}

// Broadcast delivers event to every subscriber. Slow subscribers drop the event.
func (broadcaster *Broadcaster) Broadcast(event Event) {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	if broadcaster.closed {
		return
	}
	for _, channel := range broadcaster.subscribers {
		select {
		case channel <- event:
		default:
		}
	}
}

// SubscriberCount reports the number of open subscriptions.
func (broadcaster *Broadcaster) SubscriberCount() int {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	return len(broadcaster.subscribers)
}

// Close stops the broadcaster and closes all subscriber channels.
func (broadcaster *Broadcaster) Close() {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	if broadcaster.closed {
		return
	}
	broadcaster.closed = true
	for identifier, channel := range broadcaster.subscribers {
		close(channel)
		delete(broadcaster.subscribers, identifier)
	}
}

func (broadcaster *Broadcaster) remove(identifier int64) {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	channel, exists := broadcaster.subscribers[identifier]
	if exists {
		delete(broadcaster.subscribers, identifier)
		close(channel)
	}
}

// Subscription is a single subscriber to push events.
type Subscription struct {
	broadcaster *Broadcaster
	identifier  int64
	events      chan Event
	once        sync.Once
}

// Events exposes the receive-only event channel.
func (subscription *Subscription) Events() <-chan Event {
	if subscription == nil {
		return nil
	}
	return subscription.events
}

// Close unregisters the subscription and closes its channel.
func (subscription *Subscription) Close() {
	if subscription == nil {
		return
	}
	subscription.once.Do(func() {
		if subscription.broadcaster != nil {
			subscription.broadcaster.remove(subscription.identifier)
		}
	})
}
