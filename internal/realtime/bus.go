package realtime

import (
	"sync"

	"go.uber.org/zap"
)

const DefaultBuffer = 64

// Bus is the in-process RealtimeSyncBus. Publish never blocks: a subscriber whose
// buffer is full is evicted and its channel closed, so it can never observe a gap.
type Bus struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
	log    *zap.Logger
}

func NewBus(buffer int, log *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a filtered subscription. The caller must Close it when the session ends.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		bus:    b,
		filter: filter,
		ch:     make(chan Event, b.buffer),
	}
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers events, in argument order, to every matching subscriber.
func (b *Bus) Publish(events ...Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ev := range events {
		for id, sub := range b.subs {
			if !sub.filter.Match(ev) {
				continue
			}
			select {
			case sub.ch <- ev:
			default:
				b.log.Warn("evicting slow realtime subscriber",
					zap.Uint64("subscription", id),
					zap.String("entity", string(ev.Entity)),
					zap.String("request_id", ev.RequestID))
				sub.evicted = true
				b.removeLocked(sub)
			}
		}
	}
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription and refuses new ones.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, sub := range b.subs {
		b.removeLocked(sub)
	}
}

func (b *Bus) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Subscription is one session's view of the bus.
type Subscription struct {
	id     uint64
	bus    *Bus
	filter Filter
	ch     chan Event

	// guarded by bus.mu
	closed  bool
	evicted bool
}

// Events is closed when the subscription ends, either by Close or by eviction.
func (s *Subscription) Events() <-chan Event { return s.ch }

func (s *Subscription) Filter() Filter { return s.filter }

// Evicted reports whether the bus dropped the subscription for falling behind.
func (s *Subscription) Evicted() bool {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.evicted
}

// Close is idempotent.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.removeLocked(s)
}
