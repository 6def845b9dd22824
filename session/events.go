package session

import (
	"fmt"
	"sync"

	"go2tv.app/castbridge/castprotocol"
	"go2tv.app/castbridge/devices"
)

// EventType names what an Event carries.
type EventType int

const (
	// EventService carries a discovered device in Record.
	EventService EventType = iota
	// EventStatus carries a receiver status update in Status, as received.
	EventStatus
	// EventLoaded carries the MediaItem the player accepted in Media.
	EventLoaded
	// EventClosed is published once the active session has been closed.
	EventClosed
	// EventLaunched carries the device in Record whose receiver application
	// just became the active player, replacing any previous one.
	EventLaunched
)

func (t EventType) String() string {
	switch t {
	case EventService:
		return "service"
	case EventStatus:
		return "status"
	case EventLoaded:
		return "loaded"
	case EventClosed:
		return "closed"
	case EventLaunched:
		return "launched"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is published to every subscriber of a Bus. Only the field that
// matches Type is set.
type Event struct {
	Type   EventType
	Record devices.DeviceRecord
	Status castprotocol.CastStatus
	Media  castprotocol.MediaItem
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// Bus fans events out to subscribers. Events are delivered in publish
// order and never dropped: Publish waits for every subscriber to take the
// event, so subscribers must keep draining their channel or unsubscribe.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	next   int
	closed bool

	done     chan struct{}
	stopOnce sync.Once
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]*subscriber),
		done: make(chan struct{}),
	}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel; it is safe to call more than once. Subscribing to a
// closed Bus returns an already closed channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	s := &subscriber{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = s
	b.mu.Unlock()

	return s.ch, func() {
		s.stop()
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
		b.mu.Unlock()
	}
}

// Publish delivers ev to all current subscribers.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		case <-b.done:
			return
		}
	}
}

// Close unsubscribes everyone and closes their channels.
func (b *Bus) Close() {
	b.stopOnce.Do(func() { close(b.done) })

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		s.stop()
		delete(b.subs, id)
		close(s.ch)
	}
}
