package eventbus

import (
	"context"
	"sync"

	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventTab carries tab lifecycle updates.
	EventTab EventType = "tab"
	// EventSession carries notebook session changes.
	EventSession EventType = "session"
)

// Event represents a UI-facing event emitted by the core service.
type Event struct {
	Type    EventType
	Tab     schema.TabEvent
	Session schema.SessionEvent
}

// TabID returns the tab the event concerns.
func (e Event) TabID() schema.TabID {
	if e.Type == EventSession {
		return e.Session.TabID
	}
	return e.Tab.Tab.ID
}

// Bus fans events out to subscribers, optionally filtered by tab.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]schema.TabID
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]schema.TabID),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel.
// An empty tab receives every event.
func (b *Bus) Subscribe(tabID schema.TabID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = tabID
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "tab", tabID, "subs", count)
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
			if b.log != nil {
				b.log.Debug("eventbus unsubscribe", "tab", tabID)
			}
		})
	}
}

// OnTabEvent publishes a tab event.
func (b *Bus) OnTabEvent(event schema.TabEvent) {
	b.publish(Event{Type: EventTab, Tab: event})
}

// OnSessionEvent publishes a session event.
func (b *Bus) OnSessionEvent(event schema.SessionEvent) {
	b.publish(Event{Type: EventSession, Session: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	tabID := event.TabID()
	b.mu.Lock()
	subs := make([]chan Event, 0, len(b.subs))
	for sub, filter := range b.subs {
		if filter == "" || filter == tabID {
			subs = append(subs, sub)
		}
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.Trace("eventbus dropped", "tab", tabID, "count", dropped)
	}
}
