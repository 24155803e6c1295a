package eventbus

import (
	"testing"
	"time"

	"pkt.systems/cellbook/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("")
	defer cancel()

	event := schema.SessionEvent{Type: schema.SessionEventOutput, TabID: "tab1", CellID: "c1"}
	bus.OnSessionEvent(event)

	select {
	case got := <-ch:
		if got.Type != EventSession {
			t.Fatalf("expected session event, got %v", got.Type)
		}
		if got.Session != event {
			t.Fatalf("unexpected payload: %+v", got.Session)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestSubscribeFiltersByTab(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("tab1")
	defer cancel()

	bus.OnTabEvent(schema.TabEvent{Type: schema.TabEventUpdated, Tab: schema.TabSnapshot{ID: "tab2"}})
	bus.OnTabEvent(schema.TabEvent{Type: schema.TabEventUpdated, Tab: schema.TabSnapshot{ID: "tab1"}})

	select {
	case got := <-ch:
		if got.TabID() != "tab1" {
			t.Fatalf("expected tab1 event, got %q", got.TabID())
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
	select {
	case got := <-ch:
		t.Fatalf("unexpected extra event %+v", got)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe("")
	defer cancel()

	var sendCh chan Event
	bus.mu.Lock()
	for ch := range bus.subs {
		sendCh = ch
		break
	}
	bus.mu.Unlock()
	if sendCh == nil {
		t.Fatalf("expected subscriber channel")
	}
	sendCh <- Event{Type: EventTab}
	done := make(chan struct{})
	go func() {
		bus.OnTabEvent(schema.TabEvent{Type: schema.TabEventCreated})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
}
