package core

import "pkt.systems/cellbook/schema"

// EventSink receives tab and session events from the core service.
type EventSink interface {
	OnTabEvent(event schema.TabEvent)
	OnSessionEvent(event schema.SessionEvent)
}
