package schema

// TabEventType describes tab lifecycle events.
type TabEventType string

const (
	// TabEventCreated indicates a tab was opened.
	TabEventCreated TabEventType = "created"
	// TabEventClosed indicates a tab was closed.
	TabEventClosed TabEventType = "closed"
	// TabEventActivated indicates the active tab changed.
	TabEventActivated TabEventType = "activated"
	// TabEventUpdated indicates title, file, tags or the dirty flag changed.
	TabEventUpdated TabEventType = "updated"
)

// TabEvent is emitted when the tab registry changes.
type TabEvent struct {
	Type      TabEventType `json:"type"`
	Tab       TabSnapshot  `json:"tab"`
	ActiveTab TabID        `json:"active_tab,omitempty"`
}

// SessionEventType describes notebook session changes.
type SessionEventType string

const (
	// SessionEventCells indicates cells were added, removed, moved or retyped.
	SessionEventCells SessionEventType = "cells"
	// SessionEventContent indicates a cell's content changed.
	SessionEventContent SessionEventType = "content"
	// SessionEventOutput indicates a code cell's output changed.
	SessionEventOutput SessionEventType = "output"
	// SessionEventEditState indicates a markdown cell toggled edit mode.
	SessionEventEditState SessionEventType = "edit_state"
	// SessionEventLoaded indicates the session was rebuilt from a document.
	SessionEventLoaded SessionEventType = "loaded"
	// SessionEventSaved indicates the session was persisted.
	SessionEventSaved SessionEventType = "saved"
	// SessionEventCleared indicates the session was emptied.
	SessionEventCleared SessionEventType = "cleared"
)

// SessionEvent is emitted when a notebook session changes.
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	TabID     TabID            `json:"tab_id"`
	SessionID SessionID        `json:"session_id,omitempty"`
	CellID    CellID           `json:"cell_id,omitempty"`
}
