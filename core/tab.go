package core

import "pkt.systems/cellbook/schema"

// tab tracks the registry entry of one open notebook.
type tab struct {
	ID           schema.TabID
	Title        string
	NotebookFile string
	SessionID    schema.SessionID
	Tags         []string
	Modified     bool
}

// Snapshot returns a transport-friendly view of the tab.
func (t *tab) Snapshot(active bool) schema.TabSnapshot {
	tags := make([]string, len(t.Tags))
	copy(tags, t.Tags)
	return schema.TabSnapshot{
		ID:           t.ID,
		Title:        t.Title,
		NotebookFile: t.NotebookFile,
		SessionID:    t.SessionID,
		Tags:         tags,
		Modified:     t.Modified,
		Active:       active,
	}
}
