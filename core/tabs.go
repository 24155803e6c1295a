package core

import (
	"slices"
	"strings"

	"pkt.systems/cellbook/schema"
)

// tabRegistry holds open tabs in display order. At most one tab is active.
// Methods report whether anything changed and never fail; unknown ids are no-ops.
type tabRegistry struct {
	tabs   map[schema.TabID]*tab
	order  []schema.TabID
	active schema.TabID
}

// tabSource seeds a new tab from an existing document.
type tabSource struct {
	NotebookFile string
	SessionID    schema.SessionID
	Title        string
}

func newTabRegistry() *tabRegistry {
	return &tabRegistry{tabs: make(map[schema.TabID]*tab)}
}

// add appends a tab and activates it.
func (r *tabRegistry) add(src tabSource, defaultTitle string) *tab {
	title := strings.TrimSpace(src.Title)
	if title == "" && strings.TrimSpace(src.NotebookFile) != "" {
		title = schema.NotebookTitle(src.NotebookFile)
	}
	if title == "" {
		title = defaultTitle
	}
	sessionID := src.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}
	t := &tab{
		ID:           newTabID(),
		Title:        title,
		NotebookFile: strings.TrimSpace(src.NotebookFile),
		SessionID:    sessionID,
	}
	r.tabs[t.ID] = t
	r.order = append(r.order, t.ID)
	r.active = t.ID
	return t
}

// restore inserts a persisted tab without touching the active pointer.
func (r *tabRegistry) restore(t *tab) {
	if t == nil || t.ID == "" {
		return
	}
	if _, ok := r.tabs[t.ID]; ok {
		return
	}
	r.tabs[t.ID] = t
	r.order = append(r.order, t.ID)
}

func (r *tabRegistry) get(id schema.TabID) *tab {
	return r.tabs[id]
}

// resolve maps an empty id to the active tab.
func (r *tabRegistry) resolve(id schema.TabID) schema.TabID {
	if id == "" {
		return r.active
	}
	return id
}

// close removes a tab. When the active tab closes, the next tab becomes
// active, or the previous one when the closed tab was last.
func (r *tabRegistry) close(id schema.TabID) bool {
	idx := slices.Index(r.order, id)
	if idx < 0 {
		return false
	}
	delete(r.tabs, id)
	r.order = removeTabID(r.order, id)
	if r.active == id {
		switch {
		case len(r.order) == 0:
			r.active = ""
		case idx < len(r.order):
			r.active = r.order[idx]
		default:
			r.active = r.order[len(r.order)-1]
		}
	}
	return true
}

func (r *tabRegistry) activate(id schema.TabID) bool {
	if r.tabs[id] == nil || r.active == id {
		return false
	}
	r.active = id
	return true
}

func (r *tabRegistry) setTitle(id schema.TabID, title string) bool {
	t := r.tabs[id]
	if t == nil || t.Title == title {
		return false
	}
	t.Title = title
	return true
}

func (r *tabRegistry) markModified(id schema.TabID, modified bool) bool {
	t := r.tabs[id]
	if t == nil || t.Modified == modified {
		return false
	}
	t.Modified = modified
	return true
}

// bindNotebook points the tab at a persisted file and clears the dirty flag.
func (r *tabRegistry) bindNotebook(id schema.TabID, path string) bool {
	t := r.tabs[id]
	if t == nil {
		return false
	}
	changed := t.NotebookFile != path || t.Modified
	t.NotebookFile = path
	t.Modified = false
	return changed
}

// unbindNotebook detaches a tab from its file. The tab keeps its content and
// is marked modified, since that content is no longer saved anywhere.
func (r *tabRegistry) unbindNotebook(id schema.TabID) bool {
	t := r.tabs[id]
	if t == nil || t.NotebookFile == "" {
		return false
	}
	t.NotebookFile = ""
	t.Modified = true
	return true
}

// boundTo lists every tab bound to path, in tab order.
func (r *tabRegistry) boundTo(path string) []schema.TabID {
	var ids []schema.TabID
	for _, id := range r.order {
		if t := r.tabs[id]; t != nil && t.NotebookFile == path {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *tabRegistry) setSession(id schema.TabID, sessionID schema.SessionID) bool {
	t := r.tabs[id]
	if t == nil || sessionID == "" || t.SessionID == sessionID {
		return false
	}
	t.SessionID = sessionID
	return true
}

func (r *tabRegistry) addTag(id schema.TabID, tag string) bool {
	t := r.tabs[id]
	if t == nil || slices.Contains(t.Tags, tag) {
		return false
	}
	t.Tags = append(t.Tags, tag)
	return true
}

func (r *tabRegistry) removeTag(id schema.TabID, tag string) bool {
	t := r.tabs[id]
	if t == nil {
		return false
	}
	idx := slices.Index(t.Tags, tag)
	if idx < 0 {
		return false
	}
	t.Tags = slices.Delete(t.Tags, idx, idx+1)
	return true
}

// findByFile returns the tab bound to path, if any.
func (r *tabRegistry) findByFile(path string) schema.TabID {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	for _, id := range r.order {
		if t := r.tabs[id]; t != nil && t.NotebookFile == path {
			return id
		}
	}
	return ""
}

func (r *tabRegistry) snapshot(id schema.TabID) schema.TabSnapshot {
	t := r.tabs[id]
	if t == nil {
		return schema.TabSnapshot{ID: id}
	}
	return t.Snapshot(r.active == id)
}

func (r *tabRegistry) list() []schema.TabSnapshot {
	out := make([]schema.TabSnapshot, 0, len(r.order))
	for _, id := range r.order {
		if t := r.tabs[id]; t != nil {
			out = append(out, t.Snapshot(r.active == id))
		}
	}
	return out
}

func removeTabID(order []schema.TabID, id schema.TabID) []schema.TabID {
	for i, current := range order {
		if current == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
