// Package uistate holds presentation preferences: the file panel width and
// the active theme. Both survive restarts through the persist store.
package uistate

import (
	"context"
	"fmt"
	"sync"

	"pkt.systems/cellbook/internal/persist"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

// Defaults seed the state when nothing was persisted.
type Defaults struct {
	Theme      string
	PanelWidth int
}

// State tracks panel layout and theme.
type State struct {
	store *persist.Store
	log   pslog.Logger

	mu       sync.Mutex
	width    int
	dragging bool
	theme    schema.ThemeName
}

// New loads persisted preferences from store, falling back to defaults.
// A nil store keeps everything in memory.
func New(store *persist.Store, defaults Defaults, logger pslog.Logger) (*State, error) {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	theme := schema.DefaultTheme
	if defaults.Theme != "" {
		name, ok := schema.NormalizeThemeName(defaults.Theme)
		if !ok {
			return nil, fmt.Errorf("theme %q: %w", defaults.Theme, schema.ErrUnknownTheme)
		}
		theme = name
	}
	s := &State{
		store: store,
		log:   logger.With("component", "uistate"),
		width: schema.ClampPanelWidth(defaults.PanelWidth),
		theme: theme,
	}
	if store == nil {
		return s, nil
	}
	snapshot, ok, err := store.LoadUI()
	if err != nil {
		return nil, err
	}
	if !ok {
		return s, nil
	}
	if snapshot.PanelWidth != 0 {
		s.width = schema.ClampPanelWidth(snapshot.PanelWidth)
	}
	if name, ok := schema.NormalizeThemeName(string(snapshot.Theme)); ok {
		s.theme = name
	} else if snapshot.Theme != "" {
		s.log.Warn("uistate persisted theme ignored", "theme", snapshot.Theme)
	}
	return s, nil
}

// Panel returns the current layout.
func (s *State) Panel() schema.PanelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.PanelState{Width: s.width, Dragging: s.dragging}
}

// SetPanelWidth stores a clamped width and returns it.
func (s *State) SetPanelWidth(width int) int {
	s.mu.Lock()
	s.width = schema.ClampPanelWidth(width)
	width = s.width
	s.mu.Unlock()
	s.save()
	return width
}

// StartDrag begins a resize.
func (s *State) StartDrag() {
	s.mu.Lock()
	s.dragging = true
	s.mu.Unlock()
}

// DragTo resizes while dragging. Outside a drag it reports the current width.
func (s *State) DragTo(width int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dragging {
		s.width = schema.ClampPanelWidth(width)
	}
	return s.width
}

// EndDrag finishes a resize and persists the final width.
func (s *State) EndDrag() schema.PanelState {
	s.mu.Lock()
	wasDragging := s.dragging
	s.dragging = false
	panel := schema.PanelState{Width: s.width}
	s.mu.Unlock()
	if wasDragging {
		s.save()
	}
	return panel
}

// Theme returns the active theme.
func (s *State) Theme() schema.Theme {
	s.mu.Lock()
	name := s.theme
	s.mu.Unlock()
	theme, _ := schema.LookupTheme(name)
	return theme
}

// SetTheme switches theme. Unknown names are rejected and leave the theme as is.
func (s *State) SetTheme(name string) (schema.Theme, error) {
	normalized, ok := schema.NormalizeThemeName(name)
	if !ok {
		return schema.Theme{}, fmt.Errorf("theme %q: %w", name, schema.ErrUnknownTheme)
	}
	s.mu.Lock()
	changed := s.theme != normalized
	s.theme = normalized
	s.mu.Unlock()
	if changed {
		s.save()
		s.log.Info("uistate theme changed", "theme", normalized)
	}
	theme, _ := schema.LookupTheme(normalized)
	return theme, nil
}

// Themes lists the selectable themes.
func (s *State) Themes() []schema.Theme {
	return schema.Themes()
}

func (s *State) save() {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	snapshot := persist.UISnapshot{Theme: s.theme, PanelWidth: s.width}
	s.mu.Unlock()
	if err := s.store.SaveUI(snapshot); err != nil {
		s.log.Warn("uistate save failed", "err", err)
	}
}
