package uistate

import (
	"errors"
	"testing"

	"pkt.systems/cellbook/internal/persist"
	"pkt.systems/cellbook/schema"
)

func newStore(t *testing.T) *persist.Store {
	t.Helper()
	store, err := persist.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestDragOnlyResizesWhileDragging(t *testing.T) {
	state, err := New(nil, Defaults{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := state.DragTo(300); got != schema.PanelDefaultWidth {
		t.Fatalf("expected width unchanged outside drag, got %d", got)
	}
	state.StartDrag()
	if !state.Panel().Dragging {
		t.Fatalf("expected dragging")
	}
	if got := state.DragTo(1000); got != schema.PanelMaxWidth {
		t.Fatalf("expected clamp to max, got %d", got)
	}
	state.DragTo(333)
	panel := state.EndDrag()
	if panel.Dragging || panel.Width != 333 {
		t.Fatalf("unexpected panel after drag: %+v", panel)
	}
}

func TestSetThemeRejectsUnknown(t *testing.T) {
	state, err := New(nil, Defaults{Theme: "dark"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := state.SetTheme("neon"); !errors.Is(err, schema.ErrUnknownTheme) {
		t.Fatalf("expected ErrUnknownTheme, got %v", err)
	}
	if state.Theme().Name != "dark" {
		t.Fatalf("expected theme unchanged, got %s", state.Theme().Name)
	}
	theme, err := state.SetTheme(" Sepia ")
	if err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if theme.Name != "sepia" || theme.Colors.Background == "" {
		t.Fatalf("unexpected theme: %+v", theme)
	}
	if len(state.Themes()) != len(schema.AvailableThemes()) {
		t.Fatalf("themes mismatch")
	}
}

func TestInvalidDefaultThemeFails(t *testing.T) {
	if _, err := New(nil, Defaults{Theme: "neon"}, nil); !errors.Is(err, schema.ErrUnknownTheme) {
		t.Fatalf("expected ErrUnknownTheme, got %v", err)
	}
}

func TestPreferencesSurviveRestart(t *testing.T) {
	store := newStore(t)
	state, err := New(store, Defaults{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	state.SetPanelWidth(360)
	if _, err := state.SetTheme("ocean"); err != nil {
		t.Fatalf("set theme: %v", err)
	}

	reopened, err := New(store, Defaults{Theme: "dark", PanelWidth: 300}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Panel().Width != 360 {
		t.Fatalf("expected persisted width, got %d", reopened.Panel().Width)
	}
	if reopened.Theme().Name != "ocean" {
		t.Fatalf("expected persisted theme, got %s", reopened.Theme().Name)
	}
}

func TestDefaultsApplyWithoutSnapshot(t *testing.T) {
	state, err := New(newStore(t), Defaults{Theme: "dark", PanelWidth: 500}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if state.Panel().Width != schema.PanelMaxWidth || state.Theme().Name != "dark" {
		t.Fatalf("unexpected state: %+v %s", state.Panel(), state.Theme().Name)
	}
}
