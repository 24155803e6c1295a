package core

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"pkt.systems/cellbook/internal/persist"
	"pkt.systems/cellbook/schema"
)

func TestCreateNewNotebookHasOneCodeCell(t *testing.T) {
	backend := newFakeBackend()
	sink := &recordingSink{}
	svc, err := NewService(schema.ServiceConfig{ResetContextOnCreate: true}, ServiceDeps{Backend: backend, EventSink: sink})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	created := mustCreate(t, svc)
	session := mustSession(t, svc, created.TabID)
	if len(session.Cells) != 1 || session.Cells[0].Type != schema.CellCode {
		t.Fatalf("expected one code cell, got %+v", session.Cells)
	}
	if session.SessionID != created.SessionID {
		t.Fatalf("expected session %q, got %q", created.SessionID, session.SessionID)
	}
	if !slices.Equal(backend.resets, []schema.SessionID{created.SessionID}) {
		t.Fatalf("expected context reset for new session, got %v", backend.resets)
	}
	if sink.tabEvents(schema.TabEventCreated) != 1 {
		t.Fatalf("expected created event")
	}
}

func TestAddCellAppendsToSequence(t *testing.T) {
	svc := newTestService(t, newFakeBackend(), ServiceDeps{})
	created := mustCreate(t, svc)
	before := mustSession(t, svc, created.TabID).CellIDs()

	resp, err := svc.AddCell(context.Background(), schema.AddCellRequest{Type: schema.CellMarkdown})
	if err != nil {
		t.Fatalf("add cell: %v", err)
	}
	after := mustSession(t, svc, created.TabID)
	if len(after.Cells) != len(before)+1 {
		t.Fatalf("expected one more cell, got %d", len(after.Cells))
	}
	last := after.Cells[len(after.Cells)-1]
	if last.ID != resp.CellID || last.Type != schema.CellMarkdown || last.Content != "" {
		t.Fatalf("unexpected appended cell %+v", last)
	}
	if last.Editing == nil || !*last.Editing {
		t.Fatalf("expected new markdown cell in edit mode")
	}
	if _, err := svc.AddCell(context.Background(), schema.AddCellRequest{Type: "raw"}); !errors.Is(err, schema.ErrInvalidCellType) {
		t.Fatalf("expected invalid cell type, got %v", err)
	}
}

func TestAddCellAboveAndBelow(t *testing.T) {
	svc := newTestService(t, newFakeBackend(), ServiceDeps{})
	created := mustCreate(t, svc)
	a := mustSession(t, svc, created.TabID).Cells[0].ID
	below, _ := svc.AddCellBelow(context.Background(), schema.CellRequest{CellID: a})
	above, _ := svc.AddCellAbove(context.Background(), schema.CellRequest{CellID: a})
	got := mustSession(t, svc, created.TabID).CellIDs()
	want := []schema.CellID{above.CellID, a, below.CellID}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	resp, err := svc.AddCellBelow(context.Background(), schema.CellRequest{CellID: "missing"})
	if err != nil || resp.Changed || resp.CellID != "" {
		t.Fatalf("expected unknown reference to be a no-op, got %+v %v", resp, err)
	}
}

func TestInsertCodeOverwritesTrailingEmptyCell(t *testing.T) {
	svc := newTestService(t, newFakeBackend(), ServiceDeps{})
	created := mustCreate(t, svc)
	a := mustSession(t, svc, created.TabID).Cells[0].ID
	if _, err := svc.SetCellContent(context.Background(), schema.SetCellContentRequest{CellID: a, Content: "import os"}); err != nil {
		t.Fatalf("set content: %v", err)
	}
	b, _ := svc.AddCell(context.Background(), schema.AddCellRequest{})

	resp, err := svc.InsertCode(context.Background(), schema.InsertCodeRequest{Code: "x=1"})
	if err != nil {
		t.Fatalf("insert code: %v", err)
	}
	session := mustSession(t, svc, created.TabID)
	if resp.CellID != b.CellID || len(session.Cells) != 2 {
		t.Fatalf("expected trailing cell overwritten, got %+v", session.Cells)
	}
	if cell, _ := session.Cell(b.CellID); cell.Content != "x=1" {
		t.Fatalf("expected content x=1, got %q", cell.Content)
	}
}

func TestInsertCodeAppendsAfterNonEmptyCell(t *testing.T) {
	svc := newTestService(t, newFakeBackend(), ServiceDeps{})
	created := mustCreate(t, svc)
	a := mustSession(t, svc, created.TabID).Cells[0].ID
	if _, err := svc.SetCellContent(context.Background(), schema.SetCellContentRequest{CellID: a, Content: "x=1"}); err != nil {
		t.Fatalf("set content: %v", err)
	}
	resp, err := svc.InsertCode(context.Background(), schema.InsertCodeRequest{Code: "y=2"})
	if err != nil {
		t.Fatalf("insert code: %v", err)
	}
	session := mustSession(t, svc, created.TabID)
	if !slices.Equal(session.CellIDs(), []schema.CellID{a, resp.CellID}) {
		t.Fatalf("expected appended cell, got %v", session.CellIDs())
	}
	if cell, _ := session.Cell(resp.CellID); cell.Content != "y=2" || cell.Type != schema.CellCode {
		t.Fatalf("unexpected appended cell %+v", cell)
	}
}

func TestSetCellContentMarksTabModified(t *testing.T) {
	svc := newTestService(t, newFakeBackend(), ServiceDeps{})
	created := mustCreate(t, svc)
	a := mustSession(t, svc, created.TabID).Cells[0].ID
	if _, err := svc.SetCellContent(context.Background(), schema.SetCellContentRequest{CellID: a, Content: "x"}); err != nil {
		t.Fatalf("set content: %v", err)
	}
	tabs, _ := svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	if !tabs.Tabs[0].Modified {
		t.Fatalf("expected tab to be dirty")
	}
}

func TestHandleExecutionCompleteAppendsOnlyAfterLast(t *testing.T) {
	svc := newTestService(t, newFakeBackend(), ServiceDeps{})
	created := mustCreate(t, svc)
	a := mustSession(t, svc, created.TabID).Cells[0].ID
	b, _ := svc.AddCell(context.Background(), schema.AddCellRequest{})

	resp, _ := svc.HandleExecutionComplete(context.Background(), schema.CellRequest{CellID: a})
	if resp.Changed {
		t.Fatalf("expected no new cell after a non-last cell")
	}
	resp, _ = svc.HandleExecutionComplete(context.Background(), schema.CellRequest{CellID: b.CellID})
	if !resp.Changed {
		t.Fatalf("expected new trailing cell")
	}
	ids := mustSession(t, svc, created.TabID).CellIDs()
	if len(ids) != 3 || ids[2] != resp.CellID {
		t.Fatalf("unexpected cells %v", ids)
	}
}

func TestChangeCellTypeSwapsAuxiliaryState(t *testing.T) {
	svc := newTestService(t, newFakeBackend(), ServiceDeps{})
	created := mustCreate(t, svc)
	a := mustSession(t, svc, created.TabID).Cells[0].ID
	_, _ = svc.SetCellContent(context.Background(), schema.SetCellContentRequest{CellID: a, Content: "# heading"})
	_, _ = svc.SetCellOutput(context.Background(), schema.SetCellOutputRequest{CellID: a, Output: schema.CellOutput{Output: "x", Status: schema.CellStatusSuccess}})

	resp, err := svc.ChangeCellType(context.Background(), schema.ChangeCellTypeRequest{CellID: a, Type: schema.CellMarkdown})
	if err != nil || !resp.Changed {
		t.Fatalf("expected change, got %+v %v", resp, err)
	}
	cell, _ := mustSession(t, svc, created.TabID).Cell(a)
	if cell.Type != schema.CellMarkdown || cell.Content != "# heading" || cell.Output != nil || cell.Editing == nil {
		t.Fatalf("unexpected cell after retype %+v", cell)
	}
	resp, _ = svc.ChangeCellType(context.Background(), schema.ChangeCellTypeRequest{CellID: a, Type: schema.CellCode})
	cell, _ = mustSession(t, svc, created.TabID).Cell(a)
	if !resp.Changed || cell.Output == nil || *cell.Output != schema.DefaultCellOutput() || cell.Editing != nil {
		t.Fatalf("expected fresh output after retype, got %+v", cell)
	}
}

func TestSetCellOutputRejectsMarkdownAndBadStatus(t *testing.T) {
	svc := newTestService(t, newFakeBackend(), ServiceDeps{})
	mustCreate(t, svc)
	md, _ := svc.AddCell(context.Background(), schema.AddCellRequest{Type: schema.CellMarkdown})
	resp, err := svc.SetCellOutput(context.Background(), schema.SetCellOutputRequest{CellID: md.CellID, Output: schema.CellOutput{Status: schema.CellStatusRunning}})
	if err != nil || resp.Changed {
		t.Fatalf("expected markdown output to be ignored, got %+v %v", resp, err)
	}
	if _, err := svc.SetCellOutput(context.Background(), schema.SetCellOutputRequest{CellID: md.CellID, Output: schema.CellOutput{Status: "done"}}); !errors.Is(err, schema.ErrInvalidCellStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}

func TestCloseNotebookOnSoleTab(t *testing.T) {
	listings := &fakeListings{}
	svc := newTestService(t, newFakeBackend(), ServiceDeps{Listings: listings})
	created := mustCreate(t, svc)
	resp, err := svc.CloseNotebook(context.Background(), schema.CloseNotebookRequest{TabID: created.TabID})
	if err != nil || !resp.Closed {
		t.Fatalf("expected close, got %+v %v", resp, err)
	}
	if resp.ActiveTab != "" {
		t.Fatalf("expected no active tab, got %q", resp.ActiveTab)
	}
	tabs, _ := svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	if tabs.ActiveTab != "" || len(tabs.Tabs) != 0 {
		t.Fatalf("expected empty registry, got %+v", tabs)
	}
	if _, err := svc.GetSession(context.Background(), schema.GetSessionRequest{}); !errors.Is(err, schema.ErrNoActiveSession) {
		t.Fatalf("expected no active session, got %v", err)
	}
	if !slices.Equal(listings.forgotten, []schema.SessionID{created.SessionID}) {
		t.Fatalf("expected listing to forget session, got %v", listings.forgotten)
	}
}

func TestOpenNotebookTwiceReusesTab(t *testing.T) {
	backend := newFakeBackend()
	backend.docs["demo.ipynb"] = schema.Document{SessionID: "sess-demo", Cells: []schema.DocumentCell{{ID: "c1", Type: schema.CellCode, Content: "1"}}}
	listings := &fakeListings{}
	svc := newTestService(t, backend, ServiceDeps{Listings: listings})
	file := schema.FileDescriptor{Name: "demo.ipynb", Path: "demo.ipynb"}

	first, err := svc.OpenNotebook(context.Background(), schema.OpenNotebookRequest{File: file})
	if err != nil || first.Fallback {
		t.Fatalf("open: %+v %v", first, err)
	}
	mustCreate(t, svc)
	second, err := svc.OpenNotebook(context.Background(), schema.OpenNotebookRequest{File: file})
	if err != nil {
		t.Fatalf("open again: %v", err)
	}
	if second.TabID != first.TabID || !second.Reused {
		t.Fatalf("expected reuse of %q, got %+v", first.TabID, second)
	}
	tabs, _ := svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	if len(tabs.Tabs) != 2 || tabs.ActiveTab != first.TabID {
		t.Fatalf("expected two tabs with reopened one active, got %+v", tabs)
	}
	session := mustSession(t, svc, first.TabID)
	if session.SessionID != "sess-demo" || session.FileName != "demo.ipynb" {
		t.Fatalf("unexpected session %+v", session)
	}
	if tabs.Tabs[0].Title != "demo" || tabs.Tabs[0].SessionID != "sess-demo" {
		t.Fatalf("unexpected tab %+v", tabs.Tabs[0])
	}
	if !slices.Equal(listings.refreshed, []schema.SessionID{"sess-demo"}) {
		t.Fatalf("expected dataframe refresh, got %v", listings.refreshed)
	}
}

func TestOpenNotebookEmptyDocumentGetsCell(t *testing.T) {
	backend := newFakeBackend()
	backend.docs["empty.ipynb"] = schema.Document{SessionID: "s"}
	svc := newTestService(t, backend, ServiceDeps{})
	resp, err := svc.OpenNotebook(context.Background(), schema.OpenNotebookRequest{File: schema.FileDescriptor{Path: "empty.ipynb"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if cells := mustSession(t, svc, resp.TabID).Cells; len(cells) != 1 {
		t.Fatalf("expected one cell, got %d", len(cells))
	}
}

func TestOpenNotebookFallsBackOnLoadFailure(t *testing.T) {
	backend := newFakeBackend()
	svc := newTestService(t, backend, ServiceDeps{})
	resp, err := svc.OpenNotebook(context.Background(), schema.OpenNotebookRequest{File: schema.FileDescriptor{Path: "missing.ipynb"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !resp.Fallback || resp.LoadError == "" {
		t.Fatalf("expected fallback, got %+v", resp)
	}
	tabs, _ := svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	if len(tabs.Tabs) != 1 || tabs.Tabs[0].ID != resp.TabID || tabs.Tabs[0].NotebookFile != "" {
		t.Fatalf("expected only the fallback tab, got %+v", tabs.Tabs)
	}
}

func TestStaleLoadAfterCloseIsDropped(t *testing.T) {
	backend := newFakeBackend()
	backend.docs["slow.ipynb"] = schema.Document{SessionID: "s", Cells: []schema.DocumentCell{{ID: "c", Type: schema.CellCode}}}
	backend.loadGate = make(chan struct{})
	backend.started = make(chan string, 1)
	svc := newTestService(t, backend, ServiceDeps{})

	done := make(chan schema.OpenNotebookResponse, 1)
	go func() {
		resp, _ := svc.OpenNotebook(context.Background(), schema.OpenNotebookRequest{File: schema.FileDescriptor{Path: "slow.ipynb"}})
		done <- resp
	}()
	<-backend.started
	tabs, _ := svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	if len(tabs.Tabs) != 1 {
		t.Fatalf("expected loading tab, got %+v", tabs.Tabs)
	}
	if _, err := svc.CloseNotebook(context.Background(), schema.CloseNotebookRequest{TabID: tabs.Tabs[0].ID}); err != nil {
		t.Fatalf("close: %v", err)
	}
	close(backend.loadGate)

	select {
	case resp := <-done:
		if resp.TabID != "" || resp.Fallback {
			t.Fatalf("expected dropped response, got %+v", resp)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("open did not return")
	}
	tabs, _ = svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	if len(tabs.Tabs) != 0 {
		t.Fatalf("expected no tabs after stale load, got %+v", tabs.Tabs)
	}
}

func TestSaveNotebookBindsTab(t *testing.T) {
	backend := newFakeBackend()
	svc := newTestService(t, backend, ServiceDeps{})
	created := mustCreate(t, svc)
	a := mustSession(t, svc, created.TabID).Cells[0].ID
	_, _ = svc.SetCellContent(context.Background(), schema.SetCellContentRequest{CellID: a, Content: "x=1"})

	if _, err := svc.SaveNotebook(context.Background(), schema.SaveNotebookRequest{}); !errors.Is(err, schema.ErrFileNameRequired) {
		t.Fatalf("expected file name required, got %v", err)
	}
	resp, err := svc.SaveNotebook(context.Background(), schema.SaveNotebookRequest{FileName: "report"})
	if err != nil || !resp.Saved || resp.FileName != "report.ipynb" {
		t.Fatalf("expected save, got %+v %v", resp, err)
	}
	tabs, _ := svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	tab := tabs.Tabs[0]
	if tab.Title != "report" || tab.NotebookFile != "report.ipynb" || tab.Modified {
		t.Fatalf("unexpected tab after save %+v", tab)
	}
	doc := backend.docs["report.ipynb"]
	if doc.SessionID != created.SessionID || len(doc.Cells) != 1 || doc.Cells[0].Content != "x=1" {
		t.Fatalf("unexpected saved document %+v", doc)
	}
	if backend.lists == 0 {
		t.Fatalf("expected notebook list refresh after save")
	}
	resp, err = svc.SaveNotebook(context.Background(), schema.SaveNotebookRequest{})
	if err != nil || !resp.Saved {
		t.Fatalf("expected save to bound name, got %+v %v", resp, err)
	}
}

func TestSaveNotebookFailureIsSoft(t *testing.T) {
	backend := newFakeBackend()
	backend.saveErr = errors.New("disk full")
	svc := newTestService(t, backend, ServiceDeps{})
	mustCreate(t, svc)
	resp, err := svc.SaveNotebook(context.Background(), schema.SaveNotebookRequest{FileName: "x.ipynb"})
	if err != nil {
		t.Fatalf("expected soft failure, got %v", err)
	}
	if resp.Saved || resp.Error == "" {
		t.Fatalf("expected failed save report, got %+v", resp)
	}
}

func TestEditDuringSaveKeepsTabDirty(t *testing.T) {
	backend := newFakeBackend()
	backend.saveGate = make(chan struct{})
	backend.started = make(chan string, 1)
	svc := newTestService(t, backend, ServiceDeps{})
	created := mustCreate(t, svc)
	a := mustSession(t, svc, created.TabID).Cells[0].ID

	done := make(chan schema.SaveNotebookResponse, 1)
	go func() {
		resp, _ := svc.SaveNotebook(context.Background(), schema.SaveNotebookRequest{FileName: "wip.ipynb"})
		done <- resp
	}()
	<-backend.started
	if _, err := svc.SetCellContent(context.Background(), schema.SetCellContentRequest{CellID: a, Content: "late edit"}); err != nil {
		t.Fatalf("set content: %v", err)
	}
	close(backend.saveGate)
	select {
	case resp := <-done:
		if !resp.Saved {
			t.Fatalf("expected save to succeed, got %+v", resp)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("save did not return")
	}
	tabs, _ := svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	if !tabs.Tabs[0].Modified || tabs.Tabs[0].NotebookFile != "wip.ipynb" {
		t.Fatalf("expected dirty bound tab, got %+v", tabs.Tabs[0])
	}
}

func TestOlderSaveDoesNotOverrideNewerBinding(t *testing.T) {
	backend := newFakeBackend()
	oldGate, newGate := make(chan struct{}), make(chan struct{})
	backend.saveGates = map[string]chan struct{}{"old.ipynb": oldGate, "new.ipynb": newGate}
	backend.started = make(chan string, 2)
	svc := newTestService(t, backend, ServiceDeps{})
	created := mustCreate(t, svc)

	save := func(name string) <-chan schema.SaveNotebookResponse {
		done := make(chan schema.SaveNotebookResponse, 1)
		go func() {
			resp, _ := svc.SaveNotebook(context.Background(), schema.SaveNotebookRequest{TabID: created.TabID, FileName: name})
			done <- resp
		}()
		<-backend.started
		return done
	}
	oldDone := save("old")
	newDone := save("new")

	close(newGate)
	if resp := <-newDone; !resp.Saved || resp.FileName != "new.ipynb" {
		t.Fatalf("expected newer save to bind, got %+v", resp)
	}
	close(oldGate)
	if resp := <-oldDone; resp.Saved {
		t.Fatalf("expected superseded save to be dropped, got %+v", resp)
	}

	sess := mustSession(t, svc, created.TabID)
	tabs, _ := svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	if sess.FileName != "new.ipynb" || tabs.Tabs[0].NotebookFile != "new.ipynb" || tabs.Tabs[0].Title != "new" {
		t.Fatalf("older save overwrote binding: session=%q tab=%+v", sess.FileName, tabs.Tabs[0])
	}
}

func TestSaveUnderOpenNameUnbindsOtherTab(t *testing.T) {
	backend := newFakeBackend()
	svc := newTestService(t, backend, ServiceDeps{})
	first := mustCreate(t, svc)
	if resp, err := svc.SaveNotebook(context.Background(), schema.SaveNotebookRequest{TabID: first.TabID, FileName: "x"}); err != nil || !resp.Saved {
		t.Fatalf("first save: %+v %v", resp, err)
	}
	second := mustCreate(t, svc)
	if resp, err := svc.SaveNotebook(context.Background(), schema.SaveNotebookRequest{TabID: second.TabID, FileName: "x"}); err != nil || !resp.Saved {
		t.Fatalf("second save: %+v %v", resp, err)
	}

	tabs, _ := svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	bound := 0
	for _, tab := range tabs.Tabs {
		if tab.NotebookFile == "x.ipynb" {
			bound++
			if tab.ID != second.TabID {
				t.Fatalf("expected the latest saver to own x.ipynb, got %s", tab.ID)
			}
			continue
		}
		if tab.ID == first.TabID && !tab.Modified {
			t.Fatalf("expected unbound tab to be dirty, got %+v", tab)
		}
	}
	if bound != 1 {
		t.Fatalf("tabs bound to x.ipynb: %d", bound)
	}
	if sess := mustSession(t, svc, first.TabID); sess.FileName != "" {
		t.Fatalf("expected first session to lose its file, got %q", sess.FileName)
	}

	opened, err := svc.OpenNotebook(context.Background(), schema.OpenNotebookRequest{File: schema.FileDescriptor{Name: "x.ipynb"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !opened.Reused || opened.TabID != second.TabID {
		t.Fatalf("expected open to reuse the saving tab, got %+v", opened)
	}
}

func TestExportPDFRequiresNameForUnboundSession(t *testing.T) {
	backend := newFakeBackend()
	svc := newTestService(t, backend, ServiceDeps{})
	mustCreate(t, svc)
	if _, err := svc.ExportPDF(context.Background(), schema.ExportPDFRequest{}); !errors.Is(err, schema.ErrFileNameRequired) {
		t.Fatalf("expected file name required, got %v", err)
	}
	resp, err := svc.ExportPDF(context.Background(), schema.ExportPDFRequest{FileName: "summary"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if resp.FileName != "summary.pdf" || resp.ContentType != "application/pdf" || len(resp.Data) == 0 {
		t.Fatalf("unexpected export %+v", resp)
	}
	if _, ok := backend.docs["summary.ipynb"]; !ok {
		t.Fatalf("expected session saved before export")
	}
	if !slices.Equal(backend.exported, []string{"summary.ipynb"}) {
		t.Fatalf("unexpected export calls %v", backend.exported)
	}
}

func TestRenameNotebookRepointsTab(t *testing.T) {
	backend := newFakeBackend()
	svc := newTestService(t, backend, ServiceDeps{})
	created := mustCreate(t, svc)
	if _, err := svc.SaveNotebook(context.Background(), schema.SaveNotebookRequest{FileName: "old.ipynb"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.RenameNotebook(context.Background(), schema.RenameNotebookRequest{OldName: "old.ipynb", NewName: "new"}); !errors.Is(err, schema.ErrInvalidNotebookName) {
		t.Fatalf("expected invalid name, got %v", err)
	}
	resp, err := svc.RenameNotebook(context.Background(), schema.RenameNotebookRequest{OldName: "old.ipynb", NewName: "new.ipynb"})
	if err != nil || resp.TabID != created.TabID {
		t.Fatalf("expected re-pointed tab, got %+v %v", resp, err)
	}
	tabs, _ := svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	if tabs.Tabs[0].NotebookFile != "new.ipynb" || tabs.Tabs[0].Title != "new" {
		t.Fatalf("unexpected tab %+v", tabs.Tabs[0])
	}
	if session := mustSession(t, svc, created.TabID); session.FileName != "new.ipynb" {
		t.Fatalf("expected session file name updated, got %q", session.FileName)
	}
}

func TestDeleteNotebookClosesBoundTab(t *testing.T) {
	backend := newFakeBackend()
	svc := newTestService(t, backend, ServiceDeps{})
	created := mustCreate(t, svc)
	if _, err := svc.SaveNotebook(context.Background(), schema.SaveNotebookRequest{FileName: "gone.ipynb"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	resp, err := svc.DeleteNotebook(context.Background(), schema.DeleteNotebookRequest{FileName: "gone"})
	if err != nil || resp.ClosedTab != created.TabID {
		t.Fatalf("expected closed tab, got %+v %v", resp, err)
	}
	if _, err := svc.DeleteNotebook(context.Background(), schema.DeleteNotebookRequest{FileName: "gone.ipynb"}); err == nil {
		t.Fatalf("expected backend error for missing notebook")
	}
}

func TestClearNotebookKeepsSessionID(t *testing.T) {
	svc := newTestService(t, newFakeBackend(), ServiceDeps{})
	created := mustCreate(t, svc)
	_, _ = svc.AddCell(context.Background(), schema.AddCellRequest{})
	resp, err := svc.ClearNotebook(context.Background(), schema.ClearNotebookRequest{})
	if err != nil || !resp.Changed {
		t.Fatalf("clear: %+v %v", resp, err)
	}
	session := mustSession(t, svc, created.TabID)
	if session.SessionID != created.SessionID || len(session.Cells) != 1 || session.Cells[0].ID != resp.CellID {
		t.Fatalf("unexpected session after clear %+v", session)
	}
}

func TestUnknownTabOperationsAreNoOps(t *testing.T) {
	svc := newTestService(t, newFakeBackend(), ServiceDeps{})
	mustCreate(t, svc)
	resp, err := svc.AddCell(context.Background(), schema.AddCellRequest{TabID: "missing"})
	if err != nil || resp.Changed || resp.CellID != "" {
		t.Fatalf("expected no-op, got %+v %v", resp, err)
	}
	update, err := svc.RenameTab(context.Background(), schema.RenameTabRequest{TabID: "missing", Title: "x"})
	if err != nil || update.Changed {
		t.Fatalf("expected no-op, got %+v %v", update, err)
	}
	closed, err := svc.CloseNotebook(context.Background(), schema.CloseNotebookRequest{TabID: "missing"})
	if err != nil || closed.Closed {
		t.Fatalf("expected no-op, got %+v %v", closed, err)
	}
}

func TestTabMetadataOperations(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, newFakeBackend(), ServiceDeps{EventSink: sink})
	first := mustCreate(t, svc)
	second := mustCreate(t, svc)
	ctx := context.Background()

	if resp, _ := svc.ActivateTab(ctx, schema.ActivateTabRequest{TabID: first.TabID}); !resp.Changed || resp.ActiveTab != first.TabID {
		t.Fatalf("unexpected activate %+v", resp)
	}
	if resp, _ := svc.RenameTab(ctx, schema.RenameTabRequest{TabID: second.TabID, Title: "scratch"}); !resp.Changed {
		t.Fatalf("expected rename")
	}
	if resp, _ := svc.AddTag(ctx, schema.TabTagRequest{TabID: second.TabID, Tag: "wip"}); !resp.Changed {
		t.Fatalf("expected tag add")
	}
	if resp, _ := svc.AddTag(ctx, schema.TabTagRequest{TabID: second.TabID, Tag: "wip"}); resp.Changed {
		t.Fatalf("expected duplicate tag to be a no-op")
	}
	if resp, _ := svc.MarkTabModified(ctx, schema.MarkTabModifiedRequest{TabID: second.TabID, Modified: true}); !resp.Changed {
		t.Fatalf("expected modified flag change")
	}
	if _, err := svc.AddTag(ctx, schema.TabTagRequest{TabID: second.TabID, Tag: "  "}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected invalid tag error, got %v", err)
	}
	tabs, _ := svc.ListTabs(ctx, schema.ListTabsRequest{})
	tab := tabs.Tabs[1]
	if tab.Title != "scratch" || !slices.Equal(tab.Tags, []string{"wip"}) || !tab.Modified || tab.Active {
		t.Fatalf("unexpected tab %+v", tab)
	}
	if resp, _ := svc.RemoveTag(ctx, schema.TabTagRequest{TabID: second.TabID, Tag: "wip"}); !resp.Changed {
		t.Fatalf("expected tag removal")
	}
	if sink.tabEvents(schema.TabEventUpdated) < 4 {
		t.Fatalf("expected update events, got %d", sink.tabEvents(schema.TabEventUpdated))
	}
}

func TestWorkspaceSurvivesRestart(t *testing.T) {
	stateDir := t.TempDir()
	backend := newFakeBackend()
	svc, err := NewService(schema.ServiceConfig{StateDir: stateDir}, ServiceDeps{Backend: backend})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	created := mustCreate(t, svc)
	md, _ := svc.AddCell(context.Background(), schema.AddCellRequest{Type: schema.CellMarkdown})
	_, _ = svc.SetCellContent(context.Background(), schema.SetCellContentRequest{CellID: md.CellID, Content: "# notes"})

	store, err := persist.NewStore(stateDir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	snapshot, ok, err := store.LoadWorkspace()
	if err != nil || !ok || len(snapshot.Tabs) != 1 {
		t.Fatalf("expected persisted workspace, got %+v ok=%v err=%v", snapshot, ok, err)
	}

	restarted, err := NewService(schema.ServiceConfig{StateDir: stateDir}, ServiceDeps{Backend: backend})
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	tabs, _ := restarted.ListTabs(context.Background(), schema.ListTabsRequest{})
	if tabs.ActiveTab != created.TabID {
		t.Fatalf("expected restored active tab, got %+v", tabs)
	}
	session := mustSession(t, restarted, created.TabID)
	if len(session.Cells) != 2 || session.Cells[1].Content != "# notes" || session.SessionID != created.SessionID {
		t.Fatalf("unexpected restored session %+v", session)
	}
}

func TestResetExecutionContext(t *testing.T) {
	backend := newFakeBackend()
	svc := newTestService(t, backend, ServiceDeps{})
	if _, err := svc.ResetExecutionContext(context.Background(), schema.ResetContextRequest{}); !errors.Is(err, schema.ErrNoActiveSession) {
		t.Fatalf("expected no active session, got %v", err)
	}
	created := mustCreate(t, svc)
	resp, err := svc.ResetExecutionContext(context.Background(), schema.ResetContextRequest{})
	if err != nil || resp.SessionID != created.SessionID {
		t.Fatalf("unexpected reset %+v %v", resp, err)
	}
}
