package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pkt.systems/cellbook/schema"
)

// fakeBackend is an in-memory Backend. loadGate and saveGate, when set, block
// the matching call until closed.
type fakeBackend struct {
	mu        sync.Mutex
	docs      map[string]schema.Document
	resets    []schema.SessionID
	loadErr   error
	saveErr   error
	exportErr error
	loadGate  chan struct{}
	saveGate  chan struct{}
	// saveGates block saves of one file name until closed.
	saveGates map[string]chan struct{}
	started   chan string
	lists     int
	exported  []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{docs: make(map[string]schema.Document)}
}

func (f *fakeBackend) signal(op string) {
	if f.started != nil {
		f.started <- op
	}
}

func (f *fakeBackend) ListNotebooks(ctx context.Context) ([]schema.FileDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	out := make([]schema.FileDescriptor, 0, len(f.docs))
	for name := range f.docs {
		out = append(out, schema.FileDescriptor{Name: name, Path: name})
	}
	return out, nil
}

func (f *fakeBackend) LoadNotebook(ctx context.Context, filename string) (schema.Document, error) {
	f.signal("load")
	if f.loadGate != nil {
		select {
		case <-f.loadGate:
		case <-ctx.Done():
			return schema.Document{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return schema.Document{}, f.loadErr
	}
	doc, ok := f.docs[filename]
	if !ok {
		return schema.Document{}, errors.New("not found")
	}
	return doc, nil
}

func (f *fakeBackend) SaveNotebook(ctx context.Context, filename string, doc schema.Document) error {
	f.signal("save")
	gate := f.saveGate
	f.mu.Lock()
	if g, ok := f.saveGates[filename]; ok {
		gate = g
	}
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.docs[filename] = doc
	return nil
}

func (f *fakeBackend) RenameNotebook(ctx context.Context, oldName, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[oldName]
	if !ok {
		return errors.New("not found")
	}
	delete(f.docs, oldName)
	f.docs[newName] = doc
	return nil
}

func (f *fakeBackend) DeleteNotebook(ctx context.Context, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[filename]; !ok {
		return errors.New("not found")
	}
	delete(f.docs, filename)
	return nil
}

func (f *fakeBackend) ResetContext(ctx context.Context, sessionID schema.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, sessionID)
	return nil
}

func (f *fakeBackend) ExportPDF(ctx context.Context, filename string, doc schema.Document) (schema.Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exportErr != nil {
		return schema.Download{}, f.exportErr
	}
	f.exported = append(f.exported, filename)
	return schema.Download{ContentType: "application/pdf", Data: []byte("%PDF-1.4")}, nil
}

type recordingSink struct {
	mu       sync.Mutex
	tabs     []schema.TabEvent
	sessions []schema.SessionEvent
}

func (r *recordingSink) OnTabEvent(event schema.TabEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tabs = append(r.tabs, event)
}

func (r *recordingSink) OnSessionEvent(event schema.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, event)
}

func (r *recordingSink) tabEvents(typ schema.TabEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, event := range r.tabs {
		if event.Type == typ {
			count++
		}
	}
	return count
}

type fakeListings struct {
	mu        sync.Mutex
	refreshed []schema.SessionID
	forgotten []schema.SessionID
}

func (f *fakeListings) RefreshSession(ctx context.Context, sessionID schema.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, sessionID)
	return nil
}

func (f *fakeListings) ForgetSession(sessionID schema.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, sessionID)
}

func newTestService(t *testing.T, backend Backend, deps ServiceDeps) Service {
	t.Helper()
	deps.Backend = backend
	svc, err := NewService(schema.ServiceConfig{}, deps)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func mustSession(t *testing.T, svc Service, tabID schema.TabID) schema.SessionSnapshot {
	t.Helper()
	resp, err := svc.GetSession(context.Background(), schema.GetSessionRequest{TabID: tabID})
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return resp.Session
}

func mustCreate(t *testing.T, svc Service) schema.CreateNotebookResponse {
	t.Helper()
	resp, err := svc.CreateNewNotebook(context.Background(), schema.CreateNotebookRequest{})
	if err != nil {
		t.Fatalf("create notebook: %v", err)
	}
	return resp
}
