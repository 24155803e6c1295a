package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"pkt.systems/cellbook/internal/logx"
	"pkt.systems/cellbook/internal/persist"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

var errMissingContext = errors.New("missing context")

// service implements the core service behavior.
// Registry and sessions share one lock; backend calls run outside it.
type service struct {
	cfg       schema.ServiceConfig
	backend   Backend
	listings  DataListingRefresher
	sink      EventSink
	store     *persist.Store
	logger    pslog.Logger
	lists     singleflight.Group
	persistMu sync.Mutex

	mu       sync.Mutex
	tabs     *tabRegistry
	sessions map[schema.TabID]*session
	files    []schema.FileDescriptor
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Backend == nil {
		return nil, errors.New("backend is required")
	}
	var store *persist.Store
	if cfg.StateDir != "" {
		store, err = persist.NewStoreWithLogger(cfg.StateDir, deps.Logger)
		if err != nil {
			return nil, err
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	s := &service{
		cfg:      cfg,
		backend:  deps.Backend,
		listings: deps.Listings,
		sink:     deps.EventSink,
		store:    store,
		logger:   logger,
		tabs:     newTabRegistry(),
		sessions: make(map[schema.TabID]*session),
	}
	s.restore()
	return s, nil
}

func (s *service) ListTabs(ctx context.Context, req schema.ListTabsRequest) (schema.ListTabsResponse, error) {
	if ctx == nil {
		return schema.ListTabsResponse{}, errMissingContext
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.ListTabsResponse{Tabs: s.tabs.list(), ActiveTab: s.tabs.active}, nil
}

func (s *service) ActivateTab(ctx context.Context, req schema.ActivateTabRequest) (schema.ActivateTabResponse, error) {
	if ctx == nil {
		return schema.ActivateTabResponse{}, errMissingContext
	}
	log := logx.WithTab(ctx, req.TabID)
	var ev events
	s.mu.Lock()
	changed := s.tabs.activate(req.TabID)
	if changed {
		ev.tab(s.tabs, schema.TabEventActivated, req.TabID)
	}
	active := s.tabs.active
	s.mu.Unlock()
	s.emit(ev)
	if !changed {
		log.Debug("service tab activate skipped")
		return schema.ActivateTabResponse{ActiveTab: active}, nil
	}
	s.persist(log)
	log.Info("service tab activated")
	return schema.ActivateTabResponse{ActiveTab: active, Changed: true}, nil
}

func (s *service) RenameTab(ctx context.Context, req schema.RenameTabRequest) (schema.UpdateTabResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return schema.UpdateTabResponse{}, schema.ErrInvalidRequest
	}
	return s.updateTab(ctx, "rename", req.TabID, func(id schema.TabID) bool {
		return s.tabs.setTitle(id, title)
	})
}

func (s *service) MarkTabModified(ctx context.Context, req schema.MarkTabModifiedRequest) (schema.UpdateTabResponse, error) {
	return s.updateTab(ctx, "modified", req.TabID, func(id schema.TabID) bool {
		return s.tabs.markModified(id, req.Modified)
	})
}

func (s *service) AddTag(ctx context.Context, req schema.TabTagRequest) (schema.UpdateTabResponse, error) {
	tag, ok := schema.NormalizeTag(req.Tag)
	if !ok {
		return schema.UpdateTabResponse{}, schema.ErrInvalidRequest
	}
	return s.updateTab(ctx, "tag_add", req.TabID, func(id schema.TabID) bool {
		return s.tabs.addTag(id, tag)
	})
}

func (s *service) RemoveTag(ctx context.Context, req schema.TabTagRequest) (schema.UpdateTabResponse, error) {
	tag, ok := schema.NormalizeTag(req.Tag)
	if !ok {
		return schema.UpdateTabResponse{}, schema.ErrInvalidRequest
	}
	return s.updateTab(ctx, "tag_remove", req.TabID, func(id schema.TabID) bool {
		return s.tabs.removeTag(id, tag)
	})
}

func (s *service) updateTab(ctx context.Context, op string, tabID schema.TabID, fn func(schema.TabID) bool) (schema.UpdateTabResponse, error) {
	if ctx == nil {
		return schema.UpdateTabResponse{}, errMissingContext
	}
	var ev events
	s.mu.Lock()
	id := s.tabs.resolve(tabID)
	changed := fn(id)
	if changed {
		ev.tab(s.tabs, schema.TabEventUpdated, id)
	}
	s.mu.Unlock()
	log := logx.WithTab(ctx, id)
	s.emit(ev)
	if !changed {
		log.Debug("service tab update skipped", "op", op)
		return schema.UpdateTabResponse{}, nil
	}
	s.persist(log)
	log.Debug("service tab updated", "op", op)
	return schema.UpdateTabResponse{Changed: true}, nil
}

func (s *service) CloseNotebook(ctx context.Context, req schema.CloseNotebookRequest) (schema.CloseNotebookResponse, error) {
	if ctx == nil {
		return schema.CloseNotebookResponse{}, errMissingContext
	}
	log := logx.WithTab(ctx, req.TabID)
	closed, active := s.closeTab(log, req.TabID)
	if !closed {
		log.Debug("service tab close skipped", "reason", "unknown tab")
	}
	return schema.CloseNotebookResponse{Closed: closed, ActiveTab: active}, nil
}

// closeTab removes a tab and its session together.
func (s *service) closeTab(log pslog.Logger, tabID schema.TabID) (bool, schema.TabID) {
	var ev events
	s.mu.Lock()
	tabID = s.tabs.resolve(tabID)
	snap := s.tabs.snapshot(tabID)
	sess := s.sessions[tabID]
	closed := s.tabs.close(tabID)
	if closed {
		delete(s.sessions, tabID)
		snap.Active = false
		ev.tabs = append(ev.tabs, schema.TabEvent{Type: schema.TabEventClosed, Tab: snap, ActiveTab: s.tabs.active})
	}
	active := s.tabs.active
	s.mu.Unlock()
	if !closed {
		return false, active
	}
	s.emit(ev)
	if s.listings != nil && sess != nil {
		s.listings.ForgetSession(sess.sessionID)
	}
	s.persist(log)
	log.Info("service tab closed", "active_tab", active)
	return true, active
}

func (s *service) GetSession(ctx context.Context, req schema.GetSessionRequest) (schema.GetSessionResponse, error) {
	if ctx == nil {
		return schema.GetSessionResponse{}, errMissingContext
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.tabs.resolve(req.TabID)
	sess := s.sessions[id]
	if sess == nil {
		if req.TabID == "" {
			return schema.GetSessionResponse{}, schema.ErrNoActiveSession
		}
		return schema.GetSessionResponse{Session: schema.SessionSnapshot{TabID: req.TabID, Cells: []schema.CellSnapshot{}}}, nil
	}
	return schema.GetSessionResponse{Session: sess.snapshot(id)}, nil
}

// backendContext bounds one backend call by the configured request timeout.
func (s *service) backendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

// events collects notifications under the lock for delivery after unlock.
type events struct {
	tabs     []schema.TabEvent
	sessions []schema.SessionEvent
}

func (e *events) tab(reg *tabRegistry, typ schema.TabEventType, id schema.TabID) {
	e.tabs = append(e.tabs, schema.TabEvent{Type: typ, Tab: reg.snapshot(id), ActiveTab: reg.active})
}

func (e *events) session(typ schema.SessionEventType, tabID schema.TabID, sess *session, cellID schema.CellID) {
	e.sessions = append(e.sessions, schema.SessionEvent{Type: typ, TabID: tabID, SessionID: sess.sessionID, CellID: cellID})
}

func (s *service) emit(ev events) {
	if s.sink == nil {
		return
	}
	for _, event := range ev.tabs {
		s.sink.OnTabEvent(event)
	}
	for _, event := range ev.sessions {
		s.sink.OnSessionEvent(event)
	}
}

func (s *service) restore() {
	if s.store == nil {
		return
	}
	snapshot, ok, err := s.store.LoadWorkspace()
	if err != nil {
		s.logger.Warn("service state restore failed", "err", err)
		return
	}
	if !ok {
		return
	}
	byID := make(map[schema.TabID]persist.TabSnapshot, len(snapshot.Tabs))
	for _, ts := range snapshot.Tabs {
		byID[ts.ID] = ts
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range snapshot.Order {
		ts, ok := byID[id]
		if !ok || ts.SessionID == "" {
			continue
		}
		s.tabs.restore(&tab{
			ID:           ts.ID,
			Title:        ts.Title,
			NotebookFile: ts.NotebookFile,
			SessionID:    ts.SessionID,
			Tags:         ts.Tags,
			Modified:     ts.Modified,
		})
		sess := restoreSession(ts)
		if len(sess.cells) == 0 {
			sess.insertCell(0, schema.CellCode, "")
		}
		s.sessions[ts.ID] = sess
	}
	if s.tabs.get(snapshot.Active) != nil {
		s.tabs.active = snapshot.Active
	} else if len(s.tabs.order) > 0 {
		s.tabs.active = s.tabs.order[0]
	}
	s.logger.Info("service state restored", "tabs", len(s.tabs.order))
}

func (s *service) persist(log pslog.Logger) {
	if s.store == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	snapshot := s.snapshotWorkspace()
	if err := s.store.SaveWorkspace(snapshot); err != nil {
		if log != nil {
			log.Warn("service persist failed", "err", err)
		}
		return
	}
	if log != nil {
		log.Trace("service state persisted", "tabs", len(snapshot.Tabs))
	}
}

func (s *service) snapshotWorkspace() persist.WorkspaceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := persist.WorkspaceSnapshot{
		Order:  append([]schema.TabID(nil), s.tabs.order...),
		Active: s.tabs.active,
		Tabs:   make([]persist.TabSnapshot, 0, len(s.tabs.order)),
	}
	for _, id := range s.tabs.order {
		t := s.tabs.get(id)
		if t == nil {
			continue
		}
		ts := persist.TabSnapshot{
			ID:           t.ID,
			Title:        t.Title,
			NotebookFile: t.NotebookFile,
			SessionID:    t.SessionID,
			Tags:         append([]string(nil), t.Tags...),
			Modified:     t.Modified,
		}
		if sess := s.sessions[id]; sess != nil {
			ts.FileName = sess.fileName
			ts.Cells = sess.export()
		}
		snapshot.Tabs = append(snapshot.Tabs, ts)
	}
	return snapshot
}
