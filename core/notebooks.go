package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"pkt.systems/cellbook/internal/logx"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

const notebookListKey = "notebooks"

func (s *service) CreateNewNotebook(ctx context.Context, req schema.CreateNotebookRequest) (schema.CreateNotebookResponse, error) {
	if ctx == nil {
		return schema.CreateNotebookResponse{}, errMissingContext
	}
	var ev events
	s.mu.Lock()
	t := s.tabs.add(tabSource{Title: req.Title}, s.cfg.DefaultTitle)
	sess := newSession(t.SessionID)
	sess.insertCell(0, schema.CellCode, "")
	s.sessions[t.ID] = sess
	ev.tab(s.tabs, schema.TabEventCreated, t.ID)
	ev.session(schema.SessionEventCells, t.ID, sess, "")
	tabID, sessionID := t.ID, t.SessionID
	s.mu.Unlock()

	log := logx.WithTabSession(ctx, tabID, sessionID)
	s.emit(ev)
	s.persist(log)
	log.Info("service notebook created")
	if s.cfg.ResetContextOnCreate {
		s.resetContext(ctx, log, sessionID)
	}
	return schema.CreateNotebookResponse{TabID: tabID, SessionID: sessionID}, nil
}

func (s *service) resetContext(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) {
	cctx, cancel := s.backendContext(ctx)
	defer cancel()
	if err := s.backend.ResetContext(cctx, sessionID); err != nil {
		log.Warn("service context reset failed", "err", err)
	}
}

func (s *service) OpenNotebook(ctx context.Context, req schema.OpenNotebookRequest) (schema.OpenNotebookResponse, error) {
	if ctx == nil {
		return schema.OpenNotebookResponse{}, errMissingContext
	}
	ref := req.File.FileRef()
	if ref == "" {
		return schema.OpenNotebookResponse{}, schema.ErrEmptyFileName
	}
	log := pslog.Ctx(ctx).With("file", ref)

	var ev events
	s.mu.Lock()
	if existing := s.tabs.findByFile(ref); existing != "" {
		changed := s.tabs.activate(existing)
		if changed {
			ev.tab(s.tabs, schema.TabEventActivated, existing)
		}
		s.mu.Unlock()
		s.emit(ev)
		if changed {
			s.persist(log)
		}
		log.Debug("service notebook open reused tab", "tab", existing)
		return schema.OpenNotebookResponse{TabID: existing, Reused: true}, nil
	}
	t := s.tabs.add(tabSource{NotebookFile: ref}, s.cfg.DefaultTitle)
	s.sessions[t.ID] = newSession(t.SessionID)
	ev.tab(s.tabs, schema.TabEventCreated, t.ID)
	tabID := t.ID
	s.mu.Unlock()
	s.emit(ev)
	log = log.With("tab", tabID)

	ok, err := s.loadNotebook(ctx, log, ref, tabID)
	if !ok {
		if err == nil {
			err = fmt.Errorf("load %s: empty result", ref)
		}
		if errors.Is(err, schema.ErrStaleResponse) {
			return schema.OpenNotebookResponse{LoadError: err.Error()}, nil
		}
		s.closeTab(log, tabID)
		created, cerr := s.CreateNewNotebook(ctx, schema.CreateNotebookRequest{})
		if cerr != nil {
			return schema.OpenNotebookResponse{}, cerr
		}
		log.Warn("service notebook open fell back to new notebook", "err", err, "fallback_tab", created.TabID)
		return schema.OpenNotebookResponse{TabID: created.TabID, Fallback: true, LoadError: err.Error()}, nil
	}

	ev = events{}
	s.mu.Lock()
	sess := s.sessions[tabID]
	var sessionID schema.SessionID
	if sess != nil {
		if len(sess.cells) == 0 {
			id := sess.insertCell(0, schema.CellCode, "")
			ev.session(schema.SessionEventCells, tabID, sess, id)
		}
		sessionID = sess.sessionID
	}
	s.mu.Unlock()
	s.emit(ev)
	if s.listings != nil && sessionID != "" {
		if err := s.listings.RefreshSession(ctx, sessionID); err != nil {
			log.Debug("service dataframe refresh failed", "err", err)
		}
	}
	s.persist(log)
	log.Info("service notebook opened", "session_id", sessionID)
	return schema.OpenNotebookResponse{TabID: tabID}, nil
}

// loadNotebook fetches a document and rebuilds the tab's session from it.
// It fails soft: any error is logged and reported as false. A response is
// applied only if the session survived and no newer load started meanwhile.
func (s *service) loadNotebook(ctx context.Context, log pslog.Logger, ref string, tabID schema.TabID) (bool, error) {
	s.mu.Lock()
	id := s.tabs.resolve(tabID)
	sess := s.sessions[id]
	if sess == nil {
		s.mu.Unlock()
		log.Debug("service notebook load skipped", "reason", "no session")
		return false, schema.ErrNoActiveSession
	}
	sess.loadGen++
	gen := sess.loadGen
	s.mu.Unlock()

	cctx, cancel := s.backendContext(ctx)
	doc, err := s.backend.LoadNotebook(cctx, ref)
	cancel()
	if err != nil {
		log.Warn("service notebook load failed", "err", err)
		return false, err
	}

	var ev events
	s.mu.Lock()
	if s.sessions[id] != sess || sess.loadGen != gen {
		s.mu.Unlock()
		log.Warn("service notebook load dropped", "err", schema.ErrStaleResponse)
		return false, schema.ErrStaleResponse
	}
	sess.applyDocument(doc, ref)
	if s.tabs.setSession(id, sess.sessionID) {
		ev.tab(s.tabs, schema.TabEventUpdated, id)
	}
	ev.session(schema.SessionEventLoaded, id, sess, "")
	s.mu.Unlock()
	s.emit(ev)
	log.Debug("service notebook loaded", "cells", len(doc.Cells))
	return true, nil
}

func (s *service) SaveNotebook(ctx context.Context, req schema.SaveNotebookRequest) (schema.SaveNotebookResponse, error) {
	if ctx == nil {
		return schema.SaveNotebookResponse{}, errMissingContext
	}
	name, ok, err := s.saveNotebook(ctx, req.TabID, req.FileName)
	if ok {
		return schema.SaveNotebookResponse{Saved: true, FileName: name}, nil
	}
	if schema.IsPrecondition(err) {
		return schema.SaveNotebookResponse{}, err
	}
	resp := schema.SaveNotebookResponse{FileName: name}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

// saveNotebook serialises the session and submits it. On success the tab is
// bound to the file and retitled; the dirty flag is cleared only if no edit
// landed while the request was in flight.
func (s *service) saveNotebook(ctx context.Context, tabID schema.TabID, override string) (string, bool, error) {
	s.mu.Lock()
	id := s.tabs.resolve(tabID)
	sess := s.sessions[id]
	if sess == nil {
		s.mu.Unlock()
		return "", false, schema.ErrNoActiveSession
	}
	name := strings.TrimSpace(override)
	if name == "" {
		name = sess.fileName
	}
	if name == "" {
		if t := s.tabs.get(id); t != nil {
			name = t.NotebookFile
		}
	}
	if name == "" {
		s.mu.Unlock()
		return "", false, schema.ErrFileNameRequired
	}
	name = schema.EnsureNotebookExt(name)
	doc := sess.snapshot(id).Document()
	rev := sess.revision
	sess.saveGen++
	gen := sess.saveGen
	s.mu.Unlock()

	log := logx.WithTabSession(ctx, id, doc.SessionID).With("file", name)
	cctx, cancel := s.backendContext(ctx)
	err := s.backend.SaveNotebook(cctx, name, doc)
	cancel()
	if err != nil {
		log.Warn("service notebook save failed", "err", err)
		return name, false, err
	}

	var ev events
	s.mu.Lock()
	if s.sessions[id] != sess {
		s.mu.Unlock()
		log.Warn("service notebook save result dropped", "err", schema.ErrStaleResponse)
		return name, false, schema.ErrStaleResponse
	}
	if sess.saveGen != gen {
		s.mu.Unlock()
		log.Warn("service notebook save result dropped", "err", schema.ErrStaleResponse, "reason", "superseded")
		return name, false, schema.ErrStaleResponse
	}
	// One document, one tab: other tabs holding this file now hold unsaved content.
	for _, other := range s.tabs.boundTo(name) {
		if other == id {
			continue
		}
		s.tabs.unbindNotebook(other)
		if otherSess := s.sessions[other]; otherSess != nil {
			otherSess.fileName = ""
		}
		ev.tab(s.tabs, schema.TabEventUpdated, other)
		log.Info("service notebook unbound from other tab", "other_tab", other)
	}
	sess.fileName = name
	s.tabs.bindNotebook(id, name)
	s.tabs.setTitle(id, schema.NotebookTitle(name))
	edited := sess.revision != rev
	if edited {
		s.tabs.markModified(id, true)
	}
	ev.tab(s.tabs, schema.TabEventUpdated, id)
	ev.session(schema.SessionEventSaved, id, sess, "")
	s.mu.Unlock()
	s.emit(ev)
	s.persist(log)
	log.Info("service notebook saved", "edited_during_save", edited)

	if _, err := s.fetchNotebooks(ctx); err != nil {
		log.Debug("service notebook list refresh failed", "err", err)
	}
	return name, true, nil
}

func (s *service) ListNotebooks(ctx context.Context, req schema.ListNotebooksRequest) (schema.ListNotebooksResponse, error) {
	if ctx == nil {
		return schema.ListNotebooksResponse{}, errMissingContext
	}
	files, err := s.fetchNotebooks(ctx)
	if err != nil {
		return schema.ListNotebooksResponse{}, err
	}
	return schema.ListNotebooksResponse{Notebooks: files}, nil
}

// fetchNotebooks refreshes the cached notebook list. Concurrent callers share one request.
func (s *service) fetchNotebooks(ctx context.Context) ([]schema.FileDescriptor, error) {
	v, err, _ := s.lists.Do(notebookListKey, func() (any, error) {
		cctx, cancel := s.backendContext(ctx)
		defer cancel()
		files, err := s.backend.ListNotebooks(cctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.files = files
		s.mu.Unlock()
		return files, nil
	})
	if err != nil {
		return nil, err
	}
	files := v.([]schema.FileDescriptor)
	return slices.Clone(files), nil
}

func (s *service) RenameNotebook(ctx context.Context, req schema.RenameNotebookRequest) (schema.RenameNotebookResponse, error) {
	if ctx == nil {
		return schema.RenameNotebookResponse{}, errMissingContext
	}
	oldName := schema.EnsureNotebookExt(req.OldName)
	if oldName == "" {
		return schema.RenameNotebookResponse{}, schema.ErrEmptyFileName
	}
	newName := strings.TrimSpace(req.NewName)
	if err := schema.ValidateNotebookName(newName); err != nil {
		return schema.RenameNotebookResponse{}, err
	}
	log := pslog.Ctx(ctx).With("file", oldName, "new_file", newName)
	cctx, cancel := s.backendContext(ctx)
	err := s.backend.RenameNotebook(cctx, oldName, newName)
	cancel()
	if err != nil {
		log.Warn("service notebook rename failed", "err", err)
		return schema.RenameNotebookResponse{}, err
	}

	var ev events
	s.mu.Lock()
	id := s.tabs.findByFile(oldName)
	if t := s.tabs.get(id); t != nil {
		t.NotebookFile = newName
		t.Title = schema.NotebookTitle(newName)
		if sess := s.sessions[id]; sess != nil {
			sess.fileName = newName
		}
		ev.tab(s.tabs, schema.TabEventUpdated, id)
	}
	s.mu.Unlock()
	s.emit(ev)
	if id != "" {
		s.persist(log)
	}
	log.Info("service notebook renamed", "tab", id)
	if _, err := s.fetchNotebooks(ctx); err != nil {
		log.Debug("service notebook list refresh failed", "err", err)
	}
	return schema.RenameNotebookResponse{TabID: id}, nil
}

func (s *service) DeleteNotebook(ctx context.Context, req schema.DeleteNotebookRequest) (schema.DeleteNotebookResponse, error) {
	if ctx == nil {
		return schema.DeleteNotebookResponse{}, errMissingContext
	}
	name := schema.EnsureNotebookExt(req.FileName)
	if name == "" {
		return schema.DeleteNotebookResponse{}, schema.ErrEmptyFileName
	}
	log := pslog.Ctx(ctx).With("file", name)
	cctx, cancel := s.backendContext(ctx)
	err := s.backend.DeleteNotebook(cctx, name)
	cancel()
	if err != nil {
		log.Warn("service notebook delete failed", "err", err)
		return schema.DeleteNotebookResponse{}, err
	}
	s.mu.Lock()
	id := s.tabs.findByFile(name)
	s.mu.Unlock()
	if id != "" {
		if closed, _ := s.closeTab(log.With("tab", id), id); !closed {
			id = ""
		}
	}
	log.Info("service notebook deleted", "closed_tab", id)
	if _, err := s.fetchNotebooks(ctx); err != nil {
		log.Debug("service notebook list refresh failed", "err", err)
	}
	return schema.DeleteNotebookResponse{ClosedTab: id}, nil
}

func (s *service) ClearNotebook(ctx context.Context, req schema.ClearNotebookRequest) (schema.CellResponse, error) {
	return s.withSession(ctx, "clear", req.TabID, func(id schema.TabID, sess *session, ev *events) (schema.CellResponse, bool) {
		sess.clearNotebookState()
		ev.session(schema.SessionEventCleared, id, sess, "")
		cell := sess.insertCell(0, schema.CellCode, "")
		ev.session(schema.SessionEventCells, id, sess, cell)
		return schema.CellResponse{CellID: cell, Changed: true}, true
	})
}

func (s *service) ResetExecutionContext(ctx context.Context, req schema.ResetContextRequest) (schema.ResetContextResponse, error) {
	if ctx == nil {
		return schema.ResetContextResponse{}, errMissingContext
	}
	s.mu.Lock()
	id := s.tabs.resolve(req.TabID)
	t := s.tabs.get(id)
	var sessionID schema.SessionID
	if t != nil {
		sessionID = t.SessionID
	}
	s.mu.Unlock()
	if sessionID == "" {
		return schema.ResetContextResponse{}, schema.ErrNoActiveSession
	}
	log := logx.WithTabSession(ctx, id, sessionID)
	cctx, cancel := s.backendContext(ctx)
	err := s.backend.ResetContext(cctx, sessionID)
	cancel()
	if err != nil {
		log.Warn("service context reset failed", "err", err)
		return schema.ResetContextResponse{}, err
	}
	log.Info("service context reset")
	return schema.ResetContextResponse{SessionID: sessionID}, nil
}

// ExportPDF renders the session through the backend. An unbound session needs
// a file name and is saved under it first.
func (s *service) ExportPDF(ctx context.Context, req schema.ExportPDFRequest) (schema.ExportPDFResponse, error) {
	if ctx == nil {
		return schema.ExportPDFResponse{}, errMissingContext
	}
	s.mu.Lock()
	id := s.tabs.resolve(req.TabID)
	sess := s.sessions[id]
	if sess == nil {
		s.mu.Unlock()
		return schema.ExportPDFResponse{}, schema.ErrNoActiveSession
	}
	bound := sess.fileName
	if bound == "" {
		if t := s.tabs.get(id); t != nil {
			bound = t.NotebookFile
		}
	}
	s.mu.Unlock()

	if bound == "" {
		if strings.TrimSpace(req.FileName) == "" {
			return schema.ExportPDFResponse{}, schema.ErrFileNameRequired
		}
		name, ok, err := s.saveNotebook(ctx, id, req.FileName)
		if !ok {
			return schema.ExportPDFResponse{}, fmt.Errorf("save before export: %w", err)
		}
		bound = name
	}

	s.mu.Lock()
	sess = s.sessions[id]
	if sess == nil {
		s.mu.Unlock()
		return schema.ExportPDFResponse{}, schema.ErrNoActiveSession
	}
	doc := sess.snapshot(id).Document()
	s.mu.Unlock()

	log := logx.WithTabSession(ctx, id, doc.SessionID).With("file", bound)
	cctx, cancel := s.backendContext(ctx)
	dl, err := s.backend.ExportPDF(cctx, bound, doc)
	cancel()
	if err != nil {
		log.Warn("service export failed", "err", err)
		return schema.ExportPDFResponse{}, err
	}
	log.Info("service notebook exported", "bytes", len(dl.Data))
	return schema.ExportPDFResponse{
		FileName:    schema.ExportFileName(bound),
		ContentType: dl.ContentType,
		Data:        dl.Data,
	}, nil
}
