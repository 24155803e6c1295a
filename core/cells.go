package core

import (
	"context"

	"pkt.systems/cellbook/internal/logx"
	"pkt.systems/cellbook/schema"
)

// sessionOp mutates one session under the service lock. It reports the
// response and whether the change dirties the tab.
type sessionOp func(id schema.TabID, sess *session, ev *events) (schema.CellResponse, bool)

// withSession resolves the tab, applies op and then emits and persists.
// Unknown tabs are a no-op.
func (s *service) withSession(ctx context.Context, op string, tabID schema.TabID, fn sessionOp) (schema.CellResponse, error) {
	if ctx == nil {
		return schema.CellResponse{}, errMissingContext
	}
	var ev events
	s.mu.Lock()
	id := s.tabs.resolve(tabID)
	sess := s.sessions[id]
	if sess == nil {
		s.mu.Unlock()
		logx.WithTab(ctx, tabID).Debug("service cell op skipped", "op", op, "reason", "unknown tab")
		return schema.CellResponse{}, nil
	}
	resp, dirty := fn(id, sess, &ev)
	if resp.Changed && dirty && s.tabs.markModified(id, true) {
		ev.tab(s.tabs, schema.TabEventUpdated, id)
	}
	sessionID := sess.sessionID
	s.mu.Unlock()

	log := logx.WithCell(logx.WithTabSession(ctx, id, sessionID), resp.CellID)
	s.emit(ev)
	if !resp.Changed {
		log.Debug("service cell op skipped", "op", op)
		return resp, nil
	}
	s.persist(log)
	log.Trace("service cell op applied", "op", op)
	return resp, nil
}

func (s *service) AddCell(ctx context.Context, req schema.AddCellRequest) (schema.CellResponse, error) {
	typ, err := schema.NormalizeCellType(string(req.Type))
	if err != nil {
		return schema.CellResponse{}, err
	}
	return s.withSession(ctx, "add", req.TabID, func(id schema.TabID, sess *session, ev *events) (schema.CellResponse, bool) {
		cell := sess.insertCell(len(sess.cells), typ, "")
		ev.session(schema.SessionEventCells, id, sess, cell)
		return schema.CellResponse{CellID: cell, Changed: true}, true
	})
}

func (s *service) AddCellAbove(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error) {
	return s.addRelative(ctx, "add_above", req, 0)
}

func (s *service) AddCellBelow(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error) {
	return s.addRelative(ctx, "add_below", req, 1)
}

// addRelative inserts a default code cell next to the reference cell.
func (s *service) addRelative(ctx context.Context, op string, req schema.CellRequest, offset int) (schema.CellResponse, error) {
	return s.withSession(ctx, op, req.TabID, func(id schema.TabID, sess *session, ev *events) (schema.CellResponse, bool) {
		idx := sess.indexOf(req.CellID)
		if idx < 0 {
			return schema.CellResponse{}, false
		}
		cell := sess.insertCell(idx+offset, schema.CellCode, "")
		ev.session(schema.SessionEventCells, id, sess, cell)
		return schema.CellResponse{CellID: cell, Changed: true}, true
	})
}

// DeleteCell removes a cell. A session never ends up empty: deleting the
// last cell leaves a fresh code cell behind.
func (s *service) DeleteCell(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error) {
	return s.withSession(ctx, "delete", req.TabID, func(id schema.TabID, sess *session, ev *events) (schema.CellResponse, bool) {
		if !sess.removeCell(req.CellID) {
			return schema.CellResponse{}, false
		}
		if len(sess.cells) == 0 {
			sess.insertCell(0, schema.CellCode, "")
		}
		ev.session(schema.SessionEventCells, id, sess, req.CellID)
		return schema.CellResponse{CellID: req.CellID, Changed: true}, true
	})
}

func (s *service) MoveCellUp(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error) {
	return s.move(ctx, "move_up", req, -1)
}

func (s *service) MoveCellDown(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error) {
	return s.move(ctx, "move_down", req, 1)
}

// move swaps a cell with its neighbour; moving past either end is a no-op.
func (s *service) move(ctx context.Context, op string, req schema.CellRequest, delta int) (schema.CellResponse, error) {
	return s.withSession(ctx, op, req.TabID, func(id schema.TabID, sess *session, ev *events) (schema.CellResponse, bool) {
		idx := sess.indexOf(req.CellID)
		target := idx + delta
		if idx < 0 || target < 0 || target >= len(sess.cells) {
			return schema.CellResponse{CellID: req.CellID}, false
		}
		sess.swap(idx, target)
		ev.session(schema.SessionEventCells, id, sess, req.CellID)
		return schema.CellResponse{CellID: req.CellID, Changed: true}, true
	})
}

// CopyCell duplicates type and content below the source. Output and edit state start fresh.
func (s *service) CopyCell(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error) {
	return s.withSession(ctx, "copy", req.TabID, func(id schema.TabID, sess *session, ev *events) (schema.CellResponse, bool) {
		idx := sess.indexOf(req.CellID)
		if idx < 0 {
			return schema.CellResponse{}, false
		}
		cell := sess.insertCell(idx+1, sess.types[req.CellID], sess.contents[req.CellID])
		ev.session(schema.SessionEventCells, id, sess, cell)
		return schema.CellResponse{CellID: cell, Changed: true}, true
	})
}

// ChangeCellType retypes a cell, keeping only its content.
func (s *service) ChangeCellType(ctx context.Context, req schema.ChangeCellTypeRequest) (schema.CellResponse, error) {
	typ, err := schema.NormalizeCellType(string(req.Type))
	if err != nil {
		return schema.CellResponse{}, err
	}
	return s.withSession(ctx, "change_type", req.TabID, func(id schema.TabID, sess *session, ev *events) (schema.CellResponse, bool) {
		if !sess.has(req.CellID) || sess.types[req.CellID] == typ {
			return schema.CellResponse{CellID: req.CellID}, false
		}
		sess.setCellType(req.CellID, typ)
		sess.fillAux(req.CellID, typ, true)
		ev.session(schema.SessionEventCells, id, sess, req.CellID)
		return schema.CellResponse{CellID: req.CellID, Changed: true}, true
	})
}

func (s *service) SetCellContent(ctx context.Context, req schema.SetCellContentRequest) (schema.CellResponse, error) {
	return s.withSession(ctx, "content", req.TabID, func(id schema.TabID, sess *session, ev *events) (schema.CellResponse, bool) {
		if !sess.has(req.CellID) || sess.contents[req.CellID] == req.Content {
			return schema.CellResponse{CellID: req.CellID}, false
		}
		sess.setCellContent(req.CellID, req.Content)
		ev.session(schema.SessionEventContent, id, sess, req.CellID)
		return schema.CellResponse{CellID: req.CellID, Changed: true}, true
	})
}

// SetCellOutput records execution status and results. Markdown cells have no output.
func (s *service) SetCellOutput(ctx context.Context, req schema.SetCellOutputRequest) (schema.CellResponse, error) {
	out, err := schema.NormalizeCellOutput(req.Output)
	if err != nil {
		return schema.CellResponse{}, err
	}
	return s.withSession(ctx, "output", req.TabID, func(id schema.TabID, sess *session, ev *events) (schema.CellResponse, bool) {
		if !sess.has(req.CellID) || sess.types[req.CellID] != schema.CellCode {
			return schema.CellResponse{CellID: req.CellID}, false
		}
		sess.setCellOutput(req.CellID, out)
		ev.session(schema.SessionEventOutput, id, sess, req.CellID)
		return schema.CellResponse{CellID: req.CellID, Changed: true}, false
	})
}

func (s *service) SetMarkdownEditState(ctx context.Context, req schema.SetEditStateRequest) (schema.CellResponse, error) {
	return s.withSession(ctx, "edit_state", req.TabID, func(id schema.TabID, sess *session, ev *events) (schema.CellResponse, bool) {
		if !sess.has(req.CellID) || sess.types[req.CellID] != schema.CellMarkdown || sess.editStates[req.CellID] == req.Editing {
			return schema.CellResponse{CellID: req.CellID}, false
		}
		sess.setMarkdownEditState(req.CellID, req.Editing)
		ev.session(schema.SessionEventEditState, id, sess, req.CellID)
		return schema.CellResponse{CellID: req.CellID, Changed: true}, false
	})
}

// InsertCode overwrites a trailing empty cell with code, or appends a new code cell.
func (s *service) InsertCode(ctx context.Context, req schema.InsertCodeRequest) (schema.CellResponse, error) {
	return s.withSession(ctx, "insert_code", req.TabID, func(id schema.TabID, sess *session, ev *events) (schema.CellResponse, bool) {
		if n := len(sess.cells); n > 0 {
			last := sess.cells[n-1]
			if sess.contents[last] == "" {
				sess.setCellContent(last, req.Code)
				ev.session(schema.SessionEventContent, id, sess, last)
				return schema.CellResponse{CellID: last, Changed: true}, true
			}
		}
		cell := sess.insertCell(len(sess.cells), schema.CellCode, req.Code)
		ev.session(schema.SessionEventCells, id, sess, cell)
		return schema.CellResponse{CellID: cell, Changed: true}, true
	})
}

// HandleExecutionComplete keeps a trailing empty code cell after the last cell runs.
func (s *service) HandleExecutionComplete(ctx context.Context, req schema.CellRequest) (schema.CellResponse, error) {
	return s.withSession(ctx, "execution_complete", req.TabID, func(id schema.TabID, sess *session, ev *events) (schema.CellResponse, bool) {
		n := len(sess.cells)
		if n == 0 || sess.cells[n-1] != req.CellID {
			return schema.CellResponse{}, false
		}
		cell := sess.insertCell(n, schema.CellCode, "")
		ev.session(schema.SessionEventCells, id, sess, cell)
		return schema.CellResponse{CellID: cell, Changed: true}, true
	})
}
