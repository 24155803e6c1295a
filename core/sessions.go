package core

import (
	"slices"

	"pkt.systems/cellbook/internal/persist"
	"pkt.systems/cellbook/schema"
)

// session holds one tab's notebook as parallel per-cell maps keyed by cell id.
// Code cells carry an output and markdown cells an edit state, never both.
type session struct {
	sessionID  schema.SessionID
	fileName   string
	cells      []schema.CellID
	contents   map[schema.CellID]string
	types      map[schema.CellID]schema.CellType
	outputs    map[schema.CellID]schema.CellOutput
	editStates map[schema.CellID]bool

	// loadGen advances when a load starts; a load response applies only if it is unchanged.
	loadGen uint64
	// revision advances on every mutation; a save clears the dirty flag only if it is unchanged.
	revision uint64
	// saveGen advances when a save starts; only the latest save binds the file name.
	saveGen uint64
}

func newSession(sessionID schema.SessionID) *session {
	s := &session{sessionID: sessionID}
	s.reset()
	return s
}

func (s *session) reset() {
	s.cells = nil
	s.contents = make(map[schema.CellID]string)
	s.types = make(map[schema.CellID]schema.CellType)
	s.outputs = make(map[schema.CellID]schema.CellOutput)
	s.editStates = make(map[schema.CellID]bool)
}

// The set* methods are upserts without a membership check on cells.

func (s *session) setCells(ids []schema.CellID) {
	s.cells = slices.Clone(ids)
	s.revision++
}

func (s *session) setCellContent(id schema.CellID, content string) {
	s.contents[id] = content
	s.revision++
}

func (s *session) setCellType(id schema.CellID, typ schema.CellType) {
	s.types[id] = typ
	s.revision++
}

func (s *session) setCellOutput(id schema.CellID, out schema.CellOutput) {
	s.outputs[id] = out
	s.revision++
}

func (s *session) setMarkdownEditState(id schema.CellID, editing bool) {
	s.editStates[id] = editing
	s.revision++
}

// clearNotebookState empties the cell maps. The session id and bound file survive.
func (s *session) clearNotebookState() {
	s.reset()
	s.revision++
}

func (s *session) has(id schema.CellID) bool {
	_, ok := s.types[id]
	return ok && slices.Contains(s.cells, id)
}

func (s *session) indexOf(id schema.CellID) int {
	return slices.Index(s.cells, id)
}

// insertCell creates a cell at position at (clamped) and returns its id.
func (s *session) insertCell(at int, typ schema.CellType, content string) schema.CellID {
	id := newCellID()
	at = max(0, min(at, len(s.cells)))
	s.setCellType(id, typ)
	s.setCellContent(id, content)
	s.fillAux(id, typ, true)
	s.setCells(slices.Insert(slices.Clone(s.cells), at, id))
	return id
}

// fillAux makes the output and edit-state maps agree with the cell type.
func (s *session) fillAux(id schema.CellID, typ schema.CellType, editing bool) {
	if typ == schema.CellMarkdown {
		delete(s.outputs, id)
		s.setMarkdownEditState(id, editing)
		return
	}
	delete(s.editStates, id)
	s.setCellOutput(id, schema.DefaultCellOutput())
}

func (s *session) removeCell(id schema.CellID) bool {
	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}
	s.setCells(slices.Delete(slices.Clone(s.cells), idx, idx+1))
	delete(s.contents, id)
	delete(s.types, id)
	delete(s.outputs, id)
	delete(s.editStates, id)
	return true
}

func (s *session) swap(i, j int) {
	cells := slices.Clone(s.cells)
	cells[i], cells[j] = cells[j], cells[i]
	s.setCells(cells)
}

func (s *session) cell(id schema.CellID) schema.CellSnapshot {
	typ := s.types[id]
	cell := schema.CellSnapshot{ID: id, Type: typ, Content: s.contents[id]}
	if typ == schema.CellMarkdown {
		editing := s.editStates[id]
		cell.Editing = &editing
		return cell
	}
	out, ok := s.outputs[id]
	if !ok {
		out = schema.DefaultCellOutput()
	}
	cell.Output = &out
	return cell
}

func (s *session) snapshot(tabID schema.TabID) schema.SessionSnapshot {
	snap := schema.SessionSnapshot{
		TabID:     tabID,
		SessionID: s.sessionID,
		FileName:  s.fileName,
		Cells:     make([]schema.CellSnapshot, 0, len(s.cells)),
	}
	for _, id := range s.cells {
		snap.Cells = append(snap.Cells, s.cell(id))
	}
	return snap
}

// applyDocument rebuilds every map from a loaded document.
// Missing types default to code and markdown cells open rendered.
func (s *session) applyDocument(doc schema.Document, fileName string) {
	s.reset()
	ids := make([]schema.CellID, 0, len(doc.Cells))
	for _, dc := range doc.Cells {
		id := dc.ID
		if id == "" || slices.Contains(ids, id) {
			id = newCellID()
		}
		typ, err := schema.NormalizeCellType(string(dc.Type))
		if err != nil {
			typ = schema.CellCode
		}
		s.types[id] = typ
		s.contents[id] = dc.Content
		if typ == schema.CellMarkdown {
			s.editStates[id] = false
		} else {
			out := schema.DefaultCellOutput()
			if dc.Output != nil {
				if normalized, err := schema.NormalizeCellOutput(*dc.Output); err == nil {
					out = normalized
				}
			}
			s.outputs[id] = out
		}
		ids = append(ids, id)
	}
	s.cells = ids
	s.fileName = fileName
	if doc.SessionID != "" {
		s.sessionID = doc.SessionID
	}
	s.revision++
}

func (s *session) export() []persist.CellSnapshot {
	out := make([]persist.CellSnapshot, 0, len(s.cells))
	for _, id := range s.cells {
		cell := s.cell(id)
		pc := persist.CellSnapshot{ID: id, Type: cell.Type, Content: cell.Content, Output: cell.Output}
		if cell.Editing != nil {
			pc.Editing = *cell.Editing
		}
		out = append(out, pc)
	}
	return out
}

func restoreSession(snap persist.TabSnapshot) *session {
	s := newSession(snap.SessionID)
	s.fileName = snap.FileName
	for _, pc := range snap.Cells {
		if pc.ID == "" || slices.Contains(s.cells, pc.ID) {
			continue
		}
		typ := pc.Type
		if !typ.Valid() {
			typ = schema.CellCode
		}
		s.types[pc.ID] = typ
		s.contents[pc.ID] = pc.Content
		if typ == schema.CellMarkdown {
			s.editStates[pc.ID] = pc.Editing
		} else {
			out := schema.DefaultCellOutput()
			if pc.Output != nil {
				out = *pc.Output
			}
			s.outputs[pc.ID] = out
		}
		s.cells = append(s.cells, pc.ID)
	}
	return s
}
