package schema

// TabSnapshot is a read-only view of tab state for transports.
type TabSnapshot struct {
	ID           TabID     `json:"id"`
	Title        string    `json:"title"`
	NotebookFile string    `json:"notebook_file,omitempty"`
	SessionID    SessionID `json:"session_id"`
	Tags         []string  `json:"tags"`
	Modified     bool      `json:"modified"`
	Active       bool      `json:"active"`
}

// CellSnapshot projects one cell out of a session's parallel maps.
// Output is set for code cells and Editing for markdown cells.
type CellSnapshot struct {
	ID      CellID      `json:"id"`
	Type    CellType    `json:"type"`
	Content string      `json:"content"`
	Output  *CellOutput `json:"output,omitempty"`
	Editing *bool       `json:"editing,omitempty"`
}

// SessionSnapshot is a read-only view of one tab's notebook session.
type SessionSnapshot struct {
	TabID     TabID          `json:"tab_id"`
	SessionID SessionID      `json:"session_id"`
	FileName  string         `json:"file_name,omitempty"`
	Cells     []CellSnapshot `json:"cells"`
}

// CellIDs returns the cell order of the snapshot.
func (s SessionSnapshot) CellIDs() []CellID {
	out := make([]CellID, 0, len(s.Cells))
	for _, cell := range s.Cells {
		out = append(out, cell.ID)
	}
	return out
}

// Cell returns the snapshot of id if present.
func (s SessionSnapshot) Cell(id CellID) (CellSnapshot, bool) {
	for _, cell := range s.Cells {
		if cell.ID == id {
			return cell, true
		}
	}
	return CellSnapshot{}, false
}

// Document serialises the snapshot into the backend document payload.
func (s SessionSnapshot) Document() Document {
	doc := Document{SessionID: s.SessionID, Cells: make([]DocumentCell, 0, len(s.Cells))}
	for _, cell := range s.Cells {
		dc := DocumentCell{ID: cell.ID, Type: cell.Type, Content: cell.Content}
		if cell.Type == CellCode {
			out := DefaultCellOutput()
			if cell.Output != nil {
				out = *cell.Output
			}
			dc.Output = &out
		}
		doc.Cells = append(doc.Cells, dc)
	}
	return doc
}
