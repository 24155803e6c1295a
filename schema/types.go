package schema

// TabID identifies an open notebook tab.
type TabID string

// CellID identifies a cell within a notebook session.
type CellID string

// SessionID correlates a tab with its execution context on the backend.
type SessionID string

// ThemeName identifies a UI colour palette.
type ThemeName string

// CellType is the variant of a notebook cell.
type CellType string

const (
	// CellCode is an executable code cell.
	CellCode CellType = "code"
	// CellMarkdown is a rendered markdown cell.
	CellMarkdown CellType = "markdown"
)

// Valid reports whether t is a known cell type.
func (t CellType) Valid() bool {
	return t == CellCode || t == CellMarkdown
}

// CellStatus is the execution state of a code cell.
type CellStatus string

const (
	// CellStatusIdle indicates the cell has not run since it was created or reset.
	CellStatusIdle CellStatus = "idle"
	// CellStatusRunning indicates the cell is executing.
	CellStatusRunning CellStatus = "running"
	// CellStatusSuccess indicates the last execution succeeded.
	CellStatusSuccess CellStatus = "success"
	// CellStatusError indicates the last execution failed.
	CellStatusError CellStatus = "error"
)

// Valid reports whether s is a known cell status.
func (s CellStatus) Valid() bool {
	switch s {
	case CellStatusIdle, CellStatusRunning, CellStatusSuccess, CellStatusError:
		return true
	default:
		return false
	}
}

// DefaultTitle is the title of a tab that is not bound to a notebook file.
const DefaultTitle = "untitled"
