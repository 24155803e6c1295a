package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidCellType indicates a cell type other than code or markdown.
	ErrInvalidCellType = errors.New("invalid cell type")
	// ErrInvalidCellStatus indicates an unknown execution status.
	ErrInvalidCellStatus = errors.New("invalid cell status")
	// ErrEmptyFileName indicates a file name was required but empty.
	ErrEmptyFileName = errors.New("empty file name")
	// ErrFileNameRequired indicates the session is not bound to a file and no name was given.
	ErrFileNameRequired = errors.New("notebook has no file name")
	// ErrInvalidNotebookName indicates a notebook name without the .ipynb extension.
	ErrInvalidNotebookName = errors.New("notebook name must end with " + NotebookExt)
	// ErrNoActiveSession indicates there is no active tab to operate on.
	ErrNoActiveSession = errors.New("no active notebook")
	// ErrStaleResponse indicates a backend response arrived for a closed or superseded request.
	ErrStaleResponse = errors.New("stale backend response")
	// ErrUnknownTheme indicates an unsupported theme name.
	ErrUnknownTheme = errors.New("unknown theme")
	// ErrUnsupportedFileType indicates a data file extension the backend cannot ingest.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrBackendUnavailable indicates the backend could not be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrBackendApplication indicates the backend answered with a non-success status.
	ErrBackendApplication = errors.New("backend error")
)

// IsPrecondition reports whether err is a caller-side precondition failure.
func IsPrecondition(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidCellType),
		errors.Is(err, ErrInvalidCellStatus),
		errors.Is(err, ErrEmptyFileName),
		errors.Is(err, ErrFileNameRequired),
		errors.Is(err, ErrInvalidNotebookName),
		errors.Is(err, ErrNoActiveSession),
		errors.Is(err, ErrUnknownTheme),
		errors.Is(err, ErrUnsupportedFileType):
		return true
	default:
		return false
	}
}
