package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

const (
	workspaceFile = "workspace.json"
	uiFile        = "ui.json"
)

// CellSnapshot captures one cell of a session for persistence.
type CellSnapshot struct {
	ID      schema.CellID      `json:"id"`
	Type    schema.CellType    `json:"type"`
	Content string             `json:"content"`
	Output  *schema.CellOutput `json:"output,omitempty"`
	Editing bool               `json:"editing,omitempty"`
}

// TabSnapshot captures a tab and its notebook session for persistence.
type TabSnapshot struct {
	ID           schema.TabID     `json:"id"`
	Title        string           `json:"title"`
	NotebookFile string           `json:"notebook_file,omitempty"`
	SessionID    schema.SessionID `json:"session_id"`
	Tags         []string         `json:"tags,omitempty"`
	Modified     bool             `json:"modified,omitempty"`
	FileName     string           `json:"file_name,omitempty"`
	Cells        []CellSnapshot   `json:"cells"`
}

// WorkspaceSnapshot captures every open tab in display order.
type WorkspaceSnapshot struct {
	Order  []schema.TabID `json:"order"`
	Active schema.TabID   `json:"active,omitempty"`
	Tabs   []TabSnapshot  `json:"tabs"`
}

// UISnapshot captures presentation preferences.
type UISnapshot struct {
	Theme      schema.ThemeName `json:"theme,omitempty"`
	PanelWidth int              `json:"panel_width,omitempty"`
}

// Store persists workspace and UI snapshots to disk.
type Store struct {
	dir string
	log pslog.Logger
	mu  sync.Mutex
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// LoadWorkspace reads the workspace snapshot from disk.
func (s *Store) LoadWorkspace() (WorkspaceSnapshot, bool, error) {
	var snapshot WorkspaceSnapshot
	ok, err := s.load(workspaceFile, &snapshot)
	if err != nil || !ok {
		return WorkspaceSnapshot{}, ok, err
	}
	if s.log != nil {
		s.log.Debug("state load ok", "file", workspaceFile, "tabs", len(snapshot.Tabs))
	}
	return snapshot, true, nil
}

// SaveWorkspace writes the workspace snapshot to disk.
func (s *Store) SaveWorkspace(snapshot WorkspaceSnapshot) error {
	if err := s.save(workspaceFile, snapshot); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Trace("state save ok", "file", workspaceFile, "tabs", len(snapshot.Tabs))
	}
	return nil
}

// LoadUI reads the UI snapshot from disk.
func (s *Store) LoadUI() (UISnapshot, bool, error) {
	var snapshot UISnapshot
	ok, err := s.load(uiFile, &snapshot)
	if err != nil || !ok {
		return UISnapshot{}, ok, err
	}
	return snapshot, true, nil
}

// SaveUI writes the UI snapshot to disk.
func (s *Store) SaveUI(snapshot UISnapshot) error {
	return s.save(uiFile, snapshot)
}

func (s *Store) load(name string, v any) (bool, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss", "file", name)
			}
			return false, nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "file", name, "err", err)
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "file", name, "err", err)
		}
		return false, err
	}
	return true, nil
}

func (s *Store) save(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.writeAtomic(filepath.Join(s.dir, name), v)
	if err != nil && s.log != nil {
		s.log.Warn("state save failed", "file", name, "err", err)
	}
	return err
}

func (s *Store) writeAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "state-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
