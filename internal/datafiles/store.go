// Package datafiles tracks the data files stored by the backend together with
// the file currently selected for preview.
package datafiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"

	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

// Backend is the subset of the backend gateway used by the store.
type Backend interface {
	ListDataFiles(ctx context.Context) ([]schema.DataFile, error)
	UploadDataFile(ctx context.Context, name string, content io.Reader) (schema.UploadResult, error)
	PreviewDataFile(ctx context.Context, name string) (schema.DataFilePreview, error)
	DeleteDataFile(ctx context.Context, name string) error
	RenameDataFile(ctx context.Context, oldName, newName string) (schema.RenameResult, error)
}

// Snapshot is a read-only view of the store.
type Snapshot struct {
	Files   []schema.DataFile      `json:"files"`
	Current string                 `json:"current,omitempty"`
	Preview schema.DataFilePreview `json:"preview,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Store caches the data file listing. Every failure is recorded as the last
// error and returned to the caller.
type Store struct {
	backend Backend
	log     pslog.Logger

	mu      sync.Mutex
	files   []schema.DataFile
	current string
	preview schema.DataFilePreview
	lastErr string
}

// New constructs a Store.
func New(backend Backend, logger pslog.Logger) *Store {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Store{backend: backend, log: logger.With("component", "datafiles")}
}

// Refresh reloads the file listing.
func (s *Store) Refresh(ctx context.Context) ([]schema.DataFile, error) {
	files, err := s.backend.ListDataFiles(ctx)
	if err != nil {
		return nil, s.fail("list data files", err)
	}
	s.mu.Lock()
	s.files = files
	s.lastErr = ""
	s.mu.Unlock()
	s.log.Debug("datafiles refreshed", "files", len(files))
	return slices.Clone(files), nil
}

// Upload stores content under name and refreshes the listing.
// Only csv and Excel files are accepted.
func (s *Store) Upload(ctx context.Context, name string, content io.Reader) (schema.UploadResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return schema.UploadResult{}, s.fail("upload", schema.ErrEmptyFileName)
	}
	if !supported(name) {
		return schema.UploadResult{}, s.fail("upload", fmt.Errorf("%q: %w", name, schema.ErrUnsupportedFileType))
	}
	res, err := s.backend.UploadDataFile(ctx, name, content)
	if err != nil {
		return schema.UploadResult{}, s.fail("upload "+name, err)
	}
	s.log.Info("datafiles uploaded", "file", res.FileName, "bytes", res.FileSize)
	if _, err := s.Refresh(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Preview fetches a file preview and makes it the current file.
func (s *Store) Preview(ctx context.Context, name string) (schema.DataFilePreview, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, s.fail("preview", schema.ErrEmptyFileName)
	}
	if !supported(name) {
		return nil, s.fail("preview", fmt.Errorf("%q: %w", name, schema.ErrUnsupportedFileType))
	}
	preview, err := s.backend.PreviewDataFile(ctx, name)
	if err != nil {
		return nil, s.fail("preview "+name, err)
	}
	s.mu.Lock()
	s.current = name
	s.preview = preview
	s.lastErr = ""
	s.mu.Unlock()
	return preview, nil
}

// Delete removes a file. The selection is cleared when it pointed at name.
func (s *Store) Delete(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return s.fail("delete", schema.ErrEmptyFileName)
	}
	if err := s.backend.DeleteDataFile(ctx, name); err != nil {
		return s.fail("delete "+name, err)
	}
	s.mu.Lock()
	if s.current == name {
		s.current = ""
		s.preview = nil
	}
	s.mu.Unlock()
	s.log.Info("datafiles deleted", "file", name)
	_, err := s.Refresh(ctx)
	return err
}

// Rename gives a file a new base name while keeping its extension.
func (s *Store) Rename(ctx context.Context, oldName, newBase string) (schema.RenameResult, error) {
	oldName = strings.TrimSpace(oldName)
	newBase = strings.TrimSpace(newBase)
	if oldName == "" || newBase == "" {
		return schema.RenameResult{}, s.fail("rename", schema.ErrEmptyFileName)
	}
	ext := path.Ext(oldName)
	newName := strings.TrimSuffix(newBase, ext) + ext
	res, err := s.backend.RenameDataFile(ctx, oldName, newName)
	if err != nil {
		return schema.RenameResult{}, s.fail("rename "+oldName, err)
	}
	s.mu.Lock()
	if s.current == oldName {
		s.current = newName
	}
	s.mu.Unlock()
	s.log.Info("datafiles renamed", "file", oldName, "new_file", newName)
	if _, err := s.Refresh(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Snapshot returns the cached listing, selection and last error.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Files:   slices.Clone(s.files),
		Current: s.current,
		Preview: s.preview,
		Error:   s.lastErr,
	}
}

// Error returns the last recorded error message.
func (s *Store) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) fail(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	s.mu.Lock()
	s.lastErr = wrapped.Error()
	s.mu.Unlock()
	if errors.Is(err, schema.ErrBackendUnavailable) || errors.Is(err, schema.ErrBackendApplication) {
		s.log.Warn("datafiles operation failed", "op", op, "err", err)
	} else {
		s.log.Debug("datafiles operation rejected", "op", op, "err", err)
	}
	return wrapped
}

func supported(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".xls", ".xlsx":
		return true
	default:
		return false
	}
}
