// Package dataframes lists the dataframe variables alive in a session's
// backend context and keeps that listing fresh with one background timer.
package dataframes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

const (
	// DefaultRefreshInterval is used when auto-refresh starts without an interval.
	DefaultRefreshInterval = 30 * time.Second
	// DefaultRequestTimeout bounds one shared listing call.
	DefaultRequestTimeout = 30 * time.Second
)

// ErrClosed is returned once the store has been closed.
var ErrClosed = errors.New("dataframe store closed")

// Backend is the subset of the backend gateway used by the store.
type Backend interface {
	ListDataFrames(ctx context.Context, sessionID schema.SessionID) ([]string, error)
	DataFrameInfo(ctx context.Context, name string) (schema.DataFrameInfo, error)
	PreviewDataFrame(ctx context.Context, name string) (schema.DataFramePreview, error)
	SaveDataFrame(ctx context.Context, name string, req schema.SaveDataFrameRequest) (map[string]json.RawMessage, error)
}

// Options configures auto-refresh.
type Options struct {
	// AutoRefresh starts the timer for every session handed to RefreshSession.
	AutoRefresh bool
	// Interval is the auto-refresh period.
	Interval time.Duration
	// Timeout bounds a listing call shared by concurrent refreshes.
	Timeout time.Duration
}

// Snapshot is a read-only view of the store.
type Snapshot struct {
	SessionID   schema.SessionID `json:"session_id,omitempty"`
	DataFrames  []string         `json:"dataframes"`
	Current     string           `json:"current,omitempty"`
	AutoRefresh bool             `json:"auto_refresh"`
	Error       string           `json:"error,omitempty"`
}

// Store caches the dataframe listing of one session.
type Store struct {
	backend Backend
	opts    Options
	log     pslog.Logger
	flight  singleflight.Group

	mu      sync.Mutex
	session schema.SessionID
	names   []string
	current string
	lastErr string
	timer   *refresher
	closed  bool
	// forgets counts ForgetSession calls per session; a refresh that
	// started before a forget is not applied.
	forgets map[schema.SessionID]uint64
}

type refresher struct {
	sessionID schema.SessionID
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

func (r *refresher) stop() {
	if r == nil {
		return
	}
	r.cancel()
	<-r.done
}

// New constructs a Store.
func New(backend Backend, opts Options, logger pslog.Logger) *Store {
	if opts.Interval <= 0 {
		opts.Interval = DefaultRefreshInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Store{
		backend: backend,
		opts:    opts,
		log:     logger.With("component", "dataframes"),
		forgets: make(map[schema.SessionID]uint64),
	}
}

// Refresh lists the dataframes of sessionID. Concurrent refreshes of the
// same session share one backend call, which is detached from any single
// caller's cancellation. A caller whose ctx ends stops waiting without
// touching the cached listing.
func (s *Store) Refresh(ctx context.Context, sessionID schema.SessionID) ([]string, error) {
	s.mu.Lock()
	gen := s.forgets[sessionID]
	s.mu.Unlock()

	shared := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(string(sessionID), func() (any, error) {
		fctx, cancel := context.WithTimeout(shared, s.opts.Timeout)
		defer cancel()
		return s.backend.ListDataFrames(fctx, sessionID)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list dataframes: %w", ctx.Err())
	case res = <-ch:
	}
	v, err := res.Val, res.Err

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forgets[sessionID] != gen {
		s.log.Debug("dataframes refresh dropped", "session_id", sessionID, "err", schema.ErrStaleResponse)
		return nil, fmt.Errorf("list dataframes: %w", schema.ErrStaleResponse)
	}
	if err != nil {
		s.lastErr = err.Error()
		return nil, fmt.Errorf("list dataframes: %w", err)
	}
	names, _ := v.([]string)
	if s.session != sessionID {
		s.current = ""
	}
	s.session = sessionID
	s.names = slices.Clone(names)
	s.lastErr = ""
	return slices.Clone(names), nil
}

// RefreshSession refreshes the listing for a newly opened notebook and, when
// configured, points the auto-refresh timer at it.
func (s *Store) RefreshSession(ctx context.Context, sessionID schema.SessionID) error {
	if _, err := s.Refresh(ctx, sessionID); err != nil {
		return err
	}
	if s.opts.AutoRefresh {
		return s.StartAutoRefresh(sessionID, s.opts.Interval)
	}
	return nil
}

// ForgetSession drops state owned by a closed session and stops its timer.
func (s *Store) ForgetSession(sessionID schema.SessionID) {
	s.mu.Lock()
	s.forgets[sessionID]++
	var timer *refresher
	if s.timer != nil && s.timer.sessionID == sessionID {
		timer = s.timer
		s.timer = nil
	}
	if s.session == sessionID {
		s.session = ""
		s.names = nil
		s.current = ""
	}
	s.mu.Unlock()
	if timer != nil {
		timer.stop()
		s.log.Debug("dataframes auto refresh stopped", "session_id", sessionID, "reason", "session closed")
	}
}

// Info describes one dataframe and makes it current.
func (s *Store) Info(ctx context.Context, name string) (schema.DataFrameInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return schema.DataFrameInfo{}, schema.ErrInvalidRequest
	}
	info, err := s.backend.DataFrameInfo(ctx, name)
	if err != nil {
		s.recordErr(err)
		return schema.DataFrameInfo{}, fmt.Errorf("dataframe info %s: %w", name, err)
	}
	s.mu.Lock()
	s.current = name
	s.mu.Unlock()
	return info, nil
}

// Preview samples one dataframe.
func (s *Store) Preview(ctx context.Context, name string) (schema.DataFramePreview, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return schema.DataFramePreview{}, schema.ErrInvalidRequest
	}
	preview, err := s.backend.PreviewDataFrame(ctx, name)
	if err != nil {
		s.recordErr(err)
		return schema.DataFramePreview{}, fmt.Errorf("dataframe preview %s: %w", name, err)
	}
	return preview, nil
}

// Save writes a dataframe to a backend file. The file type defaults to the
// path's extension.
func (s *Store) Save(ctx context.Context, name, filePath, fileType string) (map[string]json.RawMessage, error) {
	name = strings.TrimSpace(name)
	filePath = strings.TrimSpace(filePath)
	if name == "" || filePath == "" {
		return nil, schema.ErrInvalidRequest
	}
	fileType = strings.ToLower(strings.TrimSpace(fileType))
	if fileType == "" {
		fileType = strings.TrimPrefix(strings.ToLower(path.Ext(filePath)), ".")
	}
	switch fileType {
	case "csv":
	case "xls", "xlsx", "excel":
		fileType = "excel"
	default:
		return nil, fmt.Errorf("%q: %w", filePath, schema.ErrUnsupportedFileType)
	}
	out, err := s.backend.SaveDataFrame(ctx, name, schema.SaveDataFrameRequest{FilePath: filePath, FileType: fileType})
	if err != nil {
		s.recordErr(err)
		return nil, fmt.Errorf("save dataframe %s: %w", name, err)
	}
	s.log.Info("dataframes saved", "dataframe", name, "file", filePath)
	return out, nil
}

// StartAutoRefresh refreshes sessionID every interval. Any previous timer is
// stopped first, so at most one runs.
func (s *Store) StartAutoRefresh(sessionID schema.SessionID, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	next := &refresher{sessionID: sessionID, interval: interval, cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return ErrClosed
	}
	prev := s.timer
	s.timer = next
	s.mu.Unlock()

	prev.stop()
	go s.loop(ctx, next)
	s.log.Debug("dataframes auto refresh started", "session_id", sessionID, "interval", interval)
	return nil
}

// StopAutoRefresh stops the timer if one is running.
func (s *Store) StopAutoRefresh() {
	s.mu.Lock()
	prev := s.timer
	s.timer = nil
	s.mu.Unlock()
	prev.stop()
}

// Close stops the timer and rejects further auto-refresh.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	prev := s.timer
	s.timer = nil
	s.mu.Unlock()
	prev.stop()
	return nil
}

// Snapshot returns the cached listing.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID:   s.session,
		DataFrames:  slices.Clone(s.names),
		Current:     s.current,
		AutoRefresh: s.timer != nil,
		Error:       s.lastErr,
	}
}

func (s *Store) loop(ctx context.Context, r *refresher) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rctx, cancel := context.WithTimeout(ctx, r.interval)
			if _, err := s.Refresh(rctx, r.sessionID); err != nil && ctx.Err() == nil {
				s.log.Debug("dataframes auto refresh failed", "session_id", r.sessionID, "err", err)
			}
			cancel()
		}
	}
}

func (s *Store) recordErr(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}
