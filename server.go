package cellbook

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/multierr"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/gateway"
	"pkt.systems/cellbook/httpapi"
	"pkt.systems/cellbook/internal/datafiles"
	"pkt.systems/cellbook/internal/dataframes"
	"pkt.systems/cellbook/internal/eventbus"
	"pkt.systems/cellbook/internal/persist"
	"pkt.systems/cellbook/internal/tracing"
	"pkt.systems/cellbook/internal/uistate"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

// Server composes the notebook service, its supporting stores and the HTTP API.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	// Addr is the bound HTTP address once started.
	Addr() string
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service    schema.ServiceConfig
	HTTP       httpapi.Config
	Backend    gateway.Config
	DataFrames dataframes.Options
	UI         uistate.Defaults
	Tracing    tracing.Config
}

// ServerDeps captures optional dependencies.
type ServerDeps struct {
	Logger pslog.Logger
	// EventSink receives service events in addition to the HTTP stream.
	EventSink core.EventSink
}

// New constructs a cellbook server. Nothing listens until Start.
func New(cfg ServerConfig, deps ServerDeps) (_ Server, err error) {
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	tracer, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tracer.Shutdown(context.Background()))
		}
	}()

	backendCfg := cfg.Backend
	if backendCfg.Timeout == 0 {
		backendCfg.Timeout = cfg.Service.RequestTimeout
	}
	backendCfg.Tracer = tracer.Tracer()
	client, err := gateway.New(backendCfg)
	if err != nil {
		return nil, err
	}

	var uiStore *persist.Store
	if cfg.Service.StateDir != "" {
		uiStore, err = persist.NewStoreWithLogger(cfg.Service.StateDir, logger)
		if err != nil {
			return nil, err
		}
	}
	ui, err := uistate.New(uiStore, cfg.UI, logger)
	if err != nil {
		return nil, err
	}

	if cfg.DataFrames.Timeout == 0 {
		cfg.DataFrames.Timeout = cfg.Service.RequestTimeout
	}
	frames := dataframes.New(client, cfg.DataFrames, logger)
	files := datafiles.New(client, logger)
	bus := eventbus.New(logger)
	hub := httpapi.NewHub(cfg.HTTP.HubHistory, logger)
	sinks := []core.EventSink{hub, bus}
	if deps.EventSink != nil {
		sinks = append(sinks, deps.EventSink)
	}

	service, err := core.NewService(cfg.Service, core.ServiceDeps{
		Backend:   client,
		Listings:  frames,
		EventSink: eventFanout{sinks: sinks},
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	httpSrv, err := httpapi.NewServer(cfg.HTTP, httpapi.Deps{
		Service:    service,
		DataFiles:  files,
		DataFrames: frames,
		UI:         ui,
		Backend:    client,
		Hub:        hub,
		Logger:     logger,
		Tracer:     tracer.Tracer(),
	})
	if err != nil {
		return nil, err
	}

	return &compositeServer{
		cfg:     cfg,
		service: service,
		client:  client,
		frames:  frames,
		bus:     bus,
		tracer:  tracer,
		httpSrv: httpSrv,
		logger:  logger,
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	service core.Service
	client  *gateway.Client
	frames  *dataframes.Store
	bus     *eventbus.Bus
	tracer  *tracing.Provider
	httpSrv *httpapi.Server
	logger  pslog.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	errCh    chan error
	addr     string
	httpDone chan struct{}
	busDone  chan struct{}
	started  bool
	stopped  bool
	stopErr  error
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	log := s.logger
	s.ctx, s.cancel = context.WithCancel(pslog.ContextWithLogger(ctx, log))
	s.errCh = make(chan error, 1)
	s.addr = ln.Addr().String()
	s.httpDone = make(chan struct{})
	s.busDone = make(chan struct{})
	s.started = true

	log.Info(
		"server start",
		"http_addr", s.addr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"backend", s.client.BaseURL(),
		"state_dir", s.cfg.Service.StateDir,
		"tracing", s.tracer.Enabled(),
	)
	go func() {
		defer close(s.httpDone)
		if err := httpapi.Serve(s.ctx, ln, s.httpSrv.Handler()); err != nil {
			log.Error("http server failed", "err", err)
			s.errCh <- err
		}
	}()
	events, unsubscribe := s.bus.Subscribe("")
	go func() {
		defer close(s.busDone)
		defer unsubscribe()
		s.watchSessions(s.ctx, events)
	}()
	return nil
}

// watchSessions keeps the dataframe listing current: output events may have
// created variables, and activating a tab moves auto-refresh to its session.
func (s *compositeServer) watchSessions(ctx context.Context, events <-chan eventbus.Event) {
	log := s.logger
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch {
			case event.Type == eventbus.EventSession && event.Session.Type == schema.SessionEventOutput:
				if _, err := s.frames.Refresh(ctx, event.Session.SessionID); err != nil && ctx.Err() == nil {
					log.Debug("server dataframes refresh failed", "session_id", event.Session.SessionID, "err", err)
				}
			case event.Type == eventbus.EventTab && event.Tab.Type == schema.TabEventActivated && event.Tab.Tab.Active:
				if err := s.frames.RefreshSession(ctx, event.Tab.Tab.SessionID); err != nil && ctx.Err() == nil {
					log.Debug("server dataframes refresh failed", "session_id", event.Tab.Tab.SessionID, "err", err)
				}
			}
		}
	}
}

func (s *compositeServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

// Stop shuts down the HTTP server, then the dataframe refresher, then
// tracing. Errors from every step are combined.
func (s *compositeServer) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopped {
		err := s.stopErr
		s.mu.Unlock()
		return err
	}
	s.stopped = true
	cancel := s.cancel
	httpDone := s.httpDone
	busDone := s.busDone
	s.mu.Unlock()

	log := s.logger
	log.Info("server stop requested")
	var err error
	if cancel != nil {
		cancel()
		err = multierr.Append(err, waitDone(ctx, httpDone))
		err = multierr.Append(err, waitDone(ctx, busDone))
	}
	err = multierr.Append(err, s.frames.Close())
	err = multierr.Append(err, s.tracer.Shutdown(ctx))
	s.client.CloseIdleConnections()
	if err != nil {
		log.Warn("server stop incomplete", "err", err)
	} else {
		log.Info("server stopped")
	}
	s.mu.Lock()
	s.stopErr = err
	s.mu.Unlock()
	return err
}

func waitDone(ctx context.Context, done <-chan struct{}) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
