package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/cellbook"
	"pkt.systems/cellbook/gateway"
	"pkt.systems/cellbook/httpapi"
	"pkt.systems/cellbook/internal/appconfig"
	"pkt.systems/cellbook/internal/dataframes"
	"pkt.systems/cellbook/internal/tracing"
	"pkt.systems/cellbook/internal/uistate"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the cellbook HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			server, err := cellbook.New(toServerConfig(cfg), cellbook.ServerDeps{Logger: logger})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := server.Start(ctx); err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("http server listening", "addr", server.Addr(), "backend", cfg.Backend.BaseURL)
			return server.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "override http.addr")
	return cmd
}

func loadConfig(cmd *cobra.Command) (appconfig.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return appconfig.Load(path)
}

func toServerConfig(cfg appconfig.Config) cellbook.ServerConfig {
	return cellbook.ServerConfig{
		Service: schema.ServiceConfig{
			StateDir:             cfg.StateDir,
			DefaultTitle:         cfg.Service.DefaultTitle,
			RequestTimeout:       cfg.Backend.Timeout(),
			ResetContextOnCreate: cfg.Service.ResetContextOnCreate,
		},
		HTTP: httpapi.Config{
			Addr:       cfg.HTTP.Addr,
			BasePath:   cfg.HTTP.BasePath,
			HubHistory: 1000,
		},
		Backend: gateway.Config{
			BaseURL: cfg.Backend.BaseURL,
			Timeout: cfg.Backend.Timeout(),
		},
		DataFrames: dataframes.Options{
			AutoRefresh: cfg.DataFrames.AutoRefresh,
			Interval:    cfg.DataFrames.RefreshInterval(),
		},
		UI: uistate.Defaults{
			Theme:      cfg.UI.Theme,
			PanelWidth: cfg.UI.PanelWidth,
		},
		Tracing: tracing.Config{
			Enabled:      cfg.Tracing.Enabled,
			Exporter:     cfg.Tracing.Exporter,
			FilePath:     cfg.Tracing.FilePath,
			OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
			SampleRate:   cfg.Tracing.SampleRate,
			ServiceName:  cfg.Tracing.ServiceName,
		},
	}
}
