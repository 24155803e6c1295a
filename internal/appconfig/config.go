package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/cellbook/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int              `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string           `mapstructure:"state_dir" yaml:"state_dir"`
	Backend       BackendConfig    `mapstructure:"backend" yaml:"backend"`
	Service       ServiceConfig    `mapstructure:"service" yaml:"service"`
	HTTP          HTTPConfig       `mapstructure:"http" yaml:"http"`
	DataFrames    DataFramesConfig `mapstructure:"dataframes" yaml:"dataframes"`
	UI            UIConfig         `mapstructure:"ui" yaml:"ui"`
	Tracing       TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// BackendConfig points at the notebook backend.
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout returns the per-request timeout.
func (c BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ServiceConfig controls core service behavior.
type ServiceConfig struct {
	DefaultTitle         string `mapstructure:"default_title" yaml:"default_title"`
	ResetContextOnCreate bool   `mapstructure:"reset_context_on_create" yaml:"reset_context_on_create"`
}

// HTTPConfig configures the local HTTP API.
type HTTPConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// DataFramesConfig controls the dataframe listing refresh.
type DataFramesConfig struct {
	AutoRefresh            bool `mapstructure:"auto_refresh" yaml:"auto_refresh"`
	RefreshIntervalSeconds int  `mapstructure:"refresh_interval_seconds" yaml:"refresh_interval_seconds"`
}

// RefreshInterval returns the auto-refresh period.
func (c DataFramesConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// UIConfig seeds presentation preferences before any are persisted.
type UIConfig struct {
	Theme      string `mapstructure:"theme" yaml:"theme"`
	PanelWidth int    `mapstructure:"panel_width" yaml:"panel_width"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	Exporter     string  `mapstructure:"exporter" yaml:"exporter"`
	FilePath     string  `mapstructure:"file_path" yaml:"file_path"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	ServiceName  string  `mapstructure:"service_name" yaml:"service_name"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".cellbook", "state"),
		Backend: BackendConfig{
			BaseURL:        "http://127.0.0.1:5000",
			TimeoutSeconds: int(schema.DefaultRequestTimeout / time.Second),
		},
		Service: ServiceConfig{
			DefaultTitle:         schema.DefaultTitle,
			ResetContextOnCreate: true,
		},
		HTTP: HTTPConfig{
			Addr:     "127.0.0.1:27500",
			BasePath: "",
		},
		DataFrames: DataFramesConfig{
			AutoRefresh:            true,
			RefreshIntervalSeconds: 30,
		},
		UI: UIConfig{
			Theme:      string(schema.DefaultTheme),
			PanelWidth: 250,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "none",
			FilePath:     filepath.Join(home, ".cellbook", "traces", "spans.json"),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
			ServiceName:  "cellbook",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cellbook", "config.yaml"), nil
}
