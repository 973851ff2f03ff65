// Package config loads and validates corpus tool configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/classical-corpus/internal/audit"
	"github.com/JakeFAU/classical-corpus/internal/extract"
	"github.com/JakeFAU/classical-corpus/internal/transport"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Transport TransportConfig `mapstructure:"transport"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Output    OutputConfig    `mapstructure:"output"`
	Audit     audit.Options   `mapstructure:"audit"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TransportConfig controls page fetching.
type TransportConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	Timeout           time.Duration `mapstructure:"timeout"`
	DirectPacingMin   time.Duration `mapstructure:"direct_pacing_min"`
	DirectPacingMax   time.Duration `mapstructure:"direct_pacing_max"`
	RelayPacingMin    time.Duration `mapstructure:"relay_pacing_min"`
	RelayPacingMax    time.Duration `mapstructure:"relay_pacing_max"`
	MaxRate           float64       `mapstructure:"max_rate"`
	BlockBackoffMin   time.Duration `mapstructure:"block_backoff_min"`
	BlockBackoffMax   time.Duration `mapstructure:"block_backoff_max"`
	StatusBackoff     time.Duration `mapstructure:"status_backoff"`
	TimeoutBackoff    time.Duration `mapstructure:"timeout_backoff"`
	ConnectionBackoff time.Duration `mapstructure:"connection_backoff"`
	Relay             string        `mapstructure:"relay"`
	RelayKey          string        `mapstructure:"relay_key"`
	RelayEndpoint     string        `mapstructure:"relay_endpoint"`
	Proxy             string        `mapstructure:"proxy"`
	BlockKeywords     []string      `mapstructure:"block_keywords"`
}

// ExtractConfig names the table cell classes holding each language.
type ExtractConfig struct {
	SourceMarker string `mapstructure:"source_marker"`
	TargetMarker string `mapstructure:"target_marker"`
}

// OutputConfig sets where documents are written and optionally mirrored.
type OutputConfig struct {
	Dir          string `mapstructure:"dir"`
	MirrorBucket string `mapstructure:"mirror_bucket"`
	MirrorPrefix string `mapstructure:"mirror_prefix"`
	MirrorDir    string `mapstructure:"mirror_dir"`
}

// CatalogConfig overrides the embedded work catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig sets where run metrics are written.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CORPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	tc := transport.DefaultConfig()
	ao := audit.DefaultOptions()

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("transport.max_attempts", tc.MaxAttempts)
	v.SetDefault("transport.timeout", tc.Timeout)
	v.SetDefault("transport.direct_pacing_min", tc.DirectPacing.Min)
	v.SetDefault("transport.direct_pacing_max", tc.DirectPacing.Max)
	v.SetDefault("transport.relay_pacing_min", tc.RelayPacing.Min)
	v.SetDefault("transport.relay_pacing_max", tc.RelayPacing.Max)
	v.SetDefault("transport.max_rate", tc.MaxRate)
	v.SetDefault("transport.block_backoff_min", tc.BlockBackoff.Min)
	v.SetDefault("transport.block_backoff_max", tc.BlockBackoff.Max)
	v.SetDefault("transport.status_backoff", tc.StatusBackoff)
	v.SetDefault("transport.timeout_backoff", tc.TimeoutBackoff)
	v.SetDefault("transport.connection_backoff", tc.ConnectionBackoff)
	v.SetDefault("transport.relay", "")
	v.SetDefault("transport.relay_key", "")
	v.SetDefault("transport.relay_endpoint", "")
	v.SetDefault("transport.proxy", "")
	v.SetDefault("transport.block_keywords", tc.BlockKeywords)
	v.SetDefault("extract.source_marker", extract.DefaultMarkers.Source)
	v.SetDefault("extract.target_marker", extract.DefaultMarkers.Target)
	v.SetDefault("output.dir", "translations")
	v.SetDefault("output.mirror_bucket", "")
	v.SetDefault("output.mirror_prefix", "")
	v.SetDefault("output.mirror_dir", "")
	v.SetDefault("audit.min_target_length", ao.MinTargetLength)
	v.SetDefault("audit.source_script_ratio", ao.SourceScriptRatio)
	v.SetDefault("audit.bad_chapter_ratio", ao.BadChapterRatio)
	v.SetDefault("audit.phrases", ao.Phrases)
	v.SetDefault("catalog.path", "")
	v.SetDefault("metrics.textfile", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, errors.New("output.dir must be set"))
	}
	if c.Output.MirrorBucket != "" && c.Output.MirrorDir != "" {
		errs = append(errs, errors.New("output.mirror_bucket and output.mirror_dir are mutually exclusive"))
	}
	if err := c.Audit.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("audit: %w", err))
	}
	// Relay and proxy precedence is resolved when the transport is built.
	tc := c.TransportSettings()
	tc.Proxy = ""
	if c.Transport.Relay == "" {
		tc.Proxy = c.Transport.Proxy
	}
	if err := tc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("transport: %w", err))
	}
	return errors.Join(errs...)
}

// Markers returns the extractor cell markers.
func (c Config) Markers() extract.Markers {
	return extract.Markers{Source: c.Extract.SourceMarker, Target: c.Extract.TargetMarker}
}

// TransportSettings converts the transport section into a transport.Config.
func (c Config) TransportSettings() transport.Config {
	t := c.Transport
	cfg := transport.DefaultConfig()
	cfg.MaxAttempts = t.MaxAttempts
	cfg.Timeout = t.Timeout
	cfg.DirectPacing = transport.Range{Min: t.DirectPacingMin, Max: t.DirectPacingMax}
	cfg.RelayPacing = transport.Range{Min: t.RelayPacingMin, Max: t.RelayPacingMax}
	cfg.MaxRate = t.MaxRate
	cfg.BlockBackoff = transport.Range{Min: t.BlockBackoffMin, Max: t.BlockBackoffMax}
	cfg.StatusBackoff = t.StatusBackoff
	cfg.TimeoutBackoff = t.TimeoutBackoff
	cfg.ConnectionBackoff = t.ConnectionBackoff
	cfg.Relay = transport.Relay{Service: t.Relay, Key: t.RelayKey, Endpoint: t.RelayEndpoint}
	cfg.Proxy = t.Proxy
	cfg.BlockKeywords = t.BlockKeywords
	cfg.Markers = c.Markers()
	return cfg
}
