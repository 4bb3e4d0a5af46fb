// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// WaitStrategy selects how the engine waits after the initial scripts ran.
type WaitStrategy string

const (
	// WaitTimeout sleeps a fixed duration (bounded by the remaining budget).
	WaitTimeout WaitStrategy = "timeout"
	// WaitNetworkIdle polls until pending network activity has been zero for
	// a continuous quiet period, or the budget runs out.
	WaitNetworkIdle WaitStrategy = "networkidle"
)

// LoggerConfig controls the zap logger bootstrap.
type LoggerConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSizeMB  int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// NetworkConfig holds pass-through options for the document-fetch collaborator
// and every other outbound request a run makes.
type NetworkConfig struct {
	NavigationTimeout  time.Duration     `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ResourceTimeout    time.Duration     `mapstructure:"resource_timeout" yaml:"resource_timeout"`
	UserAgent          string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers            map[string]string `mapstructure:"headers" yaml:"headers"`
	InsecureSkipVerify bool              `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	// RequestsPerSecond rate-limits sandbox-initiated requests (fetch/XHR/
	// dynamic script loads). Zero disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// RunConfig is the immutable per-invocation configuration surface.
type RunConfig struct {
	Engine          string        `mapstructure:"engine" yaml:"engine"`
	ExecuteScripts  bool          `mapstructure:"execute_scripts" yaml:"execute_scripts"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	WaitStrategy    WaitStrategy  `mapstructure:"wait_strategy" yaml:"wait_strategy"`
	IdleTime        time.Duration `mapstructure:"idle_time" yaml:"idle_time"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxScripts      int           `mapstructure:"max_scripts" yaml:"max_scripts"`
	ForwardConsole  bool          `mapstructure:"forward_console" yaml:"forward_console"`
	PermissiveShims bool          `mapstructure:"permissive_shims" yaml:"permissive_shims"`
}

// Config is the application configuration (file + env + defaults).
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Run     RunConfig     `mapstructure:"run" yaml:"run"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Run --
	v.SetDefault("run.engine", "goja")
	v.SetDefault("run.execute_scripts", true)
	v.SetDefault("run.timeout", "30s")
	v.SetDefault("run.wait_strategy", "networkidle")
	v.SetDefault("run.idle_time", "500ms")
	v.SetDefault("run.poll_interval", "100ms")
	v.SetDefault("run.max_scripts", 50)
	v.SetDefault("run.forward_console", false)
	v.SetDefault("run.permissive_shims", false)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "20s")
	v.SetDefault("network.resource_timeout", "10s")
	v.SetDefault("network.user_agent", "Mozilla/5.0 (compatible; magpie-render/1.0)")
	v.SetDefault("network.insecure_skip_verify", false)
	v.SetDefault("network.requests_per_second", 0.0)
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults alone.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads configuration from an optional file, layering environment
// variables (MAGPIE_RENDER_*) and defaults underneath.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("MAGPIE_RENDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Run.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the per-run surface and normalizes open-ended values.
func (rc *RunConfig) Validate() error {
	switch rc.WaitStrategy {
	case WaitTimeout, WaitNetworkIdle:
	case "":
		rc.WaitStrategy = WaitNetworkIdle
	default:
		return fmt.Errorf("invalid wait strategy %q (want %q or %q)", rc.WaitStrategy, WaitTimeout, WaitNetworkIdle)
	}
	if rc.Engine == "" {
		rc.Engine = "goja"
	}
	if rc.Timeout <= 0 {
		rc.Timeout = 30 * time.Second
	}
	if rc.IdleTime <= 0 {
		rc.IdleTime = 500 * time.Millisecond
	}
	if rc.PollInterval <= 0 {
		rc.PollInterval = 100 * time.Millisecond
	}
	if rc.MaxScripts <= 0 {
		rc.MaxScripts = 50
	}
	return nil
}
