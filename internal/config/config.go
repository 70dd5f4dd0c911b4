// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge" yaml:"knowledge"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Explorer  ExplorerConfig  `mapstructure:"explorer" yaml:"explorer"`
	Artifact  ArtifactConfig  `mapstructure:"artifact" yaml:"artifact"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// KnowledgeConfig selects and configures the knowledge collaborator backend.
type KnowledgeConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `mapstructure:"backend" yaml:"backend"`
	// URL is the postgres connection string when Backend is "postgres".
	URL string `mapstructure:"url" yaml:"url"`
	// SearchTopK is the default result cap for knowledge searches.
	SearchTopK int `mapstructure:"search_top_k" yaml:"search_top_k"`
	// Timeout bounds every individual call to the knowledge store so a dead
	// store can never block a reasoning cycle.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// BrowserConfig holds settings for the headless browser collaborator.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	// ActionsPerSecond rate-limits action execution against the target.
	ActionsPerSecond float64 `mapstructure:"actions_per_second" yaml:"actions_per_second"`
}

// ExplorerConfig tunes the exploration driver and reasoning engine.
type ExplorerConfig struct {
	// MaxSteps is the hard per-run step ceiling, independent of router
	// decisions.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// MaxConsecutiveBacktracks is the loop guard on synthetic backtracks.
	MaxConsecutiveBacktracks int `mapstructure:"max_consecutive_backtracks" yaml:"max_consecutive_backtracks"`
	// CoverageSteps is how many initial steps the planner's exploration
	// fallback keeps picking untried actions before giving up.
	CoverageSteps int `mapstructure:"coverage_steps" yaml:"coverage_steps"`
}

// ArtifactConfig controls where run traces are written.
type ArtifactConfig struct {
	// Dir is the directory for per-run JSON trace files.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// PersistToDatabase additionally writes step records to postgres when a
	// knowledge database is configured.
	PersistToDatabase bool `mapstructure:"persist_to_database" yaml:"persist_to_database"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "dowser-cli")
	v.SetDefault("logger.log_file", "dowser.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Knowledge --
	v.SetDefault("knowledge.backend", "memory")
	v.SetDefault("knowledge.url", "")
	v.SetDefault("knowledge.search_top_k", 5)
	v.SetDefault("knowledge.timeout", "3s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.actions_per_second", 2.0)

	// -- Explorer --
	v.SetDefault("explorer.max_steps", 100)
	v.SetDefault("explorer.max_consecutive_backtracks", 3)
	v.SetDefault("explorer.coverage_steps", 5)

	// -- Artifact --
	v.SetDefault("artifact.dir", "runs")
	v.SetDefault("artifact.persist_to_database", false)
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with static defaults, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads configuration from the given file (or the working directory's
// config.yaml when empty), layered under DOWSER_* environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("DOWSER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
