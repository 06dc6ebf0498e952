package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DirName is the per-workspace state directory holding config.json and the
// event journal.
const DirName = ".slnsync"

// CurrentVersion is the config schema version written by Save
const CurrentVersion = 1

// Config represents the complete slnsync configuration
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Reconcile ReconcileConfig `json:"reconcile" mapstructure:"reconcile"`
	Watcher   WatcherConfig   `json:"watcher" mapstructure:"watcher"`
	Discovery DiscoveryConfig `json:"discovery" mapstructure:"discovery"`
	Analysis  AnalysisConfig  `json:"analysis" mapstructure:"analysis"`
	Journal   JournalConfig   `json:"journal" mapstructure:"journal"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// ReconcileConfig controls how watch events are told apart from echoes of
// the IDE's own writes
type ReconcileConfig struct {
	// EchoWindowMs is how long after an IDE write a watch event for the same
	// file is treated as an echo of that write
	EchoWindowMs int `json:"echoWindowMs" mapstructure:"echoWindowMs"`
}

// WatcherConfig contains filesystem watcher configuration
type WatcherConfig struct {
	Enabled        bool     `json:"enabled" mapstructure:"enabled"`
	DebounceMs     int      `json:"debounceMs" mapstructure:"debounceMs"`
	IgnorePatterns []string `json:"ignorePatterns" mapstructure:"ignorePatterns"`
}

// DiscoveryConfig controls directory scans when folders/projects are added
type DiscoveryConfig struct {
	IgnoreDirs         []string `json:"ignoreDirs" mapstructure:"ignoreDirs"`
	MaxConcurrentReads int      `json:"maxConcurrentReads" mapstructure:"maxConcurrentReads"`
}

// AnalysisConfig decides which files feed the analysis workspace
type AnalysisConfig struct {
	Enabled                 bool     `json:"enabled" mapstructure:"enabled"`
	SourceExtensions        []string `json:"sourceExtensions" mapstructure:"sourceExtensions"`
	ProjectDescriptorSuffix string   `json:"projectDescriptorSuffix" mapstructure:"projectDescriptorSuffix"`
}

// JournalConfig contains event journal configuration
type JournalConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"` // relative to the workspace root
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format     string            `json:"format" mapstructure:"format"`
	Level      string            `json:"level" mapstructure:"level"`
	File       string            `json:"file,omitempty" mapstructure:"file"`
	MaxSize    string            `json:"maxSize,omitempty" mapstructure:"maxSize"`
	MaxBackups int               `json:"maxBackups,omitempty" mapstructure:"maxBackups"`
	Components map[string]string `json:"components,omitempty" mapstructure:"components"` // per-component level overrides
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Reconcile: ReconcileConfig{
			EchoWindowMs: 300,
		},
		Watcher: WatcherConfig{
			Enabled:    true,
			DebounceMs: 50,
			IgnorePatterns: []string{
				"*.tmp",
				"*.swp",
				"*~",
				".git/**",
				DirName + "/**",
			},
		},
		Discovery: DiscoveryConfig{
			IgnoreDirs:         []string{"bin", "obj", ".git", ".vs", ".idea", "node_modules", DirName},
			MaxConcurrentReads: 8,
		},
		Analysis: AnalysisConfig{
			Enabled:                 true,
			SourceExtensions:        []string{".cs", ".go", ".py", ".rs", ".java", ".kt", ".js", ".ts", ".tsx"},
			ProjectDescriptorSuffix: ".project.toml",
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(DirName, "journal.db"),
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "info",
			MaxBackups: 3,
		},
	}
}

// setDefaults registers every scalar and list default with viper so that
// environment overrides apply and lists in the file replace the defaults
// instead of being merged element-wise.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("reconcile.echoWindowMs", d.Reconcile.EchoWindowMs)
	v.SetDefault("watcher.enabled", d.Watcher.Enabled)
	v.SetDefault("watcher.debounceMs", d.Watcher.DebounceMs)
	v.SetDefault("watcher.ignorePatterns", d.Watcher.IgnorePatterns)
	v.SetDefault("discovery.ignoreDirs", d.Discovery.IgnoreDirs)
	v.SetDefault("discovery.maxConcurrentReads", d.Discovery.MaxConcurrentReads)
	v.SetDefault("analysis.enabled", d.Analysis.Enabled)
	v.SetDefault("analysis.sourceExtensions", d.Analysis.SourceExtensions)
	v.SetDefault("analysis.projectDescriptorSuffix", d.Analysis.ProjectDescriptorSuffix)
	v.SetDefault("journal.enabled", d.Journal.Enabled)
	v.SetDefault("journal.path", d.Journal.Path)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
}

// LoadConfig loads configuration from <root>/.slnsync/config.json.
// SLNSYNC_* environment variables override file values
// (e.g. SLNSYNC_RECONCILE_ECHOWINDOWMS=500).
func LoadConfig(root string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(root, DirName))

	v.SetEnvPrefix("SLNSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to <root>/.slnsync/config.json
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Reconcile.EchoWindowMs < 0 {
		return &ConfigError{Field: "reconcile.echoWindowMs", Message: "must not be negative"}
	}
	if c.Watcher.DebounceMs < 0 {
		return &ConfigError{Field: "watcher.debounceMs", Message: "must not be negative"}
	}
	if c.Discovery.MaxConcurrentReads < 1 {
		return &ConfigError{Field: "discovery.maxConcurrentReads", Message: "must be at least 1"}
	}
	if c.Analysis.ProjectDescriptorSuffix == "" {
		return &ConfigError{Field: "analysis.projectDescriptorSuffix", Message: "must not be empty"}
	}
	for _, ext := range c.Analysis.SourceExtensions {
		if !strings.HasPrefix(ext, ".") {
			return &ConfigError{Field: "analysis.sourceExtensions", Message: "extension " + ext + " must start with '.'"}
		}
	}
	return nil
}

// EchoWindow returns the echo window as a duration
func (c *Config) EchoWindow() time.Duration {
	return time.Duration(c.Reconcile.EchoWindowMs) * time.Millisecond
}

// JournalPath resolves the journal database path against root
func (c *Config) JournalPath(root string) string {
	if filepath.IsAbs(c.Journal.Path) {
		return c.Journal.Path
	}
	return filepath.Join(root, c.Journal.Path)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
