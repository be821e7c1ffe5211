// Package config loads Prometheus run configuration from YAML files and the
// environment, and converts it into pipeline options.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/prometheus/internal/archive"
	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
	"github.com/Aman-CERP/prometheus/internal/locator"
	"github.com/Aman-CERP/prometheus/internal/logging"
	"github.com/Aman-CERP/prometheus/internal/matcher"
	"github.com/Aman-CERP/prometheus/internal/pipeline"
)

// ProjectConfigNames are the per-case config files, in lookup order.
var ProjectConfigNames = []string{".prometheus.yaml", ".prometheus.yml"}

// Config represents the complete Prometheus configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Scan     ScanConfig     `yaml:"scan" json:"scan"`
	Limits   LimitsConfig   `yaml:"limits" json:"limits"`
	Patterns PatternsConfig `yaml:"patterns" json:"patterns"`
	Output   OutputConfig   `yaml:"output" json:"output"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// ScanConfig controls discovery and scheduling.
type ScanConfig struct {
	// Extensions is the archive extension allowlist (default: .ufdr).
	Extensions []string `yaml:"extensions" json:"extensions"`
	// Formats restricts the document formats searched. Empty means all.
	Formats []string `yaml:"formats" json:"formats"`
	// ContextWindow is the characters kept on each side of a match.
	ContextWindow int `yaml:"context_window" json:"context_window"`
	// Workers is the number of archives processed concurrently (0 = NumCPU).
	Workers        int    `yaml:"workers" json:"workers"`
	FollowSymlinks bool   `yaml:"follow_symlinks" json:"follow_symlinks"`
	ArchiveTimeout string `yaml:"archive_timeout" json:"archive_timeout"`
	EntryTimeout   string `yaml:"entry_timeout" json:"entry_timeout"`
	// TempDir receives private copies of embedded databases.
	TempDir string `yaml:"temp_dir" json:"temp_dir"`
}

// LimitsConfig bounds the resources one archive may consume.
type LimitsConfig struct {
	MaxEntries    int     `yaml:"max_entries" json:"max_entries"`
	MaxDepth      int     `yaml:"max_depth" json:"max_depth"`
	MaxEntryBytes int64   `yaml:"max_entry_bytes" json:"max_entry_bytes"`
	MaxTotalBytes int64   `yaml:"max_total_bytes" json:"max_total_bytes"`
	MaxRatio      float64 `yaml:"max_ratio" json:"max_ratio"`
}

// PatternsConfig locates the pattern definitions. An empty path selects
// the built-in set.
type PatternsConfig struct {
	Path string `yaml:"path" json:"path"`
}

// OutputConfig names the report files. Empty paths are not written.
type OutputConfig struct {
	JSON    string `yaml:"json" json:"json"`
	CSV     string `yaml:"csv" json:"csv"`
	Summary string `yaml:"summary" json:"summary"`
}

// LoggingConfig configures the scan log.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	limits := archive.DefaultLimits()
	return &Config{
		Version: 1,
		Scan: ScanConfig{
			Extensions:     []string{locator.DefaultExtension},
			Formats:        []string{},
			ContextWindow:  matcher.DefaultContextWindow,
			Workers:        0,
			ArchiveTimeout: pipeline.DefaultArchiveTimeout.String(),
			EntryTimeout:   pipeline.DefaultEntryTimeout.String(),
		},
		Limits: LimitsConfig{
			MaxEntries:    limits.MaxEntries,
			MaxDepth:      limits.MaxDepth,
			MaxEntryBytes: limits.MaxEntryBytes,
			MaxTotalBytes: limits.MaxTotalBytes,
			MaxRatio:      limits.MaxRatio,
		},
		Output: OutputConfig{
			JSON: "outputs/prometheus_results.json",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/prometheus/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/prometheus/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "prometheus", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "prometheus", "config.yaml")
	}
	return filepath.Join(home, ".config", "prometheus", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// FindProjectConfig returns the first project config file found in dirs,
// or "" if there is none.
func FindProjectConfig(dirs ...string) string {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, name := range ProjectConfigNames {
			if p := filepath.Join(dir, name); fileExists(p) {
				return p
			}
		}
	}
	return ""
}

// Load builds the configuration in order of increasing precedence:
//  1. Defaults
//  2. User config ($XDG_CONFIG_HOME/prometheus/config.yaml)
//  3. Project config (.prometheus.yaml in the first of dirs that has one)
//  4. Environment variables (PROMETHEUS_*)
//
// Command-line flags are applied by the caller on top of the result, which
// should then be validated again.
func Load(dirs ...string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if path := FindProjectConfig(dirs...); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a single config file over the defaults, without the
// user config or the environment.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return perrors.New(perrors.ErrCodeConfigNotFound, "config file not found", err).
				WithDetail("path", path)
		}
		return perrors.ConfigError("failed to read config file", err).WithDetail("path", path)
	}

	var parsed Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&parsed); err != nil && !errors.Is(err, io.EOF) {
		return perrors.ConfigError("failed to parse config file", err).
			WithDetail("path", path).
			WithSuggestion("Check the file against `prometheus config init` output")
	}

	// Relative paths in a config file are relative to the file.
	base := filepath.Dir(path)
	parsed.Patterns.Path = resolve(base, parsed.Patterns.Path)
	parsed.Logging.File = resolve(base, parsed.Logging.File)

	c.mergeWith(&parsed)
	return nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Scan
	if len(other.Scan.Extensions) > 0 {
		c.Scan.Extensions = other.Scan.Extensions
	}
	if len(other.Scan.Formats) > 0 {
		c.Scan.Formats = other.Scan.Formats
	}
	if other.Scan.ContextWindow != 0 {
		c.Scan.ContextWindow = other.Scan.ContextWindow
	}
	if other.Scan.Workers != 0 {
		c.Scan.Workers = other.Scan.Workers
	}
	// A file cannot switch symlink following back off; the flag can.
	if other.Scan.FollowSymlinks {
		c.Scan.FollowSymlinks = true
	}
	if other.Scan.ArchiveTimeout != "" {
		c.Scan.ArchiveTimeout = other.Scan.ArchiveTimeout
	}
	if other.Scan.EntryTimeout != "" {
		c.Scan.EntryTimeout = other.Scan.EntryTimeout
	}
	if other.Scan.TempDir != "" {
		c.Scan.TempDir = other.Scan.TempDir
	}

	// Limits
	if other.Limits.MaxEntries != 0 {
		c.Limits.MaxEntries = other.Limits.MaxEntries
	}
	if other.Limits.MaxDepth != 0 {
		c.Limits.MaxDepth = other.Limits.MaxDepth
	}
	if other.Limits.MaxEntryBytes != 0 {
		c.Limits.MaxEntryBytes = other.Limits.MaxEntryBytes
	}
	if other.Limits.MaxTotalBytes != 0 {
		c.Limits.MaxTotalBytes = other.Limits.MaxTotalBytes
	}
	if other.Limits.MaxRatio != 0 {
		c.Limits.MaxRatio = other.Limits.MaxRatio
	}

	if other.Patterns.Path != "" {
		c.Patterns.Path = other.Patterns.Path
	}

	// Output
	if other.Output.JSON != "" {
		c.Output.JSON = other.Output.JSON
	}
	if other.Output.CSV != "" {
		c.Output.CSV = other.Output.CSV
	}
	if other.Output.Summary != "" {
		c.Output.Summary = other.Output.Summary
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies PROMETHEUS_* environment variables.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("PROMETHEUS_WORKERS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return envError("PROMETHEUS_WORKERS", v, err)
		}
		c.Scan.Workers = n
	}
	if v := os.Getenv("PROMETHEUS_CONTEXT_WINDOW"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return envError("PROMETHEUS_CONTEXT_WINDOW", v, err)
		}
		c.Scan.ContextWindow = n
	}
	if v := os.Getenv("PROMETHEUS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PROMETHEUS_PATTERNS"); v != "" {
		c.Patterns.Path = v
	}
	if v := os.Getenv("PROMETHEUS_ARCHIVE_TIMEOUT"); v != "" {
		c.Scan.ArchiveTimeout = v
	}
	if v := os.Getenv("PROMETHEUS_ENTRY_TIMEOUT"); v != "" {
		c.Scan.EntryTimeout = v
	}
	return nil
}

func envError(name, value string, cause error) error {
	return perrors.ConfigError("invalid value for "+name, cause).WithDetail("value", value)
}

// Validate checks the configuration and returns a ConfigError if invalid.
func (c *Config) Validate() error {
	if c.Scan.Workers < 0 {
		return invalid("scan.workers must be non-negative, got %d", c.Scan.Workers)
	}
	if c.Scan.ContextWindow < 0 {
		return invalid("scan.context_window must be non-negative, got %d", c.Scan.ContextWindow)
	}
	for _, ext := range c.Scan.Extensions {
		if strings.TrimSpace(strings.TrimPrefix(ext, ".")) == "" {
			return invalid("scan.extensions contains an empty extension")
		}
	}
	for _, f := range c.Scan.Formats {
		if _, ok := evidence.ParseFormat(f); !ok {
			hint := "Known formats: " + knownFormats()
			if strings.EqualFold(strings.TrimSpace(f), string(evidence.FormatSQLite)) {
				hint = "Databases are always searched; formats only filters documents. " + hint
			}
			return invalid("scan.formats: unknown format %q", f).WithSuggestion(hint)
		}
	}
	if _, err := parseTimeout("scan.archive_timeout", c.Scan.ArchiveTimeout); err != nil {
		return err
	}
	if _, err := parseTimeout("scan.entry_timeout", c.Scan.EntryTimeout); err != nil {
		return err
	}

	if c.Limits.MaxEntries < 0 || c.Limits.MaxDepth < 0 ||
		c.Limits.MaxEntryBytes < 0 || c.Limits.MaxTotalBytes < 0 || c.Limits.MaxRatio < 0 {
		return invalid("limits must be non-negative")
	}

	if c.Logging.Level != "" && !logging.ValidLevel(c.Logging.Level) {
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxFiles < 0 {
		return invalid("logging.max_size_mb and logging.max_files must be non-negative")
	}
	return nil
}

func invalid(format string, args ...any) *perrors.PrometheusError {
	return perrors.ConfigError(fmt.Sprintf(format, args...), nil)
}

func knownFormats() string {
	names := make([]string, 0, len(evidence.DocumentFormats()))
	for _, f := range evidence.DocumentFormats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

// parseTimeout parses a duration. Empty means the default.
func parseTimeout(field, s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, perrors.ConfigError(field+" is not a duration", err).WithDetail("value", s).
			WithSuggestion("Use a Go duration such as 90s, 5m or 1h30m")
	}
	if d <= 0 {
		return 0, invalid("%s must be positive, got %s", field, s)
	}
	return d, nil
}

// ToPipelineOptions converts the configuration into scan options. The
// logger, progress callback and run ID are left for the caller.
func (c *Config) ToPipelineOptions() (pipeline.Options, error) {
	if err := c.Validate(); err != nil {
		return pipeline.Options{}, err
	}

	archiveTimeout, _ := parseTimeout("scan.archive_timeout", c.Scan.ArchiveTimeout)
	entryTimeout, _ := parseTimeout("scan.entry_timeout", c.Scan.EntryTimeout)

	var formats []evidence.Format
	for _, name := range c.Scan.Formats {
		f, _ := evidence.ParseFormat(name)
		formats = append(formats, f)
	}

	return pipeline.Options{
		Extensions:     c.Scan.Extensions,
		Formats:        formats,
		ContextWindow:  c.Scan.ContextWindow,
		Workers:        c.Scan.Workers,
		ArchiveTimeout: archiveTimeout,
		EntryTimeout:   entryTimeout,
		Limits: archive.Limits{
			MaxEntries:    c.Limits.MaxEntries,
			MaxDepth:      c.Limits.MaxDepth,
			MaxEntryBytes: c.Limits.MaxEntryBytes,
			MaxTotalBytes: c.Limits.MaxTotalBytes,
			MaxRatio:      c.Limits.MaxRatio,
		},
		FollowSymlinks: c.Scan.FollowSymlinks,
		TempDir:        c.Scan.TempDir,
	}, nil
}

// LogConfig converts the logging section. debug forces the debug level
// and a log file at the default path when none is configured.
func (c *Config) LogConfig(debug bool) logging.Config {
	cfg := logging.Config{
		Level:     c.Logging.Level,
		FilePath:  c.Logging.File,
		MaxSizeMB: c.Logging.MaxSizeMB,
		MaxFiles:  c.Logging.MaxFiles,
	}
	if debug {
		cfg.Level = "debug"
		if cfg.FilePath == "" {
			cfg.FilePath = logging.DefaultLogPath()
		}
	}
	return cfg
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
