package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/orthanc-sync/internal/manifest"
)

// Upstream defaults.
const (
	DefaultRepository       = "https://orthanc.uclouvain.be/hg/orthanc/raw-file"
	DefaultFrameworkVersion = "1.7.1"
	DefaultFrameworkBranch  = "default"
	DefaultSDKVersion       = "1.3.1"
	DefaultTarget           = "Resources"
	DefaultWorkers          = 10
)

// Config defines configuration for the orthanc-sync CLI.
type Config struct {
	Repository string          `yaml:"repository"`
	Target     string          `yaml:"target"`
	Bucket     string          `yaml:"bucket"`
	Prefix     string          `yaml:"prefix"`
	Workers    int             `yaml:"workers"`
	Timeout    time.Duration   `yaml:"timeout"`
	KeepGoing  bool            `yaml:"keep_going"`
	Quiet      bool            `yaml:"quiet"`
	Framework  FrameworkConfig `yaml:"framework"`
	SDK        SDKConfig       `yaml:"sdk"`
	Files      []FileEntry     `yaml:"files"`
	Retry      RetryConfig     `yaml:"retry"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// FrameworkConfig selects the revision framework files are taken from.
type FrameworkConfig struct {
	Version string `yaml:"version"`
	Branch  string `yaml:"branch"`
}

// SDKConfig lists the plugin SDK headers and the SDK release they come from.
type SDKConfig struct {
	Version string   `yaml:"version"`
	Files   []string `yaml:"files"`
}

// FileEntry maps a repository path to the local directory it is stored in.
type FileEntry struct {
	Source string `yaml:"source"`
	Dir    string `yaml:"dir"`
}

// RetryConfig defines retry behavior. Attempts of zero disables retries.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultFiles returns the framework files vendored by default.
func DefaultFiles() []FileEntry {
	return []FileEntry{
		{Source: "OrthancFramework/Resources/CMake/DownloadOrthancFramework.cmake", Dir: "CMake"},
		{Source: "OrthancFramework/Resources/Toolchains/LinuxStandardBaseToolchain.cmake", Dir: "CMake"},
		{Source: "OrthancFramework/Resources/Toolchains/MinGW-W64-Toolchain32.cmake", Dir: "CMake"},
		{Source: "OrthancFramework/Resources/Toolchains/MinGW-W64-Toolchain64.cmake", Dir: "CMake"},
	}
}

// DefaultSDKFiles returns the plugin SDK headers vendored by default.
func DefaultSDKFiles() []string {
	return []string{"orthanc/OrthancCPlugin.h"}
}

// Default returns a Config reproducing the upstream file set.
func Default() Config {
	return Config{
		Repository: DefaultRepository,
		Target:     DefaultTarget,
		Prefix:     DefaultTarget,
		Workers:    DefaultWorkers,
		Framework: FrameworkConfig{
			Version: DefaultFrameworkVersion,
			Branch:  DefaultFrameworkBranch,
		},
		SDK: SDKConfig{
			Version: DefaultSDKVersion,
			Files:   DefaultSDKFiles(),
		},
		Files: DefaultFiles(),
		Retry: RetryConfig{
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	Repository string          `yaml:"repository"`
	Target     string          `yaml:"target"`
	Bucket     string          `yaml:"bucket"`
	Prefix     string          `yaml:"prefix"`
	Workers    int             `yaml:"workers"`
	Timeout    string          `yaml:"timeout"`
	KeepGoing  bool            `yaml:"keep_going"`
	Quiet      bool            `yaml:"quiet"`
	Framework  FrameworkConfig `yaml:"framework"`
	SDK        SDKConfig       `yaml:"sdk"`
	Files      []FileEntry     `yaml:"files"`
	Retry      yamlRetryConfig `yaml:"retry"`
	Logging    LoggingConfig   `yaml:"logging"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file.
// Keys absent from the file keep their default values. A non-empty files
// or sdk.files list replaces the default list entirely.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Repository != "" {
		cfg.Repository = yc.Repository
	}
	if yc.Target != "" {
		cfg.Target = yc.Target
	}
	if yc.Bucket != "" {
		cfg.Bucket = yc.Bucket
	}
	if yc.Prefix != "" {
		cfg.Prefix = yc.Prefix
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	cfg.KeepGoing = yc.KeepGoing
	cfg.Quiet = yc.Quiet
	if yc.Framework.Version != "" {
		cfg.Framework.Version = yc.Framework.Version
	}
	if yc.Framework.Branch != "" {
		cfg.Framework.Branch = yc.Framework.Branch
	}
	if yc.SDK.Version != "" {
		cfg.SDK.Version = yc.SDK.Version
	}
	if len(yc.SDK.Files) > 0 {
		cfg.SDK.Files = yc.SDK.Files
	}
	if len(yc.Files) > 0 {
		cfg.Files = yc.Files
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}
	if yc.Logging.Level != "" {
		cfg.Logging.Level = yc.Logging.Level
	}
	if yc.Logging.Format != "" {
		cfg.Logging.Format = yc.Logging.Format
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the ORTHANC_SYNC_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("ORTHANC_SYNC_REPOSITORY"); v != "" {
		c.Repository = v
	}
	if v := os.Getenv("ORTHANC_SYNC_TARGET"); v != "" {
		c.Target = v
	}
	if v := os.Getenv("ORTHANC_SYNC_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("ORTHANC_SYNC_PREFIX"); v != "" {
		c.Prefix = v
	}
	if v := os.Getenv("ORTHANC_SYNC_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse ORTHANC_SYNC_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("ORTHANC_SYNC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse ORTHANC_SYNC_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("ORTHANC_SYNC_KEEP_GOING"); v != "" {
		c.KeepGoing = v == "true" || v == "1"
	}
	if v := os.Getenv("ORTHANC_SYNC_QUIET"); v != "" {
		c.Quiet = v == "true" || v == "1"
	}
	if v := os.Getenv("ORTHANC_SYNC_FRAMEWORK_VERSION"); v != "" {
		c.Framework.Version = v
	}
	if v := os.Getenv("ORTHANC_SYNC_FRAMEWORK_BRANCH"); v != "" {
		c.Framework.Branch = v
	}
	if v := os.Getenv("ORTHANC_SYNC_SDK_VERSION"); v != "" {
		c.SDK.Version = v
	}
	if v := os.Getenv("ORTHANC_SYNC_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse ORTHANC_SYNC_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("ORTHANC_SYNC_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse ORTHANC_SYNC_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("ORTHANC_SYNC_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse ORTHANC_SYNC_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}
	if v := os.Getenv("ORTHANC_SYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ORTHANC_SYNC_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Repository == "" {
		return errors.New("config: repository is required")
	}
	if c.Target == "" && c.Bucket == "" {
		return errors.New("config: target or bucket is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.Timeout < 0 {
		return errors.New("config: timeout must not be negative")
	}
	if c.Framework.Branch == "" && c.Framework.Version == "" {
		return errors.New("config: framework.branch or framework.version is required")
	}
	if len(c.SDK.Files) > 0 && c.SDK.Version == "" {
		return errors.New("config: sdk.version is required when sdk.files is set")
	}
	if len(c.Files) == 0 && len(c.SDK.Files) == 0 {
		return errors.New("config: no files to fetch")
	}
	if c.Retry.Attempts < 0 {
		return errors.New("config: retry.attempts must not be negative")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Repository != "" {
		c.Repository = override.Repository
	}
	if override.Target != "" {
		c.Target = override.Target
	}
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.Prefix != "" {
		c.Prefix = override.Prefix
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.KeepGoing {
		c.KeepGoing = override.KeepGoing
	}
	if override.Quiet {
		c.Quiet = override.Quiet
	}
	if override.Framework.Version != "" {
		c.Framework.Version = override.Framework.Version
	}
	if override.Framework.Branch != "" {
		c.Framework.Branch = override.Framework.Branch
	}
	if override.SDK.Version != "" {
		c.SDK.Version = override.SDK.Version
	}
	if len(override.SDK.Files) > 0 {
		c.SDK.Files = override.SDK.Files
	}
	if len(override.Files) > 0 {
		c.Files = override.Files
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	if override.Logging.Level != "" {
		c.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		c.Logging.Format = override.Logging.Format
	}
	return c
}

// Sources returns the manifest inputs described by c.
func (c Config) Sources() manifest.Sources {
	files := make([]manifest.File, len(c.Files))
	for i, f := range c.Files {
		files[i] = manifest.File{Source: f.Source, Dir: f.Dir}
	}
	return manifest.Sources{
		FrameworkVersion: c.Framework.Version,
		FrameworkBranch:  c.Framework.Branch,
		SDKVersion:       c.SDK.Version,
		Files:            files,
		SDKFiles:         append([]string(nil), c.SDK.Files...),
	}
}
