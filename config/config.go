package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/memfs/internal/util"
	"gopkg.in/yaml.v3"
)

// Bytes per KB / MB
const (
	KB = 1024
	MB = 1024 * KB
)

// Verbosity values accepted by the CLI and config files (1 = error ... 5 = trace)
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultFsName = "memfs"
	DefaultName   = "memfs"

	DefaultLogLvl = util.InfoLevel

	// DefaultFsSize is the advertised logical size of the filesystem
	DefaultFsSize = 100 * MB

	// DefaultBlockSize is the advertised block size
	DefaultBlockSize = 4 * KB

	// DefaultTotalInodes is the advertised inode budget (root included)
	DefaultTotalInodes = 1024

	// DefaultMaxMountCount is the mount count before a check would be due
	DefaultMaxMountCount = 20

	// DefaultMaxFileSize caps how far a single file may grow before writes
	// fail with ENOMEM
	DefaultMaxFileSize = DefaultFsSize

	// DefaultMaxWrite is the maximum write size per FUSE request
	DefaultMaxWrite = 1 * MB

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0

	// DefaultDemoFile seeds hello.txt on startup
	DefaultDemoFile = true
)

// Config contains runtime configuration values for the in-memory filesystem.
type Config struct {
	MountOptions
	LogLvl util.LogLevel // Internal log level (Default info)

	// NOTE: capacity values are advertised through statfs only; they never block an operation
	FsSize        int `validate:"gt=0"`                  // Logical filesystem size in bytes (Default 100MB)
	BlockSize     int `validate:"gt=0,ltefield=FsSize"`  // Block size in bytes (Default 4KB)
	TotalInodes   int `validate:"gte=1"`                 // Inode budget including root (Default 1024)
	MaxMountCount int `validate:"gte=0"`                 // Mounts before a check is due (Default 20)
	MaxFileSize   int `validate:"gt=0"`                  // Largest size a single file may grow to (Default 100MB)
	MaxWrite      int `validate:"gt=0"`                  // Maximum write size per FUSE request (Default 1MB)

	AttrTimeout  float64 `validate:"gte=0"` // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 `validate:"gte=0"` // Directory entry cache timeout in seconds (Default 1.0)

	DemoFile    bool   // Seed hello.txt at startup (Default true)
	MetricsAddr string `validate:"omitempty,hostname_port"` // Prometheus listen address; empty disables (Default "")
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	FsName *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name   *string `yaml:"name,omitempty" json:"name,omitempty"`
	Debug  *bool   `yaml:"debug,omitempty" json:"debug,omitempty"`
	// LogLvl is a verbosity between 1 (error) and 5 (trace); out of range values are clamped
	LogLvl        *int     `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	FsSize        *int     `yaml:"fs_size,omitempty" json:"fs_size,omitempty"`
	BlockSize     *int     `yaml:"block_size,omitempty" json:"block_size,omitempty"`
	TotalInodes   *int     `yaml:"total_inodes,omitempty" json:"total_inodes,omitempty"`
	MaxMountCount *int     `yaml:"max_mount_count,omitempty" json:"max_mount_count,omitempty"`
	MaxFileSize   *int     `yaml:"max_file_size,omitempty" json:"max_file_size,omitempty"`
	MaxWrite      *int     `yaml:"max_write,omitempty" json:"max_write,omitempty"`
	AttrTimeout   *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout  *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
	DemoFile      *bool    `yaml:"demo_file,omitempty" json:"demo_file,omitempty"`
	MetricsAddr   *string  `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:        DefaultLogLvl,
		FsSize:        DefaultFsSize,
		BlockSize:     DefaultBlockSize,
		TotalInodes:   DefaultTotalInodes,
		MaxMountCount: DefaultMaxMountCount,
		MaxFileSize:   DefaultMaxFileSize,
		MaxWrite:      DefaultMaxWrite,
		AttrTimeout:   DefaultAttrTimeout,
		EntryTimeout:  DefaultEntryTimeout,
		DemoFile:      DefaultDemoFile,
	}
}

// NewConfig creates a Config from defaults with any non-nil override values applied.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// VerboseToLogLvl clamps a CLI verbosity to [ErrorVerbose, TraceVerbose] and
// converts it to the internal log level
func VerboseToLogLvl(verbose int) util.LogLevel {
	verbose = max(ErrorVerbose, min(verbose, TraceVerbose))
	lvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return lvls[verbose-1]
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.LogLvl != nil {
		c.LogLvl = VerboseToLogLvl(*override.LogLvl)
	}
	if override.FsSize != nil {
		c.FsSize = *override.FsSize
	}
	if override.BlockSize != nil {
		c.BlockSize = *override.BlockSize
	}
	if override.TotalInodes != nil {
		c.TotalInodes = *override.TotalInodes
	}
	if override.MaxMountCount != nil {
		c.MaxMountCount = *override.MaxMountCount
	}
	if override.MaxFileSize != nil {
		c.MaxFileSize = *override.MaxFileSize
	}
	if override.MaxWrite != nil {
		c.MaxWrite = *override.MaxWrite
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	if override.DemoFile != nil {
		c.DemoFile = *override.DemoFile
	}
	if override.MetricsAddr != nil {
		c.MetricsAddr = *override.MetricsAddr
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new validated Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile,
// Merge and Validate.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg := NewConfig(override)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}
