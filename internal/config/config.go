// Package config provides configuration management for casefiler using Viper
// for flexible loading from files, environment variables, and command-line
// flags.
//
// The configuration system supports YAML files, environment variable overrides
// with the CASEFILER_ prefix, defaults, and validation. It covers hashing and
// copy tuning, archive and report toggles, technician identity, template
// storage, batch recovery timings, and the optional progress server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	minBufferSize = 8 * 1024
	maxBufferSize = 10 * 1024 * 1024
)

type Config struct {
	Hashing    HashingConfig    `mapstructure:"hashing" yaml:"hashing"`
	Copy       CopyConfig       `mapstructure:"copy" yaml:"copy"`
	Archive    ArchiveConfig    `mapstructure:"archive" yaml:"archive"`
	Reports    ReportsConfig    `mapstructure:"reports" yaml:"reports"`
	Technician TechnicianConfig `mapstructure:"technician" yaml:"technician"`
	Templates  TemplatesConfig  `mapstructure:"templates" yaml:"templates"`
	Batch      BatchConfig      `mapstructure:"batch" yaml:"batch"`
	Progress   ProgressConfig   `mapstructure:"progress" yaml:"progress"`
	Media      MediaConfig      `mapstructure:"media" yaml:"media"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

type HashingConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Algorithm string `mapstructure:"algorithm" yaml:"algorithm"`
	Workers   int    `mapstructure:"workers" yaml:"workers"`
}

type CopyConfig struct {
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
	Workers    int `mapstructure:"workers" yaml:"workers"`
}

type ArchiveConfig struct {
	CompressionLevel int          `mapstructure:"compression_level" yaml:"compression_level"`
	AtRoot           bool         `mapstructure:"at_root" yaml:"at_root"`
	AtLocation       bool         `mapstructure:"at_location" yaml:"at_location"`
	AtDatetime       bool         `mapstructure:"at_datetime" yaml:"at_datetime"`
	AutoCreate       bool         `mapstructure:"auto_create" yaml:"auto_create"`
	OutputPath       string       `mapstructure:"output_path" yaml:"output_path"`
	Upload           UploadConfig `mapstructure:"upload" yaml:"upload"`
}

type UploadConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

type ReportsConfig struct {
	TimeOffset   bool   `mapstructure:"time_offset" yaml:"time_offset"`
	UploadLog    bool   `mapstructure:"upload_log" yaml:"upload_log"`
	HashCSV      bool   `mapstructure:"hash_csv" yaml:"hash_csv"`
	DocumentsDir string `mapstructure:"documents_dir" yaml:"documents_dir"`
}

type TechnicianConfig struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Badge string `mapstructure:"badge" yaml:"badge"`
}

type TemplatesConfig struct {
	UserDir string `mapstructure:"user_dir" yaml:"user_dir"`
	Default string `mapstructure:"default" yaml:"default"`
}

type BatchConfig struct {
	QueueFile          string        `mapstructure:"queue_file" yaml:"queue_file"`
	RecoveryDir        string        `mapstructure:"recovery_dir" yaml:"recovery_dir"`
	AutosaveInterval   time.Duration `mapstructure:"autosave_interval" yaml:"autosave_interval"`
	ProcessingInterval time.Duration `mapstructure:"processing_interval" yaml:"processing_interval"`
}

type ProgressConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// MediaConfig controls capture-time probing.
type MediaConfig struct {
	// FilenameTimes enables reading DVR timestamps from file names when a
	// file has no EXIF time.
	FilenameTimes bool    `mapstructure:"filename_times" yaml:"filename_times"`
	FrameRate     float64 `mapstructure:"frame_rate" yaml:"frame_rate"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Format  string `mapstructure:"format" yaml:"format"`
	FileDir string `mapstructure:"file_dir" yaml:"file_dir"`
}

// SetDefaults registers every default on v so that unset keys, environment
// overrides and file values all resolve through the same lookup.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("hashing.enabled", true)
	v.SetDefault("hashing.algorithm", "sha256")
	v.SetDefault("hashing.workers", 4)

	v.SetDefault("copy.buffer_size", 1024*1024)
	v.SetDefault("copy.workers", 4)

	v.SetDefault("archive.compression_level", 6)
	v.SetDefault("archive.at_root", false)
	v.SetDefault("archive.at_location", false)
	v.SetDefault("archive.at_datetime", false)
	v.SetDefault("archive.auto_create", false)

	v.SetDefault("reports.time_offset", true)
	v.SetDefault("reports.upload_log", true)
	v.SetDefault("reports.hash_csv", true)
	v.SetDefault("reports.documents_dir", "Documents")

	v.SetDefault("templates.default", "default_forensic")

	v.SetDefault("batch.autosave_interval", 300*time.Second)
	v.SetDefault("batch.processing_interval", 30*time.Second)

	v.SetDefault("media.filename_times", true)
	v.SetDefault("media.frame_rate", 30.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Empty defaults make these keys visible to AutomaticEnv during Unmarshal.
	for _, key := range []string{
		"archive.output_path", "archive.upload.bucket", "archive.upload.prefix",
		"technician.name", "technician.badge",
		"templates.user_dir", "batch.queue_file", "batch.recovery_dir",
		"progress.addr", "logging.file_dir",
	} {
		v.SetDefault(key, "")
	}
}

// EnvKeyReplacer maps nested keys to CASEFILER_SECTION_KEY variable names.
func EnvKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals, fills path defaults and validates.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// viper leaves an explicitly-set log level flag under a top-level key
	if v.IsSet("log-level") {
		config.Logging.Level = v.GetString("log-level")
	}

	if config.Templates.UserDir == "" {
		config.Templates.UserDir = filepath.Join(DefaultDataDir(), "templates")
	}
	if config.Batch.RecoveryDir == "" {
		config.Batch.RecoveryDir = DefaultRecoveryDir()
	}
	if config.Batch.QueueFile == "" {
		config.Batch.QueueFile = filepath.Join(config.Batch.RecoveryDir, "batch_queue.json")
	}

	config.Copy.BufferSize = clamp(config.Copy.BufferSize, minBufferSize, maxBufferSize)
	config.Copy.Workers = clamp(config.Copy.Workers, 1, 64)
	config.Hashing.Workers = clamp(config.Hashing.Workers, 1, 64)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// DefaultDataDir returns the per-user application data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	switch runtime.GOOS {
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "casefiler")
		}
		return filepath.Join(home, "AppData", "Local", "casefiler")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "casefiler")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "casefiler")
		}
		return filepath.Join(home, ".local", "share", "casefiler")
	}
}

// DefaultRecoveryDir returns the directory holding autosave files.
func DefaultRecoveryDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".casefiler")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
