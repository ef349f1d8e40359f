package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

// set stores a new Config atomically.
func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for fleetcap.
type Config struct {
	Core        CoreConfig        `mapstructure:"core"        toml:"core"`
	Session     SessionConfig     `mapstructure:"session"     toml:"session"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"   toml:"scheduler"`
	Fingerprint FingerprintConfig `mapstructure:"fingerprint" toml:"fingerprint"`
	Loader      LoaderConfig      `mapstructure:"loader"      toml:"loader"`
	Change      ChangeConfig      `mapstructure:"change"      toml:"change"`
	Capture     CaptureConfig     `mapstructure:"capture"     toml:"capture"`
}

// CoreConfig holds paths and logging.
type CoreConfig struct {
	DataDir         string `mapstructure:"data_dir"         toml:"data_dir"`
	CaptureRoot     string `mapstructure:"capture_root"     toml:"capture_root"`
	FingerprintRoot string `mapstructure:"fingerprint_root" toml:"fingerprint_root"`
	DiffRoot        string `mapstructure:"diff_root"        toml:"diff_root"`
	StorePath       string `mapstructure:"store_path"       toml:"store_path"`
	LogLevel        string `mapstructure:"log_level"        toml:"log_level"`
}

// SessionConfig holds SSH session timing and limits.
type SessionConfig struct {
	ConnectTimeoutSec int `mapstructure:"connect_timeout_seconds" toml:"connect_timeout_seconds"`
	QuietPeriodMs     int `mapstructure:"quiet_period_ms"         toml:"quiet_period_ms"`
	ProbeTimeoutSec   int `mapstructure:"probe_timeout_seconds"   toml:"probe_timeout_seconds"`
	ReadIntervalMs    int `mapstructure:"read_interval_ms"        toml:"read_interval_ms"`
	MaxOutputBytes    int `mapstructure:"max_output_bytes"        toml:"max_output_bytes"`
}

// ConnectTimeout returns the connect timeout as a duration.
func (s SessionConfig) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutSec) * time.Second
}

// QuietPeriod returns the probe quiet interval as a duration.
func (s SessionConfig) QuietPeriod() time.Duration {
	return time.Duration(s.QuietPeriodMs) * time.Millisecond
}

// ProbeTimeout returns the probe budget as a duration.
func (s SessionConfig) ProbeTimeout() time.Duration {
	return time.Duration(s.ProbeTimeoutSec) * time.Second
}

// ReadInterval returns the drain cadence as a duration.
func (s SessionConfig) ReadInterval() time.Duration {
	return time.Duration(s.ReadIntervalMs) * time.Millisecond
}

// SchedulerConfig holds worker pool sizing and timeouts.
type SchedulerConfig struct {
	Workers          int  `mapstructure:"workers"                    toml:"workers"`
	PerCommandSec    int  `mapstructure:"per_command_seconds"        toml:"per_command_seconds"`
	PerDeviceSec     int  `mapstructure:"per_device_seconds"         toml:"per_device_seconds"`
	DrainSec         int  `mapstructure:"drain_seconds"              toml:"drain_seconds"`
	BatchDeadlineSec int  `mapstructure:"batch_deadline_seconds"     toml:"batch_deadline_seconds"`
	StopOnError      bool `mapstructure:"stop_on_error"             toml:"stop_on_error"`
}

// PerCommand returns the per-command budget as a duration.
func (s SchedulerConfig) PerCommand() time.Duration {
	return time.Duration(s.PerCommandSec) * time.Second
}

// PerDevice returns the per-device budget as a duration.
func (s SchedulerConfig) PerDevice() time.Duration {
	return time.Duration(s.PerDeviceSec) * time.Second
}

// Drain returns the cancel drain bound as a duration.
func (s SchedulerConfig) Drain() time.Duration {
	return time.Duration(s.DrainSec) * time.Second
}

// BatchDeadline returns the per-batch deadline, zero meaning none.
func (s SchedulerConfig) BatchDeadline() time.Duration {
	return time.Duration(s.BatchDeadlineSec) * time.Second
}

// FingerprintConfig holds the template scoring weights.
type FingerprintConfig struct {
	PerRecordBonus     int `mapstructure:"per_record_bonus"     toml:"per_record_bonus"`
	RequiredFieldBonus int `mapstructure:"required_field_bonus" toml:"required_field_bonus"`
	VendorHintBonus    int `mapstructure:"vendor_hint_bonus"    toml:"vendor_hint_bonus"`
	MinimumScore       int `mapstructure:"minimum_score"        toml:"minimum_score"`
}

// LoaderConfig holds ingest thresholds and retention.
type LoaderConfig struct {
	MinSuccessBytes int `mapstructure:"min_success_bytes" toml:"min_success_bytes"`
	ArchiveDays     int `mapstructure:"archive_days"      toml:"archive_days"`
	SweepBatch      int `mapstructure:"sweep_batch"       toml:"sweep_batch"`
	SnippetBytes    int `mapstructure:"snippet_bytes"     toml:"snippet_bytes"`
}

// ChangeConfig holds the severity classification pattern sets.
type ChangeConfig struct {
	SensitivePatterns []string `mapstructure:"sensitive_patterns" toml:"sensitive_patterns"`
	CounterPatterns   []string `mapstructure:"counter_patterns"   toml:"counter_patterns"`
}

// CaptureConfig fixes the capture type enumeration for the process.
type CaptureConfig struct {
	Types []string `mapstructure:"types" toml:"types"`
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (FLEETCAP_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.fleetcap/fleetcap.toml
//  4. ./fleetcap.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	setViperDefaults(v)

	v.SetEnvPrefix("FLEETCAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".fleetcap"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("fleetcap")
	}

	if err := v.ReadInConfig(); err != nil {
		// If no config file exists we still proceed with defaults + env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Core.DataDir = ExpandHome(cfg.Core.DataDir)
	cfg.Core.CaptureRoot = ExpandHome(cfg.Core.CaptureRoot)
	cfg.Core.FingerprintRoot = ExpandHome(cfg.Core.FingerprintRoot)
	cfg.Core.DiffRoot = ExpandHome(cfg.Core.DiffRoot)
	cfg.Core.StorePath = ExpandHome(cfg.Core.StorePath)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration file to
// ~/.fleetcap/fleetcap.toml. If the file already exists it is not
// overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".fleetcap")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	cfg := DefaultConfig()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to the given path in TOML format.
func ExportConfig(path string) error {
	cfg := Get()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
		}
	}
	return path
}

// setViperDefaults registers every known key with viper so that env var
// binding works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("core.data_dir", d.Core.DataDir)
	v.SetDefault("core.capture_root", d.Core.CaptureRoot)
	v.SetDefault("core.fingerprint_root", d.Core.FingerprintRoot)
	v.SetDefault("core.diff_root", d.Core.DiffRoot)
	v.SetDefault("core.store_path", d.Core.StorePath)
	v.SetDefault("core.log_level", d.Core.LogLevel)

	v.SetDefault("session.connect_timeout_seconds", d.Session.ConnectTimeoutSec)
	v.SetDefault("session.quiet_period_ms", d.Session.QuietPeriodMs)
	v.SetDefault("session.probe_timeout_seconds", d.Session.ProbeTimeoutSec)
	v.SetDefault("session.read_interval_ms", d.Session.ReadIntervalMs)
	v.SetDefault("session.max_output_bytes", d.Session.MaxOutputBytes)

	v.SetDefault("scheduler.workers", d.Scheduler.Workers)
	v.SetDefault("scheduler.per_command_seconds", d.Scheduler.PerCommandSec)
	v.SetDefault("scheduler.per_device_seconds", d.Scheduler.PerDeviceSec)
	v.SetDefault("scheduler.drain_seconds", d.Scheduler.DrainSec)
	v.SetDefault("scheduler.batch_deadline_seconds", d.Scheduler.BatchDeadlineSec)
	v.SetDefault("scheduler.stop_on_error", d.Scheduler.StopOnError)

	v.SetDefault("fingerprint.per_record_bonus", d.Fingerprint.PerRecordBonus)
	v.SetDefault("fingerprint.required_field_bonus", d.Fingerprint.RequiredFieldBonus)
	v.SetDefault("fingerprint.vendor_hint_bonus", d.Fingerprint.VendorHintBonus)
	v.SetDefault("fingerprint.minimum_score", d.Fingerprint.MinimumScore)

	v.SetDefault("loader.min_success_bytes", d.Loader.MinSuccessBytes)
	v.SetDefault("loader.archive_days", d.Loader.ArchiveDays)
	v.SetDefault("loader.sweep_batch", d.Loader.SweepBatch)
	v.SetDefault("loader.snippet_bytes", d.Loader.SnippetBytes)

	v.SetDefault("change.sensitive_patterns", d.Change.SensitivePatterns)
	v.SetDefault("change.counter_patterns", d.Change.CounterPatterns)

	v.SetDefault("capture.types", d.Capture.Types)
}
