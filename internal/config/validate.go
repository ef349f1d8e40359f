package config

import (
	"fmt"
	"strings"

	"github.com/fleetcap/fleetcap/internal/change"
)

// ValidLogLevels are the accepted log_level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Core.DataDir == "" {
		errs = append(errs, "core.data_dir must not be empty")
	}
	if cfg.Core.StorePath == "" {
		errs = append(errs, "core.store_path must not be empty")
	}
	if !isValidEnum(cfg.Core.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("core.log_level must be one of %v, got %q", ValidLogLevels, cfg.Core.LogLevel))
	}

	if cfg.Session.ConnectTimeoutSec <= 0 {
		errs = append(errs, fmt.Sprintf("session.connect_timeout_seconds must be positive, got %d", cfg.Session.ConnectTimeoutSec))
	}
	if cfg.Session.QuietPeriodMs <= 0 {
		errs = append(errs, fmt.Sprintf("session.quiet_period_ms must be positive, got %d", cfg.Session.QuietPeriodMs))
	}
	if cfg.Session.ProbeTimeoutSec <= 0 {
		errs = append(errs, fmt.Sprintf("session.probe_timeout_seconds must be positive, got %d", cfg.Session.ProbeTimeoutSec))
	}
	if cfg.Session.ReadIntervalMs <= 0 {
		errs = append(errs, fmt.Sprintf("session.read_interval_ms must be positive, got %d", cfg.Session.ReadIntervalMs))
	}
	if cfg.Session.MaxOutputBytes <= 0 {
		errs = append(errs, fmt.Sprintf("session.max_output_bytes must be positive, got %d", cfg.Session.MaxOutputBytes))
	}

	if cfg.Scheduler.Workers < 1 {
		errs = append(errs, fmt.Sprintf("scheduler.workers must be at least 1, got %d", cfg.Scheduler.Workers))
	}
	if cfg.Scheduler.PerCommandSec <= 0 {
		errs = append(errs, fmt.Sprintf("scheduler.per_command_seconds must be positive, got %d", cfg.Scheduler.PerCommandSec))
	}
	if cfg.Scheduler.PerDeviceSec <= 0 {
		errs = append(errs, fmt.Sprintf("scheduler.per_device_seconds must be positive, got %d", cfg.Scheduler.PerDeviceSec))
	}
	if cfg.Scheduler.DrainSec < 0 {
		errs = append(errs, fmt.Sprintf("scheduler.drain_seconds must be non-negative, got %d", cfg.Scheduler.DrainSec))
	}
	if cfg.Scheduler.BatchDeadlineSec < 0 {
		errs = append(errs, fmt.Sprintf("scheduler.batch_deadline_seconds must be non-negative, got %d", cfg.Scheduler.BatchDeadlineSec))
	}

	if cfg.Fingerprint.MinimumScore < 1 {
		errs = append(errs, fmt.Sprintf("fingerprint.minimum_score must be at least 1, got %d", cfg.Fingerprint.MinimumScore))
	}

	if cfg.Loader.MinSuccessBytes < 0 {
		errs = append(errs, fmt.Sprintf("loader.min_success_bytes must be non-negative, got %d", cfg.Loader.MinSuccessBytes))
	}
	if cfg.Loader.ArchiveDays < 1 {
		errs = append(errs, fmt.Sprintf("loader.archive_days must be at least 1, got %d", cfg.Loader.ArchiveDays))
	}
	if cfg.Loader.SweepBatch < 1 {
		errs = append(errs, fmt.Sprintf("loader.sweep_batch must be at least 1, got %d", cfg.Loader.SweepBatch))
	}

	// Pattern sets must compile; reuse the change package compiler.
	if _, err := change.CompilePatterns(cfg.Change.SensitivePatterns, cfg.Change.CounterPatterns); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidEnum(val string, allowed []string) bool {
	for _, a := range allowed {
		if val == a {
			return true
		}
	}
	return false
}
