package config

import "github.com/fleetcap/fleetcap/internal/change"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "fleetcap.toml"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.fleetcap"

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultWorkers is the default worker pool size.
const DefaultWorkers = 8

// DefaultPerCommandSeconds is the default per-command budget.
const DefaultPerCommandSeconds = 60

// DefaultPerDeviceSeconds is the default per-device budget (10 minutes).
const DefaultPerDeviceSeconds = 600

// DefaultDrainSeconds bounds worker drain after cancellation.
const DefaultDrainSeconds = 5

// DefaultConnectTimeoutSeconds is the default SSH connect budget.
const DefaultConnectTimeoutSeconds = 20

// DefaultQuietPeriodMs is the probe-mode quiet interval.
const DefaultQuietPeriodMs = 400

// DefaultProbeTimeoutSeconds is the overall probe budget.
const DefaultProbeTimeoutSeconds = 10

// DefaultReadIntervalMs is the max interval between read-channel drains.
const DefaultReadIntervalMs = 250

// DefaultMaxOutputBytes caps per-device command output (16 MiB).
const DefaultMaxOutputBytes = 16 << 20

// DefaultMinSuccessBytes is the minimum capture size considered a success.
const DefaultMinSuccessBytes = 64

// DefaultArchiveDays is the capture archive retention window.
const DefaultArchiveDays = 30

// DefaultSweepBatch bounds archive rows deleted per retention sweep.
const DefaultSweepBatch = 10000

// DefaultSnippetBytes bounds the content snippet stored per capture row.
const DefaultSnippetBytes = 512

// DefaultConfig returns a Config populated with every default.
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			DataDir:         DefaultDataDir,
			CaptureRoot:     DefaultDataDir + "/captures",
			FingerprintRoot: DefaultDataDir + "/fingerprints",
			DiffRoot:        DefaultDataDir + "/diffs",
			StorePath:       DefaultDataDir + "/fleetcap.db",
			LogLevel:        DefaultLogLevel,
		},
		Session: SessionConfig{
			ConnectTimeoutSec: DefaultConnectTimeoutSeconds,
			QuietPeriodMs:     DefaultQuietPeriodMs,
			ProbeTimeoutSec:   DefaultProbeTimeoutSeconds,
			ReadIntervalMs:    DefaultReadIntervalMs,
			MaxOutputBytes:    DefaultMaxOutputBytes,
		},
		Scheduler: SchedulerConfig{
			Workers:       DefaultWorkers,
			PerCommandSec: DefaultPerCommandSeconds,
			PerDeviceSec:  DefaultPerDeviceSeconds,
			DrainSec:      DefaultDrainSeconds,
		},
		Fingerprint: FingerprintConfig{
			PerRecordBonus:     5,
			RequiredFieldBonus: 10,
			VendorHintBonus:    3,
			MinimumScore:       1,
		},
		Loader: LoaderConfig{
			MinSuccessBytes: DefaultMinSuccessBytes,
			ArchiveDays:     DefaultArchiveDays,
			SweepBatch:      DefaultSweepBatch,
			SnippetBytes:    DefaultSnippetBytes,
		},
		Change: ChangeConfig{
			SensitivePatterns: change.DefaultSensitivePatterns,
			CounterPatterns:   change.DefaultCounterPatterns,
		},
		Capture: CaptureConfig{
			Types: nil, // empty selects the builtin enumeration
		},
	}
}
