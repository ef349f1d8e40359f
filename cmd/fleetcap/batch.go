package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fleetcap/fleetcap/internal/capture"
	"github.com/fleetcap/fleetcap/internal/config"
	"github.com/fleetcap/fleetcap/internal/fingerprint"
	"github.com/fleetcap/fleetcap/internal/inventory"
	"github.com/fleetcap/fleetcap/internal/runner"
	"github.com/fleetcap/fleetcap/internal/scheduler"
	"github.com/fleetcap/fleetcap/internal/session"
	"github.com/fleetcap/fleetcap/internal/store"
	"github.com/fleetcap/fleetcap/internal/template"
)

// commandTypes maps a normalized command prefix to the capture type its
// output lands under.
var commandTypes = map[string]capture.Type{
	"show version":           capture.TypeVersion,
	"show inventory":         capture.TypeInventory,
	"show running-config":    capture.TypeConfigs,
	"show startup-config":    capture.TypeConfigs,
	"show configuration":     capture.TypeConfigs,
	"show arp":               capture.TypeARP,
	"show ip arp":            capture.TypeARP,
	"show mac address-table": capture.TypeMAC,
	"show cdp neighbors":     capture.TypeCDP,
	"show lldp neighbors":    capture.TypeLLDP,
	"show ip route":          capture.TypeRoute,
	"show ip bgp":            capture.TypeBGPNeighbor,
	"show ip ospf":           capture.TypeOSPFNeighbor,
	"show interfaces status": capture.TypeIntStatus,
	"show interfaces":        capture.TypeIntCounters,
	"show ip interface":      capture.TypeIPIntBrief,
	"show vlan":              capture.TypeVLAN,
	"show spanning-tree":     capture.TypeSpanningTree,
	"show ntp":               capture.TypeNTP,
	"show environment":       capture.TypeEnvironment,
	"show access-lists":      capture.TypeACL,
	"show users":             capture.TypeUsers,
}

// captureTypeFor picks the capture type from the last command, the one
// whose output names the artifact. The longest matching prefix wins.
func captureTypeFor(commands []string) capture.Type {
	if len(commands) == 0 {
		return capture.TypeConfigs
	}
	cmd := template.NormalizeCommand(commands[len(commands)-1])
	best := capture.TypeConfigs
	bestLen := 0
	for prefix, typ := range commandTypes {
		if strings.HasPrefix(cmd, prefix) && len(prefix) > bestLen {
			best, bestLen = typ, len(prefix)
		}
	}
	return best
}

// prologueFor picks the vendor-appropriate paging disable.
func prologueFor(vendorHint string) []string {
	switch {
	case strings.HasPrefix(vendorHint, "juniper"):
		return []string{"set cli screen-length 0"}
	case strings.HasPrefix(vendorHint, "hp"), strings.HasPrefix(vendorHint, "procurve"):
		return []string{"no page"}
	case strings.HasPrefix(vendorHint, "paloalto"):
		return []string{"set cli pager off"}
	default:
		// Cisco-style platforms, which also covers Arista.
		return []string{"terminal length 0", "terminal width 511"}
	}
}

func cmdBatch(args []string) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	var (
		configPath   = fs.String("config", "", "config file path")
		invPath      = fs.String("inventory", "", "inventory document path (required)")
		filterSite   = fs.String("filter-site", "", "site code glob")
		filterVendor = fs.String("filter-vendor", "", "vendor hint glob")
		filterName   = fs.String("filter-name", "", "device name glob")
		commandsFlag = fs.String("commands", "show version", "comma-separated command list")
		typeFlag     = fs.String("type", "", "capture type override (default derived from commands)")
		outputDir    = fs.String("output", "", "capture output root (default from config)")
		workers      = fs.Int("workers", 0, "worker count (default from config)")
		perDevice    = fs.Duration("per-device-timeout", 0, "per-device budget (default from config)")
		deadline     = fs.Duration("batch-deadline", 0, "per-batch deadline (default none)")
		stopOnError  = fs.Bool("stop-on-error", false, "halt the batch on the first failure")
		fpOnly       = fs.Bool("fingerprint-only", false, "run only the fingerprint command set")
		fpedOnly     = fs.Bool("fingerprinted-only", false, "restrict to devices already in the store")
		dryRun       = fs.Bool("dry-run", false, "print the job plan without connecting")
	)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *invPath == "" {
		fmt.Fprintln(os.Stderr, "batch: --inventory is required")
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		return exitFatal
	}
	if err := setupLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up logging: %v\n", err)
		return exitFatal
	}

	devices, err := inventory.Load(*invPath)
	if err != nil {
		log.Error().Err(err).Msg("inventory unreadable")
		return exitFatal
	}
	devices = inventory.Filter{
		Site:   *filterSite,
		Vendor: *filterVendor,
		Name:   *filterName,
	}.Apply(devices)

	commands := splitList(*commandsFlag)
	if *fpOnly {
		commands = []string{"show version"}
	}
	capType := captureTypeFor(commands)
	if *typeFlag != "" {
		capType = capture.Type(*typeFlag)
	}
	types := capture.NewTypeSet(cfg.Capture.Types)
	if !types.Contains(capType) {
		fmt.Fprintf(os.Stderr, "batch: unknown capture type %q\n", capType)
		return exitUsage
	}

	if *fpedOnly {
		devices, err = onlyFingerprinted(cfg, devices)
		if err != nil {
			log.Error().Err(err).Msg("store unavailable")
			return exitFatal
		}
	}

	out := *outputDir
	if out == "" {
		out = cfg.Core.CaptureRoot
	}

	if *dryRun {
		fmt.Printf("batch plan: %d devices, capture type %s, commands: %s\n",
			len(devices), capType, strings.Join(commands, "; "))
		for _, d := range devices {
			fmt.Printf("  %-28s %-20s %s\n", d.NormalizedName, d.Host,
				capture.PathFor(out, capType, d.NormalizedName))
		}
		return exitOK
	}

	creds := inventory.LoadCredentials(devices)
	engine := fingerprint.NewEngine(template.Builtin(), fingerprint.Weights{
		PerRecord:     cfg.Fingerprint.PerRecordBonus,
		RequiredField: cfg.Fingerprint.RequiredFieldBonus,
		VendorHint:    cfg.Fingerprint.VendorHintBonus,
		Minimum:       cfg.Fingerprint.MinimumScore,
	})

	perDev := cfg.Scheduler.PerDevice()
	if *perDevice > 0 {
		perDev = *perDevice
	}
	jobs := make([]runner.Job, 0, len(devices))
	for _, d := range devices {
		jobs = append(jobs, runner.Job{
			Device:            d,
			Prologue:          prologueFor(d.VendorHint),
			Commands:          commands,
			CaptureType:       capType,
			OutputPath:        capture.PathFor(out, capType, d.NormalizedName),
			PerDeviceTimeout:  perDev,
			PerCommandTimeout: cfg.Scheduler.PerCommand(),
		})
	}

	r := runner.New(session.Dial, creds, engine, session.Options{
		ConnectTimeout: cfg.Session.ConnectTimeout(),
		QuietPeriod:    cfg.Session.QuietPeriod(),
		ProbeTimeout:   cfg.Session.ProbeTimeout(),
		ReadInterval:   cfg.Session.ReadInterval(),
		MaxOutput:      cfg.Session.MaxOutputBytes,
	}, cfg.Core.FingerprintRoot)

	nWorkers := cfg.Scheduler.Workers
	if *workers > 0 {
		nWorkers = *workers
	}
	batchDeadline := cfg.Scheduler.BatchDeadline()
	if *deadline > 0 {
		batchDeadline = *deadline
	}
	sched := scheduler.New(r, scheduler.Options{
		Workers:       nWorkers,
		StopOnError:   *stopOnError || cfg.Scheduler.StopOnError,
		BatchDeadline: batchDeadline,
		Drain:         cfg.Scheduler.Drain(),
		JournalPath:   filepath.Join(cfg.Core.DataDir, "batch-journal.jsonl"),
		ProgressPath:  filepath.Join(cfg.Core.DataDir, "batch-progress.log"),
	})

	// Hot-reload the config during long batches; a log-level change takes
	// effect without restarting.
	if cfgFile := config.ConfigFilePath(); cfgFile != "" {
		if w, werr := config.Watch(cfgFile); werr != nil {
			log.Warn().Err(werr).Msg("config watcher unavailable")
		} else {
			defer w.Close()
			w.OnChange(func(_, newCfg *config.Config) {
				zerolog.SetGlobalLevel(parseLogLevel(newCfg.Core.LogLevel))
			})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := notifySignals(cancel)
	defer stop()

	res := sched.Run(ctx, jobs, func(e scheduler.Event) {
		log.Debug().Str("host", e.Host).Str("phase", e.Phase).Dur("elapsed", e.Elapsed).Msg("progress")
	})

	fmt.Printf("batch %s: %d total, %d ok, %d failed, %d canceled in %s\n",
		res.ID, res.Total, res.OK, res.Failed, res.Canceled, res.Elapsed.Round(time.Millisecond))
	for _, r := range res.Results {
		if r.Err != nil {
			fmt.Printf("  %-28s %s: %v\n", r.Device, r.Status, r.Err)
		}
	}

	switch {
	case ctx.Err() != nil:
		return exitSignal
	case res.Failed > 0:
		return exitFailures
	default:
		return exitOK
	}
}

func onlyFingerprinted(cfg *config.Config, devices []inventory.Device) ([]inventory.Device, error) {
	st, err := store.Open(cfg.Core.StorePath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	var out []inventory.Device
	for _, d := range devices {
		if _, err := st.GetDevice(d.NormalizedName); err == nil {
			out = append(out, d)
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
