package main

import (
	"fmt"
	"os"

	"github.com/fleetcap/fleetcap/internal/config"
	"github.com/fleetcap/fleetcap/internal/version"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailures = 1
	exitUsage    = 2
	exitFatal    = 3
	exitSignal   = 130
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitUsage)
	}

	switch os.Args[1] {
	case "batch":
		os.Exit(cmdBatch(os.Args[2:]))
	case "load-fingerprints":
		os.Exit(cmdLoadFingerprints(os.Args[2:]))
	case "load-captures":
		os.Exit(cmdLoadCaptures(os.Args[2:]))
	case "status":
		os.Exit(cmdStatus(os.Args[2:]))
	case "prune":
		os.Exit(cmdPrune(os.Args[2:]))
	case "init-config":
		if err := config.InitConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "error generating config: %v\n", err)
			os.Exit(exitFatal)
		}
	case "config-export":
		path := "fleetcap-export.toml"
		if len(os.Args) > 2 {
			path = os.Args[2]
		}
		config.Load("") //nolint:errcheck
		if err := config.ExportConfig(path); err != nil {
			fmt.Fprintf(os.Stderr, "error exporting config: %v\n", err)
			os.Exit(exitFatal)
		}
		fmt.Printf("Config exported to %s\n", path)
	case "version":
		fmt.Println(version.String())
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(exitUsage)
	}
}

func printUsage() {
	fmt.Println(`Usage: fleetcap <command> [options]

Commands:
  batch              Run a capture batch against the device inventory
  load-fingerprints  Ingest a fingerprint directory into the store
  load-captures      Ingest a capture directory into the store
  status             Show per-device status and capture coverage
  prune              Run the archive retention sweep
  init-config        Generate default config file
  config-export      Export current config to a TOML file
  version            Print version information
  help               Show this help message

Run 'fleetcap <command> -h' for command-specific flags.`)
}
