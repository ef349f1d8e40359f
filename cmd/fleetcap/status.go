package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fleetcap/fleetcap/internal/config"
	"github.com/fleetcap/fleetcap/internal/store"
)

func cmdStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "config file path")
		storePath  = fs.String("store", "", "store path override")
		coverage   = fs.Bool("coverage", false, "show capture coverage by type and vendor")
		sites      = fs.Bool("sites", false, "show per-site device counts")
	)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		return exitFatal
	}

	path := *storePath
	if path == "" {
		path = cfg.Core.StorePath
	}
	st, err := store.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening store: %v\n", err)
		return exitFatal
	}
	defer st.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	switch {
	case *coverage:
		rows, err := st.CaptureCoverage()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFatal
		}
		fmt.Fprintln(w, "TYPE\tVENDOR\tOK\tTOTAL")
		for _, c := range rows {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", c.CaptureType, c.Vendor, c.OK, c.Total)
		}

	case *sites:
		rows, err := st.SiteInventory()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFatal
		}
		fmt.Fprintln(w, "SITE\tROLE\tVENDOR\tDEVICES")
		for _, s := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.SiteCode, s.Role, s.Vendor, s.Devices)
		}

	default:
		rows, err := st.DeviceStatuses()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFatal
		}
		fmt.Fprintln(w, "DEVICE\tSITE\tVENDOR\tMODEL\tVERSION\tSTACK\tCAPTURES\tLAST FINGERPRINT")
		for _, d := range rows {
			stack := "-"
			if d.IsStack {
				stack = fmt.Sprintf("%d", d.StackCount)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\n",
				d.NormalizedName, d.SiteCode, d.Vendor, d.Model, d.SoftwareVersion,
				stack, d.CapturesOK, d.CaptureTypes, d.LastFingerprint)
		}
	}

	w.Flush()
	return exitOK
}
