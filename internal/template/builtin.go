package template

import "regexp"

// blankLine separates inventory entries on Cisco-style platforms.
var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// builtin is the compiled-in catalog. Template IDs double as the
// deterministic tie-breaker during scoring, so they are stable names.
var builtin = []*Template{
	{
		ID:       "cisco_ios_show_version",
		Vendor:   "cisco_ios",
		Filter:   "show version",
		Required: "hostname",
		Fields: map[string]*regexp.Regexp{
			"hostname": regexp.MustCompile(`(?m)^(\S+)\s+uptime is`),
			"version":  regexp.MustCompile(`Cisco IOS.*?Version ([^,\s]+)`),
			"image":    regexp.MustCompile(`System image file is "([^"]+)"`),
		},
		ListFields: map[string]*regexp.Regexp{
			"model":         regexp.MustCompile(`(?im)^\s*Model [Nn]umber\s*:\s*(\S+)`),
			"serial_number": regexp.MustCompile(`(?im)^\s*System [Ss]erial [Nn]umber\s*:\s*(\S+)`),
		},
	},
	{
		ID:       "cisco_nxos_show_version",
		Vendor:   "cisco_nxos",
		Filter:   "show version",
		Required: "hostname",
		Fields: map[string]*regexp.Regexp{
			"hostname":      regexp.MustCompile(`(?m)^\s*Device name:\s*(\S+)`),
			"version":       regexp.MustCompile(`(?m)^\s*(?:NXOS|system):\s*version\s*(\S+)`),
			"model":         regexp.MustCompile(`cisco (Nexus[^\n(]*?) [Cc]hassis`),
			"serial_number": regexp.MustCompile(`Processor Board ID (\S+)`),
		},
	},
	{
		ID:       "arista_eos_show_version",
		Vendor:   "arista_eos",
		Filter:   "show version",
		Required: "version",
		Fields: map[string]*regexp.Regexp{
			"model":         regexp.MustCompile(`(?m)^\s*Arista\s+(\S+)`),
			"version":       regexp.MustCompile(`(?m)^Software image version:\s*(\S+)`),
			"serial_number": regexp.MustCompile(`(?m)^Serial number:\s*(\S+)`),
			"mac_address":   regexp.MustCompile(`(?m)^System MAC address:\s*(\S+)`),
		},
	},
	{
		ID:       "juniper_junos_show_version",
		Vendor:   "juniper_junos",
		Filter:   "show version",
		Required: "hostname",
		Fields: map[string]*regexp.Regexp{
			"hostname": regexp.MustCompile(`(?m)^Hostname:\s*(\S+)`),
			"model":    regexp.MustCompile(`(?m)^Model:\s*(\S+)`),
			"version":  regexp.MustCompile(`(?m)^Junos:\s*(\S+)`),
		},
	},
	{
		ID:       "hp_procurve_show_system",
		Vendor:   "hp_procurve",
		Filter:   "show system",
		Required: "hostname",
		Fields: map[string]*regexp.Regexp{
			"hostname":      regexp.MustCompile(`(?im)^\s*System Name\s*:\s*(\S+)`),
			"version":       regexp.MustCompile(`(?im)^\s*Software revision\s*:\s*(\S+)`),
			"serial_number": regexp.MustCompile(`(?im)^\s*Serial Number\s*:\s*(\S+)`),
		},
	},
	{
		ID:        "cisco_ios_show_inventory",
		Vendor:    "cisco_ios",
		Filter:    "show inventory",
		Required:  "name",
		RecordSep: blankLine,
		Fields: map[string]*regexp.Regexp{
			"name":  regexp.MustCompile(`NAME:\s*"([^"]+)"`),
			"descr": regexp.MustCompile(`DESCR:\s*"([^"]+)"`),
			"pid":   regexp.MustCompile(`PID:\s*([^,\s]+)`),
			"vid":   regexp.MustCompile(`VID:\s*([^,\s]+)`),
			"sn":    regexp.MustCompile(`SN:\s*(\S+)`),
		},
	},
	{
		ID:        "cisco_nxos_show_inventory",
		Vendor:    "cisco_nxos",
		Filter:    "show inventory",
		Required:  "name",
		RecordSep: blankLine,
		Fields: map[string]*regexp.Regexp{
			"name":  regexp.MustCompile(`NAME:\s*"([^"]+)"`),
			"descr": regexp.MustCompile(`DESCR:\s*"([^"]+)"`),
			"pid":   regexp.MustCompile(`PID:\s*([^,\s]+)`),
			"sn":    regexp.MustCompile(`SN:\s*(\S+)`),
		},
	},
}

// Builtin returns a store over the compiled-in catalog.
func Builtin() *Store {
	return NewStore(builtin)
}
