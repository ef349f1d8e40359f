package fingerprint

import (
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/fleetcap/fleetcap/internal/template"
)

// StackMember is one member of a switch stack.
type StackMember struct {
	Position int
	Model    string
	Serial   string
	IsMaster bool
}

// ComponentKind classifies a hardware component.
type ComponentKind string

const (
	KindChassis     ComponentKind = "chassis"
	KindModule      ComponentKind = "module"
	KindSupervisor  ComponentKind = "supervisor"
	KindPSU         ComponentKind = "psu"
	KindFan         ComponentKind = "fan"
	KindTransceiver ComponentKind = "transceiver"
	KindUnknown     ComponentKind = "unknown"
)

// Component is a hardware component extracted from an inventory capture.
type Component struct {
	Kind        ComponentKind
	Name        string
	Description string
	Serial      string
	Position    int
	Source      string  // extraction source identifier (template id)
	Confidence  float64 // in [0,1]
}

// DeviceRecord is the normalized device view derived from a version parse.
type DeviceRecord struct {
	Hostname     string
	Vendor       string
	Model        string
	Version      string
	Serials      []string
	StackMembers []StackMember
}

// DeriveDevice builds a DeviceRecord from a winning version parse.
// promptHostname is the prompt the session observed; it backfills the
// hostname when no template field produced one.
func DeriveDevice(res *ParseResult, promptHostname string) DeviceRecord {
	d := DeviceRecord{
		Hostname: firstField(res.Records, "hostname"),
		Vendor:   VendorFromTag(res.Template.Vendor),
		Version:  pickVersion(res.Records),
	}
	if d.Hostname == "" {
		d.Hostname = strings.TrimRight(promptHostname, "#>:$ ")
	}

	d.Model = joinModels(collectField(res.Records, "model"))
	d.Serials = SplitSerials(strings.Join(collectField(res.Records, "serial_number"), ", "))
	d.StackMembers = synthesizeStack(d.Serials, SplitSerials(d.Model))
	return d
}

// SplitSerials splits a comma-joined serial field into its parts.
func SplitSerials(joined string) []string {
	var out []string
	for _, part := range strings.Split(joined, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// VendorFromTag reduces a template platform tag to a vendor name:
// "cisco_ios" becomes "cisco".
func VendorFromTag(tag string) string {
	if idx := strings.IndexByte(tag, '_'); idx > 0 {
		return tag[:idx]
	}
	return tag
}

// synthesizeStack builds position-ordered stack members from parallel
// serial and model lists. A single serial is not a stack.
func synthesizeStack(serials, models []string) []StackMember {
	if len(serials) < 2 {
		return nil
	}
	members := make([]StackMember, 0, len(serials))
	for i, sn := range serials {
		model := ""
		switch {
		case i < len(models):
			model = models[i]
		case len(models) > 0:
			model = models[len(models)-1]
		}
		members = append(members, StackMember{
			Position: i + 1,
			Model:    model,
			Serial:   sn,
			IsMaster: i == 0,
		})
	}
	return members
}

// versionFields are checked in preference order when picking the software
// version.
var versionFields = []string{"version", "sw_version", "os_version"}

// pickVersion prefers the first field value that parses as a semantic-ish
// version, falling back to the first non-empty one.
func pickVersion(records []template.Record) string {
	var candidates []string
	for _, name := range versionFields {
		candidates = append(candidates, collectField(records, name)...)
	}
	for _, c := range candidates {
		if _, err := goversion.NewVersion(c); err == nil {
			return c
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

// DeriveComponents builds the component list from a winning inventory
// parse. Confidence reflects how complete the entry was.
func DeriveComponents(res *ParseResult) []Component {
	var out []Component
	for i, rec := range res.Records {
		name := rec["name"]
		descr := rec["descr"]
		if name == "" && descr == "" {
			continue
		}
		c := Component{
			Kind:        classifyComponent(name, descr),
			Name:        name,
			Description: descr,
			Serial:      rec["sn"],
			Position:    i + 1,
			Source:      res.Template.ID,
			Confidence:  componentConfidence(rec),
		}
		out = append(out, c)
	}
	return out
}

func classifyComponent(name, descr string) ComponentKind {
	s := strings.ToLower(name + " " + descr)
	switch {
	case strings.Contains(s, "supervisor"):
		return KindSupervisor
	case strings.Contains(s, "power supply"), strings.Contains(s, "psu"):
		return KindPSU
	case strings.Contains(s, "fan"):
		return KindFan
	case strings.Contains(s, "sfp"), strings.Contains(s, "qsfp"),
		strings.Contains(s, "transceiver"), strings.Contains(s, "gbic"),
		strings.Contains(s, "base-sx"), strings.Contains(s, "basesx"):
		return KindTransceiver
	case strings.Contains(s, "chassis"), name == "1", strings.Contains(s, "stack"):
		return KindChassis
	case strings.Contains(s, "module"), strings.Contains(s, "card"):
		return KindModule
	default:
		return KindUnknown
	}
}

func componentConfidence(rec template.Record) float64 {
	score := 0.4
	if rec["sn"] != "" {
		score += 0.3
	}
	if rec["pid"] != "" {
		score += 0.2
	}
	if rec["descr"] != "" {
		score += 0.1
	}
	return score
}

func firstField(records []template.Record, name string) string {
	for _, r := range records {
		if v := r[name]; v != "" {
			return v
		}
	}
	return ""
}

func collectField(records []template.Record, name string) []string {
	var out []string
	for _, r := range records {
		if v := r[name]; v != "" {
			out = append(out, v)
		}
	}
	return out
}

func joinModels(vals []string) string {
	// Values may themselves be comma-joined lists; flatten first.
	var flat []string
	for _, v := range vals {
		flat = append(flat, SplitSerials(v)...)
	}
	return strings.Join(flat, ", ")
}
