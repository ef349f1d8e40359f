package capture

import (
	"fmt"
	"sort"
	"strings"
)

// Type names a class of captures. The set of valid types is fixed at
// configuration-load time; ingesting a capture of an unlisted type is an
// error, never a silent discard.
type Type string

// The builtin capture type set. Fingerprinting consumes Version and
// Inventory; the loader treats every type uniformly for storage.
const (
	TypeVersion      Type = "version"
	TypeInventory    Type = "inventory"
	TypeConfigs      Type = "configs"
	TypeARP          Type = "arp"
	TypeMAC          Type = "mac"
	TypeCDP          Type = "cdp"
	TypeLLDP         Type = "lldp"
	TypeRoute        Type = "route"
	TypeBGPNeighbor  Type = "bgp-neighbor"
	TypeOSPFNeighbor Type = "ospf-neighbor"
	TypeEIGRP        Type = "eigrp-neighbor"
	TypeIntStatus    Type = "int-status"
	TypeIntCounters  Type = "int-counters"
	TypeIPIntBrief   Type = "ip-int-brief"
	TypeVLAN         Type = "vlan"
	TypeSpanningTree Type = "spanning-tree"
	TypeTrunk        Type = "trunk"
	TypePortChannel  Type = "port-channel"
	TypeNTP          Type = "ntp"
	TypeSNMP         Type = "snmp"
	TypeSyslog       Type = "syslog"
	TypeEnvironment  Type = "environment"
	TypePower        Type = "power"
	TypeTACACS       Type = "tacacs"
	TypeRADIUS       Type = "radius"
	TypeAuth         Type = "authentication"
	TypeACL          Type = "access-lists"
	TypeConsole      Type = "console"
	TypeVTY          Type = "vty"
	TypeUptime       Type = "uptime"
	TypeUsers        Type = "users"
)

// builtinTypes is the default enumeration, 31 entries.
var builtinTypes = []Type{
	TypeVersion, TypeInventory, TypeConfigs, TypeARP, TypeMAC,
	TypeCDP, TypeLLDP, TypeRoute, TypeBGPNeighbor, TypeOSPFNeighbor,
	TypeEIGRP, TypeIntStatus, TypeIntCounters, TypeIPIntBrief, TypeVLAN,
	TypeSpanningTree, TypeTrunk, TypePortChannel, TypeNTP, TypeSNMP,
	TypeSyslog, TypeEnvironment, TypePower, TypeTACACS, TypeRADIUS,
	TypeAuth, TypeACL, TypeConsole, TypeVTY, TypeUptime, TypeUsers,
}

// TypeSet is the closed set of capture types valid for one process
// lifetime. It is built once from configuration and read-only afterwards.
type TypeSet struct {
	names map[Type]struct{}
}

// NewTypeSet builds a TypeSet from the given names. An empty list yields
// the builtin enumeration.
func NewTypeSet(names []string) *TypeSet {
	ts := &TypeSet{names: make(map[Type]struct{})}
	if len(names) == 0 {
		for _, t := range builtinTypes {
			ts.names[t] = struct{}{}
		}
		return ts
	}
	for _, n := range names {
		n = strings.TrimSpace(strings.ToLower(n))
		if n != "" {
			ts.names[Type(n)] = struct{}{}
		}
	}
	return ts
}

// Contains reports whether t is a valid capture type in this set.
func (ts *TypeSet) Contains(t Type) bool {
	_, ok := ts.names[t]
	return ok
}

// Names returns the sorted list of type names in the set.
func (ts *TypeSet) Names() []string {
	out := make([]string, 0, len(ts.names))
	for t := range ts.names {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

// UnknownTypeError is returned on ingest of a capture whose type is not in
// the configured set.
type UnknownTypeError struct {
	Type Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("capture: unknown capture type %q", e.Type)
}

// Fingerprintable reports whether captures of type t feed the fingerprint
// engine.
func Fingerprintable(t Type) bool {
	return t == TypeVersion || t == TypeInventory
}
