// Package inventory loads the device inventory document, filters it, and
// resolves credentials for capture jobs.
package inventory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ryanuber/go-glob"
)

// Document is the on-disk inventory: session groups of devices. Unknown
// fields in the source document are ignored.
type Document struct {
	Groups []Group `json:"groups"`
}

// Group is a folder of device sessions.
type Group struct {
	FolderName string    `json:"folder_name"`
	Sessions   []Session `json:"sessions"`
}

// Session describes one device endpoint.
type Session struct {
	DisplayName  string `json:"display_name"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Vendor       string `json:"vendor"`
	DeviceType   string `json:"device_type"`
	CredentialID string `json:"credential_id"`
}

// Device is a flattened inventory entry ready for job planning.
type Device struct {
	Name           string
	NormalizedName string
	Group          string
	Host           string
	Port           int
	VendorHint     string
	DeviceType     string
	CredentialID   string
}

// Load reads and flattens an inventory document.
func Load(path string) ([]Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inventory: read %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("inventory: parse %s: %w", path, err)
	}

	var devices []Device
	for _, g := range doc.Groups {
		for _, s := range g.Sessions {
			if s.Host == "" {
				continue
			}
			name := s.DisplayName
			if name == "" {
				name = s.Host
			}
			port := s.Port
			if port == 0 {
				port = 22
			}
			devices = append(devices, Device{
				Name:           name,
				NormalizedName: NormalizeName(name),
				Group:          g.FolderName,
				Host:           s.Host,
				Port:           port,
				VendorHint:     s.Vendor,
				DeviceType:     s.DeviceType,
				CredentialID:   s.CredentialID,
			})
		}
	}
	return devices, nil
}

// NormalizeName lowercases a device name and collapses punctuation runs
// into single dashes. The result is the join key between inventory,
// capture artifacts, and the store.
func NormalizeName(name string) string {
	var b strings.Builder
	lastDash := true // suppress a leading dash
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// SiteFromName derives a site code from a device name of the form
// <SITE>-<...>. Names without the dash convention bucket into UNKNOWN.
func SiteFromName(name string) string {
	norm := NormalizeName(name)
	if idx := strings.IndexByte(norm, '-'); idx > 0 {
		return strings.ToUpper(norm[:idx])
	}
	return "UNKNOWN"
}

// Filter selects devices by glob patterns. Empty patterns match everything.
type Filter struct {
	Site   string
	Vendor string
	Name   string
}

// Apply returns the subset of devices matching every configured pattern.
func (f Filter) Apply(devices []Device) []Device {
	var out []Device
	for _, d := range devices {
		if f.Site != "" && !glob.Glob(strings.ToUpper(f.Site), SiteFromName(d.Name)) {
			continue
		}
		if f.Vendor != "" && !glob.Glob(strings.ToLower(f.Vendor), strings.ToLower(d.VendorHint)) {
			continue
		}
		if f.Name != "" && !glob.Glob(strings.ToLower(f.Name), d.NormalizedName) {
			continue
		}
		out = append(out, d)
	}
	return out
}
