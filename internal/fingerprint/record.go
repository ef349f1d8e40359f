// Package fingerprint turns raw command output into normalized device
// records by scoring candidate templates and extracting fields from the
// winner.
package fingerprint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record is the self-describing fingerprint artifact written next to the
// captures, one per device. Field names are fixed and case-sensitive;
// unknown fields in an on-disk record are ignored on load.
type Record struct {
	Hostname       string            `json:"hostname"`
	Host           string            `json:"host"`
	Model          string            `json:"model"`
	Version        string            `json:"version"`
	SerialNumber   string            `json:"serial_number"`
	CommandOutputs map[string]string `json:"command_outputs"`
	AdditionalInfo AdditionalInfo    `json:"additional_info"`
	CapturedAt     time.Time         `json:"captured_at"`
}

// AdditionalInfo carries the vendor hint and optional driver hints consumed
// by external tooling.
type AdditionalInfo struct {
	Vendor        string `json:"vendor"`
	NetmikoDriver string `json:"netmiko_driver,omitempty"`
	NapalmDriver  string `json:"napalm_driver,omitempty"`
}

// RecordPath returns <root>/<device-normalized-name>.json.
func RecordPath(root, device string) string {
	return filepath.Join(root, device+".json")
}

// LoadRecord reads a fingerprint record from disk.
func LoadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: read %s: %w", path, err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("fingerprint: parse %s: %w", path, err)
	}
	return &r, nil
}

// Marshal renders the record for its artifact file.
func (r *Record) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("fingerprint: marshal record: %w", err)
	}
	return append(data, '\n'), nil
}
