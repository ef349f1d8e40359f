package store

import (
	"database/sql"
	"fmt"
)

// Derived read projections, materialized as SQL views rather than tables.

const viewDeviceStatus = `
CREATE VIEW IF NOT EXISTS v_device_status AS
SELECT
    d.id AS device_id,
    d.name,
    d.normalized_name,
    s.code AS site_code,
    v.name AS vendor,
    r.name AS role,
    d.model,
    d.software_version,
    d.is_stack,
    d.stack_count,
    d.have_sn,
    d.last_fingerprint,
    (SELECT COUNT(*) FROM captures_current cc WHERE cc.device_id = d.id) AS capture_types,
    (SELECT COUNT(*) FROM captures_current cc WHERE cc.device_id = d.id AND cc.success = 1) AS captures_ok
FROM devices d
LEFT JOIN sites s ON s.id = d.site_id
LEFT JOIN vendors v ON v.id = d.vendor_id
LEFT JOIN device_roles r ON r.id = d.role_id;
`

const viewCaptureCoverage = `
CREATE VIEW IF NOT EXISTS v_capture_coverage AS
SELECT
    cc.capture_type,
    COALESCE(v.name, 'unknown') AS vendor,
    COUNT(*) AS total,
    SUM(cc.success) AS ok
FROM captures_current cc
JOIN devices d ON d.id = cc.device_id
LEFT JOIN vendors v ON v.id = d.vendor_id
GROUP BY cc.capture_type, v.name;
`

const viewSiteInventory = `
CREATE VIEW IF NOT EXISTS v_site_inventory AS
SELECT
    COALESCE(s.code, 'UNKNOWN') AS site_code,
    COALESCE(r.name, 'unknown') AS role,
    COALESCE(v.name, 'unknown') AS vendor,
    COUNT(*) AS devices
FROM devices d
LEFT JOIN sites s ON s.id = d.site_id
LEFT JOIN device_roles r ON r.id = d.role_id
LEFT JOIN vendors v ON v.id = d.vendor_id
GROUP BY s.code, r.name, v.name;
`

func applyViews(tx *sql.Tx) error {
	for _, ddl := range []string{viewDeviceStatus, viewCaptureCoverage, viewSiteInventory} {
		if _, err := tx.Exec(ddl); err != nil {
			return fmt.Errorf("exec view: %w", err)
		}
	}
	return nil
}

// DeviceStatus is one v_device_status row.
type DeviceStatus struct {
	DeviceID        int64
	Name            string
	NormalizedName  string
	SiteCode        string
	Vendor          string
	Role            string
	Model           string
	SoftwareVersion string
	IsStack         bool
	StackCount      int
	HaveSN          bool
	LastFingerprint string
	CaptureTypes    int
	CapturesOK      int
}

// DeviceStatuses reads the per-device status projection.
func (s *Store) DeviceStatuses() ([]DeviceStatus, error) {
	rows, err := s.reader.Query(`
		SELECT device_id, name, normalized_name, COALESCE(site_code, ''), COALESCE(vendor, ''),
		       COALESCE(role, ''), model, software_version, is_stack, stack_count, have_sn,
		       last_fingerprint, capture_types, captures_ok
		FROM v_device_status ORDER BY normalized_name`)
	if err != nil {
		return nil, fmt.Errorf("store: device statuses: %w", err)
	}
	defer rows.Close()

	var out []DeviceStatus
	for rows.Next() {
		var d DeviceStatus
		if err := rows.Scan(&d.DeviceID, &d.Name, &d.NormalizedName, &d.SiteCode, &d.Vendor,
			&d.Role, &d.Model, &d.SoftwareVersion, &d.IsStack, &d.StackCount, &d.HaveSN,
			&d.LastFingerprint, &d.CaptureTypes, &d.CapturesOK); err != nil {
			return nil, fmt.Errorf("store: scan device status: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Coverage is one v_capture_coverage row.
type Coverage struct {
	CaptureType string
	Vendor      string
	Total       int
	OK          int
}

// CaptureCoverage reads the capture coverage projection.
func (s *Store) CaptureCoverage() ([]Coverage, error) {
	rows, err := s.reader.Query(
		"SELECT capture_type, vendor, total, COALESCE(ok, 0) FROM v_capture_coverage ORDER BY capture_type, vendor")
	if err != nil {
		return nil, fmt.Errorf("store: capture coverage: %w", err)
	}
	defer rows.Close()

	var out []Coverage
	for rows.Next() {
		var c Coverage
		if err := rows.Scan(&c.CaptureType, &c.Vendor, &c.Total, &c.OK); err != nil {
			return nil, fmt.Errorf("store: scan coverage: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SiteCount is one v_site_inventory row.
type SiteCount struct {
	SiteCode string
	Role     string
	Vendor   string
	Devices  int
}

// SiteInventory reads the per-site device count projection.
func (s *Store) SiteInventory() ([]SiteCount, error) {
	rows, err := s.reader.Query(
		"SELECT site_code, role, vendor, devices FROM v_site_inventory ORDER BY site_code, role, vendor")
	if err != nil {
		return nil, fmt.Errorf("store: site inventory: %w", err)
	}
	defer rows.Close()

	var out []SiteCount
	for rows.Next() {
		var c SiteCount
		if err := rows.Scan(&c.SiteCode, &c.Role, &c.Vendor, &c.Devices); err != nil {
			return nil, fmt.Errorf("store: scan site inventory: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
