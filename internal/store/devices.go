package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Device is one row of the devices table.
type Device struct {
	ID              int64
	Name            string
	NormalizedName  string
	SiteID          int64
	VendorID        int64
	DeviceTypeID    int64
	RoleID          int64
	Model           string
	SoftwareVersion string
	MgmtAddress     string
	IsStack         bool
	StackCount      int
	HaveSN          bool
	LastFingerprint string
	SourceFile      string
}

// StackMember is one row of stack_members.
type StackMember struct {
	Position int
	Model    string
	Serial   string
	IsMaster bool
}

// Component is one row of components.
type Component struct {
	Kind        string
	Name        string
	Description string
	Serial      string
	Position    int
	Source      string
	Confidence  float64
}

// Extraction is one fingerprint_extractions audit row.
type Extraction struct {
	DeviceID   int64
	Timestamp  time.Time
	TemplateID string
	Score      int
	Success    bool
	FieldCount int
	Metadata   string
}

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// Tx wraps a write transaction with the typed operations the loader
// composes. All Tx methods run on the single writer connection.
type Tx struct {
	tx *sql.Tx
}

// UpsertSite inserts a site by unique code and returns its id.
func (t *Tx) UpsertSite(code string) (int64, error) {
	return t.upsertRef("sites", "code", code)
}

// UpsertVendor inserts a vendor by unique name and returns its id.
func (t *Tx) UpsertVendor(name string) (int64, error) {
	return t.upsertRef("vendors", "name", name)
}

// UpsertRole inserts a device role by unique name and returns its id.
func (t *Tx) UpsertRole(name string) (int64, error) {
	return t.upsertRef("device_roles", "name", name)
}

// UpsertDeviceType inserts a device type by unique name, updating driver
// strings when provided, and returns its id.
func (t *Tx) UpsertDeviceType(name, netmikoDriver, napalmDriver string) (int64, error) {
	_, err := t.tx.Exec(`
		INSERT INTO device_types (name, netmiko_driver, napalm_driver)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			netmiko_driver = CASE WHEN excluded.netmiko_driver != '' THEN excluded.netmiko_driver ELSE device_types.netmiko_driver END,
			napalm_driver  = CASE WHEN excluded.napalm_driver  != '' THEN excluded.napalm_driver  ELSE device_types.napalm_driver  END`,
		name, netmikoDriver, napalmDriver,
	)
	if err != nil {
		return 0, fmt.Errorf("store: upsert device type %s: %w", name, err)
	}
	return t.refID("device_types", "name", name)
}

func (t *Tx) upsertRef(table, keyCol, key string) (int64, error) {
	_, err := t.tx.Exec(
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (?) ON CONFLICT(%s) DO NOTHING", table, keyCol, keyCol),
		key,
	)
	if err != nil {
		return 0, fmt.Errorf("store: upsert %s %s: %w", table, key, err)
	}
	return t.refID(table, keyCol, key)
}

func (t *Tx) refID(table, keyCol, key string) (int64, error) {
	var id int64
	err := t.tx.QueryRow(
		fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", table, keyCol), key,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: resolve %s %s: %w", table, key, err)
	}
	return id, nil
}

// UpsertDevice inserts or updates a device by normalized_name and returns
// its id. Invariant columns (have_sn, is_stack, stack_count) are left to
// RecomputeInvariants.
func (t *Tx) UpsertDevice(d *Device) (int64, error) {
	_, err := t.tx.Exec(`
		INSERT INTO devices
			(name, normalized_name, site_id, vendor_id, device_type_id, role_id,
			 model, software_version, mgmt_address, last_fingerprint, source_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(normalized_name) DO UPDATE SET
			name = excluded.name,
			site_id = excluded.site_id,
			vendor_id = excluded.vendor_id,
			device_type_id = excluded.device_type_id,
			role_id = excluded.role_id,
			model = excluded.model,
			software_version = excluded.software_version,
			mgmt_address = excluded.mgmt_address,
			last_fingerprint = excluded.last_fingerprint,
			source_file = excluded.source_file`,
		d.Name, d.NormalizedName,
		nullableID(d.SiteID), nullableID(d.VendorID), nullableID(d.DeviceTypeID), nullableID(d.RoleID),
		d.Model, d.SoftwareVersion, d.MgmtAddress, d.LastFingerprint, d.SourceFile,
	)
	if err != nil {
		return 0, fmt.Errorf("store: upsert device %s: %w", d.NormalizedName, err)
	}
	return t.refID("devices", "normalized_name", d.NormalizedName)
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// DeviceID resolves a device by normalized_name within the transaction.
func (t *Tx) DeviceID(normalizedName string) (int64, error) {
	var id int64
	err := t.tx.QueryRow("SELECT id FROM devices WHERE normalized_name = ?", normalizedName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: device id %s: %w", normalizedName, err)
	}
	return id, nil
}

// ReplaceSerials swaps the device's serial rows for the given list,
// marking the first serial primary.
func (t *Tx) ReplaceSerials(deviceID int64, serials []string) error {
	if _, err := t.tx.Exec("DELETE FROM device_serials WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("store: clear serials: %w", err)
	}
	for i, sn := range serials {
		primary := 0
		if i == 0 {
			primary = 1
		}
		if _, err := t.tx.Exec(
			"INSERT INTO device_serials (device_id, serial, is_primary) VALUES (?, ?, ?)",
			deviceID, sn, primary,
		); err != nil {
			return fmt.Errorf("store: insert serial %s: %w", sn, err)
		}
	}
	return nil
}

// ReplaceStackMembers swaps the device's stack member rows.
func (t *Tx) ReplaceStackMembers(deviceID int64, members []StackMember) error {
	if _, err := t.tx.Exec("DELETE FROM stack_members WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("store: clear stack members: %w", err)
	}
	for _, m := range members {
		if _, err := t.tx.Exec(
			"INSERT INTO stack_members (device_id, position, model, serial, is_master) VALUES (?, ?, ?, ?, ?)",
			deviceID, m.Position, m.Model, m.Serial, boolInt(m.IsMaster),
		); err != nil {
			return fmt.Errorf("store: insert stack member %d: %w", m.Position, err)
		}
	}
	return nil
}

// ReplaceComponents swaps the device's component rows.
func (t *Tx) ReplaceComponents(deviceID int64, comps []Component) error {
	if _, err := t.tx.Exec("DELETE FROM components WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("store: clear components: %w", err)
	}
	for _, c := range comps {
		if _, err := t.tx.Exec(`
			INSERT INTO components (device_id, kind, name, description, serial, position, source, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			deviceID, c.Kind, c.Name, c.Description, c.Serial, c.Position, c.Source, c.Confidence,
		); err != nil {
			return fmt.Errorf("store: insert component %s: %w", c.Name, err)
		}
	}
	return nil
}

// RecomputeInvariants refreshes have_sn, stack_count and is_stack from the
// child tables. It runs inside the same transaction as the mutation that
// invalidated them.
func (t *Tx) RecomputeInvariants(deviceID int64) error {
	_, err := t.tx.Exec(`
		UPDATE devices SET
			have_sn = EXISTS (SELECT 1 FROM device_serials WHERE device_id = devices.id),
			stack_count = (SELECT COUNT(*) FROM stack_members WHERE device_id = devices.id),
			is_stack = (SELECT COUNT(*) FROM stack_members WHERE device_id = devices.id) >= 2
		WHERE id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("store: recompute invariants: %w", err)
	}
	return nil
}

// InsertExtraction records a fingerprint audit row.
func (t *Tx) InsertExtraction(e *Extraction) error {
	_, err := t.tx.Exec(`
		INSERT INTO fingerprint_extractions
			(device_id, timestamp, template_id, score, success, field_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.DeviceID, e.Timestamp.UTC().Format(time.RFC3339), e.TemplateID,
		e.Score, boolInt(e.Success), e.FieldCount, e.Metadata,
	)
	if err != nil {
		return fmt.Errorf("store: insert extraction: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetDevice reads a device by normalized name using the reader pool.
func (s *Store) GetDevice(normalizedName string) (*Device, error) {
	d := &Device{}
	var siteID, vendorID, typeID, roleID sql.NullInt64
	err := s.reader.QueryRow(`
		SELECT id, name, normalized_name, site_id, vendor_id, device_type_id, role_id,
		       model, software_version, mgmt_address, is_stack, stack_count, have_sn,
		       last_fingerprint, source_file
		FROM devices WHERE normalized_name = ?`, normalizedName,
	).Scan(
		&d.ID, &d.Name, &d.NormalizedName, &siteID, &vendorID, &typeID, &roleID,
		&d.Model, &d.SoftwareVersion, &d.MgmtAddress, &d.IsStack, &d.StackCount, &d.HaveSN,
		&d.LastFingerprint, &d.SourceFile,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get device %s: %w", normalizedName, err)
	}
	d.SiteID, d.VendorID, d.DeviceTypeID, d.RoleID = siteID.Int64, vendorID.Int64, typeID.Int64, roleID.Int64
	return d, nil
}

// Serials returns the device's serial strings, primary first.
func (s *Store) Serials(deviceID int64) ([]string, error) {
	rows, err := s.reader.Query(
		"SELECT serial FROM device_serials WHERE device_id = ? ORDER BY is_primary DESC, id", deviceID)
	if err != nil {
		return nil, fmt.Errorf("store: serials: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sn string
		if err := rows.Scan(&sn); err != nil {
			return nil, fmt.Errorf("store: scan serial: %w", err)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// StackMembers returns the device's stack members in position order.
func (s *Store) StackMembers(deviceID int64) ([]StackMember, error) {
	rows, err := s.reader.Query(
		"SELECT position, model, serial, is_master FROM stack_members WHERE device_id = ? ORDER BY position", deviceID)
	if err != nil {
		return nil, fmt.Errorf("store: stack members: %w", err)
	}
	defer rows.Close()

	var out []StackMember
	for rows.Next() {
		var m StackMember
		if err := rows.Scan(&m.Position, &m.Model, &m.Serial, &m.IsMaster); err != nil {
			return nil, fmt.Errorf("store: scan stack member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Components returns the device's components in position order.
func (s *Store) Components(deviceID int64) ([]Component, error) {
	rows, err := s.reader.Query(`
		SELECT kind, name, description, serial, position, source, confidence
		FROM components WHERE device_id = ? ORDER BY position`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("store: components: %w", err)
	}
	defer rows.Close()

	var out []Component
	for rows.Next() {
		var c Component
		if err := rows.Scan(&c.Kind, &c.Name, &c.Description, &c.Serial, &c.Position, &c.Source, &c.Confidence); err != nil {
			return nil, fmt.Errorf("store: scan component: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Extractions returns the device's audit rows, newest first.
func (s *Store) Extractions(deviceID int64) ([]Extraction, error) {
	rows, err := s.reader.Query(`
		SELECT device_id, timestamp, template_id, score, success, field_count, metadata
		FROM fingerprint_extractions WHERE device_id = ? ORDER BY id DESC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("store: extractions: %w", err)
	}
	defer rows.Close()

	var out []Extraction
	for rows.Next() {
		var e Extraction
		var ts string
		if err := rows.Scan(&e.DeviceID, &ts, &e.TemplateID, &e.Score, &e.Success, &e.FieldCount, &e.Metadata); err != nil {
			return nil, fmt.Errorf("store: scan extraction: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteDevice removes a device; serials, stack members, components,
// captures, extractions and change rows cascade.
func (s *Store) DeleteDevice(normalizedName string) error {
	res, err := s.writer.Exec("DELETE FROM devices WHERE normalized_name = ?", normalizedName)
	if err != nil {
		return fmt.Errorf("store: delete device %s: %w", normalizedName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
