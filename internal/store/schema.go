package store

// SQL schema constants for all fleetcap tables.

const schemaSites = `
CREATE TABLE IF NOT EXISTS sites (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT ''
);
`

const schemaVendors = `
CREATE TABLE IF NOT EXISTS vendors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);
`

const schemaDeviceTypes = `
CREATE TABLE IF NOT EXISTS device_types (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    netmiko_driver TEXT NOT NULL DEFAULT '',
    napalm_driver TEXT NOT NULL DEFAULT ''
);
`

const schemaDeviceRoles = `
CREATE TABLE IF NOT EXISTS device_roles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT ''
);
`

const schemaDevices = `
CREATE TABLE IF NOT EXISTS devices (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    normalized_name TEXT NOT NULL UNIQUE,
    site_id INTEGER REFERENCES sites(id),
    vendor_id INTEGER REFERENCES vendors(id),
    device_type_id INTEGER REFERENCES device_types(id),
    role_id INTEGER REFERENCES device_roles(id),
    model TEXT NOT NULL DEFAULT '',
    software_version TEXT NOT NULL DEFAULT '',
    mgmt_address TEXT NOT NULL DEFAULT '',
    is_stack INTEGER NOT NULL DEFAULT 0,
    stack_count INTEGER NOT NULL DEFAULT 0,
    have_sn INTEGER NOT NULL DEFAULT 0,
    last_fingerprint TEXT NOT NULL DEFAULT '',
    source_file TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_devices_site ON devices(site_id);
CREATE INDEX IF NOT EXISTS idx_devices_vendor ON devices(vendor_id);
`

const schemaDeviceSerials = `
CREATE TABLE IF NOT EXISTS device_serials (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
    serial TEXT NOT NULL,
    is_primary INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_serials_device ON device_serials(device_id);
`

const schemaStackMembers = `
CREATE TABLE IF NOT EXISTS stack_members (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    model TEXT NOT NULL DEFAULT '',
    serial TEXT NOT NULL DEFAULT '',
    is_master INTEGER NOT NULL DEFAULT 0,
    UNIQUE(device_id, position)
);
`

const schemaComponents = `
CREATE TABLE IF NOT EXISTS components (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
    kind TEXT NOT NULL DEFAULT 'unknown',
    name TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    serial TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL DEFAULT 0,
    source TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0.0
);
CREATE INDEX IF NOT EXISTS idx_components_device ON components(device_id);
`

const schemaCapturesCurrent = `
CREATE TABLE IF NOT EXISTS captures_current (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
    capture_type TEXT NOT NULL,
    captured_at TEXT NOT NULL,
    byte_length INTEGER NOT NULL DEFAULT 0,
    line_count INTEGER NOT NULL DEFAULT 0,
    content_hash TEXT NOT NULL,
    success INTEGER NOT NULL DEFAULT 0,
    file_path TEXT NOT NULL DEFAULT '',
    snippet TEXT NOT NULL DEFAULT '',
    UNIQUE(device_id, capture_type)
);
`

const schemaCapturesArchive = `
CREATE TABLE IF NOT EXISTS captures_archive (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
    capture_type TEXT NOT NULL,
    captured_at TEXT NOT NULL,
    byte_length INTEGER NOT NULL DEFAULT 0,
    line_count INTEGER NOT NULL DEFAULT 0,
    content_hash TEXT NOT NULL,
    success INTEGER NOT NULL DEFAULT 0,
    file_path TEXT NOT NULL DEFAULT '',
    snippet TEXT NOT NULL DEFAULT '',
    archived_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archive_device_type ON captures_archive(device_id, capture_type);
CREATE INDEX IF NOT EXISTS idx_archive_archived_at ON captures_archive(archived_at);
`

const schemaExtractions = `
CREATE TABLE IF NOT EXISTS fingerprint_extractions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
    timestamp TEXT NOT NULL,
    template_id TEXT NOT NULL DEFAULT '',
    score INTEGER NOT NULL DEFAULT 0,
    success INTEGER NOT NULL DEFAULT 0,
    field_count INTEGER NOT NULL DEFAULT 0,
    metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_extractions_device ON fingerprint_extractions(device_id);
`

const schemaChanges = `
CREATE TABLE IF NOT EXISTS capture_changes (
    id TEXT PRIMARY KEY,
    device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
    capture_type TEXT NOT NULL,
    detected_at TEXT NOT NULL,
    prior_hash TEXT NOT NULL,
    new_hash TEXT NOT NULL,
    lines_added INTEGER NOT NULL DEFAULT 0,
    lines_removed INTEGER NOT NULL DEFAULT 0,
    diff_path TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL DEFAULT 'informational'
);
CREATE INDEX IF NOT EXISTS idx_changes_device ON capture_changes(device_id, capture_type);
`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// allSchemas is the ordered list of schema DDL statements that form
// the initial (version-1) database layout. Reference tables come first so
// the foreign keys on devices resolve.
var allSchemas = []string{
	schemaSites,
	schemaVendors,
	schemaDeviceTypes,
	schemaDeviceRoles,
	schemaDevices,
	schemaDeviceSerials,
	schemaStackMembers,
	schemaComponents,
	schemaCapturesCurrent,
	schemaCapturesArchive,
	schemaExtractions,
	schemaChanges,
	schemaMigrations,
}
